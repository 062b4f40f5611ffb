package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chowhub-be/internal/logger"
)

const paystackBaseURL = "https://api.paystack.co"

type paystackGateway struct {
	secretKey  string
	webhookKey string
	httpClient *http.Client
}

func NewPaystackGateway(secretKey, webhookKey string) Gateway {
	if secretKey == "" {
		logger.L().Warn("Paystack secret key is empty")
	}

	return &paystackGateway{
		secretKey:  secretKey,
		webhookKey: webhookKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (g *paystackGateway) InitializeCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	log := logger.L().With(
		zap.String("reference", req.Reference),
		zap.Int64("amount", req.Amount),
		zap.String("payer", req.PayerEmail),
	)

	body := map[string]interface{}{
		"reference": req.Reference,
		"amount":    req.Amount,
		"email":     req.PayerEmail,
		"metadata":  req.Metadata,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Error("Failed to marshal charge request", zap.Error(err))
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		paystackBaseURL+"/transaction/initialize", bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, err
	}

	httpReq.Header.Add("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Add("Content-Type", "application/json")

	log.Info("Sending charge request to Paystack")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Paystack request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderVerificationFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read paystack response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("Paystack returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("paystack error: %s", string(bodyBytes))
	}

	var res struct {
		Status bool `json:"status"`
		Data   struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("Failed decoding Paystack response", zap.Error(err))
		return nil, err
	}
	if !res.Status {
		return nil, fmt.Errorf("paystack error: %s", string(bodyBytes))
	}

	log.Info("Paystack charge initialized",
		zap.String("access_code", res.Data.AccessCode),
	)

	return &ChargeResponse{
		Reference:        res.Data.Reference,
		AuthorizationURL: res.Data.AuthorizationURL,
		AccessCode:       res.Data.AccessCode,
	}, nil
}

func (g *paystackGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	log := logger.L().With(zap.String("reference", reference))

	url := fmt.Sprintf("%s/transaction/verify/%s", paystackBaseURL, reference)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		log.Error("Failed building request", zap.Error(err))
		return nil, err
	}

	req.Header.Add("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Error("Request to Paystack failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderVerificationFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read paystack response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("Paystack returned error",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("%w: status %d", ErrProviderVerificationFailed, resp.StatusCode)
	}

	var res struct {
		Status bool `json:"status"`
		Data   struct {
			Status   string          `json:"status"`
			Amount   int64           `json:"amount"`
			Metadata json.RawMessage `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("Failed decoding verification", zap.Error(err))
		return nil, err
	}
	if !res.Status {
		log.Warn("Transaction not found at provider")
		return nil, errors.New("transaction not found")
	}

	return &VerifyResult{
		Status:   res.Data.Status,
		Amount:   res.Data.Amount,
		Metadata: res.Data.Metadata,
	}, nil
}

// VerifySignature checks the x-paystack-signature header: hex-encoded
// HMAC-SHA-512 over the raw request body, keyed with the shared secret.
func (g *paystackGateway) VerifySignature(signature string, body []byte) error {
	if g.webhookKey == "" {
		return errors.New("webhook key not configured")
	}

	mac := hmac.New(sha512.New, []byte(g.webhookKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("invalid webhook signature")
	}
	return nil
}
