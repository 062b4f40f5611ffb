package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper lets tests intercept the gateway's HTTP calls without
// a live server.
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestGateway(rt MockRoundTripper) *paystackGateway {
	gw := NewPaystackGateway("sk_test_secret", "whk_test").(*paystackGateway)
	gw.httpClient = &http.Client{Transport: rt}
	return gw
}

func TestInitializeCharge_Success(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte

	gw := newTestGateway(func(req *http.Request) *http.Response {
		captured = req
		capturedBody, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusOK, `{
			"status": true,
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code": "abc123",
				"reference": "chw-ref-1"
			}
		}`)
	})

	resp, err := gw.InitializeCharge(context.Background(), ChargeRequest{
		Reference:  "chw-ref-1",
		Amount:     8250,
		PayerEmail: "buyer@example.com",
		Metadata:   ChargeMetadata{OrderID: "ord-1", UserID: "cust-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "chw-ref-1", resp.Reference)
	assert.Equal(t, "abc123", resp.AccessCode)
	assert.Equal(t, "https://checkout.paystack.com/abc123", resp.AuthorizationURL)

	require.NotNil(t, captured)
	assert.Equal(t, "POST", captured.Method)
	assert.Equal(t, "/transaction/initialize", captured.URL.Path)
	assert.Equal(t, "Bearer sk_test_secret", captured.Header.Get("Authorization"))

	var sent map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(capturedBody, &sent))
	assert.JSONEq(t, `{"order_id":"ord-1","user_id":"cust-1"}`, string(sent["metadata"]))
}

func TestInitializeCharge_ProviderRejects(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusBadRequest, `{"status": false, "message": "Invalid amount"}`)
	})

	_, err := gw.InitializeCharge(context.Background(), ChargeRequest{Reference: "chw-ref-1", Amount: -1})
	assert.Error(t, err)
}

func TestVerify_Success(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) *http.Response {
		assert.Equal(t, "/transaction/verify/chw-ref-1", req.URL.Path)
		return jsonResponse(http.StatusOK, `{
			"status": true,
			"data": {
				"status": "success",
				"amount": 8250,
				"metadata": {"order_id": "ord-1", "user_id": "cust-1"}
			}
		}`)
	})

	vr, err := gw.Verify(context.Background(), "chw-ref-1")
	require.NoError(t, err)
	assert.Equal(t, "success", vr.Status)
	assert.Equal(t, int64(8250), vr.Amount)
}

func TestVerify_ProviderError(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusBadGateway, `upstream timeout`)
	})

	_, err := gw.Verify(context.Background(), "chw-ref-1")
	assert.ErrorIs(t, err, ErrProviderVerificationFailed)
}

func TestVerifySignature(t *testing.T) {
	gw := NewPaystackGateway("sk_test_secret", "whk_test").(*paystackGateway)

	body := []byte(`{"event":"charge.success","data":{"reference":"chw-ref-1"}}`)
	mac := hmac.New(sha512.New, []byte("whk_test"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, gw.VerifySignature(valid, body))
	assert.Error(t, gw.VerifySignature(valid, []byte(`tampered`)))
	assert.Error(t, gw.VerifySignature("deadbeef", body))
	assert.Error(t, gw.VerifySignature("", body))
}

func TestVerifySignature_MissingKey(t *testing.T) {
	gw := NewPaystackGateway("sk_test_secret", "").(*paystackGateway)
	assert.Error(t, gw.VerifySignature("anything", []byte(`{}`)))
}
