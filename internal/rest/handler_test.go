package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chowhub-be/internal/order"
	"chowhub-be/internal/payment"
	"chowhub-be/internal/utils"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, customerID, vendorID string, items []order.NewOrderItem) (*order.Order, error) {
	args := m.Called(ctx, customerID, vendorID, items)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID, actorID string, role order.Role) (*order.Order, error) {
	args := m.Called(ctx, orderID, actorID, role)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderService) Transition(ctx context.Context, orderID, actorID string, role order.Role, target order.OrderStatus, reason *string) (*order.Order, error) {
	args := m.Called(ctx, orderID, actorID, role, target, reason)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Initiate(ctx context.Context, orderID, actorID, payerEmail string, channel payment.Channel) (*payment.Handoff, error) {
	args := m.Called(ctx, orderID, actorID, payerEmail, channel)
	if h := args.Get(0); h != nil {
		return h.(*payment.Handoff), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentService) Confirm(ctx context.Context, reference string, reportedAmount int64, reportedMetadata json.RawMessage) (*payment.Result, error) {
	args := m.Called(ctx, reference, reportedAmount, reportedMetadata)
	if r := args.Get(0); r != nil {
		return r.(*payment.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentService) Reconcile(ctx context.Context, reference string) (*payment.Result, error) {
	args := m.Called(ctx, reference)
	if r := args.Get(0); r != nil {
		return r.(*payment.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestServer() (*http.ServeMux, *MockOrderService, *MockPaymentService) {
	orderSvc := new(MockOrderService)
	paymentSvc := new(MockPaymentService)
	mux := http.NewServeMux()
	NewHandler(orderSvc, paymentSvc).Register(mux)
	return mux, orderSvc, paymentSvc
}

func authed(req *http.Request, userID, role string) *http.Request {
	ctx := utils.WithUserID(req.Context(), userID)
	ctx = utils.WithUserRole(ctx, role)
	ctx = utils.WithUserEmail(ctx, userID+"@example.com")
	return req.WithContext(ctx)
}

func TestCreateOrderHandler(t *testing.T) {
	mux, orderSvc, _ := newTestServer()

	t.Run("Success", func(t *testing.T) {
		orderSvc.On("CreateOrder", mock.Anything, "cust-1", "vend-1",
			[]order.NewOrderItem{{ProductID: "prod-1", Quantity: 2}}).
			Return(&order.Order{ID: "ord-1", Status: order.StatusAwaitingPayment, TotalPrice: 5500}, nil)

		body := `{"vendor_id":"vend-1","items":[{"product_id":"prod-1","quantity":2}]}`
		req := authed(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "ord-1", got["id"])
		assert.Equal(t, "AWAITING_PAYMENT", got["status"])
	})

	t.Run("Anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("BadBody", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`not json`)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTransitionOrderHandler(t *testing.T) {
	mux, orderSvc, _ := newTestServer()

	t.Run("VendorStartsCooking", func(t *testing.T) {
		orderSvc.On("Transition", mock.Anything, "ord-1", "vend-1",
			order.RoleVendor, order.StatusCooking, (*string)(nil)).
			Return(&order.Order{ID: "ord-1", Status: order.StatusCooking}, nil)

		body := `{"target":"COOKING"}`
		req := authed(httptest.NewRequest(http.MethodPost, "/orders/ord-1/transition", strings.NewReader(body)), "vend-1", utils.RoleVendor)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("IllegalEdgeMapsToConflict", func(t *testing.T) {
		orderSvc.On("Transition", mock.Anything, "ord-2", "cust-1",
			order.RoleCustomer, order.StatusCompleted, (*string)(nil)).
			Return(nil, order.ErrInvalidTransition)

		body := `{"target":"COMPLETED"}`
		req := authed(httptest.NewRequest(http.MethodPost, "/orders/ord-2/transition", strings.NewReader(body)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_TRANSITION")
	})
}

func TestInitiatePaymentHandler(t *testing.T) {
	mux, _, paymentSvc := newTestServer()

	t.Run("Success", func(t *testing.T) {
		paymentSvc.On("Initiate", mock.Anything, "ord-1", "cust-1", "cust-1@example.com", payment.ChannelWeb).
			Return(&payment.Handoff{Reference: "chw-ref-1", AuthorizationURL: "https://checkout.paystack.com/x", Amount: 8250}, nil)

		body := `{"order_id":"ord-1","channel":"web"}`
		req := authed(httptest.NewRequest(http.MethodPost, "/payments/initiate", strings.NewReader(body)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "chw-ref-1")
	})

	t.Run("AlreadyPending", func(t *testing.T) {
		paymentSvc.On("Initiate", mock.Anything, "ord-2", "cust-1", "cust-1@example.com", payment.ChannelWeb).
			Return(nil, payment.ErrPaymentAlreadyPending)

		body := `{"order_id":"ord-2","channel":"web"}`
		req := authed(httptest.NewRequest(http.MethodPost, "/payments/initiate", strings.NewReader(body)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "PAYMENT_ALREADY_PENDING")
	})
}

func TestConfirmPaymentHandler(t *testing.T) {
	mux, _, paymentSvc := newTestServer()

	t.Run("ReconcilesInsteadOfTrustingClient", func(t *testing.T) {
		paymentSvc.On("Reconcile", mock.Anything, "chw-ref-1").
			Return(&payment.Result{
				Order:   &order.Order{ID: "ord-1", Status: order.StatusPaymentConfirmed},
				Payment: &payment.Payment{Reference: "chw-ref-1", Status: payment.StatusSuccess},
			}, nil)

		body := `{"reference":"chw-ref-1"}`
		req := authed(httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(body)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "PAYMENT_CONFIRMED")
		paymentSvc.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ChargeNotSettledYet", func(t *testing.T) {
		paymentSvc.On("Reconcile", mock.Anything, "chw-ref-3").
			Return(nil, payment.ErrChargeNotSettled)

		body := `{"reference":"chw-ref-3"}`
		req := authed(httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(body)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		// The provider is healthy; the customer just has not paid.
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "CHARGE_NOT_SETTLED")
	})

	t.Run("ProviderDown", func(t *testing.T) {
		paymentSvc.On("Reconcile", mock.Anything, "chw-ref-2").
			Return(nil, payment.ErrProviderVerificationFailed)

		body := `{"reference":"chw-ref-2"}`
		req := authed(httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(body)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("MissingReference", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(`{}`)), "cust-1", utils.RoleCustomer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
