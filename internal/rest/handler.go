// Package rest exposes the order and payment services over plain JSON
// endpoints. Handlers stay thin: identity from context, decode, call
// the service, map the error.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"chowhub-be/internal/logger"
	"chowhub-be/internal/order"
	"chowhub-be/internal/payment"
	"chowhub-be/internal/utils"
)

type Handler struct {
	OrderSvc   order.Service
	PaymentSvc payment.Service
}

func NewHandler(orderSvc order.Service, paymentSvc payment.Service) *Handler {
	return &Handler{OrderSvc: orderSvc, PaymentSvc: paymentSvc}
}

// Register mounts the handlers on mux using method-qualified patterns.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /orders/{id}/transition", h.TransitionOrder)
	mux.HandleFunc("POST /payments/initiate", h.InitiatePayment)
	mux.HandleFunc("POST /payments/confirm", h.ConfirmPayment)
}

type createOrderRequest struct {
	VendorID string `json:"vendor_id"`
	Items    []struct {
		ProductID string          `json:"product_id"`
		Quantity  int             `json:"quantity"`
		Options   json.RawMessage `json:"options,omitempty"`
	} `json:"items"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteJSONError(w, "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "INVALID_BODY", http.StatusBadRequest)
		return
	}

	items := make([]order.NewOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.NewOrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Options:   it.Options,
		})
	}

	o, err := h.OrderSvc.CreateOrder(r.Context(), customerID, req.VendorID, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, orderView(o), http.StatusCreated)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actorID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteJSONError(w, "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}

	o, err := h.OrderSvc.GetOrder(r.Context(), r.PathValue("id"), actorID, actorRole(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, orderView(o), http.StatusOK)
}

type transitionRequest struct {
	Target string  `json:"target"`
	Reason *string `json:"reason,omitempty"`
}

func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	actorID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteJSONError(w, "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "INVALID_BODY", http.StatusBadRequest)
		return
	}

	o, err := h.OrderSvc.Transition(
		r.Context(), r.PathValue("id"), actorID,
		actorRole(r), order.OrderStatus(req.Target), req.Reason,
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, orderView(o), http.StatusOK)
}

type initiatePaymentRequest struct {
	OrderID string `json:"order_id"`
	Channel string `json:"channel"`
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteJSONError(w, "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}

	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "INVALID_BODY", http.StatusBadRequest)
		return
	}

	channel := payment.Channel(req.Channel)
	if channel != payment.ChannelWeb && channel != payment.ChannelMobile {
		channel = payment.ChannelWeb
	}

	handoff, err := h.PaymentSvc.Initiate(
		r.Context(), req.OrderID, actorID,
		utils.GetUserEmailFromContext(r.Context()), channel,
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, handoff, http.StatusCreated)
}

type confirmPaymentRequest struct {
	Reference string `json:"reference"`
}

// ConfirmPayment is the manual confirmation entry point. It never
// trusts a client-reported amount: the charge is verified against the
// provider and the verified figures feed the same confirmation path the
// webhook uses.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := utils.GetUserIDFromContext(r.Context()); !ok {
		utils.WriteJSONError(w, "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}

	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reference == "" {
		utils.WriteJSONError(w, "INVALID_BODY", http.StatusBadRequest)
		return
	}

	res, err := h.PaymentSvc.Reconcile(r.Context(), req.Reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, map[string]any{
		"order":   orderView(res.Order),
		"payment": paymentView(res.Payment),
	}, http.StatusOK)
}

func actorRole(r *http.Request) order.Role {
	if utils.GetUserRoleFromContext(r.Context()) == utils.RoleVendor {
		return order.RoleVendor
	}
	return order.RoleCustomer
}

// writeError maps service errors onto stable JSON codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	type mapping struct {
		sentinel error
		code     string
		status   int
	}

	mappings := []mapping{
		{order.ErrOrderNotFound, "ORDER_NOT_FOUND", http.StatusNotFound},
		{order.ErrUnauthorized, "UNAUTHORIZED", http.StatusForbidden},
		{order.ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict},
		{order.ErrProductOffline, "PRODUCT_OFFLINE", http.StatusUnprocessableEntity},
		{order.ErrEmptyOrder, "EMPTY_ORDER", http.StatusBadRequest},
		{order.ErrPersistenceConflict, "CONFLICT_RETRY", http.StatusConflict},
		{payment.ErrNotReadyForPayment, "NOT_READY_FOR_PAYMENT", http.StatusConflict},
		{payment.ErrAlreadyPaid, "ALREADY_PAID", http.StatusConflict},
		{payment.ErrPaymentAlreadyPending, "PAYMENT_ALREADY_PENDING", http.StatusConflict},
		{payment.ErrPaymentNotFound, "PAYMENT_NOT_FOUND", http.StatusNotFound},
		{payment.ErrAmountMismatch, "AMOUNT_MISMATCH", http.StatusUnprocessableEntity},
		{payment.ErrOrderNotEligible, "ORDER_NOT_ELIGIBLE", http.StatusConflict},
		{payment.ErrChargeNotSettled, "CHARGE_NOT_SETTLED", http.StatusConflict},
		{payment.ErrProviderVerificationFailed, "PROVIDER_UNAVAILABLE", http.StatusBadGateway},
	}

	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			utils.WriteJSONError(w, m.code, m.status)
			return
		}
	}

	logger.FromCtx(r.Context()).Error("unhandled service error", zap.Error(err))
	utils.WriteJSONError(w, "INTERNAL", http.StatusInternalServerError)
}
