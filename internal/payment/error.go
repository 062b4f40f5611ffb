package payment

import "errors"

var (
	ErrNotReadyForPayment         = errors.New("order not ready for payment")
	ErrAlreadyPaid                = errors.New("order already paid")
	ErrPaymentAlreadyPending      = errors.New("a payment attempt is already pending")
	ErrPaymentNotFound            = errors.New("payment not found")
	ErrAmountMismatch             = errors.New("reported amount does not match order total")
	ErrOrderNotEligible           = errors.New("order is no longer eligible for payment confirmation")
	ErrChargeNotSettled           = errors.New("charge not settled by provider")
	ErrProviderVerificationFailed = errors.New("provider verification failed")
)
