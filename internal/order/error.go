package order

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrProductOffline      = errors.New("product offline")
	ErrEmptyOrder          = errors.New("order has no items")
	ErrPersistenceConflict = errors.New("persistence conflict")
)
