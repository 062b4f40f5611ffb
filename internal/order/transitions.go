package order

import "fmt"

// Role identifies the actor attempting a transition. RoleSystem is never
// granted to a human caller; it is reserved for internal flows such as
// payment confirmation and the expiry sweeper.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleVendor   Role = "VENDOR"
	RoleSystem   Role = "SYSTEM"
)

// StatusNone marks the creation edge: orders enter the machine through
// it and nothing else.
const StatusNone OrderStatus = ""

type edge struct {
	to    OrderStatus
	roles []Role
}

// transitions is the single authoritative edge table. Every status
// change in the service flows through Authorize below; no other code
// may decide whether a transition is legal.
var transitions = map[OrderStatus][]edge{
	StatusNone: {
		{StatusAwaitingPayment, []Role{RoleCustomer, RoleVendor}},
	},
	StatusAwaitingPayment: {
		{StatusPaymentConfirmed, []Role{RoleSystem}},
		{StatusCancelled, []Role{RoleCustomer, RoleVendor}},
		{StatusPaymentExpired, []Role{RoleSystem}},
		{StatusCancelledUnpaid, []Role{RoleSystem}},
	},
	StatusPaymentConfirmed: {
		{StatusCooking, []Role{RoleVendor}},
		{StatusCancelled, []Role{RoleCustomer, RoleVendor}},
	},
	StatusCooking: {
		{StatusReadyForPickup, []Role{RoleVendor}},
		{StatusCancelled, []Role{RoleCustomer, RoleVendor}},
	},
	StatusReadyForPickup: {
		{StatusOutForDelivery, []Role{RoleVendor}},
		{StatusCancelled, []Role{RoleCustomer, RoleVendor}},
	},
	StatusOutForDelivery: {
		{StatusCompleted, []Role{RoleVendor}},
		{StatusFailedDelivery, []Role{RoleVendor}},
		{StatusCancelled, []Role{RoleCustomer, RoleVendor}},
	},
	StatusPaymentExpired: {
		{StatusCancelledUnpaid, []Role{RoleSystem}},
	},
}

// terminal states never accept another transition.
var terminal = map[OrderStatus]bool{
	StatusCompleted:       true,
	StatusCancelled:       true,
	StatusCancelledUnpaid: true,
}

// IsTerminal reports whether s accepts no further transitions.
func IsTerminal(s OrderStatus) bool {
	return terminal[s]
}

// Authorize checks the edge table for from -> to under the given role.
// It returns ErrInvalidTransition (wrapped with the offending pair) when
// the edge does not exist or the role is not allowed on it.
func Authorize(from, to OrderStatus, role Role) error {
	for _, e := range transitions[from] {
		if e.to != to {
			continue
		}
		for _, r := range e.roles {
			if r == role {
				return nil
			}
		}
		return fmt.Errorf("%w: role %s may not move %s to %s", ErrInvalidTransition, role, from, to)
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
}
