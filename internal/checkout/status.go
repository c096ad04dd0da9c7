package checkout

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when the provider reports a state the transition
// tables do not allow from the stored state.
var ErrInvalidTransition = errors.New("invalid payment transaction transition")

// Status is the workflow status of a checkout session.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusOpen      Status = "open"
	StatusComplete  Status = "complete"
	StatusExpired   Status = "expired"
)

var statusTransitions = map[Status][]Status{
	StatusInitiated: {StatusOpen, StatusComplete, StatusExpired},
	StatusOpen:      {StatusOpen, StatusComplete, StatusExpired},
	StatusComplete:  nil,
	StatusExpired:   nil,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether s may move to next. Re-reporting the current state is a
// no-op and always allowed.
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the provider's payment state of a checkout session.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentUnpaid            PaymentStatus = "unpaid"
	PaymentPaid              PaymentStatus = "paid"
	PaymentNoPaymentRequired PaymentStatus = "no_payment_required"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:           {PaymentUnpaid, PaymentPaid, PaymentNoPaymentRequired},
	PaymentUnpaid:            {PaymentUnpaid, PaymentPaid, PaymentNoPaymentRequired},
	PaymentPaid:              nil,
	PaymentNoPaymentRequired: nil,
}

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[p]
	return ok
}

// CanTransition reports whether p may move to next.
func (p PaymentStatus) CanTransition(next PaymentStatus) bool {
	if !p.Valid() || !next.Valid() {
		return false
	}
	if p == next {
		return true
	}
	for _, allowed := range paymentTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

func checkTransition(from Transaction, status Status, payment PaymentStatus) error {
	if !from.Status.CanTransition(status) {
		return fmt.Errorf("%w: status %s -> %s", ErrInvalidTransition, from.Status, status)
	}
	if !from.PaymentStatus.CanTransition(payment) {
		return fmt.Errorf("%w: payment_status %s -> %s", ErrInvalidTransition, from.PaymentStatus, payment)
	}
	return nil
}
