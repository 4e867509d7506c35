package order

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusPendingEmail    Status = "pending_email"
	StatusPendingPayment  Status = "pending_payment"
	StatusPendingDelivery Status = "pending_delivery"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

var (
	ErrIllegalTransition = errors.New("order: illegal status transition")
	ErrStaleOrder        = errors.New("order: status changed concurrently")
)

// transitions is the complete forward graph; anything not listed is rejected.
var transitions = map[Status][]Status{
	StatusPendingEmail:    {StatusPendingPayment, StatusCancelled},
	StatusPendingPayment:  {StatusPendingDelivery, StatusCancelled},
	StatusPendingDelivery: {StatusDelivered},
}

// Active reports whether s blocks a new order on the same conversation.
func (s Status) Active() bool {
	return s == StatusPendingEmail || s == StatusPendingPayment
}

func (s Status) Valid() bool {
	switch s {
	case StatusPendingEmail, StatusPendingPayment, StatusPendingDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

var activeStatuses = []Status{StatusPendingEmail, StatusPendingPayment}
