package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

var (
	ErrCategoryNotFound    = fmt.Errorf("category %w", ErrNotFound)
	ErrWorkshopNotFound    = fmt.Errorf("workshop %w", ErrNotFound)
	ErrRegistrantNotFound  = fmt.Errorf("registrant %w", ErrNotFound)
	ErrNoActiveOrder       = fmt.Errorf("active payment order %w", ErrNotFound)
	ErrDiscountCodeInvalid = fmt.Errorf("discount code %w", ErrNotFound)
)

var (
	// ErrSoldOut is returned when a workshop has no remaining capacity.
	ErrSoldOut = errors.New("workshop is sold out")

	// ErrVerificationFailed is returned when a gateway signature does not match.
	ErrVerificationFailed = errors.New("payment verification failed")

	// ErrAmountMismatch is returned when selections changed between order
	// creation and payment confirmation.
	ErrAmountMismatch = errors.New("amount due no longer matches payment order")

	// ErrGatewayUnavailable is returned on gateway timeouts and 5xx responses.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrAlreadyPaid is returned when a paid registration is asked to pay again.
	ErrAlreadyPaid = errors.New("registration already paid")

	// ErrInvalidState is returned when an operation is not allowed in the
	// registrant's current status.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleState is returned by stores when a conditional update found the
	// record in a different state than expected.
	ErrStaleState = errors.New("record changed concurrently")
)

// ErrorCode maps an error to a stable machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSoldOut):
		return "sold_out"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrStaleState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// UniqueSorted returns a sorted copy of ids without duplicates or blanks.
func UniqueSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// SameDiscountCode compares two discount codes case-insensitively,
// ignoring surrounding whitespace.
func SameDiscountCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
