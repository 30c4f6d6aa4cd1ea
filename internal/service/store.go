package service

import (
	"context"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// RegistrationStore is the registrant/payment record store.
//
// Every mutating method is a conditional update: it applies only if the
// record is still in the state the caller read, and otherwise returns
// model.ErrStaleState without changing anything. This is what makes
// duplicate gateway deliveries and concurrent selection edits safe.
type RegistrationStore interface {
	CreateRegistrant(ctx context.Context, r *model.Registrant) error
	// GetRegistrant returns model.ErrRegistrantNotFound for unknown ids.
	GetRegistrant(ctx context.Context, id string) (*model.Registrant, error)
	// UpdateRegistrant writes selections, reservations and status when the
	// stored version equals r.Version and the stored status is not paid.
	// On success r.Version is advanced.
	UpdateRegistrant(ctx context.Context, r *model.Registrant) error

	// Orders lists a registrant's payment orders, newest first.
	Orders(ctx context.Context, registrantID string) ([]model.PaymentOrder, error)
	// OrderByGatewayID returns model.ErrNoActiveOrder for unknown ids.
	OrderByGatewayID(ctx context.Context, gatewayOrderID string) (*model.PaymentOrder, error)

	// BeginCheckout atomically persists r (as UpdateRegistrant does), fails
	// any other created order of the registrant as superseded, and inserts
	// order.
	BeginCheckout(ctx context.Context, r *model.Registrant, order *model.PaymentOrder) error
	// CancelRegistrant persists r (as UpdateRegistrant does) and fails any
	// created order of the registrant as cancelled, in one step.
	CancelRegistrant(ctx context.Context, r *model.Registrant) error
	// FailCheckout moves order created→failed and its registrant
	// awaiting_verification→failed. With clearReservations the registrant's
	// reserved workshop set is emptied in the same step and returned, so the
	// caller releases exactly the seats the record stopped tracking.
	FailCheckout(ctx context.Context, order *model.PaymentOrder, reason string, clearReservations bool) (released []string, err error)
	// CompleteCheckout moves order created→verified with the payment id and
	// breakdown, and its registrant awaiting_verification→paid, only while
	// the registrant is still at registrantVersion. A selection edit since
	// the amount was recomputed makes it return model.ErrStaleState.
	CompleteCheckout(ctx context.Context, order *model.PaymentOrder, registrantVersion int64, gatewayPaymentID string, breakdown *model.FeeBreakdown) error
}

// Notifier is the email collaborator. Delivery is best effort.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, msg model.PaymentConfirmation) error
}
