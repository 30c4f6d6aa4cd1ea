package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Shivanand-hulikatti/conference-registration/internal/catalog"
	"github.com/Shivanand-hulikatti/conference-registration/internal/fee"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

const notifyTimeout = 5 * time.Second

// Reconciler drives a registrant through checkout:
//
//	pending|failed ──StartCheckout──▶ awaiting_verification ──ConfirmPayment──▶ paid
//	                                          │
//	                                          └──bad signature / changed selection──▶ failed
//
// The amount charged is always recomputed server side; nothing the client
// echoes back about the price is trusted.
type Reconciler struct {
	Deps
}

// NewReconciler constructs a Reconciler.
func NewReconciler(deps Deps) *Reconciler {
	return &Reconciler{Deps: deps}
}

// Checkout is the result of StartCheckout.
type Checkout struct {
	Order     *model.PaymentOrder
	Breakdown *model.FeeBreakdown
}

// Confirmation is the result of a payment confirmation. Applied is false
// when the registration was already paid by this payment and nothing changed.
type Confirmation struct {
	Registrant *model.Registrant
	Order      *model.PaymentOrder
	Applied    bool
}

// StartCheckout prices the registrant's current selections, makes sure a
// seat is held for each selected workshop, and opens a gateway order for the
// fresh total.
func (c *Reconciler) StartCheckout(ctx context.Context, registrantID string) (*Checkout, error) {
	r, err := c.Store.GetRegistrant(ctx, registrantID)
	if err != nil {
		return nil, err
	}
	if err := checkMutable(r); err != nil {
		return nil, err
	}

	cat, err := c.Catalogs.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	pricedAt := c.now()
	sel := r.Selection()
	breakdown, err := fee.Calculate(cat, sel, pricedAt)
	if err != nil {
		return nil, err
	}

	toReserve, toRelease := diff(sel.WorkshopIDs, r.ReservedWorkshopIDs)
	granted, err := c.Ledger.ReserveAll(ctx, toReserve)
	if err != nil {
		return nil, err
	}
	rollback := func() { c.Ledger.ReleaseAll(context.WithoutCancel(ctx), granted) }

	order, err := c.Broker.CreateOrder(ctx, r.ID, breakdown.Total, breakdown.Currency)
	if err != nil {
		rollback()
		return nil, err
	}
	order.Selection = sel
	order.Breakdown = breakdown
	order.PricedAt = pricedAt

	r.ReservedWorkshopIDs = slices.Clone(sel.WorkshopIDs)
	r.Status = model.StatusAwaitingVerification
	if err := c.Store.BeginCheckout(ctx, r, order); err != nil {
		rollback()
		c.Logger.Warn("checkout not recorded; gateway order abandoned",
			"registrant_id", r.ID, "gateway_order_id", order.GatewayOrderID, "error", err)
		return nil, fmt.Errorf("record checkout: %w", err)
	}
	c.Ledger.ReleaseAll(ctx, toRelease)

	c.Logger.Info("checkout started",
		"registrant_id", r.ID,
		"order_id", order.ID,
		"gateway_order_id", order.GatewayOrderID,
		"amount", order.Amount,
		"currency", order.Currency)
	return &Checkout{Order: order, Breakdown: breakdown}, nil
}

// ConfirmPayment settles the registrant's active order with the gateway's
// signed payment id.
func (c *Reconciler) ConfirmPayment(ctx context.Context, registrantID, gatewayPaymentID, signature string) (*Confirmation, error) {
	r, err := c.Store.GetRegistrant(ctx, registrantID)
	if err != nil {
		return nil, err
	}
	orders, err := c.Store.Orders(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	// A verified order means a concurrent delivery may have settled the
	// registrant between the two reads above.
	verified := findOrder(orders, func(o *model.PaymentOrder) bool { return o.Status == model.OrderVerified })
	if r.Status == model.StatusPaid || verified != nil {
		if r.Status != model.StatusPaid {
			if r, err = c.Store.GetRegistrant(ctx, registrantID); err != nil {
				return nil, err
			}
		}
		return c.alreadyPaid(r, orders, gatewayPaymentID, signature)
	}
	active := findOrder(orders, func(o *model.PaymentOrder) bool { return o.Status == model.OrderCreated })
	if active == nil {
		c.Logger.Warn("payment received with no open order",
			"registrant_id", r.ID, "status", r.Status, "gateway_payment_id", gatewayPaymentID)
		return nil, fmt.Errorf("registrant %s: %w", r.ID, model.ErrNoActiveOrder)
	}
	return c.settle(ctx, r, active, gatewayPaymentID, signature)
}

// ConfirmGatewayCallback settles the order the gateway names in a
// server-to-server callback. Callbacks for superseded or cancelled orders
// are refused without touching the registrant's current checkout.
func (c *Reconciler) ConfirmGatewayCallback(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (*Confirmation, error) {
	order, err := c.Store.OrderByGatewayID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	r, err := c.Store.GetRegistrant(ctx, order.RegistrantID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case model.OrderVerified:
		return c.alreadyPaid(r, []model.PaymentOrder{*order}, gatewayPaymentID, signature)
	case model.OrderFailed:
		// The payer may have been charged for an order we closed.
		c.Logger.Warn("payment received for closed order",
			"registrant_id", r.ID,
			"gateway_order_id", gatewayOrderID,
			"gateway_payment_id", gatewayPaymentID,
			"failure_reason", order.FailureReason)
		return nil, fmt.Errorf("gateway order %s is %s (%s): %w",
			gatewayOrderID, order.Status, order.FailureReason, model.ErrInvalidState)
	}
	return c.settle(ctx, r, order, gatewayPaymentID, signature)
}

func (c *Reconciler) settle(ctx context.Context, r *model.Registrant, order *model.PaymentOrder, gatewayPaymentID, signature string) (*Confirmation, error) {
	log := c.Logger.With("registrant_id", r.ID, "order_id", order.ID, "gateway_order_id", order.GatewayOrderID)

	if !c.Broker.VerifySignature(order.GatewayOrderID, gatewayPaymentID, signature) {
		released, err := c.Store.FailCheckout(ctx, order, "signature mismatch", true)
		switch {
		case err == nil:
			c.Ledger.ReleaseAll(context.WithoutCancel(ctx), released)
		case !errors.Is(err, model.ErrStaleState):
			log.Error("could not record failed verification", "error", err)
		}
		log.Warn("payment signature rejected", "gateway_payment_id", gatewayPaymentID)
		return nil, fmt.Errorf("order %s: %w", order.ID, model.ErrVerificationFailed)
	}

	cat, err := c.Catalogs.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	// The second pass runs against a re-read registrant when the first
	// completion lost to a concurrent write.
	for attempt := 0; ; attempt++ {
		breakdown, err := c.checkAmount(ctx, log, cat, r, order, gatewayPaymentID)
		if err != nil {
			return nil, err
		}

		err = c.Store.CompleteCheckout(ctx, order, r.Version, gatewayPaymentID, breakdown)
		if err == nil {
			r.Status = model.StatusPaid
			r.Version++
			c.notify(ctx, r, order, breakdown)
			log.Info("payment confirmed", "gateway_payment_id", gatewayPaymentID, "amount", order.Amount)
			return &Confirmation{Registrant: r, Order: order, Applied: true}, nil
		}
		if !errors.Is(err, model.ErrStaleState) {
			return nil, fmt.Errorf("complete checkout: %w", err)
		}

		fresh, gerr := c.Store.GetRegistrant(ctx, r.ID)
		if gerr != nil {
			return nil, gerr
		}
		if fresh.Status == model.StatusPaid {
			// Another delivery of the same payment got there first.
			orders, err := c.Store.Orders(ctx, fresh.ID)
			if err != nil {
				return nil, fmt.Errorf("list orders: %w", err)
			}
			return c.alreadyPaid(fresh, orders, gatewayPaymentID, signature)
		}
		if fresh.Status != model.StatusAwaitingVerification || attempt > 0 {
			log.Warn("payment not applied", "status", fresh.Status, "gateway_payment_id", gatewayPaymentID)
			return nil, fmt.Errorf("registrant %s is %s: %w", fresh.ID, fresh.Status, model.ErrInvalidState)
		}
		r = fresh
	}
}

// checkAmount recomputes the order's total from r's current selection at the
// order's pricing instant. A difference fails the order and is reported as
// model.ErrAmountMismatch.
func (c *Reconciler) checkAmount(ctx context.Context, log *slog.Logger, cat *catalog.Catalog, r *model.Registrant, order *model.PaymentOrder, gatewayPaymentID string) (*model.FeeBreakdown, error) {
	sel := r.Selection()
	breakdown, calcErr := fee.Calculate(cat, sel, order.PricedAt)
	if calcErr == nil && sel.Equal(order.Selection) &&
		breakdown.Total == order.Amount && breakdown.Currency == order.Currency {
		return breakdown, nil
	}
	if _, err := c.Store.FailCheckout(ctx, order, "amount mismatch", false); err != nil && !errors.Is(err, model.ErrStaleState) {
		log.Error("could not record amount mismatch", "error", err)
	}
	var recomputed int64
	if breakdown != nil {
		recomputed = breakdown.Total
	}
	// The gateway holds a real payment for an amount we no longer agree with.
	log.Error("payment does not match current selection",
		"gateway_payment_id", gatewayPaymentID,
		"order_amount", order.Amount,
		"recomputed_amount", recomputed,
		"calc_error", calcErr)
	if calcErr != nil {
		return nil, fmt.Errorf("order %s: %w: %w", order.ID, model.ErrAmountMismatch, calcErr)
	}
	return nil, fmt.Errorf("order %s: %w", order.ID, model.ErrAmountMismatch)
}

// alreadyPaid answers a confirmation for a paid registrant: a correctly
// signed repeat of the settling payment is a no-op success, anything else is
// refused.
func (c *Reconciler) alreadyPaid(r *model.Registrant, orders []model.PaymentOrder, gatewayPaymentID, signature string) (*Confirmation, error) {
	verified := findOrder(orders, func(o *model.PaymentOrder) bool { return o.Status == model.OrderVerified })
	if verified != nil && verified.GatewayPaymentID == gatewayPaymentID {
		if !c.Broker.VerifySignature(verified.GatewayOrderID, gatewayPaymentID, signature) {
			c.Logger.Warn("payment signature rejected on repeat confirmation",
				"registrant_id", r.ID, "gateway_payment_id", gatewayPaymentID)
			return nil, fmt.Errorf("order %s: %w", verified.ID, model.ErrVerificationFailed)
		}
		c.Logger.Debug("duplicate payment confirmation ignored",
			"registrant_id", r.ID, "gateway_payment_id", gatewayPaymentID)
		return &Confirmation{Registrant: r, Order: verified, Applied: false}, nil
	}
	c.Logger.Warn("payment received for already paid registration",
		"registrant_id", r.ID, "gateway_payment_id", gatewayPaymentID)
	return nil, fmt.Errorf("registrant %s: %w", r.ID, model.ErrAlreadyPaid)
}

// notify hands the confirmation to the email collaborator. It never fails
// the payment: the registration is paid whether or not the email goes out.
func (c *Reconciler) notify(ctx context.Context, r *model.Registrant, order *model.PaymentOrder, b *model.FeeBreakdown) {
	if c.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err := c.Notifier.SendPaymentConfirmation(nctx, model.PaymentConfirmation{
		RegistrantID:     r.ID,
		Email:            r.Email,
		OrderID:          order.ID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: order.GatewayPaymentID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		Breakdown:        b,
		PaidAt:           c.now(),
	})
	if err != nil {
		c.Logger.Error("payment confirmation not sent", "registrant_id", r.ID, "order_id", order.ID, "error", err)
	}
}

func findOrder(orders []model.PaymentOrder, match func(*model.PaymentOrder) bool) *model.PaymentOrder {
	for i := range orders {
		if match(&orders[i]) {
			return &orders[i]
		}
	}
	return nil
}
