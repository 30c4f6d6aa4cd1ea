// Package model defines the core domain types for conference registration,
// pricing and payment reconciliation.
package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is one of the fixed set of currencies the portal charges in.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
)

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyINR, CurrencyUSD:
		return true
	}
	return false
}

// MinorDigits is the number of decimal digits in the currency's smallest unit.
func (c Currency) MinorDigits() int32 {
	return 2
}

// RegistrationCategory is an immutable catalog entry carrying a base fee.
type RegistrationCategory struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	BaseAmount int64    `json:"base_amount"`
	Currency   Currency `json:"currency"`
}

// Workshop is an optional paid session with a finite seat pool.
type Workshop struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	MaxSeats    int    `json:"max_seats"`
	BookedSeats int    `json:"booked_seats"`
}

// AvailableSeats returns the number of seats left.
func (w *Workshop) AvailableSeats() int {
	return w.MaxSeats - w.BookedSeats
}

// IsFull returns true when no seats remain.
func (w *Workshop) IsFull() bool {
	return w.BookedSeats >= w.MaxSeats
}

// DiscountKind distinguishes time-gated rules from code-gated rules.
type DiscountKind string

const (
	DiscountTime DiscountKind = "time"
	DiscountCode DiscountKind = "code"
)

// AllCategories in a rule's category set makes it apply to every category.
const AllCategories = "all"

// DiscountRule is a percentage reduction gated by a time window or a code.
type DiscountRule struct {
	ID         string          `json:"id"`
	Kind       DiscountKind    `json:"kind"`
	Percentage decimal.Decimal `json:"percentage"` // 0-100
	ValidFrom  *time.Time      `json:"valid_from,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	Code       string          `json:"code,omitempty"`
	Categories []string        `json:"categories"`
	Active     bool            `json:"active"`
}

// AppliesTo reports whether the rule's category set covers categoryID.
func (d *DiscountRule) AppliesTo(categoryID string) bool {
	for _, c := range d.Categories {
		if c == AllCategories || c == categoryID {
			return true
		}
	}
	return false
}

// InWindow reports whether now falls in [ValidFrom, ValidUntil).
// Missing bounds are open.
func (d *DiscountRule) InWindow(now time.Time) bool {
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidUntil != nil && !now.Before(*d.ValidUntil) {
		return false
	}
	return true
}

// RegistrantStatus tracks a registrant through checkout.
type RegistrantStatus string

const (
	StatusPending              RegistrantStatus = "pending"
	StatusAwaitingVerification RegistrantStatus = "awaiting_verification"
	StatusPaid                 RegistrantStatus = "paid"
	StatusFailed               RegistrantStatus = "failed"
	StatusCancelled            RegistrantStatus = "cancelled"
)

// AccompanyingPerson is a guest registered alongside a delegate.
type AccompanyingPerson struct {
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
}

// Registrant is a delegate's registration record.
type Registrant struct {
	ID                  string               `json:"id"`
	Email               string               `json:"email"`
	CategoryID          string               `json:"category_id"`
	WorkshopIDs         []string             `json:"workshop_ids"`
	ReservedWorkshopIDs []string             `json:"reserved_workshop_ids"`
	AccompanyingPersons []AccompanyingPerson `json:"accompanying_persons"`
	DiscountCode        string               `json:"discount_code,omitempty"`
	Status              RegistrantStatus     `json:"status"`
	Version             int64                `json:"version"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// Selection is the pricing-relevant part of a registrant.
func (r *Registrant) Selection() Selection {
	return NewSelection(r.CategoryID, r.WorkshopIDs, len(r.AccompanyingPersons), r.DiscountCode)
}

// Selection captures everything that determines the amount due.
type Selection struct {
	CategoryID        string   `json:"category_id"`
	WorkshopIDs       []string `json:"workshop_ids"`
	AccompanyingCount int      `json:"accompanying_count"`
	DiscountCode      string   `json:"discount_code,omitempty"`
}

// NewSelection builds a Selection with workshop ids sorted and de-duplicated.
func NewSelection(categoryID string, workshopIDs []string, accompanying int, code string) Selection {
	return Selection{
		CategoryID:        categoryID,
		WorkshopIDs:       UniqueSorted(workshopIDs),
		AccompanyingCount: accompanying,
		DiscountCode:      code,
	}
}

// Equal compares two selections after normalisation.
func (s Selection) Equal(o Selection) bool {
	a, b := NewSelection(s.CategoryID, s.WorkshopIDs, s.AccompanyingCount, s.DiscountCode),
		NewSelection(o.CategoryID, o.WorkshopIDs, o.AccompanyingCount, o.DiscountCode)
	return a.CategoryID == b.CategoryID &&
		a.AccompanyingCount == b.AccompanyingCount &&
		SameDiscountCode(a.DiscountCode, b.DiscountCode) &&
		slices.Equal(a.WorkshopIDs, b.WorkshopIDs)
}

// OrderStatus is the lifecycle of a payment order.
type OrderStatus string

const (
	OrderCreated  OrderStatus = "created"
	OrderVerified OrderStatus = "verified"
	OrderFailed   OrderStatus = "failed"
)

// PaymentOrder is a gateway order opened for a computed amount.
type PaymentOrder struct {
	ID               string        `json:"id"`
	RegistrantID     string        `json:"registrant_id"`
	Amount           int64         `json:"amount"`
	Currency         Currency      `json:"currency"`
	GatewayOrderID   string        `json:"gateway_order_id"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	Status           OrderStatus   `json:"status"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	Selection        Selection     `json:"selection"`
	Breakdown        *FeeBreakdown `json:"breakdown,omitempty"`
	PricedAt         time.Time     `json:"priced_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// WorkshopLine is one workshop's contribution to a breakdown.
type WorkshopLine struct {
	WorkshopID string `json:"workshop_id"`
	Name       string `json:"name"`
	Amount     int64  `json:"amount"`
}

// DiscountLine is one discount rule's contribution to a breakdown.
type DiscountLine struct {
	RuleID     string          `json:"rule_id"`
	Kind       DiscountKind    `json:"kind"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     int64           `json:"amount"`
}

// FeeBreakdown is the auditable result of a fee calculation. All amounts
// are in the currency's smallest unit.
type FeeBreakdown struct {
	CategoryID        string         `json:"category_id"`
	Currency          Currency       `json:"currency"`
	Base              int64          `json:"base"`
	Workshops         []WorkshopLine `json:"workshops"`
	WorkshopTotal     int64          `json:"workshop_total"`
	AccompanyingCount int            `json:"accompanying_count"`
	AccompanyingFee   int64          `json:"accompanying_fee"`
	PersonTotal       int64          `json:"person_total"`
	Subtotal          int64          `json:"subtotal"`
	Discounts         []DiscountLine `json:"discounts"`
	Discount          int64          `json:"discount"`
	Total             int64          `json:"total"`
}

// PaymentConfirmation is the payload handed to the email collaborator once
// a registration is paid.
type PaymentConfirmation struct {
	RegistrantID     string        `json:"registrant_id"`
	Email            string        `json:"email"`
	OrderID          string        `json:"order_id"`
	GatewayOrderID   string        `json:"gateway_order_id"`
	GatewayPaymentID string        `json:"gateway_payment_id"`
	Amount           int64         `json:"amount"`
	Currency         Currency      `json:"currency"`
	Breakdown        *FeeBreakdown `json:"breakdown"`
	PaidAt           time.Time     `json:"paid_at"`
}

// ─── Request / response payloads ─────────────────────────────────────────────

// QuoteRequest is the payload for an ad-hoc fee calculation.
type QuoteRequest struct {
	CategoryID        string   `json:"category_id"`
	WorkshopIDs       []string `json:"workshop_ids"`
	AccompanyingCount int      `json:"accompanying_count"`
	DiscountCode      string   `json:"discount_code"`
}

// CreateRegistrantRequest is the payload for creating a registrant.
type CreateRegistrantRequest struct {
	Email               string               `json:"email"`
	CategoryID          string               `json:"category_id"`
	AccompanyingPersons []AccompanyingPerson `json:"accompanying_persons"`
	DiscountCode        string               `json:"discount_code"`
}

// SelectWorkshopsRequest replaces a registrant's workshop selection.
type SelectWorkshopsRequest struct {
	WorkshopIDs []string `json:"workshop_ids"`
}

// ConfirmPaymentRequest carries the gateway's signed redirect parameters.
type ConfirmPaymentRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// GatewayCallbackRequest is the gateway's signed server-to-server callback.
type GatewayCallbackRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// CheckoutResponse is returned when a checkout starts.
type CheckoutResponse struct {
	Order     *PaymentOrder `json:"order"`
	Breakdown *FeeBreakdown `json:"breakdown"`
}

// ConfirmResponse is returned when a payment is confirmed.
type ConfirmResponse struct {
	Registrant *Registrant   `json:"registrant"`
	Order      *PaymentOrder `json:"order"`
	Applied    bool          `json:"applied"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
