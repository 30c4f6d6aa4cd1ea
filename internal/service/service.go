// Package service implements registration business logic: fee quotes,
// workshop selection with seat holds, and checkout reconciliation against
// the payment gateway.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/conference-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/conference-registration/internal/catalog"
	"github.com/Shivanand-hulikatti/conference-registration/internal/fee"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/payment"
)

// OrderBroker opens gateway orders and checks payment signatures.
type OrderBroker interface {
	CreateOrder(ctx context.Context, registrantID string, amount int64, currency model.Currency) (*model.PaymentOrder, error)
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

var _ OrderBroker = (*payment.Broker)(nil)

// Deps are the collaborators shared by the registration services.
type Deps struct {
	Store    RegistrationStore
	Catalogs catalog.Source
	Ledger   *capacity.Ledger
	Broker   OrderBroker
	Notifier Notifier
	Clock    func() time.Time
	Logger   *slog.Logger
}

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

// Registrations handles registrant records, quotes and workshop selection.
type Registrations struct {
	Deps
}

// NewRegistrations constructs a Registrations service.
func NewRegistrations(deps Deps) *Registrations {
	return &Registrations{Deps: deps}
}

// Quote prices an arbitrary selection at the current instant.
func (s *Registrations) Quote(ctx context.Context, req model.QuoteRequest) (*model.FeeBreakdown, error) {
	cat, err := s.Catalogs.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	sel := model.NewSelection(req.CategoryID, req.WorkshopIDs, req.AccompanyingCount, req.DiscountCode)
	return fee.Calculate(cat, sel, s.now())
}

// QuoteRegistrant prices a registrant's current selections.
func (s *Registrations) QuoteRegistrant(ctx context.Context, id string) (*model.FeeBreakdown, error) {
	r, err := s.Store.GetRegistrant(ctx, id)
	if err != nil {
		return nil, err
	}
	cat, err := s.Catalogs.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return fee.Calculate(cat, r.Selection(), s.now())
}

// Create validates and stores a new pending registrant. Workshops are
// chosen afterwards through SelectWorkshops so that seats are held.
func (s *Registrations) Create(ctx context.Context, req model.CreateRegistrantRequest) (*model.Registrant, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !isValidEmail(req.Email) {
		return nil, fmt.Errorf("%w: email is not a valid email address", model.ErrInvalidInput)
	}
	for i, p := range req.AccompanyingPersons {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("%w: accompanying person %d has no name", model.ErrInvalidInput, i+1)
		}
	}

	cat, err := s.Catalogs.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	// Pricing the bare registration validates the category and discount code.
	sel := model.NewSelection(req.CategoryID, nil, len(req.AccompanyingPersons), req.DiscountCode)
	if _, err := fee.Calculate(cat, sel, s.now()); err != nil {
		return nil, err
	}

	now := s.now()
	r := &model.Registrant{
		ID:                  uuid.New().String(),
		Email:               req.Email,
		CategoryID:          req.CategoryID,
		WorkshopIDs:         []string{},
		ReservedWorkshopIDs: []string{},
		AccompanyingPersons: req.AccompanyingPersons,
		DiscountCode:        strings.TrimSpace(req.DiscountCode),
		Status:              model.StatusPending,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if r.AccompanyingPersons == nil {
		r.AccompanyingPersons = []model.AccompanyingPerson{}
	}
	if err := s.Store.CreateRegistrant(ctx, r); err != nil {
		return nil, fmt.Errorf("create registrant: %w", err)
	}
	s.Logger.Info("registrant created", "registrant_id", r.ID, "category_id", r.CategoryID)
	return r, nil
}

// Get returns a registrant.
func (s *Registrations) Get(ctx context.Context, id string) (*model.Registrant, error) {
	return s.Store.GetRegistrant(ctx, id)
}

// SelectWorkshops replaces a registrant's workshop selection, holding a
// seat in every newly chosen workshop and returning seats of dropped ones.
// Seats are held at selection time so two registrants can never both carry
// the last seat into checkout.
func (s *Registrations) SelectWorkshops(ctx context.Context, id string, workshopIDs []string) (*model.Registrant, error) {
	r, err := s.Store.GetRegistrant(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkMutable(r); err != nil {
		return nil, err
	}
	cat, err := s.Catalogs.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	want := model.UniqueSorted(workshopIDs)
	for _, wid := range want {
		if _, err := cat.Workshop(wid); err != nil {
			return nil, err
		}
	}

	toReserve, toRelease := diff(want, r.ReservedWorkshopIDs)
	granted, err := s.Ledger.ReserveAll(ctx, toReserve)
	if err != nil {
		return nil, err
	}
	r.WorkshopIDs = want
	r.ReservedWorkshopIDs = slices.Clone(want)
	if err := s.Store.UpdateRegistrant(ctx, r); err != nil {
		s.Ledger.ReleaseAll(context.WithoutCancel(ctx), granted)
		return nil, fmt.Errorf("save selection: %w", err)
	}
	s.Ledger.ReleaseAll(ctx, toRelease)

	s.Logger.Info("workshop selection updated",
		"registrant_id", r.ID, "workshops", want, "reserved", toReserve, "released", toRelease)
	return r, nil
}

// Cancel withdraws an unpaid registration, closes any open gateway order so
// a late payment for it is refused, and returns the held seats.
func (s *Registrations) Cancel(ctx context.Context, id string) (*model.Registrant, error) {
	r, err := s.Store.GetRegistrant(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkMutable(r); err != nil {
		return nil, err
	}
	held := r.ReservedWorkshopIDs
	r.ReservedWorkshopIDs = []string{}
	r.Status = model.StatusCancelled
	if err := s.Store.CancelRegistrant(ctx, r); err != nil {
		return nil, fmt.Errorf("cancel registrant: %w", err)
	}
	s.Ledger.ReleaseAll(ctx, held)
	s.Logger.Info("registrant cancelled", "registrant_id", r.ID, "released", held)
	return r, nil
}

// WorkshopAvailability lists catalog workshops with live seat counts.
func (s *Registrations) WorkshopAvailability(ctx context.Context) ([]model.Workshop, error) {
	cat, err := s.Catalogs.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	workshops := cat.Workshops()
	for i := range workshops {
		seats, err := s.Ledger.Availability(ctx, workshops[i].ID)
		if err != nil {
			return nil, fmt.Errorf("seats for %s: %w", workshops[i].ID, err)
		}
		workshops[i].MaxSeats = seats.MaxSeats
		workshops[i].BookedSeats = seats.BookedSeats
	}
	return workshops, nil
}

func checkMutable(r *model.Registrant) error {
	switch r.Status {
	case model.StatusPaid:
		return fmt.Errorf("registrant %s: %w", r.ID, model.ErrAlreadyPaid)
	case model.StatusCancelled:
		return fmt.Errorf("registrant %s is cancelled: %w", r.ID, model.ErrInvalidState)
	}
	return nil
}

// diff returns ids in want but not have, and ids in have but not want.
func diff(want, have []string) (added, removed []string) {
	for _, id := range want {
		if !slices.Contains(have, id) {
			added = append(added, id)
		}
	}
	for _, id := range have {
		if !slices.Contains(want, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
