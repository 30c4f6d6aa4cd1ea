package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// MemoryRegistrationRepository keeps registrants and payment orders in
// process memory. Conditional updates run under one mutex, which gives the
// same single-writer-wins behaviour as the Postgres repository.
type MemoryRegistrationRepository struct {
	mu          sync.Mutex
	registrants map[string]*model.Registrant
	orders      map[string]*model.PaymentOrder
	byGateway   map[string]string
	byOwner     map[string][]string // registrant id -> order ids, oldest first
}

// NewMemoryRegistrationRepository returns an empty repository.
func NewMemoryRegistrationRepository() *MemoryRegistrationRepository {
	return &MemoryRegistrationRepository{
		registrants: make(map[string]*model.Registrant),
		orders:      make(map[string]*model.PaymentOrder),
		byGateway:   make(map[string]string),
		byOwner:     make(map[string][]string),
	}
}

func cloneRegistrant(r *model.Registrant) *model.Registrant {
	c := *r
	c.WorkshopIDs = slices.Clone(r.WorkshopIDs)
	c.ReservedWorkshopIDs = slices.Clone(r.ReservedWorkshopIDs)
	c.AccompanyingPersons = slices.Clone(r.AccompanyingPersons)
	return &c
}

func cloneOrder(o *model.PaymentOrder) *model.PaymentOrder {
	c := *o
	c.Selection.WorkshopIDs = slices.Clone(o.Selection.WorkshopIDs)
	c.Breakdown = cloneBreakdown(o.Breakdown)
	return &c
}

func cloneBreakdown(b *model.FeeBreakdown) *model.FeeBreakdown {
	if b == nil {
		return nil
	}
	c := *b
	c.Workshops = slices.Clone(b.Workshops)
	c.Discounts = slices.Clone(b.Discounts)
	return &c
}

func (m *MemoryRegistrationRepository) CreateRegistrant(_ context.Context, r *model.Registrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registrants[r.ID]; exists {
		return fmt.Errorf("registrant %s already exists", r.ID)
	}
	m.registrants[r.ID] = cloneRegistrant(r)
	return nil
}

func (m *MemoryRegistrationRepository) GetRegistrant(_ context.Context, id string) (*model.Registrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.registrants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrRegistrantNotFound, id)
	}
	return cloneRegistrant(r), nil
}

// updateLocked applies r if its version matches. Caller holds m.mu.
func (m *MemoryRegistrationRepository) updateLocked(r *model.Registrant, now time.Time) error {
	cur, ok := m.registrants[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrRegistrantNotFound, r.ID)
	}
	if cur.Version != r.Version || cur.Status == model.StatusPaid {
		return fmt.Errorf("%w: registrant %s", model.ErrStaleState, r.ID)
	}
	r.Version++
	r.UpdatedAt = now
	m.registrants[r.ID] = cloneRegistrant(r)
	return nil
}

func (m *MemoryRegistrationRepository) UpdateRegistrant(_ context.Context, r *model.Registrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(r, time.Now().UTC())
}

func (m *MemoryRegistrationRepository) Orders(_ context.Context, registrantID string) ([]model.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byOwner[registrantID]
	out := make([]model.PaymentOrder, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, *cloneOrder(m.orders[ids[i]]))
	}
	return out, nil
}

func (m *MemoryRegistrationRepository) OrderByGatewayID(_ context.Context, gatewayOrderID string) (*model.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byGateway[gatewayOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: gateway order %s", model.ErrNoActiveOrder, gatewayOrderID)
	}
	return cloneOrder(m.orders[id]), nil
}

func (m *MemoryRegistrationRepository) BeginCheckout(_ context.Context, r *model.Registrant, order *model.PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byGateway[order.GatewayOrderID]; dup {
		return fmt.Errorf("gateway order %s already recorded", order.GatewayOrderID)
	}
	now := time.Now().UTC()
	if err := m.updateLocked(r, now); err != nil {
		return err
	}
	m.failCreatedLocked(r.ID, "superseded", now)
	m.orders[order.ID] = cloneOrder(order)
	m.byGateway[order.GatewayOrderID] = order.ID
	m.byOwner[r.ID] = append(m.byOwner[r.ID], order.ID)
	return nil
}

// failCreatedLocked fails every created order of registrantID. Caller holds m.mu.
func (m *MemoryRegistrationRepository) failCreatedLocked(registrantID, reason string, now time.Time) {
	for _, id := range m.byOwner[registrantID] {
		if o := m.orders[id]; o.Status == model.OrderCreated {
			o.Status = model.OrderFailed
			o.FailureReason = reason
			o.UpdatedAt = now
		}
	}
}

func (m *MemoryRegistrationRepository) CancelRegistrant(_ context.Context, r *model.Registrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if err := m.updateLocked(r, now); err != nil {
		return err
	}
	m.failCreatedLocked(r.ID, "cancelled", now)
	return nil
}

func (m *MemoryRegistrationRepository) FailCheckout(_ context.Context, order *model.PaymentOrder, reason string, clearReservations bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[order.ID]
	if !ok || o.Status != model.OrderCreated {
		return nil, fmt.Errorf("%w: order %s", model.ErrStaleState, order.ID)
	}
	now := time.Now().UTC()
	o.Status = model.OrderFailed
	o.FailureReason = reason
	o.UpdatedAt = now
	var released []string
	if r, ok := m.registrants[o.RegistrantID]; ok && r.Status == model.StatusAwaitingVerification {
		r.Status = model.StatusFailed
		if clearReservations {
			released = r.ReservedWorkshopIDs
			r.ReservedWorkshopIDs = nil
		}
		r.Version++
		r.UpdatedAt = now
	}
	*order = *cloneOrder(o)
	return released, nil
}

func (m *MemoryRegistrationRepository) CompleteCheckout(_ context.Context, order *model.PaymentOrder, registrantVersion int64, gatewayPaymentID string, breakdown *model.FeeBreakdown) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[order.ID]
	if !ok || o.Status != model.OrderCreated {
		return fmt.Errorf("%w: order %s", model.ErrStaleState, order.ID)
	}
	r, ok := m.registrants[o.RegistrantID]
	if !ok || r.Status != model.StatusAwaitingVerification || r.Version != registrantVersion {
		return fmt.Errorf("%w: registrant %s", model.ErrStaleState, o.RegistrantID)
	}
	now := time.Now().UTC()
	o.Status = model.OrderVerified
	o.GatewayPaymentID = gatewayPaymentID
	o.Breakdown = cloneBreakdown(breakdown)
	o.UpdatedAt = now
	r.Status = model.StatusPaid
	r.Version++
	r.UpdatedAt = now
	*order = *cloneOrder(o)
	return nil
}
