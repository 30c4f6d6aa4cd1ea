package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/service"
)

var _ service.RegistrationStore = (*MemoryRegistrationRepository)(nil)

func newRegistrant(id string) *model.Registrant {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &model.Registrant{
		ID:         id,
		Email:      id + "@example.org",
		CategoryID: "regular",
		Status:     model.StatusPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newOrder(id, registrantID string, amount int64) *model.PaymentOrder {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &model.PaymentOrder{
		ID:             id,
		RegistrantID:   registrantID,
		Amount:         amount,
		Currency:       model.CurrencyINR,
		GatewayOrderID: "order_" + id,
		Status:         model.OrderCreated,
		Selection:      model.NewSelection("regular", []string{"ws-a"}, 0, ""),
		PricedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// checkout creates a registrant and opens one order for it.
func checkout(t *testing.T, store service.RegistrationStore, id string) (*model.Registrant, *model.PaymentOrder) {
	t.Helper()
	ctx := context.Background()
	r := newRegistrant(id)
	require.NoError(t, store.CreateRegistrant(ctx, r))
	r.WorkshopIDs = []string{"ws-a"}
	r.ReservedWorkshopIDs = []string{"ws-a"}
	r.Status = model.StatusAwaitingVerification
	o := newOrder(id+"-1", id, 1_700_000)
	require.NoError(t, store.BeginCheckout(ctx, r, o))
	return r, o
}

func TestMemoryRepository_VersionCheck(t *testing.T) {
	repo := NewMemoryRegistrationRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateRegistrant(ctx, newRegistrant("r1")))

	a, err := repo.GetRegistrant(ctx, "r1")
	require.NoError(t, err)
	b, err := repo.GetRegistrant(ctx, "r1")
	require.NoError(t, err)

	a.WorkshopIDs = []string{"ws-a"}
	require.NoError(t, repo.UpdateRegistrant(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.WorkshopIDs = []string{"ws-b"}
	assert.ErrorIs(t, repo.UpdateRegistrant(ctx, b), model.ErrStaleState)

	got, err := repo.GetRegistrant(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ws-a"}, got.WorkshopIDs)

	_, err = repo.GetRegistrant(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRegistrationRepository()
	ctx := context.Background()
	_, o := checkout(t, repo, "r1")

	orders, err := repo.Orders(ctx, "r1")
	require.NoError(t, err)
	orders[0].Selection.WorkshopIDs[0] = "mutated"
	o.Amount = 1

	again, err := repo.OrderByGatewayID(ctx, o.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, "ws-a", again.Selection.WorkshopIDs[0])
	assert.Equal(t, int64(1_700_000), again.Amount)
}

func TestMemoryRepository_CheckoutLifecycle(t *testing.T) {
	repo := NewMemoryRegistrationRepository()
	ctx := context.Background()
	r, first := checkout(t, repo, "r1")

	second := newOrder("r1-2", "r1", 1_800_000)
	require.NoError(t, repo.BeginCheckout(ctx, r, second))

	orders, err := repo.Orders(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID, "newest first")
	assert.Equal(t, model.OrderFailed, orders[1].Status)
	assert.Equal(t, "superseded", orders[1].FailureReason)

	assert.ErrorIs(t, repo.CompleteCheckout(ctx, first, r.Version, "pay_1", nil), model.ErrStaleState)

	b := &model.FeeBreakdown{Total: 1_800_000}
	assert.ErrorIs(t, repo.CompleteCheckout(ctx, second, r.Version-1, "pay_2", b), model.ErrStaleState, "registrant changed since pricing")
	require.NoError(t, repo.CompleteCheckout(ctx, second, r.Version, "pay_2", b))
	assert.Equal(t, model.OrderVerified, second.Status)
	assert.Equal(t, "pay_2", second.GatewayPaymentID)

	got, err := repo.GetRegistrant(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, got.Status)

	assert.ErrorIs(t, repo.CompleteCheckout(ctx, second, r.Version, "pay_2", b), model.ErrStaleState)
	assert.ErrorIs(t, repo.UpdateRegistrant(ctx, got), model.ErrStaleState, "paid registrants are frozen")
}

func TestMemoryRepository_FailCheckout(t *testing.T) {
	repo := NewMemoryRegistrationRepository()
	ctx := context.Background()
	_, o := checkout(t, repo, "r1")

	released, err := repo.FailCheckout(ctx, o, "signature mismatch", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ws-a"}, released)
	assert.Equal(t, model.OrderFailed, o.Status)
	assert.Equal(t, "signature mismatch", o.FailureReason)

	got, err := repo.GetRegistrant(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Empty(t, got.ReservedWorkshopIDs)
	assert.Equal(t, []string{"ws-a"}, got.WorkshopIDs)

	_, err = repo.FailCheckout(ctx, o, "again", true)
	assert.ErrorIs(t, err, model.ErrStaleState)
}

func TestMemoryRepository_FailCheckoutReleasesCurrentHold(t *testing.T) {
	repo := NewMemoryRegistrationRepository()
	ctx := context.Background()
	r, o := checkout(t, repo, "r1")

	r.WorkshopIDs = []string{"ws-b"}
	r.ReservedWorkshopIDs = []string{"ws-b"}
	require.NoError(t, repo.UpdateRegistrant(ctx, r))

	released, err := repo.FailCheckout(ctx, o, "signature mismatch", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ws-b"}, released)

	_, o2 := checkout(t, repo, "r2")
	released, err = repo.FailCheckout(ctx, o2, "amount mismatch", false)
	require.NoError(t, err)
	assert.Empty(t, released)
	got, err := repo.GetRegistrant(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, []string{"ws-a"}, got.ReservedWorkshopIDs)
}

func TestMemoryRepository_CancelRegistrant(t *testing.T) {
	repo := NewMemoryRegistrationRepository()
	ctx := context.Background()
	r, o := checkout(t, repo, "r1")

	stale := *r
	r.ReservedWorkshopIDs = []string{}
	r.Status = model.StatusCancelled
	require.NoError(t, repo.CancelRegistrant(ctx, r))

	got, err := repo.OrderByGatewayID(ctx, o.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderFailed, got.Status)
	assert.Equal(t, "cancelled", got.FailureReason)

	stale.Status = model.StatusCancelled
	assert.ErrorIs(t, repo.CancelRegistrant(ctx, &stale), model.ErrStaleState)
	assert.ErrorIs(t, repo.CompleteCheckout(ctx, o, r.Version, "pay_1", nil), model.ErrStaleState)
}
