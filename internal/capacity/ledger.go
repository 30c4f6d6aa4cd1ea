// Package capacity enforces finite per-workshop seat pools.
//
// Every mutation goes through Store.Reserve or Store.Release, each of which
// must be a single indivisible conditional update in the backing store.
// A read-then-write pair would let two callers both see the last seat:
//
//	caller A: read booked=9 of 10
//	caller B: read booked=9 of 10
//	caller A: write booked=10
//	caller B: write booked=10   -> two holders, one seat
//
// Guarding the increment itself (booked + n <= max) closes that window
// without any locking in the caller.
package capacity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// Seats is a point-in-time view of one workshop's pool.
type Seats struct {
	WorkshopID  string `json:"workshop_id"`
	MaxSeats    int    `json:"max_seats"`
	BookedSeats int    `json:"booked_seats"`
}

// Available returns the number of unbooked seats.
func (s Seats) Available() int {
	return max(s.MaxSeats-s.BookedSeats, 0)
}

// Store is the shared seat counter backend.
type Store interface {
	// Reserve adds count to the booked seats if and only if the result stays
	// within max seats, returning the new state. It returns model.ErrSoldOut
	// when the pool cannot fit count, model.ErrWorkshopNotFound when the
	// workshop is unknown.
	Reserve(ctx context.Context, workshopID string, count int) (Seats, error)
	// Release subtracts count from the booked seats, stopping at zero.
	Release(ctx context.Context, workshopID string, count int) (Seats, error)
	// Seats reads the current pool.
	Seats(ctx context.Context, workshopID string) (Seats, error)
	// Ensure registers a workshop with maxSeats, keeping any booked count.
	Ensure(ctx context.Context, workshopID string, maxSeats int) error
}

// Reservation is a granted claim on workshop seats.
type Reservation struct {
	WorkshopID  string `json:"workshop_id"`
	Count       int    `json:"count"`
	BookedSeats int    `json:"booked_seats"`
	MaxSeats    int    `json:"max_seats"`
}

// Ledger grants and returns workshop seats.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// NewLedger constructs a Ledger over store.
func NewLedger(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Reserve claims count seats in a workshop.
func (l *Ledger) Reserve(ctx context.Context, workshopID string, count int) (*Reservation, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: seat count %d", model.ErrInvalidInput, count)
	}
	s, err := l.store.Reserve(ctx, workshopID, count)
	if err != nil {
		l.logger.Debug("seat reservation refused", "workshop_id", workshopID, "count", count, "error", err)
		return nil, err
	}
	l.logger.Debug("seats reserved", "workshop_id", workshopID, "count", count,
		"booked", s.BookedSeats, "max", s.MaxSeats)
	return &Reservation{WorkshopID: workshopID, Count: count, BookedSeats: s.BookedSeats, MaxSeats: s.MaxSeats}, nil
}

// Release returns count seats to a workshop's pool.
func (l *Ledger) Release(ctx context.Context, workshopID string, count int) error {
	if count <= 0 {
		return fmt.Errorf("%w: seat count %d", model.ErrInvalidInput, count)
	}
	s, err := l.store.Release(ctx, workshopID, count)
	if err != nil {
		return err
	}
	l.logger.Debug("seats released", "workshop_id", workshopID, "count", count,
		"booked", s.BookedSeats, "max", s.MaxSeats)
	return nil
}

// ReserveAll claims one seat in each workshop. If any is refused, seats
// already claimed by this call are returned before the error is.
func (l *Ledger) ReserveAll(ctx context.Context, workshopIDs []string) ([]string, error) {
	granted := make([]string, 0, len(workshopIDs))
	for _, id := range workshopIDs {
		if _, err := l.Reserve(ctx, id, 1); err != nil {
			l.ReleaseAll(context.WithoutCancel(ctx), granted)
			return nil, fmt.Errorf("reserve %s: %w", id, err)
		}
		granted = append(granted, id)
	}
	return granted, nil
}

// ReleaseAll returns one seat in each workshop. Failures are logged; the
// external expiry sweep reconciles anything left behind.
func (l *Ledger) ReleaseAll(ctx context.Context, workshopIDs []string) {
	for _, id := range workshopIDs {
		if err := l.Release(ctx, id, 1); err != nil {
			l.logger.Error("seat release failed", "workshop_id", id, "error", err)
		}
	}
}

// Availability returns the live seat state of a workshop.
func (l *Ledger) Availability(ctx context.Context, workshopID string) (Seats, error) {
	return l.store.Seats(ctx, workshopID)
}

// Sync registers catalog workshops with the store.
func (l *Ledger) Sync(ctx context.Context, workshops []model.Workshop) error {
	for _, w := range workshops {
		if err := l.store.Ensure(ctx, w.ID, w.MaxSeats); err != nil {
			return fmt.Errorf("sync workshop %s: %w", w.ID, err)
		}
	}
	l.logger.Info("workshop seat pools synced", "workshops", len(workshops))
	return nil
}
