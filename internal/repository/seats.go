// Package repository implements persistence for registrants, payment orders
// and workshop seat pools: Postgres via pgx (no ORM), Redis for shared seat
// counters, and an in-memory variant of each for single-process use.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/conference-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// WorkshopSeatRepository stores seat pools in the workshop_seats table.
type WorkshopSeatRepository struct {
	db *pgxpool.Pool
}

// NewWorkshopSeatRepository constructs a WorkshopSeatRepository.
func NewWorkshopSeatRepository(db *pgxpool.Pool) *WorkshopSeatRepository {
	return &WorkshopSeatRepository{db: db}
}

var _ capacity.Store = (*WorkshopSeatRepository)(nil)

// Reserve books count seats with a single guarded UPDATE.
//
// ─────────────────────────────────────────────────────────────────────────────
// WHY ONE STATEMENT
// ─────────────────────────────────────────────────────────────────────────────
//
// The capacity check lives in the WHERE clause of the increment itself:
//
//	UPDATE workshop_seats
//	   SET booked_seats = booked_seats + $2
//	 WHERE id = $1 AND booked_seats + $2 <= max_seats
//
// Postgres takes the row lock when it evaluates the UPDATE, and a second
// concurrent UPDATE re-checks the WHERE clause against the committed row
// once the first finishes. So of two callers racing for the last seat, one
// matches the row and the other matches nothing. No explicit transaction,
// no SELECT … FOR UPDATE round trip.
//
// Zero rows affected means either sold out or unknown workshop; a follow-up
// read only decides which error to return.
// ─────────────────────────────────────────────────────────────────────────────
func (r *WorkshopSeatRepository) Reserve(ctx context.Context, workshopID string, count int) (capacity.Seats, error) {
	s := capacity.Seats{WorkshopID: workshopID}
	err := r.db.QueryRow(ctx,
		`UPDATE workshop_seats
		    SET booked_seats = booked_seats + $2, updated_at = now()
		  WHERE id = $1 AND booked_seats + $2 <= max_seats
		  RETURNING booked_seats, max_seats`,
		workshopID, count,
	).Scan(&s.BookedSeats, &s.MaxSeats)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return capacity.Seats{}, fmt.Errorf("reserve seats: %w", err)
	}

	cur, err := r.Seats(ctx, workshopID)
	if err != nil {
		return capacity.Seats{}, err
	}
	return cur, fmt.Errorf("%w: %s", model.ErrSoldOut, workshopID)
}

// Release returns count seats, never going below zero.
func (r *WorkshopSeatRepository) Release(ctx context.Context, workshopID string, count int) (capacity.Seats, error) {
	s := capacity.Seats{WorkshopID: workshopID}
	err := r.db.QueryRow(ctx,
		`UPDATE workshop_seats
		    SET booked_seats = GREATEST(booked_seats - $2, 0), updated_at = now()
		  WHERE id = $1
		  RETURNING booked_seats, max_seats`,
		workshopID, count,
	).Scan(&s.BookedSeats, &s.MaxSeats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return capacity.Seats{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, workshopID)
		}
		return capacity.Seats{}, fmt.Errorf("release seats: %w", err)
	}
	return s, nil
}

// Seats reads a pool.
func (r *WorkshopSeatRepository) Seats(ctx context.Context, workshopID string) (capacity.Seats, error) {
	s := capacity.Seats{WorkshopID: workshopID}
	err := r.db.QueryRow(ctx,
		`SELECT booked_seats, max_seats FROM workshop_seats WHERE id = $1`,
		workshopID,
	).Scan(&s.BookedSeats, &s.MaxSeats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return capacity.Seats{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, workshopID)
		}
		return capacity.Seats{}, fmt.Errorf("get seats: %w", err)
	}
	return s, nil
}

// Ensure upserts a pool's max seats, leaving booked seats untouched.
func (r *WorkshopSeatRepository) Ensure(ctx context.Context, workshopID string, maxSeats int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO workshop_seats (id, max_seats, booked_seats, updated_at)
		 VALUES ($1, $2, 0, now())
		 ON CONFLICT (id) DO UPDATE SET max_seats = EXCLUDED.max_seats, updated_at = now()`,
		workshopID, maxSeats,
	)
	if err != nil {
		return fmt.Errorf("ensure workshop seats: %w", err)
	}
	return nil
}
