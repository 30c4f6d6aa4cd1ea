package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// RegistrationRepository handles persistence for registrants and their
// payment orders. Every state change is an UPDATE conditioned on the state
// the caller read; a zero row count is reported as model.ErrStaleState.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateRegistrant inserts a new registrant.
func (r *RegistrationRepository) CreateRegistrant(ctx context.Context, reg *model.Registrant) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO registrants
		   (id, email, category_id, workshop_ids, reserved_workshop_ids, accompanying_persons,
		    discount_code, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		reg.ID, reg.Email, reg.CategoryID, orEmpty(reg.WorkshopIDs), orEmpty(reg.ReservedWorkshopIDs), orEmpty(reg.AccompanyingPersons),
		reg.DiscountCode, reg.Status, reg.Version, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registrant: %w", err)
	}
	return nil
}

// GetRegistrant returns a single registrant or model.ErrRegistrantNotFound.
func (r *RegistrationRepository) GetRegistrant(ctx context.Context, id string) (*model.Registrant, error) {
	var reg model.Registrant
	err := r.db.QueryRow(ctx,
		`SELECT id, email, category_id, workshop_ids, reserved_workshop_ids, accompanying_persons,
		        discount_code, status, version, created_at, updated_at
		   FROM registrants WHERE id = $1`,
		id,
	).Scan(&reg.ID, &reg.Email, &reg.CategoryID, &reg.WorkshopIDs, &reg.ReservedWorkshopIDs, &reg.AccompanyingPersons,
		&reg.DiscountCode, &reg.Status, &reg.Version, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrRegistrantNotFound, id)
		}
		return nil, fmt.Errorf("get registrant: %w", err)
	}
	return &reg, nil
}

// orEmpty keeps nil slices out of NOT NULL array and jsonb columns.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func updateRegistrant(ctx context.Context, q querier, reg *model.Registrant) error {
	now := time.Now().UTC()
	tag, err := q.Exec(ctx,
		`UPDATE registrants
		    SET workshop_ids = $3, reserved_workshop_ids = $4, accompanying_persons = $5,
		        discount_code = $6, status = $7, version = version + 1, updated_at = $8
		  WHERE id = $1 AND version = $2 AND status <> 'paid'`,
		reg.ID, reg.Version, orEmpty(reg.WorkshopIDs), orEmpty(reg.ReservedWorkshopIDs), orEmpty(reg.AccompanyingPersons),
		reg.DiscountCode, reg.Status, now,
	)
	if err != nil {
		return fmt.Errorf("update registrant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: registrant %s", model.ErrStaleState, reg.ID)
	}
	reg.Version++
	reg.UpdatedAt = now
	return nil
}

// UpdateRegistrant implements service.RegistrationStore.
func (r *RegistrationRepository) UpdateRegistrant(ctx context.Context, reg *model.Registrant) error {
	return updateRegistrant(ctx, r.db, reg)
}

const orderColumns = `id, registrant_id, amount, currency, gateway_order_id, COALESCE(gateway_payment_id, ''),
	status, failure_reason, selection, breakdown, priced_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.PaymentOrder, error) {
	var o model.PaymentOrder
	err := row.Scan(&o.ID, &o.RegistrantID, &o.Amount, &o.Currency, &o.GatewayOrderID, &o.GatewayPaymentID,
		&o.Status, &o.FailureReason, &o.Selection, &o.Breakdown, &o.PricedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Orders lists a registrant's orders newest first.
func (r *RegistrationRepository) Orders(ctx context.Context, registrantID string) ([]model.PaymentOrder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+`
		   FROM payment_orders
		  WHERE registrant_id = $1
		  ORDER BY created_at DESC, id DESC`,
		registrantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.PaymentOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// OrderByGatewayID returns the order the gateway knows as gatewayOrderID.
func (r *RegistrationRepository) OrderByGatewayID(ctx context.Context, gatewayOrderID string) (*model.PaymentOrder, error) {
	o, err := scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM payment_orders WHERE gateway_order_id = $1`,
		gatewayOrderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: gateway order %s", model.ErrNoActiveOrder, gatewayOrderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// BeginCheckout records a new order and the registrant's move to
// awaiting_verification in one transaction.
func (r *RegistrationRepository) BeginCheckout(ctx context.Context, reg *model.Registrant, order *model.PaymentOrder) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	version := reg.Version
	if err = updateRegistrant(ctx, tx, reg); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			reg.Version = version
		}
	}()

	if _, err = tx.Exec(ctx,
		`UPDATE payment_orders
		    SET status = 'failed', failure_reason = 'superseded', updated_at = now()
		  WHERE registrant_id = $1 AND status = 'created'`,
		reg.ID,
	); err != nil {
		return fmt.Errorf("supersede orders: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO payment_orders
		   (id, registrant_id, amount, currency, gateway_order_id, status, failure_reason,
		    selection, breakdown, priced_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8, $9, $10, $11)`,
		order.ID, order.RegistrantID, order.Amount, order.Currency, order.GatewayOrderID, order.Status,
		order.Selection, order.Breakdown, order.PricedAt, order.CreatedAt, order.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CancelRegistrant implements service.RegistrationStore.
func (r *RegistrationRepository) CancelRegistrant(ctx context.Context, reg *model.Registrant) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	version := reg.Version
	if err = updateRegistrant(ctx, tx, reg); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			reg.Version = version
		}
	}()

	if _, err = tx.Exec(ctx,
		`UPDATE payment_orders
		    SET status = 'failed', failure_reason = 'cancelled', updated_at = now()
		  WHERE registrant_id = $1 AND status = 'created'`,
		reg.ID,
	); err != nil {
		return fmt.Errorf("cancel orders: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FailCheckout implements service.RegistrationStore. The registrant row is
// locked before it is cleared so the returned set is the one removed.
func (r *RegistrationRepository) FailCheckout(ctx context.Context, order *model.PaymentOrder, reason string, clearReservations bool) (released []string, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	o, err := scanOrder(tx.QueryRow(ctx,
		`UPDATE payment_orders
		    SET status = 'failed', failure_reason = $2, updated_at = now()
		  WHERE id = $1 AND status = 'created'
		  RETURNING `+orderColumns,
		order.ID, reason,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", model.ErrStaleState, order.ID)
		}
		return nil, fmt.Errorf("fail order: %w", err)
	}

	var held []string
	err = tx.QueryRow(ctx,
		`SELECT reserved_workshop_ids FROM registrants
		  WHERE id = $1 AND status = 'awaiting_verification'
		  FOR UPDATE`,
		o.RegistrantID,
	).Scan(&held)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = nil
	case err != nil:
		return nil, fmt.Errorf("lock registrant: %w", err)
	default:
		if _, err = tx.Exec(ctx,
			`UPDATE registrants
			    SET status = 'failed',
			        reserved_workshop_ids = CASE WHEN $2 THEN '{}'::text[] ELSE reserved_workshop_ids END,
			        version = version + 1, updated_at = now()
			  WHERE id = $1`,
			o.RegistrantID, clearReservations,
		); err != nil {
			return nil, fmt.Errorf("fail registrant: %w", err)
		}
		if clearReservations {
			released = held
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	*order = *o
	return released, nil
}

// CompleteCheckout implements service.RegistrationStore. The order and the
// registrant move together or not at all.
func (r *RegistrationRepository) CompleteCheckout(ctx context.Context, order *model.PaymentOrder, registrantVersion int64, gatewayPaymentID string, breakdown *model.FeeBreakdown) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	o, err := scanOrder(tx.QueryRow(ctx,
		`UPDATE payment_orders
		    SET status = 'verified', gateway_payment_id = $2, breakdown = $3, updated_at = now()
		  WHERE id = $1 AND status = 'created'
		  RETURNING `+orderColumns,
		order.ID, gatewayPaymentID, breakdown,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: order %s", model.ErrStaleState, order.ID)
		}
		return fmt.Errorf("verify order: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE registrants
		    SET status = 'paid', version = version + 1, updated_at = now()
		  WHERE id = $1 AND status = 'awaiting_verification' AND version = $2`,
		o.RegistrantID, registrantVersion,
	)
	if err != nil {
		return fmt.Errorf("mark registrant paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("%w: registrant %s", model.ErrStaleState, o.RegistrantID)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	*order = *o
	return nil
}
