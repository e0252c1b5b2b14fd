// Package repository stores orders and their status history in Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ekomarket_backend/internal/orders/domain"
	"ekomarket_backend/internal/orders/ports"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	orderNotFoundMsg    = "order not found"
	uniqueViolation     = "23505"
	orderNumberAttempts = 3
)

const orderColumns = `
	id, order_number, brand_id, collector_id, pickup_id, category,
	quantity::text, unit_price::text, total_amount::text, status, payment_status,
	shipping_address, notes, cancellation_reason, tracking_number, created_at, updated_at`

const (
	insertOrderQuery = `
		INSERT INTO orders (
			id, order_number, brand_id, collector_id, pickup_id, category,
			quantity, unit_price, total_amount, status, payment_status,
			shipping_address, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, 'pending', 'pending', $10, $11)`

	insertHistoryQuery = `
		INSERT INTO order_status_history (order_id, seq, status, payment_status, notes, changed_by, changed_by_role, created_at)
		SELECT $1, COALESCE(MAX(seq), -1) + 1, $2, $3, $4, $5, $6, now()
		FROM order_status_history WHERE order_id = $1
		RETURNING seq`

	selectOrderQuery = `SELECT` + orderColumns + ` FROM orders WHERE id = $1`

	selectOrderForUpdateQuery = selectOrderQuery + ` FOR UPDATE`

	selectHistoryQuery = `
		SELECT seq, status, payment_status, created_at, notes, changed_by, changed_by_role
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY seq ASC`

	// transitionQuery is a check-and-set on the fulfilment status.
	transitionQuery = `
		UPDATE orders SET
			status = $3,
			cancellation_reason = COALESCE($4, cancellation_reason),
			tracking_number = COALESCE($5, tracking_number),
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING pickup_id, quantity::text, payment_status`

	// paymentQuery is a check-and-set on the payment status.
	paymentQuery = `
		UPDATE orders SET payment_status = $3, updated_at = now()
		WHERE id = $1 AND payment_status = $2
		RETURNING status`

	selectStatusQuery = `SELECT status, payment_status FROM orders WHERE id = $1`
)

// Repo is the Postgres order store.
type Repo struct {
	pool      *pgxpool.Pool
	inventory ports.Inventory
}

var _ Repository = (*Repo)(nil)

// New creates an order repository reserving weight through inventory.
func New(pool *pgxpool.Pool, inventory ports.Inventory) *Repo {
	return &Repo{pool: pool, inventory: inventory}
}

// Create reserves weight and inserts the order. A colliding order number is
// retried with a fresh suffix.
func (r *Repo) Create(ctx context.Context, params CreateParams) (domain.Order, error) {
	var out domain.Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		pickup, err := r.inventory.Reserve(ctx, tx, params.PickupID, params.Quantity)
		if err != nil {
			return err
		}

		total := domain.Total(params.Quantity, params.UnitPrice)
		number := params.OrderNumber
		for attempt := 1; ; attempt++ {
			err = insertOrder(ctx, tx, params, number, pickup.CollectorID, string(pickup.Category), total)
			if err == nil {
				break
			}
			if !isUniqueViolation(err) || attempt == orderNumberAttempts {
				return fmt.Errorf("insert order: %w", err)
			}
			number = domain.NewOrderNumber(time.Now())
		}

		brandID := params.BrandID
		if err := insertHistory(ctx, tx, params.ID, domain.StatusPending, domain.PaymentPending, "order placed", &brandID, domain.RoleBrand); err != nil {
			return err
		}
		out, err = getByID(ctx, tx, params.ID)
		return err
	})
	return out, err
}

// insertOrder runs under a savepoint so a unique violation leaves the outer
// transaction usable for the retry.
func insertOrder(ctx context.Context, tx pgx.Tx, params CreateParams, number string, collectorID uuid.UUID, category string, total decimal.Decimal) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	_, err = sp.Exec(ctx, insertOrderQuery,
		params.ID, number, params.BrandID, collectorID, params.PickupID, category,
		params.Quantity.String(), params.UnitPrice.String(), total.String(),
		params.ShippingAddress, nullableString(params.Notes),
	)
	if err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func insertHistory(ctx context.Context, q db.Querier, orderID uuid.UUID, status domain.Status, payment domain.PaymentStatus, notes string, changedBy *uuid.UUID, role domain.Role) error {
	var seq int
	if err := q.QueryRow(ctx, insertHistoryQuery, orderID, string(status), string(payment), nullableString(notes), changedBy, string(role)).Scan(&seq); err != nil {
		return fmt.Errorf("insert order history: %w", err)
	}
	return nil
}

// GetByID loads an order with its history.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return getByID(ctx, r.pool, id)
}

// GetForUpdate loads and locks an order inside tx.
func (r *Repo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx, selectOrderForUpdateQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperr.NotFound(orderNotFoundMsg)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

func getByID(ctx context.Context, q db.Querier, id uuid.UUID) (domain.Order, error) {
	order, err := scanOrder(q.QueryRow(ctx, selectOrderQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperr.NotFound(orderNotFoundMsg)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	history, err := loadHistory(ctx, q, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.StatusHistory = history
	return order, nil
}

func loadHistory(ctx context.Context, q db.Querier, id uuid.UUID) ([]domain.HistoryEntry, error) {
	rows, err := q.Query(ctx, selectHistoryQuery, id)
	if err != nil {
		return nil, fmt.Errorf("load order history: %w", err)
	}
	defer rows.Close()

	var history []domain.HistoryEntry
	for rows.Next() {
		var (
			e           domain.HistoryEntry
			status, pay string
			notes       *string
			role        string
		)
		if err := rows.Scan(&e.Seq, &status, &pay, &e.Timestamp, &notes, &e.ChangedBy, &role); err != nil {
			return nil, fmt.Errorf("scan order history: %w", err)
		}
		e.Status = domain.Status(status)
		e.PaymentStatus = domain.PaymentStatus(pay)
		e.ChangedByRole = domain.Role(role)
		if notes != nil {
			e.Notes = *notes
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

// List returns one page of orders, newest first.
func (r *Repo) List(ctx context.Context, params ListParams) ([]domain.Order, int, error) {
	where, args := buildListFilter(params)
	page, pageSize := normalizePage(params.Page, params.PageSize)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, pageSize)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

func buildListFilter(params ListParams) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.Replace(clause, "?", fmt.Sprintf("$%d", len(args)), 1))
	}

	if params.BrandID != nil {
		add("brand_id = ?", *params.BrandID)
	}
	if params.CollectorID != nil {
		add("collector_id = ?", *params.CollectorID)
	}
	if params.PickupID != nil {
		add("pickup_id = ?", *params.PickupID)
	}
	if params.Status != nil {
		add("status = ?", string(*params.Status))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// Transition runs transitionTx in its own transaction.
func (r *Repo) Transition(ctx context.Context, params TransitionParams) (domain.Order, error) {
	var out domain.Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := r.transitionTx(ctx, tx, params)
		out = o
		return err
	})
	return out, err
}

// Apply runs a fulfilment move and a payment move in one transaction. Either
// may be nil. A failed half rolls back the other.
func (r *Repo) Apply(ctx context.Context, transition *TransitionParams, payment *PaymentParams) (domain.Order, error) {
	var out domain.Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if transition != nil {
			o, err := r.transitionTx(ctx, tx, *transition)
			if err != nil {
				return err
			}
			out = o
		}
		if payment != nil {
			o, err := r.UpdatePaymentTx(ctx, tx, *payment)
			if err != nil {
				return err
			}
			out = o
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return out, nil
}

// transitionTx applies the check-and-set move and appends one history entry.
// Cancelling releases the reserved weight on the pickup.
func (r *Repo) transitionTx(ctx context.Context, tx pgx.Tx, params TransitionParams) (domain.Order, error) {
	if !domain.CanTransitionOrder(params.From, params.To) {
		return domain.Order{}, apperr.InvalidTransition("order", string(params.From), string(params.To))
	}

	var (
		pickupID uuid.UUID
		quantity string
		payment  string
	)
	err := tx.QueryRow(ctx, transitionQuery,
		params.OrderID, string(params.From), string(params.To), params.CancellationReason, params.TrackingNumber,
	).Scan(&pickupID, &quantity, &payment)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, statusConflict(ctx, tx, params.OrderID, string(params.To), false)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("transition order: %w", err)
	}

	if params.To == domain.StatusCancelled {
		qty, err := decimal.NewFromString(quantity)
		if err != nil {
			return domain.Order{}, fmt.Errorf("parse order quantity %q: %w", quantity, err)
		}
		if err := r.inventory.Release(ctx, tx, pickupID, qty); err != nil {
			return domain.Order{}, err
		}
	}

	changedBy := params.ChangedBy
	if err := insertHistory(ctx, tx, params.OrderID, params.To, domain.PaymentStatus(payment), params.Notes, &changedBy, params.ChangedByRole); err != nil {
		return domain.Order{}, err
	}
	return getByID(ctx, tx, params.OrderID)
}

// UpdatePayment runs UpdatePaymentTx in its own transaction.
func (r *Repo) UpdatePayment(ctx context.Context, params PaymentParams) (domain.Order, error) {
	var out domain.Order
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := r.UpdatePaymentTx(ctx, tx, params)
		out = o
		return err
	})
	return out, err
}

// UpdatePaymentTx moves the payment dimension and records it in the history.
// The fulfilment status is left unchanged.
func (r *Repo) UpdatePaymentTx(ctx context.Context, tx pgx.Tx, params PaymentParams) (domain.Order, error) {
	if !domain.CanTransitionPayment(params.From, params.To) {
		return domain.Order{}, apperr.InvalidTransition("order payment", string(params.From), string(params.To))
	}

	var status string
	err := tx.QueryRow(ctx, paymentQuery, params.OrderID, string(params.From), string(params.To)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, statusConflict(ctx, tx, params.OrderID, string(params.To), true)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order payment: %w", err)
	}

	notes := params.Notes
	if notes == "" {
		notes = fmt.Sprintf("payment %s -> %s", params.From, params.To)
	}
	if err := insertHistory(ctx, tx, params.OrderID, domain.Status(status), params.To, notes, params.ChangedBy, params.ChangedByRole); err != nil {
		return domain.Order{}, err
	}
	return getByID(ctx, tx, params.OrderID)
}

func statusConflict(ctx context.Context, q db.Querier, id uuid.UUID, requested string, payment bool) error {
	var status, pay string
	err := q.QueryRow(ctx, selectStatusQuery, id).Scan(&status, &pay)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(orderNotFoundMsg)
	}
	if err != nil {
		return fmt.Errorf("read order status: %w", err)
	}
	if payment {
		return apperr.InvalidTransition("order payment", pay, requested)
	}
	return apperr.InvalidTransition("order", status, requested)
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                       domain.Order
		quantity, price, total  string
		status, payment         string
		notes, reason, tracking *string
	)
	if err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BrandID, &o.CollectorID, &o.PickupID, &o.Category,
		&quantity, &price, &total, &status, &payment,
		&o.ShippingAddress, &notes, &reason, &tracking, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	var err error
	if o.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return domain.Order{}, fmt.Errorf("parse quantity %q: %w", quantity, err)
	}
	if o.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return domain.Order{}, fmt.Errorf("parse unit price %q: %w", price, err)
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("parse total %q: %w", total, err)
	}
	o.Status = domain.Status(status)
	o.PaymentStatus = domain.PaymentStatus(payment)
	o.Notes = deref(notes)
	o.CancellationReason = deref(reason)
	o.TrackingNumber = deref(tracking)
	return o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
