package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	transactionNotFoundMsg = "transaction not found"
	uniqueViolation        = "23505"
)

const transactionColumns = `
	id, transaction_ref, payer_id, payee_id, pickup_id, order_id, amount::text,
	payment_method, status, notes, completed_at, created_at, updated_at`

const (
	insertTransactionQuery = `
		INSERT INTO transactions (id, transaction_ref, payer_id, payee_id, pickup_id, order_id, amount, payment_method, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, 'pending', $9)
		RETURNING` + transactionColumns

	selectTransactionQuery = `SELECT` + transactionColumns + ` FROM transactions WHERE id = $1`

	// transitionQuery is a check-and-set on the current status.
	transitionQuery = `
		UPDATE transactions SET
			status = $3,
			notes = COALESCE($4, notes),
			completed_at = CASE WHEN $3 = 'completed' THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING` + transactionColumns

	selectStatusQuery = `SELECT status FROM transactions WHERE id = $1`
)

// CompletionHook runs inside the transaction that moves a payment. It
// applies the effect on the paid pickup or order.
type CompletionHook func(ctx context.Context, tx pgx.Tx, t Transaction) error

// Repository is the transaction store.
type Repository interface {
	Create(ctx context.Context, t Transaction) (Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (Transaction, error)
	List(ctx context.Context, params ListParams) ([]Transaction, int, error)
	// Transition applies the check-and-set move and then hook, atomically.
	Transition(ctx context.Context, params TransitionParams, hook CompletionHook) (Transaction, error)
}

// ListParams filters listings.
type ListParams struct {
	PayerID  *uuid.UUID
	PayeeID  *uuid.UUID
	Status   *Status
	Page     int
	PageSize int
}

// TransitionParams is a status move.
type TransitionParams struct {
	ID    uuid.UUID
	From  Status
	To    Status
	Notes *string
}

// Repo is the Postgres transaction store.
type Repo struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Repo)(nil)

// NewRepository creates the transaction repository.
func NewRepository(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Create inserts a pending transaction. A duplicate reference is a conflict.
func (r *Repo) Create(ctx context.Context, t Transaction) (Transaction, error) {
	row := r.pool.QueryRow(ctx, insertTransactionQuery,
		t.ID, t.TransactionID, t.PayerID, t.PayeeID, t.PickupID, t.OrderID,
		t.Amount.String(), t.PaymentMethod, nullableString(t.Notes),
	)
	created, err := scanTransaction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Transaction{}, apperr.Conflict(fmt.Sprintf("transaction %s already exists", t.TransactionID))
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return created, nil
}

// GetByID loads one transaction.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, selectTransactionQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, apperr.NotFound(transactionNotFoundMsg)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// List returns one page, newest first.
func (r *Repo) List(ctx context.Context, params ListParams) ([]Transaction, int, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if params.PayerID != nil {
		add("payer_id = $%d", *params.PayerID)
	}
	if params.PayeeID != nil {
		add("payee_id = $%d", *params.PayeeID)
	}
	if params.Status != nil {
		add("status = $%d", string(*params.Status))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	page, pageSize := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, pageSize)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// Transition moves the status and runs hook in the same database transaction.
// A hook error rolls the status change back.
func (r *Repo) Transition(ctx context.Context, params TransitionParams, hook CompletionHook) (Transaction, error) {
	if !CanTransition(params.From, params.To) {
		return Transaction{}, apperr.InvalidTransition("transaction", string(params.From), string(params.To))
	}

	var out Transaction
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		t, err := scanTransaction(tx.QueryRow(ctx, transitionQuery, params.ID, string(params.From), string(params.To), params.Notes))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.conflict(ctx, tx, params.ID, params.To)
		}
		if err != nil {
			return fmt.Errorf("transition transaction: %w", err)
		}
		if hook != nil {
			if err := hook(ctx, tx, t); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (r *Repo) conflict(ctx context.Context, q db.Querier, id uuid.UUID, requested Status) error {
	var current string
	err := q.QueryRow(ctx, selectStatusQuery, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(transactionNotFoundMsg)
	}
	if err != nil {
		return fmt.Errorf("read transaction status: %w", err)
	}
	return apperr.InvalidTransition("transaction", current, string(requested))
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t      Transaction
		amount string
		status string
		notes  *string
	)
	if err := row.Scan(&t.ID, &t.TransactionID, &t.PayerID, &t.PayeeID, &t.PickupID, &t.OrderID, &amount,
		&t.PaymentMethod, &status, &notes, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Amount = parsed
	t.Status = Status(status)
	if notes != nil {
		t.Notes = *notes
	}
	return t, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
