package tokens

import (
	"context"
	"errors"
	"fmt"

	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	// lockLedgerQuery serialises appends per collector for the rest of the
	// transaction.
	lockLedgerQuery = `SELECT pg_advisory_xact_lock(hashtextextended('eko_ledger:' || $1::text, 0))`

	latestEntryQuery = `
		SELECT collector_id, seq, amount::text, balance_after::text, reason, pickup_id, notes, created_at
		FROM eko_token_transactions
		WHERE collector_id = $1
		ORDER BY seq DESC
		LIMIT 1`

	insertEntryQuery = `
		INSERT INTO eko_token_transactions (collector_id, seq, amount, balance_after, reason, pickup_id, notes)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7)
		RETURNING created_at`

	listEntriesQuery = `
		SELECT collector_id, seq, amount::text, balance_after::text, reason, pickup_id, notes, created_at
		FROM eko_token_transactions
		WHERE collector_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`

	sumEntriesQuery = `
		SELECT COALESCE(SUM(amount), 0)::text, COUNT(*)
		FROM eko_token_transactions
		WHERE collector_id = $1`

	ledgerCollectorsQuery = `SELECT DISTINCT collector_id FROM eko_token_transactions ORDER BY collector_id`
)

// Repository is the ledger store.
type Repository interface {
	// Append adds an entry inside the caller's transaction.
	Append(ctx context.Context, tx pgx.Tx, entry NewEntry) (Entry, error)
	// Record appends in a transaction of its own.
	Record(ctx context.Context, entry NewEntry) (Entry, error)
	Latest(ctx context.Context, collectorID uuid.UUID) (*Entry, error)
	List(ctx context.Context, collectorID uuid.UUID, limit, offset int) ([]Entry, error)
	Sum(ctx context.Context, collectorID uuid.UUID) (decimal.Decimal, int, error)
	Collectors(ctx context.Context) ([]uuid.UUID, error)
}

// Repo is the Postgres ledger.
type Repo struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Repo)(nil)

// NewRepository creates the ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Append takes the collector's advisory lock, then writes seq = last+1 and
// balanceAfter = last balance + amount.
func (r *Repo) Append(ctx context.Context, tx pgx.Tx, entry NewEntry) (Entry, error) {
	if _, err := tx.Exec(ctx, lockLedgerQuery, entry.CollectorID); err != nil {
		return Entry{}, fmt.Errorf("lock ledger: %w", err)
	}

	last, err := latest(ctx, tx, entry.CollectorID)
	if err != nil {
		return Entry{}, err
	}
	out, err := nextEntry(last, entry)
	if err != nil {
		return Entry{}, err
	}

	if err := tx.QueryRow(ctx, insertEntryQuery,
		out.CollectorID, out.Seq, out.Amount.String(), out.BalanceAfter.String(),
		string(out.Reason), out.PickupID, nullableString(out.Notes),
	).Scan(&out.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return out, nil
}

// Record runs Append in its own transaction.
func (r *Repo) Record(ctx context.Context, entry NewEntry) (Entry, error) {
	var out Entry
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		e, err := r.Append(ctx, tx, entry)
		out = e
		return err
	})
	return out, err
}

// nextEntry computes the sequence number and running balance. A negative
// resulting balance is refused.
func nextEntry(last *Entry, entry NewEntry) (Entry, error) {
	seq := 1
	balance := decimal.Zero
	if last != nil {
		seq = last.Seq + 1
		balance = last.BalanceAfter
	}

	after := balance.Add(entry.Amount)
	if after.IsNegative() {
		return Entry{}, apperr.Validation(fmt.Sprintf("balance %s is lower than %s", balance.String(), entry.Amount.Neg().String())).
			WithCode(apperr.CodeInsufficientBalance)
	}

	return Entry{
		CollectorID:  entry.CollectorID,
		Seq:          seq,
		Amount:       entry.Amount,
		BalanceAfter: after,
		Reason:       entry.Reason,
		PickupID:     entry.PickupID,
		Notes:        entry.Notes,
	}, nil
}

// Latest returns the newest entry, nil for an empty ledger.
func (r *Repo) Latest(ctx context.Context, collectorID uuid.UUID) (*Entry, error) {
	return latest(ctx, r.pool, collectorID)
}

func latest(ctx context.Context, q db.Querier, collectorID uuid.UUID) (*Entry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, latestEntryQuery, collectorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest ledger entry: %w", err)
	}
	return &entry, nil
}

// List returns entries newest first.
func (r *Repo) List(ctx context.Context, collectorID uuid.UUID, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, listEntriesQuery, collectorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Sum totals every amount of the collector's ledger.
func (r *Repo) Sum(ctx context.Context, collectorID uuid.UUID) (decimal.Decimal, int, error) {
	var (
		raw   string
		count int
	)
	if err := r.pool.QueryRow(ctx, sumEntriesQuery, collectorID).Scan(&raw, &count); err != nil {
		return decimal.Zero, 0, fmt.Errorf("sum ledger: %w", err)
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("parse ledger sum %q: %w", raw, err)
	}
	return sum, count, nil
}

// Collectors lists every collector with at least one entry.
func (r *Repo) Collectors(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, ledgerCollectorsQuery)
	if err != nil {
		return nil, fmt.Errorf("list ledger collectors: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e             Entry
		amount, after string
		reason        string
		notes         *string
	)
	if err := row.Scan(&e.CollectorID, &e.Seq, &amount, &after, &reason, &e.PickupID, &notes, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return Entry{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return Entry{}, fmt.Errorf("parse balance %q: %w", after, err)
	}
	e.Reason = Reason(reason)
	if notes != nil {
		e.Notes = *notes
	}
	return e, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
