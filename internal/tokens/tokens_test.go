package tokens

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ekomarket_backend/internal/pickups/ports"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var _ ports.RewardLedger = (*Service)(nil)

// memoryRepo applies the same arithmetic as Repo.Append.
type memoryRepo struct {
	entries map[uuid.UUID][]Entry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: map[uuid.UUID][]Entry{}}
}

func (r *memoryRepo) Append(_ context.Context, _ pgx.Tx, entry NewEntry) (Entry, error) {
	ledger := r.entries[entry.CollectorID]
	var last *Entry
	if len(ledger) > 0 {
		last = &ledger[len(ledger)-1]
	}
	out, err := nextEntry(last, entry)
	if err != nil {
		return Entry{}, err
	}
	out.CreatedAt = time.Now()
	r.entries[entry.CollectorID] = append(ledger, out)
	return out, nil
}

func (r *memoryRepo) Record(ctx context.Context, entry NewEntry) (Entry, error) {
	return r.Append(ctx, nil, entry)
}

func (r *memoryRepo) Latest(_ context.Context, id uuid.UUID) (*Entry, error) {
	ledger := r.entries[id]
	if len(ledger) == 0 {
		return nil, nil
	}
	e := ledger[len(ledger)-1]
	return &e, nil
}

func (r *memoryRepo) List(_ context.Context, id uuid.UUID, limit, offset int) ([]Entry, error) {
	ledger := r.entries[id]
	out := []Entry{}
	for i := len(ledger) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, ledger[i])
	}
	return out, nil
}

func (r *memoryRepo) Sum(_ context.Context, id uuid.UUID) (decimal.Decimal, int, error) {
	sum := decimal.Zero
	for _, e := range r.entries[id] {
		sum = sum.Add(e.Amount)
	}
	return sum, len(r.entries[id]), nil
}

func (r *memoryRepo) Collectors(context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, nil, logger.Nop())
}

func TestNextEntry(t *testing.T) {
	collector := uuid.New()
	last := &Entry{Seq: 3, BalanceAfter: decimal.RequireFromString("12.50")}

	tests := []struct {
		name        string
		last        *Entry
		amount      string
		wantSeq     int
		wantBalance string
		wantCode    string
	}{
		{"first entry", nil, "45", 1, "45", ""},
		{"credit appends", last, "7.5", 4, "20", ""},
		{"debit within balance", last, "-12.5", 4, "0", ""},
		{"overdraw refused", last, "-12.51", 0, "", apperr.CodeInsufficientBalance},
		{"debit on empty ledger", nil, "-1", 0, "", apperr.CodeInsufficientBalance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextEntry(tc.last, NewEntry{CollectorID: collector, Amount: decimal.RequireFromString(tc.amount)})
			if tc.wantCode != "" {
				if !apperr.HasCode(err, tc.wantCode) {
					t.Fatalf("err = %v, want code %s", err, tc.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Seq != tc.wantSeq || !got.BalanceAfter.Equal(decimal.RequireFromString(tc.wantBalance)) {
				t.Fatalf("got seq %d balance %s, want %d %s", got.Seq, got.BalanceAfter, tc.wantSeq, tc.wantBalance)
			}
		})
	}
}

func TestCreditThenRedeem(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	collector := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)
	ctx := context.Background()

	if err := svc.CreditPickupReward(ctx, nil, collector.UserID(), uuid.New(), decimal.NewFromInt(45)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	entry, err := svc.Redeem(ctx, collector, RedeemRequest{Amount: 20})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if entry.Seq != 2 || !entry.BalanceAfter.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("entry = %+v, want seq 2 balance 25", entry)
	}

	_, err = svc.Redeem(ctx, collector, RedeemRequest{Amount: 30})
	if !apperr.HasCode(err, apperr.CodeInsufficientBalance) {
		t.Fatalf("err = %v, want insufficient_balance", err)
	}

	balance, err := svc.Balance(ctx, collector)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Balance.Equal(decimal.NewFromInt(25)) || balance.LastSeq != 2 {
		t.Fatalf("balance = %+v", balance)
	}
}

func TestZeroRewardIsNotRecorded(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	collector := uuid.New()

	if err := svc.CreditPickupReward(context.Background(), nil, collector, uuid.New(), decimal.Zero); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.entries[collector]) != 0 {
		t.Fatal("zero reward must not append an entry")
	}
}

func TestLedgerIsCollectorOnly(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	brand := httpkit.NewIdentity(uuid.New(), httpkit.RoleBrand)

	if _, err := svc.Balance(context.Background(), brand); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("balance err = %v, want forbidden", err)
	}
	if _, err := svc.Redeem(context.Background(), brand, RedeemRequest{Amount: 1}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("redeem err = %v, want forbidden", err)
	}
}

func TestLedgerNewestFirst(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	collector := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.CreditPickupReward(ctx, nil, collector.UserID(), uuid.New(), decimal.NewFromInt(10)); err != nil {
			t.Fatal(err)
		}
	}
	page, err := svc.Ledger(ctx, collector, ListLedgerRequest{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Items[0].Seq != 3 || page.Items[1].Seq != 2 {
		t.Fatalf("unexpected page %+v", page.Items)
	}
}

func TestReconcile(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	collector := uuid.New()

	for _, amount := range []int64{45, 15} {
		if err := svc.CreditPickupReward(ctx, nil, collector, uuid.New(), decimal.NewFromInt(amount)); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.Reconcile(ctx, collector)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Consistent || !res.Sum.Equal(decimal.NewFromInt(60)) || res.Entries != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	// Corrupt the running balance.
	repo.entries[collector][1].BalanceAfter = decimal.NewFromInt(61)
	res, err = svc.Reconcile(ctx, collector)
	if err != nil {
		t.Fatal(err)
	}
	if res.Consistent {
		t.Fatal("expected drift to be reported")
	}

	all, err := svc.ReconcileAll(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ReconcileAll = %v, %v", all, err)
	}
}

func TestReconcileEmptyLedger(t *testing.T) {
	res, err := newTestService(newMemoryRepo()).Reconcile(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Consistent || !res.LatestBalance.IsZero() {
		t.Fatalf("empty ledger must reconcile, got %+v", res)
	}
}

func TestAppendTakesLedgerLock(t *testing.T) {
	if !strings.Contains(lockLedgerQuery, "pg_advisory_xact_lock") {
		t.Fatal("appends must be serialised with a transaction-scoped advisory lock")
	}
	if !strings.Contains(latestEntryQuery, "ORDER BY seq DESC") {
		t.Fatal("latest entry must be read by sequence")
	}
}

func TestCreditWrapsRepositoryErrors(t *testing.T) {
	svc := newTestService(failingRepo{memoryRepo: newMemoryRepo()})
	err := svc.CreditPickupReward(context.Background(), nil, uuid.New(), uuid.New(), decimal.NewFromInt(1))
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("err = %v, want wrapped errLedgerDown", err)
	}
}

var errLedgerDown = errors.New("ledger down")

type failingRepo struct{ *memoryRepo }

func (failingRepo) Append(context.Context, pgx.Tx, NewEntry) (Entry, error) {
	return Entry{}, errLedgerDown
}
