package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"aviator/events"
	"aviator/models"
	"aviator/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func begin(t *testing.T, f service.UnitOfWorkFactory) service.UnitOfWork {
	t.Helper()
	uow := f.Create()
	require.NoError(t, uow.Begin(context.Background()))
	return uow
}

func seedAccount(t *testing.T, f service.UnitOfWorkFactory, id, balance string) {
	t.Helper()
	uow := begin(t, f)
	_, err := uow.AccountRepository().Create(context.Background(), id, models.AccountKindReal, decimal.RequireFromString(balance))
	require.NoError(t, err)
	require.NoError(t, uow.Commit())
}

func TestUnitOfWork_WritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	f := NewUnitOfWorkFactory(New(), nil)
	seedAccount(t, f, "alice", "100")

	writer := begin(t, f)
	_, err := writer.AccountRepository().Debit(ctx, "alice", decimal.NewFromInt(40))
	require.NoError(t, err)

	reader := begin(t, f)
	seen, err := reader.AccountRepository().GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "100", seen.Balance.String())
	require.NoError(t, reader.Rollback())

	own, err := writer.AccountRepository().GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "60", own.Balance.String())
	require.NoError(t, writer.Commit())

	after := begin(t, f)
	defer after.Rollback()
	seen, err = after.AccountRepository().GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "60", seen.Balance.String())
}

func TestUnitOfWork_RollbackDiscardsWritesAndEvents(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	var delivered sync.WaitGroup
	var count int
	var mu sync.Mutex
	bus.Subscribe(events.EventTypeBalanceChange, func(context.Context, events.Event) {
		mu.Lock()
		count++
		mu.Unlock()
		delivered.Done()
	})

	f := NewUnitOfWorkFactory(New(), bus)
	seedAccount(t, f, "alice", "100")

	uow := begin(t, f)
	_, err := uow.AccountRepository().Debit(ctx, "alice", decimal.NewFromInt(10))
	require.NoError(t, err)
	uow.EventBus().Publish(events.BalanceChangeEvent{AccountID: "alice"})
	require.NoError(t, uow.Rollback())
	require.NoError(t, uow.Rollback(), "second rollback is a no-op")

	check := begin(t, f)
	a, err := check.AccountRepository().GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "100", a.Balance.String())
	require.NoError(t, check.Rollback())

	delivered.Add(1)
	committed := begin(t, f)
	committed.EventBus().Publish(events.BalanceChangeEvent{AccountID: "alice"})
	require.NoError(t, committed.Commit())
	delivered.Wait()

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

func TestUnitOfWork_RepositoriesRequireBegin(t *testing.T) {
	f := NewUnitOfWorkFactory(New(), nil)
	uow := f.Create()

	assert.Panics(t, func() { uow.AccountRepository() })
	assert.Error(t, uow.Commit())
	assert.NoError(t, uow.Rollback())
}

func TestAccountRepository_DebitNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	f := NewUnitOfWorkFactory(New(), nil)
	seedAccount(t, f, "alice", "100")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uow := f.Create()
			if err := uow.Begin(ctx); err != nil {
				return
			}
			defer uow.Rollback()
			if _, err := uow.AccountRepository().Debit(ctx, "alice", decimal.NewFromInt(15)); err != nil {
				assert.ErrorIs(t, err, models.ErrInsufficientBalance)
				return
			}
			if uow.Commit() == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)

	uow := begin(t, f)
	defer uow.Rollback()
	a, err := uow.AccountRepository().GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10", a.Balance.String())
}

func TestLockTable_BlocksUntilRelease(t *testing.T) {
	ctx := context.Background()
	f := NewUnitOfWorkFactory(New(), nil)
	seedAccount(t, f, "alice", "100")

	first := begin(t, f)
	_, err := first.AccountRepository().Credit(ctx, "alice", decimal.NewFromInt(1))
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second := f.Create()
		_ = second.Begin(ctx)
		_, _ = second.AccountRepository().Credit(ctx, "alice", decimal.NewFromInt(1))
		close(acquired)
		_ = second.Commit()
	}()

	select {
	case <-acquired:
		t.Fatal("second unit of work acquired a held row lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Commit())

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("row lock was not released on commit")
	}
}

func TestLockTable_RespectsContext(t *testing.T) {
	f := NewUnitOfWorkFactory(New(), nil)
	seedAccount(t, f, "alice", "100")

	holder := begin(t, f)
	defer holder.Rollback()
	_, err := holder.AccountRepository().Debit(context.Background(), "alice", decimal.NewFromInt(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	waiter := f.Create()
	require.NoError(t, waiter.Begin(ctx))
	defer waiter.Rollback()

	_, err = waiter.AccountRepository().Debit(ctx, "alice", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBetRepository_SettleIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	f := NewUnitOfWorkFactory(New(), nil)
	seedAccount(t, f, "alice", "100")

	uow := begin(t, f)
	require.NoError(t, uow.RoundRepository().Create(ctx, &models.Round{ID: "r1", CrashPoint: decimal.RequireFromString("2.00"), State: models.RoundStateWaiting}))
	require.NoError(t, uow.BetRepository().Create(ctx, &models.Bet{ID: "b1", RoundID: "r1", AccountID: "alice", Stake: decimal.NewFromInt(10), Status: models.BetStatusActive}))
	require.NoError(t, uow.Commit())

	first := begin(t, f)
	settled, err := first.BetRepository().Settle(ctx, "b1", models.BetStatusLost, decimal.NullDecimal{}, decimal.Zero)
	require.NoError(t, err)
	require.NotNil(t, settled)
	require.NoError(t, first.Commit())

	second := begin(t, f)
	defer second.Rollback()
	again, err := second.BetRepository().Settle(ctx, "b1", models.BetStatusCashedOut, decimal.NewNullDecimal(decimal.RequireFromString("1.50")), decimal.NewFromInt(15))
	require.NoError(t, err)
	assert.Nil(t, again)

	missing, err := second.BetRepository().Settle(ctx, "nope", models.BetStatusLost, decimal.NullDecimal{}, decimal.Zero)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDepositRepository_UniqueReferenceAndConfirmations(t *testing.T) {
	ctx := context.Background()
	f := NewUnitOfWorkFactory(New(), nil)
	seedAccount(t, f, "alice", "0")

	uow := begin(t, f)
	d := &models.Deposit{ID: "d1", AccountID: "alice", Currency: "BTC", ClaimedAmount: decimal.NewFromInt(5), ExternalReference: "tx", Status: models.DepositStatusPending}
	require.NoError(t, uow.DepositRepository().Create(ctx, d))
	require.NoError(t, uow.Commit())

	dup := begin(t, f)
	err := dup.DepositRepository().Create(ctx, &models.Deposit{ID: "d2", AccountID: "alice", Currency: "BTC", ClaimedAmount: decimal.NewFromInt(5), ExternalReference: "tx"})
	assert.ErrorIs(t, err, models.ErrDuplicateReference)
	require.NoError(t, dup.Rollback())

	other := begin(t, f)
	require.NoError(t, other.DepositRepository().Create(ctx, &models.Deposit{ID: "d3", AccountID: "alice", Currency: "ETH", ClaimedAmount: decimal.NewFromInt(5), ExternalReference: "tx", Status: models.DepositStatusPending}))
	require.NoError(t, other.Commit())

	confirm := begin(t, f)
	defer confirm.Rollback()
	repo := confirm.DepositRepository()

	got, prev, err := repo.RecordConfirmations(ctx, "BTC", "tx", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusPending, prev)
	assert.Equal(t, models.DepositStatusPending, got.Status)
	assert.Equal(t, 2, got.Confirmations)

	got, _, err = repo.RecordConfirmations(ctx, "BTC", "tx", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Confirmations, "confirmations never decrease")

	got, prev, err = repo.RecordConfirmations(ctx, "BTC", "tx", 3, 3)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusPending, prev)
	assert.Equal(t, models.DepositStatusConfirmed, got.Status)
	assert.NotNil(t, got.ConfirmedAt)

	credited, err := repo.TransitionStatus(ctx, "BTC", "tx", models.DepositStatusConfirmed, models.DepositStatusCredited)
	require.NoError(t, err)
	require.NotNil(t, credited)
	assert.NotNil(t, credited.CreditedAt)

	again, err := repo.TransitionStatus(ctx, "BTC", "tx", models.DepositStatusConfirmed, models.DepositStatusCredited)
	require.NoError(t, err)
	assert.Nil(t, again)

	unknown, _, err := repo.RecordConfirmations(ctx, "BTC", "missing", 1, 1)
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestDepositRepository_ListByStatusIsPerCurrency(t *testing.T) {
	ctx := context.Background()
	f := NewUnitOfWorkFactory(New(), nil)
	seedAccount(t, f, "alice", "0")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	uow := begin(t, f)
	// an older ETH backlog larger than the batch
	for i, ref := range []string{"e1", "e2", "e3"} {
		require.NoError(t, uow.DepositRepository().Create(ctx, &models.Deposit{
			ID: "d-" + ref, AccountID: "alice", Currency: "ETH", ClaimedAmount: decimal.NewFromInt(1),
			ExternalReference: ref, Status: models.DepositStatusConfirmed, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, uow.DepositRepository().Create(ctx, &models.Deposit{
		ID: "d-b1", AccountID: "alice", Currency: "BTC", ClaimedAmount: decimal.NewFromInt(1),
		ExternalReference: "b1", Status: models.DepositStatusConfirmed, CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, uow.Commit())

	read := begin(t, f)
	defer read.Rollback()

	btc, err := read.DepositRepository().ListByStatus(ctx, "BTC", models.DepositStatusConfirmed, 2)
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, "b1", btc[0].ExternalReference)

	eth, err := read.DepositRepository().ListByStatus(ctx, "ETH", models.DepositStatusConfirmed, 2)
	require.NoError(t, err)
	require.Len(t, eth, 2)
	assert.Equal(t, "e1", eth[0].ExternalReference)
	assert.Equal(t, "e2", eth[1].ExternalReference)
}

func TestBalanceHistoryRepository_RejectsInconsistentEntry(t *testing.T) {
	f := NewUnitOfWorkFactory(New(), nil)
	uow := begin(t, f)
	defer uow.Rollback()

	err := uow.BalanceHistoryRepository().Record(context.Background(), &models.BalanceHistory{
		AccountID:     "alice",
		BalanceBefore: decimal.NewFromInt(100),
		BalanceAfter:  decimal.NewFromInt(90),
		ChangeAmount:  decimal.NewFromInt(-5),
	})
	assert.Error(t, err)
}
