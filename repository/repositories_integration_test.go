package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aviator/events"
	"aviator/models"
	"aviator/repository/testutil"
	"aviator/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAccountRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	t.Run("missing account", func(t *testing.T) {
		account, err := repo.GetByID(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("create is idempotent", func(t *testing.T) {
		account, err := repo.Create(ctx, "alice", models.AccountKindReal, dec("1000"))
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, "1000.00", account.Balance.StringFixed(2))

		again, err := repo.Create(ctx, "alice", models.AccountKindReal, dec("5"))
		require.NoError(t, err)
		assert.Nil(t, again)
	})

	t.Run("debit and credit", func(t *testing.T) {
		account, err := repo.Debit(ctx, "alice", dec("100.25"))
		require.NoError(t, err)
		assert.Equal(t, "899.75", account.Balance.StringFixed(2))

		account, err = repo.Credit(ctx, "alice", dec("0.25"))
		require.NoError(t, err)
		assert.Equal(t, "900.00", account.Balance.StringFixed(2))
	})

	t.Run("debit never overdraws", func(t *testing.T) {
		_, err := repo.Debit(ctx, "alice", dec("900.01"))
		assert.ErrorIs(t, err, models.ErrInsufficientBalance)

		_, err = repo.Debit(ctx, "ghost", dec("1"))
		assert.ErrorIs(t, err, models.ErrAccountNotFound)

		_, err = repo.Credit(ctx, "ghost", dec("1"))
		assert.ErrorIs(t, err, models.ErrAccountNotFound)

		account, err := repo.GetByID(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "900.00", account.Balance.StringFixed(2))
	})
}

func TestRoundAndBetRepositories(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	accounts := NewAccountRepository(testDB.DB)
	rounds := NewRoundRepository(testDB.DB)
	bets := NewBetRepository(testDB.DB)
	ctx := context.Background()

	_, err := accounts.Create(ctx, "alice", models.AccountKindReal, dec("1000"))
	require.NoError(t, err)

	round := testutil.CreateTestRound("2.50")
	require.NoError(t, rounds.Create(ctx, round))

	t.Run("round lifecycle", func(t *testing.T) {
		got, err := rounds.GetByID(ctx, round.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.RoundStateWaiting, got.State)
		assert.Equal(t, "2.50", got.CrashPoint.StringFixed(2))

		started := time.Now().UTC()
		round.State = models.RoundStateFlying
		round.StartedAt = &started
		require.NoError(t, rounds.UpdateState(ctx, round))

		unarchived, err := rounds.ListUnarchived(ctx)
		require.NoError(t, err)
		require.Len(t, unarchived, 1)
		assert.Equal(t, models.RoundStateFlying, unarchived[0].State)

		missing, err := rounds.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		assert.ErrorIs(t, rounds.MarkArchived(ctx, "nope"), models.ErrRoundNotFound)
	})

	t.Run("settle is compare and set", func(t *testing.T) {
		bet := testutil.CreateTestBetWithTarget(round.ID, "alice", "10.55", "3.00")
		require.NoError(t, bets.Create(ctx, bet))

		active, err := bets.GetActiveByAccount(ctx, "alice", round.ID)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.True(t, active.AutoCashOut.Valid)

		settled, err := bets.Settle(ctx, bet.ID, models.BetStatusCashedOut, decimal.NewNullDecimal(dec("1.37")), dec("14.45"))
		require.NoError(t, err)
		require.NotNil(t, settled)
		assert.Equal(t, models.BetStatusCashedOut, settled.Status)
		assert.NotNil(t, settled.SettledAt)

		again, err := bets.Settle(ctx, bet.ID, models.BetStatusLost, decimal.NullDecimal{}, decimal.Zero)
		require.NoError(t, err)
		assert.Nil(t, again)

		active, err = bets.GetActiveByAccount(ctx, "alice", round.ID)
		require.NoError(t, err)
		assert.Nil(t, active)
	})

	t.Run("active listing and stats", func(t *testing.T) {
		lost := testutil.CreateTestBet(round.ID, "alice", "20")
		require.NoError(t, bets.Create(ctx, lost))

		active, err := bets.ListActiveByRound(ctx, round.ID)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, lost.ID, active[0].ID)

		_, err = bets.Settle(ctx, lost.ID, models.BetStatusLost, decimal.NullDecimal{}, decimal.Zero)
		require.NoError(t, err)

		stats, err := bets.GetStats(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.GamesPlayed)
		assert.Equal(t, 1, stats.Wins)
		assert.Equal(t, 1, stats.Losses)
		assert.Equal(t, "30.55", stats.TotalWagered.StringFixed(2))
		assert.Equal(t, "14.45", stats.TotalWon.StringFixed(2))
		assert.Equal(t, "-16.10", stats.NetProfit.StringFixed(2))
		assert.Equal(t, "1.37", stats.BestExit.StringFixed(2))

		history, err := bets.ListByAccount(ctx, "alice", 1)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("recent crashed rounds", func(t *testing.T) {
		older := testutil.CreateCrashedRound("1.10", time.Now().UTC().Add(-time.Minute))
		newer := testutil.CreateCrashedRound("7.77", time.Now().UTC())
		require.NoError(t, rounds.Create(ctx, older))
		require.NoError(t, rounds.Create(ctx, newer))
		require.NoError(t, rounds.MarkArchived(ctx, older.ID))

		recent, err := rounds.ListRecentCrashed(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, newer.ID, recent[0].ID)
		assert.Equal(t, "7.77", recent[0].CurrentMultiplier.StringFixed(2))
		assert.Equal(t, older.ID, recent[1].ID)

		unarchived, err := rounds.ListUnarchived(ctx)
		require.NoError(t, err)
		assert.Len(t, unarchived, 2)
	})
}

func TestDepositRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	accounts := NewAccountRepository(testDB.DB)
	deposits := NewDepositRepository(testDB.DB)
	ctx := context.Background()

	_, err := accounts.Create(ctx, "alice", models.AccountKindReal, decimal.Zero)
	require.NoError(t, err)

	deposit := testutil.CreateTestDeposit("alice", "BTC", "tx1", "50")
	require.NoError(t, deposits.Create(ctx, deposit))
	assert.False(t, deposit.CreatedAt.IsZero())

	t.Run("reference is unique per currency", func(t *testing.T) {
		err := deposits.Create(ctx, testutil.CreateTestDeposit("alice", "BTC", "tx1", "10"))
		assert.ErrorIs(t, err, models.ErrDuplicateReference)

		require.NoError(t, deposits.Create(ctx, testutil.CreateTestDeposit("alice", "ETH", "tx1", "10")))
	})

	t.Run("confirmations are monotonic", func(t *testing.T) {
		got, prev, err := deposits.RecordConfirmations(ctx, "BTC", "tx1", 2, 3)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusPending, prev)
		assert.Equal(t, 2, got.Confirmations)
		assert.Equal(t, models.DepositStatusPending, got.Status)

		got, _, err = deposits.RecordConfirmations(ctx, "BTC", "tx1", 1, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Confirmations)

		got, prev, err = deposits.RecordConfirmations(ctx, "BTC", "tx1", 3, 3)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusPending, prev)
		assert.Equal(t, models.DepositStatusConfirmed, got.Status)
		require.NotNil(t, got.ConfirmedAt)

		got, prev, err = deposits.RecordConfirmations(ctx, "BTC", "tx1", 4, 3)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusConfirmed, prev)
		assert.Equal(t, 4, got.Confirmations)

		missing, _, err := deposits.RecordConfirmations(ctx, "BTC", "nope", 1, 1)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("transition guards on the source status", func(t *testing.T) {
		pending, err := deposits.ListByStatus(ctx, "BTC", models.DepositStatusConfirmed, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		credited, err := deposits.TransitionStatus(ctx, "BTC", "tx1", models.DepositStatusConfirmed, models.DepositStatusCredited)
		require.NoError(t, err)
		require.NotNil(t, credited)
		assert.NotNil(t, credited.CreditedAt)

		again, err := deposits.TransitionStatus(ctx, "BTC", "tx1", models.DepositStatusConfirmed, models.DepositStatusCredited)
		require.NoError(t, err)
		assert.Nil(t, again)

		listed, err := deposits.ListByAccount(ctx, "alice", 0)
		require.NoError(t, err)
		assert.Len(t, listed, 2)
	})
}

func TestBalanceHistoryRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	accounts := NewAccountRepository(testDB.DB)
	history := NewBalanceHistoryRepository(testDB.DB)
	ctx := context.Background()

	_, err := accounts.Create(ctx, "alice", models.AccountKindReal, dec("1000"))
	require.NoError(t, err)

	first := testutil.CreateTestBalanceHistory("alice", models.TransactionTypeInitial, "0", "1000")
	require.NoError(t, history.Record(ctx, first))
	assert.NotZero(t, first.ID)

	second := testutil.CreateTestBalanceHistory("alice", models.TransactionTypeBetPlaced, "1000", "-25.50")
	betID := "bet-1"
	relatedType := models.RelatedTypeBet
	second.RelatedID = &betID
	second.RelatedType = &relatedType
	require.NoError(t, history.Record(ctx, second))

	entries, err := history.GetByAccount(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.TransactionTypeBetPlaced, entries[0].TransactionType)
	assert.Equal(t, "974.50", entries[0].BalanceAfter.StringFixed(2))
	require.NotNil(t, entries[0].RelatedType)
	assert.Equal(t, models.RelatedTypeBet, *entries[0].RelatedType)
	assert.Equal(t, true, entries[0].TransactionMetadata["test"])

	bad := testutil.CreateTestBalanceHistory("alice", models.TransactionTypeBetCashOut, "974.50", "10")
	bad.ChangeAmount = dec("11")
	assert.Error(t, history.Record(ctx, bad))
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	bus := events.NewBus()
	delivered := make(chan events.Event, 4)
	bus.Subscribe(events.EventTypeBalanceChange, func(_ context.Context, e events.Event) {
		delivered <- e
	})
	factory := NewUnitOfWorkFactory(testDB.DB, bus)

	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))
	_, err := uow.AccountRepository().Create(ctx, "alice", models.AccountKindReal, dec("100"))
	require.NoError(t, err)
	uow.EventBus().Publish(events.BalanceChangeEvent{AccountID: "alice"})
	require.NoError(t, uow.Rollback())

	account, err := NewAccountRepository(testDB.DB).GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, account)

	uow = factory.Create()
	require.NoError(t, uow.Begin(ctx))
	_, err = uow.AccountRepository().Create(ctx, "alice", models.AccountKindReal, dec("100"))
	require.NoError(t, err)
	uow.EventBus().Publish(events.BalanceChangeEvent{AccountID: "alice"})
	require.NoError(t, uow.Commit())
	require.NoError(t, uow.Rollback(), "rollback after commit is a no-op")

	select {
	case e := <-delivered:
		assert.Equal(t, "alice", e.(events.BalanceChangeEvent).AccountID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered after commit")
	}
	assert.Empty(t, delivered, "rolled back event must not be delivered")

	assert.Panics(t, func() { factory.Create().BetRepository() })
}

func TestDepositPipeline_ConcurrentCreditsAgainstPostgres(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	factory := NewUnitOfWorkFactory(testDB.DB, nil)
	accounts := service.NewAccountService(factory, service.AccountSettings{StartingBalance: dec("1000")})
	pipeline := service.NewDepositPipeline(factory, service.DepositSettings{Currency: "BTC", RequiredConfirmations: 1})

	_, err := accounts.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = pipeline.Submit(ctx, "alice", dec("50"), "tx1")
	require.NoError(t, err)
	_, err = pipeline.RecordConfirmation(ctx, "tx1", 1)
	require.NoError(t, err)

	const callers = 8
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = pipeline.Credit(ctx, "tx1")
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, models.ErrAlreadyCredited), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	balance, err := accounts.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1050.00", balance.StringFixed(2))
}

func TestBetLedger_ConcurrentPlacementAgainstPostgres(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	factory := NewUnitOfWorkFactory(testDB.DB, nil)
	accounts := service.NewAccountService(factory, service.AccountSettings{StartingBalance: dec("100")})
	ledger := service.NewBetLedger(factory)
	rounds := service.NewRoundService(factory, ledger)

	_, err := accounts.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	round := testutil.CreateTestRound("2.00")
	require.NoError(t, rounds.RecordCreated(ctx, round))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var placed int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.PlaceBet(ctx, "alice", dec("15"), round.ID, decimal.NullDecimal{})
			if err == nil {
				mu.Lock()
				placed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, placed)
	balance, err := accounts.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10.00", balance.StringFixed(2))
}
