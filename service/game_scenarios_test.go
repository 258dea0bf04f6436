package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aviator/engine"
	"aviator/events"
	"aviator/models"
	"aviator/repository/memstore"
	"aviator/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixedPoint decimal.Decimal

func (p fixedPoint) Draw() decimal.Decimal {
	return decimal.Decimal(p)
}

// harness wires the full game over the in-memory store
type harness struct {
	factory  service.UnitOfWorkFactory
	accounts service.AccountService
	ledger   service.BetLedger
	deposits service.DepositPipeline
	rounds   service.RoundService
	engine   *engine.Engine
	game     service.GameService
	crashed  chan string
}

func newHarness(t *testing.T, crashPoint string) *harness {
	t.Helper()

	factory := memstore.NewUnitOfWorkFactory(memstore.New(), events.NewBus())
	h := &harness{
		factory: factory,
		accounts: service.NewAccountService(factory, service.AccountSettings{
			StartingBalance:     dec("1000"),
			DemoStartingBalance: dec("1000"),
		}),
		ledger:   service.NewBetLedger(factory),
		deposits: service.NewDepositPipeline(factory, service.DepositSettings{Currency: "BTC", RequiredConfirmations: 1}),
		crashed:  make(chan string, 4),
	}
	h.rounds = service.NewRoundService(factory, h.ledger)
	h.engine = engine.New(engine.Config{
		Clock:      engine.ClockConfig{Interval: time.Millisecond, Increment: dec("0.01")},
		Cooldown:   time.Hour,
		RetryDelay: time.Millisecond,
	}, fixedPoint(dec(crashPoint)), h.rounds, h.ledger)
	h.game = service.NewGameService(h.engine, h.accounts, h.ledger, h.deposits, h.rounds)

	h.engine.Subscribe(service.NewAutoCashOut(h.ledger, h.engine))
	h.engine.Subscribe(engine.ObserverFuncs{
		Crash: func(_ context.Context, roundID string, _ decimal.Decimal) { h.crashed <- roundID },
	})
	return h
}

// run starts the engine and waits for the first round to open
func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return h.engine.Snapshot().State == models.RoundStateWaiting
	}, time.Second, time.Millisecond)
}

func (h *harness) awaitCrash(t *testing.T) string {
	t.Helper()
	select {
	case id := <-h.crashed:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("round did not crash")
		return ""
	}
}

func (h *harness) balance(t *testing.T, accountID string) string {
	t.Helper()
	b, err := h.game.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	return b.StringFixed(2)
}

func TestScenario_CashOutBeforeCrash(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2.50")

	_, err := h.game.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	h.run(t)

	bet, err := h.game.PlaceBet(ctx, "alice", dec("100"))
	require.NoError(t, err)
	assert.Equal(t, "900.00", h.balance(t, "alice"))

	_, err = h.game.RequestCashOut(ctx, bet.ID)
	assert.ErrorIs(t, err, models.ErrRoundNotFlying)

	cashedOut := make(chan error, 1)
	target := dec("2.00")
	unsubscribe := h.game.Subscribe(engine.ObserverFuncs{
		Tick: func(ctx context.Context, _ string, m decimal.Decimal) {
			if m.Equal(target) {
				_, err := h.game.RequestCashOut(ctx, bet.ID)
				cashedOut <- err
			}
		},
	})
	defer unsubscribe()

	require.NoError(t, h.game.StartRound())
	require.NoError(t, <-cashedOut)
	h.awaitCrash(t)

	settled, err := h.ledger.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusCashedOut, settled.Status)
	assert.Equal(t, "2.00", settled.ExitMultiplier.Decimal.StringFixed(2))
	assert.Equal(t, "200.00", settled.Payout.StringFixed(2))
	assert.Equal(t, "1100.00", h.balance(t, "alice"))

	history, err := h.game.GetHistory(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.TransactionTypeBetCashOut, history[0].TransactionType)
	assert.Equal(t, models.TransactionTypeBetPlaced, history[1].TransactionType)
	assert.Equal(t, models.TransactionTypeInitial, history[2].TransactionType)
}

func TestScenario_CrashBeforeCashOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "1.80")

	_, err := h.game.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	h.run(t)

	bet, err := h.game.PlaceBet(ctx, "alice", dec("100"))
	require.NoError(t, err)

	require.NoError(t, h.game.StartRound())
	roundID := h.awaitCrash(t)
	assert.Equal(t, bet.RoundID, roundID)

	snap := h.game.CurrentRound()
	assert.Equal(t, models.RoundStateCrashed, snap.State)
	assert.Equal(t, "1.80", snap.CrashPoint.StringFixed(2))

	_, err = h.game.RequestCashOut(ctx, bet.ID)
	assert.True(t, errors.Is(err, models.ErrBetNotActive) || errors.Is(err, models.ErrRoundAlreadyCrashed))

	settled, err := h.ledger.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusLost, settled.Status)
	assert.True(t, settled.Payout.IsZero())
	assert.Equal(t, "900.00", h.balance(t, "alice"))

	rounds, err := h.game.RecentRounds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "1.80", rounds[0].CrashPoint.StringFixed(2))

	stats, err := h.game.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, "-100.00", stats.NetProfit.StringFixed(2))
}

func TestScenario_AutoCashOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "3.00")

	_, err := h.game.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = h.game.EnsureAccount(ctx, "bob")
	require.NoError(t, err)
	h.run(t)

	aliceBet, err := h.game.PlaceBet(ctx, "alice", dec("50"), service.WithAutoCashOut(dec("1.50")))
	require.NoError(t, err)
	bobBet, err := h.game.PlaceBet(ctx, "bob", dec("50"), service.WithAutoCashOut(dec("3.00")))
	require.NoError(t, err)

	require.NoError(t, h.game.StartRound())
	h.awaitCrash(t)

	alice, err := h.ledger.GetBet(ctx, aliceBet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusCashedOut, alice.Status)
	assert.Equal(t, "75.00", alice.Payout.StringFixed(2))
	assert.Equal(t, "1025.00", h.balance(t, "alice"))

	// a target equal to the crash point is never reached
	bob, err := h.ledger.GetBet(ctx, bobBet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusLost, bob.Status)
	assert.Equal(t, "950.00", h.balance(t, "bob"))
}

func TestScenario_BetsRejectedWhileFlying(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5.00")

	_, err := h.game.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	h.run(t)

	placed := make(chan error, 1)
	var once sync.Once
	unsubscribe := h.game.Subscribe(engine.ObserverFuncs{
		Tick: func(ctx context.Context, _ string, _ decimal.Decimal) {
			once.Do(func() {
				_, err := h.game.PlaceBet(ctx, "alice", dec("10"))
				placed <- err
			})
		},
	})
	defer unsubscribe()

	require.NoError(t, h.game.StartRound())
	assert.ErrorIs(t, <-placed, models.ErrRoundNotAcceptingBets)
	h.awaitCrash(t)
	assert.Equal(t, "1000.00", h.balance(t, "alice"))
}

func TestScenario_ConcurrentCashOutsSettleOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5.00")

	_, err := h.accounts.EnsureAccount(ctx, "alice")
	require.NoError(t, err)

	round := &models.Round{ID: "round-c", CrashPoint: dec("5.00"), State: models.RoundStateWaiting}
	require.NoError(t, h.rounds.RecordCreated(ctx, round))
	bet, err := h.ledger.PlaceBet(ctx, "alice", dec("100"), round.ID, decimal.NullDecimal{})
	require.NoError(t, err)

	started := time.Now().UTC()
	round.State = models.RoundStateFlying
	round.StartedAt = &started
	require.NoError(t, h.rounds.RecordStarted(ctx, round))

	multipliers := []string{"1.50", "1.70"}
	results := make([]error, len(multipliers))
	var wg sync.WaitGroup
	for i, m := range multipliers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = h.ledger.CashOut(ctx, bet.ID, dec(m))
		}()
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrBetNotActive):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	settled, err := h.ledger.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	expected := decimal.NewFromInt(900).Add(settled.Payout).StringFixed(2)
	assert.Equal(t, expected, h.balance(t, "alice"))
	assert.Contains(t, []string{"150.00", "170.00"}, settled.Payout.StringFixed(2))
}

func TestScenario_CashOutRacesCrashSettlement(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		h := newHarness(t, "5.00")
		_, err := h.accounts.EnsureAccount(ctx, "alice")
		require.NoError(t, err)

		round := &models.Round{ID: "round-race", CrashPoint: dec("5.00"), State: models.RoundStateWaiting}
		require.NoError(t, h.rounds.RecordCreated(ctx, round))
		bet, err := h.ledger.PlaceBet(ctx, "alice", dec("100"), round.ID, decimal.NullDecimal{})
		require.NoError(t, err)
		round.State = models.RoundStateFlying
		require.NoError(t, h.rounds.RecordStarted(ctx, round))

		var cashErr, lossErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cashErr = h.ledger.CashOut(ctx, bet.ID, dec("2.00"))
		}()
		go func() {
			defer wg.Done()
			_, lossErr = h.ledger.SettleAsLoss(ctx, bet.ID)
		}()
		wg.Wait()

		settled, err := h.ledger.GetBet(ctx, bet.ID)
		require.NoError(t, err)

		if cashErr == nil {
			assert.ErrorIs(t, lossErr, models.ErrBetNotActive)
			assert.Equal(t, models.BetStatusCashedOut, settled.Status)
			assert.Equal(t, "1100.00", h.balance(t, "alice"))
		} else {
			assert.ErrorIs(t, cashErr, models.ErrBetNotActive)
			assert.NoError(t, lossErr)
			assert.Equal(t, models.BetStatusLost, settled.Status)
			assert.Equal(t, "900.00", h.balance(t, "alice"))
		}
	}
}

func TestScenario_ConcurrentCreditsApplyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2.00")

	_, err := h.accounts.EnsureAccount(ctx, "alice")
	require.NoError(t, err)

	deposit, err := h.game.SubmitDeposit(ctx, "alice", dec("50"), "tx1")
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusPending, deposit.Status)
	assert.Equal(t, "1000.00", h.balance(t, "alice"))

	confirmed, err := h.deposits.RecordConfirmation(ctx, "tx1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusConfirmed, confirmed.Status)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = h.deposits.Credit(ctx, "tx1")
		}()
	}
	wg.Wait()

	var succeeded, already int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrAlreadyCredited):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, already)
	assert.Equal(t, "1050.00", h.balance(t, "alice"))

	// duplicate delivery of the confirmation is harmless
	again, err := h.game.ConfirmDeposit(ctx, "tx1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusCredited, again.Status)
	assert.Equal(t, "1050.00", h.balance(t, "alice"))

	_, err = h.game.SubmitDeposit(ctx, "alice", dec("10"), "tx1")
	assert.ErrorIs(t, err, models.ErrDuplicateReference)
}

func TestScenario_ConfirmDepositCreditsWhenConfirmed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2.00")
	h.deposits = service.NewDepositPipeline(h.factory, service.DepositSettings{Currency: "BTC", RequiredConfirmations: 3})
	h.game = service.NewGameService(h.engine, h.accounts, h.ledger, h.deposits, h.rounds)

	_, err := h.accounts.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = h.game.SubmitDeposit(ctx, "alice", dec("20"), "tx2")
	require.NoError(t, err)

	d, err := h.game.ConfirmDeposit(ctx, "tx2", 2)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusPending, d.Status)
	assert.Equal(t, "1000.00", h.balance(t, "alice"))

	_, err = h.deposits.Credit(ctx, "tx2")
	assert.ErrorIs(t, err, models.ErrNotConfirmed)

	d, err = h.game.ConfirmDeposit(ctx, "tx2", 3)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusCredited, d.Status)
	assert.Equal(t, "1020.00", h.balance(t, "alice"))

	_, err = h.game.ConfirmDeposit(ctx, "unknown", 3)
	assert.ErrorIs(t, err, models.ErrUnknownReference)

	deposits, err := h.game.ListDeposits(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
}

func TestScenario_InsufficientBalanceMutatesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2.00")

	_, err := h.game.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	h.run(t)

	_, err = h.game.PlaceBet(ctx, "alice", dec("1500"))
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	assert.Equal(t, "1000.00", h.balance(t, "alice"))
	active, err := h.game.ActiveBet(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, active)

	bets, err := h.game.GetBetHistory(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, bets)

	history, err := h.game.GetHistory(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestScenario_DemoAccountIsIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2.00")

	_, err := h.game.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	demo, err := h.game.EnsureAccount(ctx, models.DemoAccountID("alice"))
	require.NoError(t, err)
	assert.Equal(t, models.AccountKindDemo, demo.Kind)
	h.run(t)

	_, err = h.game.PlaceBet(ctx, demo.ID, dec("300"))
	require.NoError(t, err)

	assert.Equal(t, "700.00", h.balance(t, demo.ID))
	assert.Equal(t, "1000.00", h.balance(t, "alice"))
}

func TestRoundService_RecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2.00")

	_, err := h.accounts.EnsureAccount(ctx, "alice")
	require.NoError(t, err)

	// a round the previous process left flying
	interrupted := &models.Round{ID: "r-flying", CrashPoint: dec("4.00"), State: models.RoundStateWaiting}
	require.NoError(t, h.rounds.RecordCreated(ctx, interrupted))
	refunded, err := h.ledger.PlaceBet(ctx, "alice", dec("100"), interrupted.ID, decimal.NullDecimal{})
	require.NoError(t, err)
	interrupted.State = models.RoundStateFlying
	require.NoError(t, h.rounds.RecordStarted(ctx, interrupted))

	// a round that crashed but never settled
	crashed := &models.Round{ID: "r-crashed", CrashPoint: dec("1.50"), State: models.RoundStateWaiting}
	require.NoError(t, h.rounds.RecordCreated(ctx, crashed))
	lost, err := h.ledger.PlaceBet(ctx, "alice", dec("40"), crashed.ID, decimal.NullDecimal{})
	require.NoError(t, err)
	now := time.Now().UTC()
	crashed.State = models.RoundStateCrashed
	crashed.CrashedAt = &now
	require.NoError(t, h.rounds.RecordStarted(ctx, crashed))

	require.NoError(t, h.rounds.RecoverInterrupted(ctx))

	got, err := h.ledger.GetBet(ctx, refunded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusCashedOut, got.Status)
	assert.Equal(t, "1.00", got.ExitMultiplier.Decimal.StringFixed(2))

	got, err = h.ledger.GetBet(ctx, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusLost, got.Status)

	assert.Equal(t, "960.00", h.balance(t, "alice"))

	recent, err := h.rounds.RecentRounds(ctx, 10)
	require.NoError(t, err)
	var ids []string
	for _, r := range recent {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, crashed.ID)
	assert.NotContains(t, ids, interrupted.ID, "a refunded round never crashed at its crash point")

	require.NoError(t, h.rounds.RecoverInterrupted(ctx), "recovery is idempotent")
	assert.Equal(t, "960.00", h.balance(t, "alice"))
}

func TestDepositCreditWorker_Sweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2.00")

	_, err := h.accounts.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = h.deposits.Submit(ctx, "alice", dec("30"), "tx-sweep")
	require.NoError(t, err)
	_, err = h.deposits.RecordConfirmation(ctx, "tx-sweep", 1)
	require.NoError(t, err)

	worker := service.NewDepositCreditWorker(h.deposits, time.Minute)

	credited, err := worker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)
	assert.Equal(t, "1030.00", h.balance(t, "alice"))

	credited, err = worker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)
}

func TestScenario_CashOutPaysExactProduct(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2.50")

	_, err := h.game.EnsureAccount(ctx, "alice")
	require.NoError(t, err)
	h.run(t)

	bet, err := h.game.PlaceBet(ctx, "alice", dec("0.15"))
	require.NoError(t, err)

	cashedOut := make(chan error, 1)
	target := dec("1.55")
	unsubscribe := h.game.Subscribe(engine.ObserverFuncs{
		Tick: func(ctx context.Context, _ string, m decimal.Decimal) {
			if m.Equal(target) {
				_, err := h.game.RequestCashOut(ctx, bet.ID)
				cashedOut <- err
			}
		},
	})
	defer unsubscribe()

	require.NoError(t, h.game.StartRound())
	require.NoError(t, <-cashedOut)
	h.awaitCrash(t)

	settled, err := h.ledger.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.True(t, settled.Payout.Equal(settled.Stake.Mul(settled.ExitMultiplier.Decimal)),
		"payout %s for %s x %s", settled.Payout, settled.Stake, settled.ExitMultiplier.Decimal)
	assert.True(t, settled.Payout.Equal(dec("0.2325")), "payout %s", settled.Payout)

	balance, err := h.game.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("1000.0825")), "balance %s", balance)
}
