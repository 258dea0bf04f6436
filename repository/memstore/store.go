// Package memstore keeps game state in process memory. It implements the same
// unit of work contract as the Postgres repositories: writes take row locks
// held until commit, stay private to their unit of work, and become visible
// atomically on commit.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"aviator/events"
	"aviator/models"
	"aviator/service"
)

// Store holds committed rows
type Store struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
	rounds   map[string]models.Round
	bets     map[string]models.Bet
	deposits map[string]models.Deposit
	history  []models.BalanceHistory

	historySeq atomic.Int64
	locks      *lockTable
}

// New creates an empty store
func New() *Store {
	return &Store{
		accounts: make(map[string]models.Account),
		rounds:   make(map[string]models.Round),
		bets:     make(map[string]models.Bet),
		deposits: make(map[string]models.Deposit),
		locks:    newLockTable(),
	}
}

func depositKey(currency, reference string) string {
	return currency + "/" + reference
}

// NewUnitOfWorkFactory creates units of work over store that publish to eventBus after commit
func NewUnitOfWorkFactory(store *Store, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{store: store, eventBus: eventBus}
}

type unitOfWorkFactory struct {
	store    *Store
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		store:            f.store,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// unitOfWork buffers writes until Commit
type unitOfWork struct {
	store            *Store
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	started          bool
	held             []string

	accounts map[string]models.Account
	rounds   map[string]models.Round
	bets     map[string]models.Bet
	deposits map[string]models.Deposit
	history  []models.BalanceHistory
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.started {
		return fmt.Errorf("transaction already started")
	}
	u.ctx = ctx
	u.started = true
	u.accounts = make(map[string]models.Account)
	u.rounds = make(map[string]models.Round)
	u.bets = make(map[string]models.Bet)
	u.deposits = make(map[string]models.Deposit)
	u.history = nil
	return nil
}

// Commit publishes the buffered writes, releases row locks and flushes events
func (u *unitOfWork) Commit() error {
	if !u.started {
		return fmt.Errorf("no transaction to commit")
	}

	s := u.store
	s.mu.Lock()
	for id, a := range u.accounts {
		s.accounts[id] = a
	}
	for id, r := range u.rounds {
		s.rounds[id] = r
	}
	for id, b := range u.bets {
		s.bets[id] = b
	}
	for key, d := range u.deposits {
		s.deposits[key] = d
	}
	s.history = append(s.history, u.history...)
	s.mu.Unlock()

	u.finish()

	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}
	return nil
}

// Rollback discards the buffered writes. Calling it after Commit is a no-op.
func (u *unitOfWork) Rollback() error {
	if !u.started {
		return nil
	}
	u.finish()

	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}
	return nil
}

func (u *unitOfWork) finish() {
	u.store.locks.release(u, u.held)
	u.held = nil
	u.started = false
	u.accounts = nil
	u.rounds = nil
	u.bets = nil
	u.deposits = nil
	u.history = nil
}

func (u *unitOfWork) lock(key string) error {
	fresh, err := u.store.locks.acquire(u.ctx, key, u)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	if fresh {
		u.held = append(u.held, key)
	}
	return nil
}

func (u *unitOfWork) mustBeStarted() {
	if !u.started {
		panic("unit of work not started - call Begin() first")
	}
}

func (u *unitOfWork) AccountRepository() service.AccountRepository {
	u.mustBeStarted()
	return &accountRepository{u: u}
}

func (u *unitOfWork) RoundRepository() service.RoundRepository {
	u.mustBeStarted()
	return &roundRepository{u: u}
}

func (u *unitOfWork) BetRepository() service.BetRepository {
	u.mustBeStarted()
	return &betRepository{u: u}
}

func (u *unitOfWork) DepositRepository() service.DepositRepository {
	u.mustBeStarted()
	return &depositRepository{u: u}
}

func (u *unitOfWork) BalanceHistoryRepository() service.BalanceHistoryRepository {
	u.mustBeStarted()
	return &balanceHistoryRepository{u: u}
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	u.mustBeStarted()
	return u.transactionalBus
}

// account returns the row as this unit of work sees it
func (u *unitOfWork) account(id string) (models.Account, bool) {
	if a, ok := u.accounts[id]; ok {
		return a, true
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	a, ok := u.store.accounts[id]
	return a, ok
}

func (u *unitOfWork) round(id string) (models.Round, bool) {
	if r, ok := u.rounds[id]; ok {
		return r, true
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	r, ok := u.store.rounds[id]
	return r, ok
}

func (u *unitOfWork) bet(id string) (models.Bet, bool) {
	if b, ok := u.bets[id]; ok {
		return b, true
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	b, ok := u.store.bets[id]
	return b, ok
}

func (u *unitOfWork) deposit(key string) (models.Deposit, bool) {
	if d, ok := u.deposits[key]; ok {
		return d, true
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	d, ok := u.store.deposits[key]
	return d, ok
}

// allRounds, allBets and allDeposits merge committed rows with this unit of work's writes
func (u *unitOfWork) allRounds() []models.Round {
	u.store.mu.RLock()
	merged := make(map[string]models.Round, len(u.store.rounds))
	for id, r := range u.store.rounds {
		merged[id] = r
	}
	u.store.mu.RUnlock()
	for id, r := range u.rounds {
		merged[id] = r
	}

	out := make([]models.Round, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return out
}

func (u *unitOfWork) allBets() []models.Bet {
	u.store.mu.RLock()
	merged := make(map[string]models.Bet, len(u.store.bets))
	for id, b := range u.store.bets {
		merged[id] = b
	}
	u.store.mu.RUnlock()
	for id, b := range u.bets {
		merged[id] = b
	}

	out := make([]models.Bet, 0, len(merged))
	for _, b := range merged {
		out = append(out, b)
	}
	return out
}

func (u *unitOfWork) allDeposits() []models.Deposit {
	u.store.mu.RLock()
	merged := make(map[string]models.Deposit, len(u.store.deposits))
	for key, d := range u.store.deposits {
		merged[key] = d
	}
	u.store.mu.RUnlock()
	for key, d := range u.deposits {
		merged[key] = d
	}

	out := make([]models.Deposit, 0, len(merged))
	for _, d := range merged {
		out = append(out, d)
	}
	return out
}

func (u *unitOfWork) allHistory() []models.BalanceHistory {
	u.store.mu.RLock()
	out := make([]models.BalanceHistory, 0, len(u.store.history)+len(u.history))
	out = append(out, u.store.history...)
	u.store.mu.RUnlock()
	return append(out, u.history...)
}
