package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"aviator/models"

	"github.com/shopspring/decimal"
)

type accountRepository struct {
	u *unitOfWork
}

func (r *accountRepository) GetByID(_ context.Context, id string) (*models.Account, error) {
	a, ok := r.u.account(id)
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *accountRepository) Create(_ context.Context, id string, kind models.AccountKind, initialBalance decimal.Decimal) (*models.Account, error) {
	if err := r.u.lock("account:" + id); err != nil {
		return nil, err
	}
	if _, exists := r.u.account(id); exists {
		return nil, nil
	}

	now := time.Now().UTC()
	a := models.Account{ID: id, Kind: kind, Balance: initialBalance, CreatedAt: now, UpdatedAt: now}
	r.u.accounts[id] = a
	return &a, nil
}

func (r *accountRepository) Debit(_ context.Context, id string, amount decimal.Decimal) (*models.Account, error) {
	if err := r.u.lock("account:" + id); err != nil {
		return nil, err
	}
	a, ok := r.u.account(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}
	if a.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, need %s", models.ErrInsufficientBalance, a.Balance.StringFixed(2), amount.StringFixed(2))
	}

	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = time.Now().UTC()
	r.u.accounts[id] = a
	return &a, nil
}

func (r *accountRepository) Credit(_ context.Context, id string, amount decimal.Decimal) (*models.Account, error) {
	if err := r.u.lock("account:" + id); err != nil {
		return nil, err
	}
	a, ok := r.u.account(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}

	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	r.u.accounts[id] = a
	return &a, nil
}

type roundRepository struct {
	u *unitOfWork
}

func (r *roundRepository) Create(_ context.Context, round *models.Round) error {
	if err := r.u.lock("round:" + round.ID); err != nil {
		return err
	}
	if _, exists := r.u.round(round.ID); exists {
		return fmt.Errorf("round %s already exists", round.ID)
	}

	stored := *round.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.u.rounds[round.ID] = stored
	return nil
}

func (r *roundRepository) GetByID(_ context.Context, id string) (*models.Round, error) {
	round, ok := r.u.round(id)
	if !ok {
		return nil, nil
	}
	return round.Clone(), nil
}

func (r *roundRepository) UpdateState(_ context.Context, round *models.Round) error {
	if err := r.u.lock("round:" + round.ID); err != nil {
		return err
	}
	stored, ok := r.u.round(round.ID)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrRoundNotFound, round.ID)
	}

	stored.State = round.State
	stored.StartedAt = round.StartedAt
	stored.CrashedAt = round.CrashedAt
	r.u.rounds[round.ID] = stored
	return nil
}

func (r *roundRepository) MarkArchived(_ context.Context, id string) error {
	if err := r.u.lock("round:" + id); err != nil {
		return err
	}
	stored, ok := r.u.round(id)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrRoundNotFound, id)
	}

	now := time.Now().UTC()
	stored.ArchivedAt = &now
	r.u.rounds[id] = stored
	return nil
}

func (r *roundRepository) ListRecentCrashed(_ context.Context, limit int) ([]*models.Round, error) {
	var rounds []*models.Round
	for _, round := range r.u.allRounds() {
		if round.State == models.RoundStateCrashed && !round.Aborted() {
			rounds = append(rounds, round.Clone())
		}
	}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].CrashedAt.After(*rounds[j].CrashedAt)
	})
	return truncate(rounds, limit), nil
}

func (r *roundRepository) ListUnarchived(_ context.Context) ([]*models.Round, error) {
	var rounds []*models.Round
	for _, round := range r.u.allRounds() {
		if round.ArchivedAt == nil {
			rounds = append(rounds, round.Clone())
		}
	}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].CreatedAt.Before(rounds[j].CreatedAt)
	})
	return rounds, nil
}

type betRepository struct {
	u *unitOfWork
}

func (r *betRepository) Create(_ context.Context, bet *models.Bet) error {
	if err := r.u.lock("bet:" + bet.ID); err != nil {
		return err
	}
	if _, exists := r.u.bet(bet.ID); exists {
		return fmt.Errorf("bet %s already exists", bet.ID)
	}
	if _, ok := r.u.round(bet.RoundID); !ok {
		return fmt.Errorf("%w: %s", models.ErrRoundNotFound, bet.RoundID)
	}

	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = time.Now().UTC()
	}
	r.u.bets[bet.ID] = *bet
	return nil
}

func (r *betRepository) GetByID(_ context.Context, id string) (*models.Bet, error) {
	b, ok := r.u.bet(id)
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *betRepository) Settle(_ context.Context, id string, status models.BetStatus, exitMultiplier decimal.NullDecimal, payout decimal.Decimal) (*models.Bet, error) {
	if err := r.u.lock("bet:" + id); err != nil {
		return nil, err
	}
	b, ok := r.u.bet(id)
	if !ok || b.Status != models.BetStatusActive {
		return nil, nil
	}

	now := time.Now().UTC()
	b.Status = status
	b.ExitMultiplier = exitMultiplier
	b.Payout = payout
	b.SettledAt = &now
	r.u.bets[id] = b
	return &b, nil
}

func (r *betRepository) ListActiveByRound(_ context.Context, roundID string) ([]*models.Bet, error) {
	return r.filter(func(b *models.Bet) bool {
		return b.RoundID == roundID && b.Status == models.BetStatusActive
	}, false), nil
}

func (r *betRepository) GetActiveByAccount(_ context.Context, accountID, roundID string) (*models.Bet, error) {
	bets := r.filter(func(b *models.Bet) bool {
		return b.AccountID == accountID && b.RoundID == roundID && b.Status == models.BetStatusActive
	}, true)
	if len(bets) == 0 {
		return nil, nil
	}
	return bets[0], nil
}

func (r *betRepository) ListByAccount(_ context.Context, accountID string, limit int) ([]*models.Bet, error) {
	bets := r.filter(func(b *models.Bet) bool { return b.AccountID == accountID }, true)
	return truncate(bets, limit), nil
}

func (r *betRepository) GetStats(_ context.Context, accountID string) (*models.PlayerStats, error) {
	bets := r.filter(func(b *models.Bet) bool { return b.AccountID == accountID }, false)
	return models.StatsFromBets(bets), nil
}

// filter returns matching bets ordered by creation time
func (r *betRepository) filter(match func(*models.Bet) bool, newestFirst bool) []*models.Bet {
	var bets []*models.Bet
	for _, b := range r.u.allBets() {
		if match(&b) {
			bets = append(bets, &b)
		}
	}
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].CreatedAt.Equal(bets[j].CreatedAt) {
			return bets[i].ID < bets[j].ID
		}
		if newestFirst {
			return bets[i].CreatedAt.After(bets[j].CreatedAt)
		}
		return bets[i].CreatedAt.Before(bets[j].CreatedAt)
	})
	return bets
}

type depositRepository struct {
	u *unitOfWork
}

func (r *depositRepository) Create(_ context.Context, deposit *models.Deposit) error {
	key := depositKey(deposit.Currency, deposit.ExternalReference)
	if err := r.u.lock("deposit:" + key); err != nil {
		return err
	}
	if _, exists := r.u.deposit(key); exists {
		return fmt.Errorf("%w: %s", models.ErrDuplicateReference, deposit.ExternalReference)
	}
	if _, ok := r.u.account(deposit.AccountID); !ok {
		return fmt.Errorf("%w: %s", models.ErrAccountNotFound, deposit.AccountID)
	}

	if deposit.CreatedAt.IsZero() {
		deposit.CreatedAt = time.Now().UTC()
	}
	r.u.deposits[key] = *deposit
	return nil
}

func (r *depositRepository) GetByReference(_ context.Context, currency, reference string) (*models.Deposit, error) {
	d, ok := r.u.deposit(depositKey(currency, reference))
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *depositRepository) RecordConfirmations(_ context.Context, currency, reference string, count, required int) (*models.Deposit, models.DepositStatus, error) {
	key := depositKey(currency, reference)
	if err := r.u.lock("deposit:" + key); err != nil {
		return nil, "", err
	}
	d, ok := r.u.deposit(key)
	if !ok {
		return nil, "", nil
	}

	previous := d.Status
	if count > d.Confirmations {
		d.Confirmations = count
	}
	if d.Status == models.DepositStatusPending && d.Confirmations >= required {
		now := time.Now().UTC()
		d.Status = models.DepositStatusConfirmed
		d.ConfirmedAt = &now
	}
	r.u.deposits[key] = d
	return &d, previous, nil
}

func (r *depositRepository) TransitionStatus(_ context.Context, currency, reference string, from, to models.DepositStatus) (*models.Deposit, error) {
	key := depositKey(currency, reference)
	if err := r.u.lock("deposit:" + key); err != nil {
		return nil, err
	}
	d, ok := r.u.deposit(key)
	if !ok || d.Status != from {
		return nil, nil
	}

	now := time.Now().UTC()
	d.Status = to
	switch to {
	case models.DepositStatusConfirmed:
		d.ConfirmedAt = &now
	case models.DepositStatusCredited:
		d.CreditedAt = &now
	}
	r.u.deposits[key] = d
	return &d, nil
}

func (r *depositRepository) ListByAccount(_ context.Context, accountID string, limit int) ([]*models.Deposit, error) {
	deposits := r.filter(func(d *models.Deposit) bool { return d.AccountID == accountID }, true)
	return truncate(deposits, limit), nil
}

func (r *depositRepository) ListByStatus(_ context.Context, currency string, status models.DepositStatus, limit int) ([]*models.Deposit, error) {
	deposits := r.filter(func(d *models.Deposit) bool { return d.Currency == currency && d.Status == status }, false)
	return truncate(deposits, limit), nil
}

func (r *depositRepository) filter(match func(*models.Deposit) bool, newestFirst bool) []*models.Deposit {
	var deposits []*models.Deposit
	for _, d := range r.u.allDeposits() {
		if match(&d) {
			deposits = append(deposits, &d)
		}
	}
	sort.Slice(deposits, func(i, j int) bool {
		if deposits[i].CreatedAt.Equal(deposits[j].CreatedAt) {
			return deposits[i].ID < deposits[j].ID
		}
		if newestFirst {
			return deposits[i].CreatedAt.After(deposits[j].CreatedAt)
		}
		return deposits[i].CreatedAt.Before(deposits[j].CreatedAt)
	})
	return deposits
}

type balanceHistoryRepository struct {
	u *unitOfWork
}

func (r *balanceHistoryRepository) Record(_ context.Context, history *models.BalanceHistory) error {
	if !history.BalanceAfter.Sub(history.BalanceBefore).Equal(history.ChangeAmount) {
		return fmt.Errorf("balance history for %s does not add up: %s -> %s by %s",
			history.AccountID, history.BalanceBefore, history.BalanceAfter, history.ChangeAmount)
	}

	history.ID = r.u.store.historySeq.Add(1)
	history.CreatedAt = time.Now().UTC()
	r.u.history = append(r.u.history, *history)
	return nil
}

func (r *balanceHistoryRepository) GetByAccount(_ context.Context, accountID string, limit int) ([]*models.BalanceHistory, error) {
	var entries []*models.BalanceHistory
	for _, h := range r.u.allHistory() {
		if h.AccountID == accountID {
			entries = append(entries, &h)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID > entries[j].ID
	})
	return truncate(entries, limit), nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
