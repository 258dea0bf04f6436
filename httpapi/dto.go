package httpapi

import (
	"time"

	"aviator/engine"
	"aviator/models"

	"github.com/shopspring/decimal"
)

type PlaceBetRequest struct {
	Stake       decimal.Decimal     `json:"stake"`
	AutoCashOut decimal.NullDecimal `json:"autoCashOut"` // optional target multiplier
}

type SubmitDepositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Address   string          `json:"address,omitempty"`
}

type ConfirmDepositRequest struct {
	Confirmations int `json:"confirmations"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type RoundResponse struct {
	RoundID    string              `json:"roundId"`
	State      models.RoundState   `json:"state"`
	Multiplier decimal.Decimal     `json:"multiplier"`
	StartedAt  *time.Time          `json:"startedAt,omitempty"`
	CrashPoint decimal.NullDecimal `json:"crashPoint"` // null until the round has crashed
}

type CrashedRoundResponse struct {
	RoundID    string          `json:"roundId"`
	CrashPoint decimal.Decimal `json:"crashPoint"`
	CrashedAt  *time.Time      `json:"crashedAt,omitempty"`
}

type BetResponse struct {
	ID             string              `json:"id"`
	RoundID        string              `json:"roundId"`
	AccountID      string              `json:"accountId"`
	Stake          decimal.Decimal     `json:"stake"`
	Status         models.BetStatus    `json:"status"`
	ExitMultiplier decimal.NullDecimal `json:"exitMultiplier"`
	Payout         decimal.Decimal     `json:"payout"`
	AutoCashOut    decimal.NullDecimal `json:"autoCashOut"`
	CreatedAt      time.Time           `json:"createdAt"`
	SettledAt      *time.Time          `json:"settledAt,omitempty"`
}

type AccountResponse struct {
	ID      string             `json:"id"`
	Kind    models.AccountKind `json:"kind"`
	Balance decimal.Decimal    `json:"balance"`
}

type BalanceResponse struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
}

type BalanceHistoryResponse struct {
	BalanceBefore   decimal.Decimal        `json:"balanceBefore"`
	BalanceAfter    decimal.Decimal        `json:"balanceAfter"`
	ChangeAmount    decimal.Decimal        `json:"changeAmount"`
	TransactionType models.TransactionType `json:"transactionType"`
	RelatedID       *string                `json:"relatedId,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}

type DepositResponse struct {
	ID                string               `json:"id"`
	AccountID         string               `json:"accountId"`
	Currency          string               `json:"currency"`
	Address           string               `json:"address,omitempty"`
	Amount            decimal.Decimal      `json:"amount"`
	ExternalReference string               `json:"reference"`
	Confirmations     int                  `json:"confirmations"`
	Status            models.DepositStatus `json:"status"`
	CreatedAt         time.Time            `json:"createdAt"`
	ConfirmedAt       *time.Time           `json:"confirmedAt,omitempty"`
	CreditedAt        *time.Time           `json:"creditedAt,omitempty"`
}

func toRoundResponse(s engine.Snapshot) RoundResponse {
	resp := RoundResponse{
		RoundID:    s.RoundID,
		State:      s.State,
		Multiplier: s.Multiplier,
		StartedAt:  s.StartedAt,
	}
	if s.State == models.RoundStateCrashed {
		resp.CrashPoint = decimal.NewNullDecimal(s.CrashPoint)
	}
	return resp
}

func toCrashedRounds(rounds []*models.Round) []CrashedRoundResponse {
	out := make([]CrashedRoundResponse, 0, len(rounds))
	for _, r := range rounds {
		// never leak the crash point of a round still in play
		if r.State != models.RoundStateCrashed {
			continue
		}
		out = append(out, CrashedRoundResponse{
			RoundID:    r.ID,
			CrashPoint: r.CrashPoint,
			CrashedAt:  r.CrashedAt,
		})
	}
	return out
}

func toBetResponse(b *models.Bet) BetResponse {
	return BetResponse{
		ID:             b.ID,
		RoundID:        b.RoundID,
		AccountID:      b.AccountID,
		Stake:          b.Stake,
		Status:         b.Status,
		ExitMultiplier: b.ExitMultiplier,
		Payout:         b.Payout,
		AutoCashOut:    b.AutoCashOut,
		CreatedAt:      b.CreatedAt,
		SettledAt:      b.SettledAt,
	}
}

func toBetResponses(bets []*models.Bet) []BetResponse {
	out := make([]BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, toBetResponse(b))
	}
	return out
}

func toHistoryResponses(entries []*models.BalanceHistory) []BalanceHistoryResponse {
	out := make([]BalanceHistoryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, BalanceHistoryResponse{
			BalanceBefore:   h.BalanceBefore,
			BalanceAfter:    h.BalanceAfter,
			ChangeAmount:    h.ChangeAmount,
			TransactionType: h.TransactionType,
			RelatedID:       h.RelatedID,
			CreatedAt:       h.CreatedAt,
		})
	}
	return out
}

func toDepositResponse(d *models.Deposit) DepositResponse {
	return DepositResponse{
		ID:                d.ID,
		AccountID:         d.AccountID,
		Currency:          d.Currency,
		Address:           d.Address,
		Amount:            d.ClaimedAmount,
		ExternalReference: d.ExternalReference,
		Confirmations:     d.Confirmations,
		Status:            d.Status,
		CreatedAt:         d.CreatedAt,
		ConfirmedAt:       d.ConfirmedAt,
		CreditedAt:        d.CreditedAt,
	}
}

func toDepositResponses(deposits []*models.Deposit) []DepositResponse {
	out := make([]DepositResponse, 0, len(deposits))
	for _, d := range deposits {
		out = append(out, toDepositResponse(d))
	}
	return out
}
