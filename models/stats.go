package models

import "github.com/shopspring/decimal"

// PlayerStats aggregates an account's settled bets
type PlayerStats struct {
	GamesPlayed  int             `json:"gamesPlayed"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	TotalWagered decimal.Decimal `json:"totalWagered"`
	TotalWon     decimal.Decimal `json:"totalWon"`
	NetProfit    decimal.Decimal `json:"netProfit"`
	WinRate      float64         `json:"winRate"`
	BestExit     decimal.Decimal `json:"bestExit"`
}

// Finalize derives NetProfit and WinRate from the counted totals
func (s *PlayerStats) Finalize() {
	s.NetProfit = s.TotalWon.Sub(s.TotalWagered)
	if s.GamesPlayed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.GamesPlayed)
	}
}

// StatsFromBets aggregates bets in memory. Active bets are ignored.
func StatsFromBets(bets []*Bet) *PlayerStats {
	stats := &PlayerStats{}
	for _, bet := range bets {
		if !bet.Status.IsTerminal() {
			continue
		}
		stats.GamesPlayed++
		stats.TotalWagered = stats.TotalWagered.Add(bet.Stake)
		stats.TotalWon = stats.TotalWon.Add(bet.Payout)

		if bet.Status == BetStatusCashedOut {
			stats.Wins++
			if bet.ExitMultiplier.Valid && bet.ExitMultiplier.Decimal.GreaterThan(stats.BestExit) {
				stats.BestExit = bet.ExitMultiplier.Decimal
			}
		} else {
			stats.Losses++
		}
	}
	stats.Finalize()
	return stats
}
