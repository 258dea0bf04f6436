package bot

import (
	"errors"
	"fmt"
	"strings"

	"aviator/bot/common"
	"aviator/engine"
	"aviator/models"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
)

const (
	colorWin     = 0x2ecc71
	colorLoss    = 0xe74c3c
	colorNeutral = 0x3498db
)

// accountFor maps a Discord user to the account it plays with
func accountFor(userID string, demo bool) string {
	if demo {
		return models.DemoAccountID(userID)
	}
	return userID
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", raw)
	}
	return amount, nil
}

// userMessage translates a game error into something a player can act on
func userMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidStake):
		return "Your stake must be more than zero."
	case errors.Is(err, models.ErrInsufficientBalance):
		return "You don't have enough balance for that bet."
	case errors.Is(err, models.ErrRoundNotAcceptingBets):
		return "The plane is already in the air. Wait for the next round."
	case errors.Is(err, models.ErrBetNotActive):
		return "Your bet has already been settled."
	case errors.Is(err, models.ErrRoundAlreadyCrashed):
		return "Too late, the round crashed."
	case errors.Is(err, models.ErrRoundNotFlying):
		return "The round hasn't taken off yet."
	case errors.Is(err, models.ErrInvalidMultiplier):
		return "Auto cash-out must be at least 1.00x."
	case errors.Is(err, models.ErrInvalidAmount):
		return "The deposit amount must be more than zero."
	case errors.Is(err, models.ErrInvalidReference):
		return "A transaction reference is required."
	case errors.Is(err, models.ErrDuplicateReference):
		return "That transaction reference was already submitted."
	default:
		return "Something went wrong. Please try again."
	}
}

func betPlacedMessage(bet *models.Bet, balance decimal.Decimal) string {
	msg := fmt.Sprintf("🛫 Bet of **%s** placed on the next round.", common.FormatAmount(bet.Stake))
	if bet.AutoCashOut.Valid {
		msg += fmt.Sprintf(" Auto cash-out at **%s**.", common.FormatMultiplier(bet.AutoCashOut.Decimal))
	}
	return msg + fmt.Sprintf(" Balance: **%s**", common.FormatAmount(balance))
}

func cashOutMessage(bet *models.Bet) string {
	return fmt.Sprintf("💰 Cashed out at **%s** for **%s**!",
		common.FormatMultiplier(bet.ExitMultiplier.Decimal), common.FormatAmount(bet.Payout))
}

func balanceMessage(name string, balance decimal.Decimal, demo bool) string {
	kind := "balance"
	if demo {
		kind = "demo balance"
	}
	return fmt.Sprintf("%s, your current %s: **%s**", name, kind, common.FormatAmount(balance))
}

func depositMessage(d *models.Deposit) string {
	return fmt.Sprintf("📥 Deposit of **%s %s** submitted (ref `%s`). It will be credited once confirmed.",
		common.FormatAmount(d.ClaimedAmount), d.Currency, d.ExternalReference)
}

func betLine(bet *models.Bet) string {
	switch bet.Status {
	case models.BetStatusCashedOut:
		return fmt.Sprintf("✅ %s → %s at %s", common.FormatAmount(bet.Stake), common.FormatAmount(bet.Payout), common.FormatMultiplier(bet.ExitMultiplier.Decimal))
	case models.BetStatusLost:
		return fmt.Sprintf("❌ %s lost", common.FormatAmount(bet.Stake))
	default:
		return fmt.Sprintf("⏳ %s in play", common.FormatAmount(bet.Stake))
	}
}

func historyEmbed(bets []*models.Bet, stats *models.PlayerStats) *discordgo.MessageEmbed {
	var lines []string
	for _, bet := range bets {
		lines = append(lines, betLine(bet))
	}
	description := "No bets yet."
	if len(lines) > 0 {
		description = strings.Join(lines, "\n")
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Your recent bets",
		Description: description,
		Color:       colorNeutral,
	}
	if stats != nil {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Games", Value: fmt.Sprintf("%d", stats.GamesPlayed), Inline: true},
			{Name: "Win rate", Value: fmt.Sprintf("%.0f%%", stats.WinRate*100), Inline: true},
			{Name: "Net", Value: common.FormatAmount(stats.NetProfit), Inline: true},
		}
		if stats.NetProfit.IsNegative() {
			embed.Color = colorLoss
		} else if stats.NetProfit.IsPositive() {
			embed.Color = colorWin
		}
	}
	return embed
}

func roundEmbed(snap engine.Snapshot, recent []*models.Round) *discordgo.MessageEmbed {
	var status string
	switch snap.State {
	case models.RoundStateWaiting:
		status = "🕒 Taking bets"
	case models.RoundStateFlying:
		status = fmt.Sprintf("✈️ Flying at **%s**", common.FormatMultiplier(snap.Multiplier))
	case models.RoundStateCrashed:
		status = fmt.Sprintf("💥 Crashed at **%s**", common.FormatMultiplier(snap.CrashPoint))
	default:
		status = "No round yet"
	}

	var points []string
	for _, r := range recent {
		points = append(points, common.FormatMultiplier(r.CrashPoint))
	}
	history := "None yet"
	if len(points) > 0 {
		history = strings.Join(points, " · ")
	}

	return &discordgo.MessageEmbed{
		Title:       "Current round",
		Description: status,
		Color:       colorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Recent crashes", Value: history},
		},
	}
}

func crashAnnouncement(crashPoint decimal.Decimal) string {
	return fmt.Sprintf("💥 The plane crashed at **%s**!", common.FormatMultiplier(crashPoint))
}
