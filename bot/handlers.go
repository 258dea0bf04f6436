package bot

import (
	"context"
	"fmt"
	"strings"

	"aviator/bot/common"
	"aviator/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const (
	historyLimit = 10
	recentRounds = 10
)

// player resolves the interaction's account, opening it on first use
func (b *Bot) player(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, demo bool) (string, bool) {
	userID := common.InteractionUserID(i)
	if userID == "" {
		common.RespondWithError(s, i, "Unable to process request. Please try again.")
		return "", false
	}

	accountID := accountFor(userID, demo)
	if _, err := b.game.EnsureAccount(ctx, accountID); err != nil {
		log.WithFields(log.Fields{
			"accountID": accountID,
			"error":     err,
		}).Error("Error opening account")
		common.RespondWithError(s, i, "Unable to load your account. Please try again.")
		return "", false
	}
	return accountID, true
}

func (b *Bot) handleBet(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	opts := optionsOf(i)

	stake, err := parseAmount(opts.str("amount"))
	if err != nil {
		common.RespondWithError(s, i, err.Error())
		return
	}

	var betOpts []service.BetOption
	if raw := strings.TrimSpace(opts.str("auto")); raw != "" {
		target, err := parseAmount(raw)
		if err != nil {
			common.RespondWithError(s, i, err.Error())
			return
		}
		betOpts = append(betOpts, service.WithAutoCashOut(target))
	}

	accountID, ok := b.player(ctx, s, i, opts.boolean("demo"))
	if !ok {
		return
	}

	bet, err := b.game.PlaceBet(ctx, accountID, stake, betOpts...)
	if err != nil {
		b.respondWithGameError(s, i, "place bet", accountID, err)
		return
	}

	balance, err := b.game.GetBalance(ctx, accountID)
	if err != nil {
		log.WithError(err).Warn("Error reading balance after bet")
	}
	common.RespondWithMessage(s, i, betPlacedMessage(bet, balance), true)
}

func (b *Bot) handleCashOut(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	accountID, ok := b.player(ctx, s, i, optionsOf(i).boolean("demo"))
	if !ok {
		return
	}

	bet, err := b.game.ActiveBet(ctx, accountID)
	if err != nil {
		b.respondWithGameError(s, i, "find active bet", accountID, err)
		return
	}
	if bet == nil {
		common.RespondWithError(s, i, "You have no bet in the current round.")
		return
	}

	settled, err := b.game.RequestCashOut(ctx, bet.ID)
	if err != nil {
		b.respondWithGameError(s, i, "cash out", accountID, err)
		return
	}
	common.RespondWithMessage(s, i, cashOutMessage(settled), false)
}

func (b *Bot) handleBalance(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	demo := optionsOf(i).boolean("demo")

	accountID, ok := b.player(ctx, s, i, demo)
	if !ok {
		return
	}

	balance, err := b.game.GetBalance(ctx, accountID)
	if err != nil {
		b.respondWithGameError(s, i, "get balance", accountID, err)
		return
	}

	common.RespondWithMessage(s, i, balanceMessage(displayName(i), balance, demo), false)
}

func (b *Bot) handleHistory(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	accountID, ok := b.player(ctx, s, i, optionsOf(i).boolean("demo"))
	if !ok {
		return
	}

	bets, err := b.game.GetBetHistory(ctx, accountID, historyLimit)
	if err != nil {
		b.respondWithGameError(s, i, "get bet history", accountID, err)
		return
	}
	stats, err := b.game.GetStats(ctx, accountID)
	if err != nil {
		log.WithError(err).Warn("Error computing stats for history")
	}

	common.RespondWithEmbed(s, i, historyEmbed(bets, stats), true)
}

func (b *Bot) handleDeposit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	opts := optionsOf(i)

	amount, err := parseAmount(opts.str("amount"))
	if err != nil {
		common.RespondWithError(s, i, err.Error())
		return
	}

	accountID, ok := b.player(ctx, s, i, false)
	if !ok {
		return
	}

	var depositOpts []service.DepositOption
	if address := opts.str("address"); address != "" {
		depositOpts = append(depositOpts, service.WithAddress(address))
	}

	deposit, err := b.game.SubmitDeposit(ctx, accountID, amount, opts.str("reference"), depositOpts...)
	if err != nil {
		b.respondWithGameError(s, i, "submit deposit", accountID, err)
		return
	}
	common.RespondWithMessage(s, i, depositMessage(deposit), true)
}

func (b *Bot) handleRound(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	recent, err := b.game.RecentRounds(ctx, recentRounds)
	if err != nil {
		log.WithError(err).Warn("Error loading recent rounds")
	}
	common.RespondWithEmbed(s, i, roundEmbed(b.game.CurrentRound(), recent), false)
}

func (b *Bot) respondWithGameError(s *discordgo.Session, i *discordgo.InteractionCreate, action, accountID string, err error) {
	msg := userMessage(err)
	entry := log.WithFields(log.Fields{
		"action":    action,
		"accountID": accountID,
		"error":     err,
	})
	if msg == userMessage(nil) {
		entry.Error("Game request failed")
	} else {
		entry.Debug("Game request rejected")
	}
	common.RespondWithError(s, i, msg)
}

func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		if i.Member.User != nil {
			return i.Member.User.Username
		}
	}
	if i.User != nil {
		return i.User.Username
	}
	return fmt.Sprintf("<@%s>", common.InteractionUserID(i))
}
