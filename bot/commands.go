package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var demoOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionBoolean,
	Name:        "demo",
	Description: "Use your practice balance",
	Required:    false,
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "bet",
			Description: "Place a bet on the next round",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "amount",
					Description: "Stake, e.g. 25 or 12.50",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "auto",
					Description: "Cash out automatically at this multiplier, e.g. 2.00",
					Required:    false,
				},
				demoOption,
			},
		},
		{
			Name:        "cashout",
			Description: "Cash out your bet in the current round",
			Options:     []*discordgo.ApplicationCommandOption{demoOption},
		},
		{
			Name:        "balance",
			Description: "Check your current balance",
			Options:     []*discordgo.ApplicationCommandOption{demoOption},
		},
		{
			Name:        "history",
			Description: "Show your recent bets and stats",
			Options:     []*discordgo.ApplicationCommandOption{demoOption},
		},
		{
			Name:        "deposit",
			Description: "Submit a deposit claim for confirmation",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "amount",
					Description: "Amount sent",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reference",
					Description: "Transaction reference",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "address",
					Description: "Address the funds were sent to",
					Required:    false,
				},
			},
		},
		{
			Name:        "round",
			Description: "Show the current round and recent crash points",
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	for _, cmd := range commandDefinitions() {
		_, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.config.GuildID, cmd)
		if err != nil {
			return fmt.Errorf("cannot create '%s' command: %w", cmd.Name, err)
		}
	}
	return nil
}

func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "bet":
		b.handleBet(s, i)
	case "cashout":
		b.handleCashOut(s, i)
	case "balance":
		b.handleBalance(s, i)
	case "history":
		b.handleHistory(s, i)
	case "deposit":
		b.handleDeposit(s, i)
	case "round":
		b.handleRound(s, i)
	}
}

// commandOptions indexes the options of a slash command by name
type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(i *discordgo.InteractionCreate) commandOptions {
	opts := make(commandOptions)
	for _, opt := range i.ApplicationCommandData().Options {
		opts[opt.Name] = opt
	}
	return opts
}

func (o commandOptions) str(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o commandOptions) boolean(name string) bool {
	if opt, ok := o[name]; ok {
		return opt.BoolValue()
	}
	return false
}
