package bot

import (
	"fmt"

	"aviator/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Config holds bot configuration
type Config struct {
	Token          string
	GuildID        string
	CrashChannelID string
}

type Bot struct {
	config      Config
	session     *discordgo.Session
	game        service.GameService
	unsubscribe func()
}

func New(config Config, game service.GameService) (*Bot, error) {
	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	bot := &Bot{
		config:  config,
		session: dg,
		game:    game,
	}

	// Register slash command handlers
	dg.AddHandler(bot.handleCommands)

	// Open websocket connection
	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	// Register slash commands with Discord
	if err := bot.registerCommands(); err != nil {
		dg.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	if config.CrashChannelID != "" {
		bot.unsubscribe = game.Subscribe(NewCrashAnnouncer(dg, config.CrashChannelID))
		log.WithField("channelID", config.CrashChannelID).Info("Crash announcements enabled")
	}

	return bot, nil
}

func (b *Bot) Close() error {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	return b.session.Close()
}
