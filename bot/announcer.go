package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ChannelMessenger sends a message to a Discord channel
type ChannelMessenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// CrashAnnouncer posts every crash point to a channel. Sends happen off the
// engine goroutine so a slow Discord API never delays the next tick.
type CrashAnnouncer struct {
	messenger ChannelMessenger
	channelID string
	send      func(func())
}

// NewCrashAnnouncer creates an announcer for channelID
func NewCrashAnnouncer(messenger ChannelMessenger, channelID string) *CrashAnnouncer {
	return &CrashAnnouncer{
		messenger: messenger,
		channelID: channelID,
		send:      func(fn func()) { go fn() },
	}
}

func (a *CrashAnnouncer) OnRoundStart(context.Context, string) {}

func (a *CrashAnnouncer) OnTick(context.Context, string, decimal.Decimal) {}

func (a *CrashAnnouncer) OnCrash(_ context.Context, roundID string, crashPoint decimal.Decimal) {
	content := crashAnnouncement(crashPoint)
	a.send(func() {
		if _, err := a.messenger.ChannelMessageSend(a.channelID, content); err != nil {
			log.WithFields(log.Fields{
				"roundID":   roundID,
				"channelID": a.channelID,
				"error":     err,
			}).Warn("Failed to announce crash")
		}
	})
}
