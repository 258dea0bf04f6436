package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aviator/engine"
	"aviator/models"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountFor(t *testing.T) {
	assert.Equal(t, "123", accountFor("123", false))
	assert.Equal(t, models.DemoAccountID("123"), accountFor("123", true))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "25", want: "25"},
		{raw: " 12.50 ", want: "12.5"},
		{raw: "1,000.25", want: "1000.25"},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseAmount(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestUserMessage(t *testing.T) {
	wrapped := fmt.Errorf("place bet: %w", models.ErrInsufficientBalance)
	assert.Equal(t, "You don't have enough balance for that bet.", userMessage(wrapped))
	assert.Equal(t, "The plane is already in the air. Wait for the next round.", userMessage(models.ErrRoundNotAcceptingBets))
	assert.Equal(t, "Something went wrong. Please try again.", userMessage(errors.New("connection reset")))
}

func TestBetPlacedMessage(t *testing.T) {
	bet := &models.Bet{
		Stake:       decimal.RequireFromString("25"),
		AutoCashOut: decimal.NewNullDecimal(decimal.RequireFromString("2")),
	}

	msg := betPlacedMessage(bet, decimal.RequireFromString("1475"))

	assert.Contains(t, msg, "**25.00**")
	assert.Contains(t, msg, "Auto cash-out at **2.00x**")
	assert.Contains(t, msg, "Balance: **1,475.00**")
}

func TestCashOutMessage(t *testing.T) {
	bet := &models.Bet{
		Stake:          decimal.RequireFromString("10"),
		Status:         models.BetStatusCashedOut,
		ExitMultiplier: decimal.NewNullDecimal(decimal.RequireFromString("1.5")),
		Payout:         decimal.RequireFromString("15"),
	}
	assert.Equal(t, "💰 Cashed out at **1.50x** for **15.00**!", cashOutMessage(bet))
}

func TestHistoryEmbed(t *testing.T) {
	t.Run("no bets", func(t *testing.T) {
		embed := historyEmbed(nil, nil)
		assert.Equal(t, "No bets yet.", embed.Description)
		assert.Empty(t, embed.Fields)
	})

	t.Run("mixed results", func(t *testing.T) {
		bets := []*models.Bet{
			{
				Stake:          decimal.RequireFromString("10"),
				Status:         models.BetStatusCashedOut,
				ExitMultiplier: decimal.NewNullDecimal(decimal.RequireFromString("3")),
				Payout:         decimal.RequireFromString("30"),
			},
			{Stake: decimal.RequireFromString("5"), Status: models.BetStatusLost},
		}
		stats := models.StatsFromBets(bets)

		embed := historyEmbed(bets, stats)

		assert.Equal(t, "✅ 10.00 → 30.00 at 3.00x\n❌ 5.00 lost", embed.Description)
		require.Len(t, embed.Fields, 3)
		assert.Equal(t, "2", embed.Fields[0].Value)
		assert.Equal(t, "50%", embed.Fields[1].Value)
		assert.Equal(t, "15.00", embed.Fields[2].Value)
		assert.Equal(t, colorWin, embed.Color)
	})
}

func TestRoundEmbed(t *testing.T) {
	recent := []*models.Round{
		{CrashPoint: decimal.RequireFromString("1.23")},
		{CrashPoint: decimal.RequireFromString("4.5")},
	}

	flying := roundEmbed(engine.Snapshot{
		State:      models.RoundStateFlying,
		Multiplier: decimal.RequireFromString("1.7"),
	}, recent)
	assert.Equal(t, "✈️ Flying at **1.70x**", flying.Description)
	assert.Equal(t, "1.23x · 4.50x", flying.Fields[0].Value)

	empty := roundEmbed(engine.Snapshot{}, nil)
	assert.Equal(t, "No round yet", empty.Description)
	assert.Equal(t, "None yet", empty.Fields[0].Value)
}

type fakeMessenger struct {
	mu       sync.Mutex
	channels []string
	contents []string
	err      error
}

func (f *fakeMessenger) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channelID)
	f.contents = append(f.contents, content)
	return &discordgo.Message{Content: content}, f.err
}

func (f *fakeMessenger) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contents...)
}

func TestCrashAnnouncer(t *testing.T) {
	ctx := context.Background()

	t.Run("announces only crashes", func(t *testing.T) {
		messenger := &fakeMessenger{}
		announcer := NewCrashAnnouncer(messenger, "chan-1")

		announcer.OnRoundStart(ctx, "round-1")
		announcer.OnTick(ctx, "round-1", decimal.RequireFromString("1.01"))
		announcer.OnCrash(ctx, "round-1", decimal.RequireFromString("2.37"))

		assert.Eventually(t, func() bool { return len(messenger.sent()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, "💥 The plane crashed at **2.37x**!", messenger.sent()[0])
		assert.Equal(t, []string{"chan-1"}, messenger.channels)
	})

	t.Run("send failure does not panic", func(t *testing.T) {
		messenger := &fakeMessenger{err: errors.New("rate limited")}
		announcer := NewCrashAnnouncer(messenger, "chan-1")
		announcer.send = func(fn func()) { fn() }

		assert.NotPanics(t, func() {
			announcer.OnCrash(ctx, "round-2", decimal.RequireFromString("1"))
		})
		assert.Len(t, messenger.sent(), 1)
	})
}

func TestCommandDefinitions(t *testing.T) {
	names := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range commandDefinitions() {
		names[cmd.Name] = cmd
	}

	for _, name := range []string{"bet", "cashout", "balance", "history", "deposit", "round"} {
		assert.Contains(t, names, name)
	}
	require.NotEmpty(t, names["bet"].Options)
	assert.Equal(t, "amount", names["bet"].Options[0].Name)
	assert.True(t, names["bet"].Options[0].Required)
}
