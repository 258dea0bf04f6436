package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"aviator/engine"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CorePublisher is the fire-and-forget publish side of a broker
type CorePublisher interface {
	PublishCore(subject string, data []byte) error
}

// RoundFeedPublisher mirrors round notifications onto core NATS subjects.
// Live ticks are not retained, so JetStream is not involved.
type RoundFeedPublisher struct {
	publisher CorePublisher
}

// NewRoundFeedPublisher creates a feed publisher
func NewRoundFeedPublisher(publisher CorePublisher) *RoundFeedPublisher {
	return &RoundFeedPublisher{publisher: publisher}
}

func (p *RoundFeedPublisher) OnRoundStart(_ context.Context, roundID string) {
	p.send(engine.RoundEvent{Kind: engine.RoundEventStart, RoundID: roundID, Multiplier: decimal.NewFromInt(1)})
}

func (p *RoundFeedPublisher) OnTick(_ context.Context, roundID string, multiplier decimal.Decimal) {
	p.send(engine.RoundEvent{Kind: engine.RoundEventTick, RoundID: roundID, Multiplier: multiplier})
}

func (p *RoundFeedPublisher) OnCrash(_ context.Context, roundID string, crashPoint decimal.Decimal) {
	p.send(engine.RoundEvent{Kind: engine.RoundEventCrash, RoundID: roundID, Multiplier: crashPoint})
}

func (p *RoundFeedPublisher) send(ev engine.RoundEvent) {
	ev.At = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Error("Failed to encode round feed event")
		return
	}

	subject := RoundFeedSubject(string(ev.Kind))
	if err := p.publisher.PublishCore(subject, data); err != nil {
		// ticks are frequent; only lifecycle failures are worth a warning
		entry := log.WithFields(log.Fields{
			"subject": subject,
			"roundID": ev.RoundID,
			"error":   err,
		})
		if ev.Kind == engine.RoundEventTick {
			entry.Debug("Failed to publish round tick")
		} else {
			entry.Warn("Failed to publish round feed event")
		}
	}
}
