package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aviator/models"
	"aviator/service"

	log "github.com/sirupsen/logrus"
)

// Subscriber registers durable handlers on a subject
type Subscriber interface {
	Subscribe(subject string, handler func([]byte) error) error
}

// ConfirmationMessage is what the external verifier reports for a deposit
type ConfirmationMessage struct {
	Reference     string `json:"reference"`
	Confirmations int    `json:"confirmations"`
}

// DepositConfirmationConsumer feeds confirmation reports into the game.
// Messages that can never succeed are acknowledged and dropped so they
// are not redelivered; transient failures are returned for a nak.
type DepositConfirmationConsumer struct {
	game service.GameService
}

// NewDepositConfirmationConsumer creates a consumer
func NewDepositConfirmationConsumer(game service.GameService) *DepositConfirmationConsumer {
	return &DepositConfirmationConsumer{game: game}
}

// Start subscribes the consumer on the confirmations subject
func (c *DepositConfirmationConsumer) Start(ctx context.Context, subscriber Subscriber) error {
	return subscriber.Subscribe(DepositConfirmationsSubject, func(data []byte) error {
		return c.Handle(ctx, data)
	})
}

// Handle processes one confirmation message
func (c *DepositConfirmationConsumer) Handle(ctx context.Context, data []byte) error {
	var msg ConfirmationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).Warn("Dropping malformed deposit confirmation")
		return nil
	}
	msg.Reference = strings.TrimSpace(msg.Reference)
	if msg.Reference == "" || msg.Confirmations < 0 {
		log.WithFields(log.Fields{
			"reference":     msg.Reference,
			"confirmations": msg.Confirmations,
		}).Warn("Dropping invalid deposit confirmation")
		return nil
	}

	deposit, err := c.game.ConfirmDeposit(ctx, msg.Reference, msg.Confirmations)
	switch {
	case errors.Is(err, models.ErrUnknownReference), errors.Is(err, models.ErrInvalidReference):
		log.WithField("reference", msg.Reference).Warn("Confirmation for unknown deposit reference")
		return nil
	case err != nil:
		return fmt.Errorf("failed to confirm deposit %s: %w", msg.Reference, err)
	}

	log.WithFields(log.Fields{
		"reference":     msg.Reference,
		"confirmations": deposit.Confirmations,
		"status":        deposit.Status,
	}).Info("Processed deposit confirmation")
	return nil
}
