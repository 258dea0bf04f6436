package events

import (
	"context"
	"sync"

	"aviator/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange    EventType = "balance_change"
	EventTypeAccountCreated   EventType = "account_created"
	EventTypeBetPlaced        EventType = "bet_placed"
	EventTypeBetSettled       EventType = "bet_settled"
	EventTypeRoundCrashed     EventType = "round_crashed"
	EventTypeDepositSubmitted EventType = "deposit_submitted"
	EventTypeDepositConfirmed EventType = "deposit_confirmed"
	EventTypeDepositCredited  EventType = "deposit_credited"
)

// AllTypes lists every event type, for subscribers that forward everything
var AllTypes = []EventType{
	EventTypeBalanceChange,
	EventTypeAccountCreated,
	EventTypeBetPlaced,
	EventTypeBetSettled,
	EventTypeRoundCrashed,
	EventTypeDepositSubmitted,
	EventTypeDepositConfirmed,
	EventTypeDepositCredited,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	AccountID       string                 `json:"accountId"`
	OldBalance      decimal.Decimal        `json:"oldBalance"`
	NewBalance      decimal.Decimal        `json:"newBalance"`
	TransactionType models.TransactionType `json:"transactionType"`
	ChangeAmount    decimal.Decimal        `json:"changeAmount"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// AccountCreatedEvent represents a new account receiving its starting balance
type AccountCreatedEvent struct {
	AccountID      string             `json:"accountId"`
	Kind           models.AccountKind `json:"kind"`
	InitialBalance decimal.Decimal    `json:"initialBalance"`
}

func (e AccountCreatedEvent) Type() EventType {
	return EventTypeAccountCreated
}

// BetPlacedEvent represents a stake debited for a round
type BetPlacedEvent struct {
	BetID       string              `json:"betId"`
	RoundID     string              `json:"roundId"`
	AccountID   string              `json:"accountId"`
	Stake       decimal.Decimal     `json:"stake"`
	AutoCashOut decimal.NullDecimal `json:"autoCashOut"`
}

func (e BetPlacedEvent) Type() EventType {
	return EventTypeBetPlaced
}

// BetSettledEvent represents a bet reaching a terminal status
type BetSettledEvent struct {
	BetID          string              `json:"betId"`
	RoundID        string              `json:"roundId"`
	AccountID      string              `json:"accountId"`
	Status         models.BetStatus    `json:"status"`
	Stake          decimal.Decimal     `json:"stake"`
	ExitMultiplier decimal.NullDecimal `json:"exitMultiplier"`
	Payout         decimal.Decimal     `json:"payout"`
}

func (e BetSettledEvent) Type() EventType {
	return EventTypeBetSettled
}

// RoundCrashedEvent is published once a round's losses are settled
type RoundCrashedEvent struct {
	RoundID    string          `json:"roundId"`
	CrashPoint decimal.Decimal `json:"crashPoint"`
	LostBets   int             `json:"lostBets"`
}

func (e RoundCrashedEvent) Type() EventType {
	return EventTypeRoundCrashed
}

// DepositEvent carries a deposit status transition
type DepositEvent struct {
	Kind              EventType            `json:"-"`
	DepositID         string               `json:"depositId"`
	AccountID         string               `json:"accountId"`
	Currency          string               `json:"currency"`
	ExternalReference string               `json:"externalReference"`
	Amount            decimal.Decimal      `json:"amount"`
	Confirmations     int                  `json:"confirmations"`
	Status            models.DepositStatus `json:"status"`
}

func (e DepositEvent) Type() EventType {
	return e.Kind
}

// NewDepositEvent builds the event for a deposit's current status
func NewDepositEvent(kind EventType, d *models.Deposit) DepositEvent {
	return DepositEvent{
		Kind:              kind,
		DepositID:         d.ID,
		AccountID:         d.AccountID,
		Currency:          d.Currency,
		ExternalReference: d.ExternalReference,
		Amount:            d.ClaimedAmount,
		Confirmations:     d.Confirmations,
		Status:            d.Status,
	}
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// SubscribeAll adds a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers on main event bus")

	// handlers run asynchronously so a slow consumer never blocks a commit
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until it commits.
type TransactionalBus struct {
	real    *Bus
	mu      sync.Mutex
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Flush emits pending events; called after a successful commit.
func (b *TransactionalBus) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if b.real == nil {
		return nil
	}

	// events outlive the transaction's context
	eventCtx := context.WithoutCancel(ctx)
	for _, ev := range pending {
		b.real.Emit(eventCtx, ev)
	}

	log.WithField("flushedCount", len(pending)).Debug("Flushed transactional bus")
	return nil
}

// Discard drops pending events; called after a rollback.
func (b *TransactionalBus) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}
