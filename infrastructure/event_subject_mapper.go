package infrastructure

import (
	"fmt"

	"aviator/events"
)

// Subjects outside the domain event stream
const (
	// DepositConfirmationsSubject carries confirmation counts from the external verifier
	DepositConfirmationsSubject = "deposits.confirmations"

	// RoundFeedPrefix prefixes the live round feed: rounds.live.start, .tick, .crash
	RoundFeedPrefix = "rounds.live"
)

// Stream names
const (
	DomainEventStream  = "aviator_events"
	ConfirmationStream = "deposit_confirmations"
)

var subjectsByType = map[events.EventType]string{
	events.EventTypeBalanceChange:    "accounts.balance_changed",
	events.EventTypeAccountCreated:   "accounts.created",
	events.EventTypeBetPlaced:        "bets.placed",
	events.EventTypeBetSettled:       "bets.settled",
	events.EventTypeRoundCrashed:     "rounds.crashed",
	events.EventTypeDepositSubmitted: "deposits.submitted",
	events.EventTypeDepositConfirmed: "deposits.confirmed",
	events.EventTypeDepositCredited:  "deposits.credited",
}

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	if subject, ok := subjectsByType[event.Type()]; ok {
		return subject
	}
	return fmt.Sprintf("unknown.%s", event.Type())
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	for eventType, s := range subjectsByType {
		if s == subject {
			return eventType
		}
	}
	return events.EventType(subject)
}

// GetAllSubjects returns every subject the domain event stream carries
func (m *EventSubjectMapper) GetAllSubjects() []string {
	subjects := make([]string, 0, len(events.AllTypes))
	for _, eventType := range events.AllTypes {
		subjects = append(subjects, subjectsByType[eventType])
	}
	return subjects
}

// RoundFeedSubject returns the live feed subject for a round event kind
func RoundFeedSubject(kind string) string {
	return RoundFeedPrefix + "." + kind
}
