package observability

// Metric name prefixes
const (
	MetricPrefix = "aviator"
)

// Metric names
const (
	// Round metrics
	RoundsStartedTotal = MetricPrefix + ".rounds.started_total"
	RoundsCrashedTotal = MetricPrefix + ".rounds.crashed_total"
	RoundCrashPoint    = MetricPrefix + ".rounds.crash_point"
	TickStallsTotal    = MetricPrefix + ".rounds.tick_stalls_total"
	TickStallLag       = MetricPrefix + ".rounds.tick_stall_lag_ms"

	// Bet metrics
	BetsPlacedTotal  = MetricPrefix + ".bets.placed_total"
	BetsSettledTotal = MetricPrefix + ".bets.settled_total"
	BetsActive       = MetricPrefix + ".bets.active"
	BetPayoutTotal   = MetricPrefix + ".bets.payout_total"

	// Deposit metrics
	DepositsTotal = MetricPrefix + ".deposits.transitions_total"

	// Balance metrics
	BalanceTransactionsTotal = MetricPrefix + ".balance.transactions_total"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelStatus    = "status"
	LabelType      = "type"
	LabelEventType = "event_type"
	LabelSubject   = "subject"
	LabelOutcome   = "outcome"
)

// Publish outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
