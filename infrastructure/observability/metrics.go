package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aviator/config"
	"aviator/events"
	"aviator/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages OpenTelemetry metrics for the game
type MetricsProvider struct {
	config        *config.Config
	reader        sdkmetric.Reader
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	roundsStartedCounter         metric.Int64Counter
	roundsCrashedCounter         metric.Int64Counter
	crashPointHist               metric.Float64Histogram
	tickStallsCounter            metric.Int64Counter
	tickStallLagHist             metric.Float64Histogram
	betsPlacedCounter            metric.Int64Counter
	betsSettledCounter           metric.Int64Counter
	betsActiveGauge              metric.Int64UpDownCounter
	betPayoutCounter             metric.Float64Counter
	depositsCounter              metric.Int64Counter
	balanceTransactionsCounter   metric.Int64Counter
	natsMessagesPublishedCounter metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// NewMetricsProviderWithReader creates a provider that reports to reader
// instead of a configured exporter
func NewMetricsProviderWithReader(cfg *config.Config, reader sdkmetric.Reader) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
		reader: reader,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled && mp.reader == nil {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	reader := mp.reader
	if reader == nil {
		var exporter sdkmetric.Exporter
		switch mp.config.OTelExporterType {
		case "console":
			exporter, err = stdoutmetric.New()
			if err != nil {
				return fmt.Errorf("failed to create console exporter: %w", err)
			}
			log.Info("Using console metric exporter")

		case "otlp":
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			exporter, err = otlpmetricgrpc.New(dialCtx,
				otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			if err != nil {
				return fmt.Errorf("failed to create OTLP exporter: %w", err)
			}
			log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

		case "none":
			log.Info("Metrics export disabled (exporter_type='none')")
			mp.initialized = true
			return nil

		default:
			return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
		}

		reader = sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
		)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	// A caller-supplied reader is for inspection, so the global provider is left alone
	if mp.reader == nil {
		otel.SetMeterProvider(mp.meterProvider)
	}

	mp.meter = mp.meterProvider.Meter("aviator")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	if mp.roundsStartedCounter, err = mp.meter.Int64Counter(
		RoundsStartedTotal,
		metric.WithDescription("Total number of rounds that took off"),
	); err != nil {
		return err
	}

	if mp.roundsCrashedCounter, err = mp.meter.Int64Counter(
		RoundsCrashedTotal,
		metric.WithDescription("Total number of rounds that crashed"),
	); err != nil {
		return err
	}

	if mp.crashPointHist, err = mp.meter.Float64Histogram(
		RoundCrashPoint,
		metric.WithDescription("Distribution of crash points"),
		metric.WithExplicitBucketBoundaries(1, 1.5, 2, 3, 5, 10, 25, 100, 1000),
	); err != nil {
		return err
	}

	if mp.tickStallsCounter, err = mp.meter.Int64Counter(
		TickStallsTotal,
		metric.WithDescription("Total number of late round clock ticks"),
	); err != nil {
		return err
	}

	if mp.tickStallLagHist, err = mp.meter.Float64Histogram(
		TickStallLag,
		metric.WithDescription("How late stalled ticks were"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if mp.betsPlacedCounter, err = mp.meter.Int64Counter(
		BetsPlacedTotal,
		metric.WithDescription("Total number of bets placed"),
	); err != nil {
		return err
	}

	if mp.betsSettledCounter, err = mp.meter.Int64Counter(
		BetsSettledTotal,
		metric.WithDescription("Total number of bets settled, by terminal status"),
	); err != nil {
		return err
	}

	if mp.betsActiveGauge, err = mp.meter.Int64UpDownCounter(
		BetsActive,
		metric.WithDescription("Number of bets awaiting settlement"),
	); err != nil {
		return err
	}

	if mp.betPayoutCounter, err = mp.meter.Float64Counter(
		BetPayoutTotal,
		metric.WithDescription("Total amount paid out to players"),
	); err != nil {
		return err
	}

	if mp.depositsCounter, err = mp.meter.Int64Counter(
		DepositsTotal,
		metric.WithDescription("Total number of deposit status transitions"),
	); err != nil {
		return err
	}

	if mp.balanceTransactionsCounter, err = mp.meter.Int64Counter(
		BalanceTransactionsTotal,
		metric.WithDescription("Total number of balance changes"),
	); err != nil {
		return err
	}

	if mp.natsMessagesPublishedCounter, err = mp.meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
	); err != nil {
		return err
	}

	return nil
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider == nil {
		return nil
	}

	if err := mp.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}

	mp.meterProvider = nil
	mp.meter = nil
	mp.initialized = false
	return nil
}

func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

// RecordRoundStarted counts a round taking off
func (mp *MetricsProvider) RecordRoundStarted(ctx context.Context) {
	if !mp.isEnabled() {
		return
	}
	mp.roundsStartedCounter.Add(ctx, 1)
}

// RecordRoundCrashed counts a crash and records its crash point
func (mp *MetricsProvider) RecordRoundCrashed(ctx context.Context, crashPoint decimal.Decimal) {
	if !mp.isEnabled() {
		return
	}
	mp.roundsCrashedCounter.Add(ctx, 1)
	mp.crashPointHist.Record(ctx, crashPoint.InexactFloat64())
}

// RecordTickStall counts a clock tick that arrived late by lag
func (mp *MetricsProvider) RecordTickStall(ctx context.Context, lag time.Duration) {
	if !mp.isEnabled() {
		return
	}
	mp.tickStallsCounter.Add(ctx, 1)
	mp.tickStallLagHist.Record(ctx, float64(lag)/float64(time.Millisecond))
}

// RecordBetPlaced counts a newly placed bet
func (mp *MetricsProvider) RecordBetPlaced(ctx context.Context) {
	if !mp.isEnabled() {
		return
	}
	mp.betsPlacedCounter.Add(ctx, 1)
	mp.betsActiveGauge.Add(ctx, 1)
}

// RecordBetSettled counts a settled bet and its payout
func (mp *MetricsProvider) RecordBetSettled(ctx context.Context, status models.BetStatus, payout decimal.Decimal) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String(LabelStatus, string(status)))
	mp.betsSettledCounter.Add(ctx, 1, attrs)
	mp.betsActiveGauge.Add(ctx, -1)
	if payout.IsPositive() {
		mp.betPayoutCounter.Add(ctx, payout.InexactFloat64(), attrs)
	}
}

// RecordDepositTransition counts a deposit reaching status
func (mp *MetricsProvider) RecordDepositTransition(ctx context.Context, status models.DepositStatus) {
	if !mp.isEnabled() {
		return
	}
	mp.depositsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelStatus, string(status))))
}

// RecordBalanceTransaction counts a balance change by transaction type
func (mp *MetricsProvider) RecordBalanceTransaction(ctx context.Context, transactionType models.TransactionType) {
	if !mp.isEnabled() {
		return
	}
	mp.balanceTransactionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelType, string(transactionType))))
}

// RecordNATSPublished counts a publish attempt on subject
func (mp *MetricsProvider) RecordNATSPublished(ctx context.Context, subject string, err error) {
	if !mp.isEnabled() {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	mp.natsMessagesPublishedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(LabelSubject, subject),
		attribute.String(LabelOutcome, outcome),
	))
}

// AttachToBus records ledger and deposit metrics from committed domain events
func (mp *MetricsProvider) AttachToBus(bus *events.Bus) {
	bus.Subscribe(events.EventTypeBetPlaced, func(ctx context.Context, _ events.Event) {
		mp.RecordBetPlaced(ctx)
	})
	bus.Subscribe(events.EventTypeBetSettled, func(ctx context.Context, e events.Event) {
		if settled, ok := e.(events.BetSettledEvent); ok {
			mp.RecordBetSettled(ctx, settled.Status, settled.Payout)
		}
	})
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, e events.Event) {
		if change, ok := e.(events.BalanceChangeEvent); ok {
			mp.RecordBalanceTransaction(ctx, change.TransactionType)
		}
	})
	for _, t := range []events.EventType{events.EventTypeDepositSubmitted, events.EventTypeDepositConfirmed, events.EventTypeDepositCredited} {
		bus.Subscribe(t, func(ctx context.Context, e events.Event) {
			if deposit, ok := e.(events.DepositEvent); ok {
				mp.RecordDepositTransition(ctx, deposit.Status)
			}
		})
	}
}

// OnRoundStart implements engine.Observer
func (mp *MetricsProvider) OnRoundStart(ctx context.Context, _ string) {
	mp.RecordRoundStarted(ctx)
}

// OnTick implements engine.Observer
func (mp *MetricsProvider) OnTick(context.Context, string, decimal.Decimal) {}

// OnCrash implements engine.Observer
func (mp *MetricsProvider) OnCrash(ctx context.Context, _ string, crashPoint decimal.Decimal) {
	mp.RecordRoundCrashed(ctx, crashPoint)
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	globalMu      sync.RWMutex
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) (*MetricsProvider, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics != nil {
		return globalMetrics, nil
	}

	mp := NewMetricsProvider(cfg)
	if err := mp.Initialize(ctx); err != nil {
		return nil, err
	}

	globalMetrics = mp
	return mp, nil
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		return nil
	}

	err := globalMetrics.Shutdown(ctx)
	globalMetrics = nil
	return err
}
