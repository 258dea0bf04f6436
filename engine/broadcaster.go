package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Observer receives round lifecycle notifications. Calls are made
// synchronously from the engine goroutine, in the same order for every
// observer, so implementations must return quickly.
type Observer interface {
	OnRoundStart(ctx context.Context, roundID string)
	OnTick(ctx context.Context, roundID string, multiplier decimal.Decimal)
	OnCrash(ctx context.Context, roundID string, crashPoint decimal.Decimal)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	RoundStart func(ctx context.Context, roundID string)
	Tick       func(ctx context.Context, roundID string, multiplier decimal.Decimal)
	Crash      func(ctx context.Context, roundID string, crashPoint decimal.Decimal)
}

func (f ObserverFuncs) OnRoundStart(ctx context.Context, roundID string) {
	if f.RoundStart != nil {
		f.RoundStart(ctx, roundID)
	}
}

func (f ObserverFuncs) OnTick(ctx context.Context, roundID string, multiplier decimal.Decimal) {
	if f.Tick != nil {
		f.Tick(ctx, roundID, multiplier)
	}
}

func (f ObserverFuncs) OnCrash(ctx context.Context, roundID string, crashPoint decimal.Decimal) {
	if f.Crash != nil {
		f.Crash(ctx, roundID, crashPoint)
	}
}

// RoundEventKind labels events delivered over a channel subscription
type RoundEventKind string

const (
	RoundEventStart RoundEventKind = "round_start"
	RoundEventTick  RoundEventKind = "tick"
	RoundEventCrash RoundEventKind = "crash"
)

// RoundEvent is the channel form of an Observer notification
type RoundEvent struct {
	Kind       RoundEventKind  `json:"kind"`
	RoundID    string          `json:"roundId"`
	Multiplier decimal.Decimal `json:"multiplier"`
	At         time.Time       `json:"at"`
}

// Broadcaster fans notifications out to subscribers in subscription order
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    int
	ids       []int
	observers map[int]Observer
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{observers: make(map[int]Observer)}
}

// Subscribe registers an observer and returns its unsubscribe function
func (b *Broadcaster) Subscribe(o Observer) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.ids = append(b.ids, id)
	b.observers[id] = o
	count := len(b.ids)
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"observerID":    id,
		"observerCount": count,
	}).Debug("Subscribed round observer")

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broadcaster) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.observers, id)
	for i, existing := range b.ids {
		if existing == id {
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			break
		}
	}
}

func (b *Broadcaster) snapshot() []Observer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Observer, 0, len(b.ids))
	for _, id := range b.ids {
		out = append(out, b.observers[id])
	}
	return out
}

func (b *Broadcaster) each(event RoundEventKind, fn func(Observer)) {
	for i, o := range b.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"event":         event,
						"observerIndex": i,
						"panic":         r,
					}).Error("Round observer panicked")
				}
			}()
			fn(o)
		}()
	}
}

// RoundStart notifies every observer that a round took off
func (b *Broadcaster) RoundStart(ctx context.Context, roundID string) {
	b.each(RoundEventStart, func(o Observer) { o.OnRoundStart(ctx, roundID) })
}

// Tick notifies every observer of a new multiplier; it returns only after all have seen it
func (b *Broadcaster) Tick(ctx context.Context, roundID string, multiplier decimal.Decimal) {
	b.each(RoundEventTick, func(o Observer) { o.OnTick(ctx, roundID, multiplier) })
}

// Crash notifies every observer that the round ended
func (b *Broadcaster) Crash(ctx context.Context, roundID string, crashPoint decimal.Decimal) {
	b.each(RoundEventCrash, func(o Observer) { o.OnCrash(ctx, roundID, crashPoint) })
}

// SubscribeChannel delivers events over a buffered channel for streaming
// adapters. Sends never block the engine: ticks are dropped when the buffer is
// full, and lifecycle events evict the oldest queued event to make room. The
// channel is closed by the returned function.
func (b *Broadcaster) SubscribeChannel(buffer int) (<-chan RoundEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	co := &channelObserver{ch: make(chan RoundEvent, buffer)}
	unsubscribe := b.Subscribe(co)

	return co.ch, func() {
		unsubscribe()
		co.close()
	}
}

type channelObserver struct {
	mu      sync.Mutex
	ch      chan RoundEvent
	closed  bool
	dropped int
}

func (c *channelObserver) OnRoundStart(_ context.Context, roundID string) {
	c.sendLifecycle(RoundEvent{Kind: RoundEventStart, RoundID: roundID, Multiplier: decimal.NewFromInt(1), At: time.Now().UTC()})
}

func (c *channelObserver) OnTick(_ context.Context, roundID string, multiplier decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.ch <- RoundEvent{Kind: RoundEventTick, RoundID: roundID, Multiplier: multiplier, At: time.Now().UTC()}:
	default:
		c.dropped++
		if c.dropped%100 == 1 {
			log.WithFields(log.Fields{
				"roundID": roundID,
				"dropped": c.dropped,
			}).Debug("Dropping ticks for slow stream subscriber")
		}
	}
}

func (c *channelObserver) OnCrash(_ context.Context, roundID string, crashPoint decimal.Decimal) {
	c.sendLifecycle(RoundEvent{Kind: RoundEventCrash, RoundID: roundID, Multiplier: crashPoint, At: time.Now().UTC()})
}

// sendLifecycle queues ev, discarding the oldest queued event while the
// buffer is full. c.mu serializes senders, so the loop ends once the reader
// or the eviction frees a slot.
func (c *channelObserver) sendLifecycle(ev RoundEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	for {
		select {
		case c.ch <- ev:
			return
		default:
		}

		select {
		case old := <-c.ch:
			c.dropped++
			log.WithFields(log.Fields{
				"roundID": ev.RoundID,
				"kind":    ev.Kind,
				"evicted": old.Kind,
			}).Warn("Stream subscriber not draining, evicted oldest event")
		default:
		}
	}
}

func (c *channelObserver) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
