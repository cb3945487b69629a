// Package events provides the in-process publish/subscribe bus for pipeline lifecycle events.
// Publishing never blocks: events are buffered and delivered to subscribers by a single
// background goroutine; when the buffer is full the event is dropped and counted.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
)

// Type is an event type name
type Type string

// event types
const (
	IngestionStarted   Type = "ingestion.started"
	IngestionCompleted Type = "ingestion.completed"
	IngestionFailed    Type = "ingestion.failed"
	SourceHealth       Type = "source.health"
	ScoreComplete      Type = "discovery.score.complete"
	QueueUpdated       Type = "discovery.queue.updated"
	ScoringFailed      Type = "discovery.scoring.failed"
	KeywordUpdated     Type = "keyword.updated"
)

// Version is the current payload version of all events
const Version = 1

const (
	defaultBufferSize = 1024
	dropLogInterval   = 5 * time.Second
)

// Event is a lifecycle notification
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Version    int            `json:"version"`
	ClientID   string         `json:"clientId,omitempty"`
	SourceID   int64          `json:"sourceId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Handler consumes delivered events
type Handler func(ctx context.Context, evt Event)

type subscription struct {
	handler Handler
	types   map[Type]bool // empty means all types
}

// Bus is a buffered fan-out of events to subscribers, safe for concurrent use
type Bus struct {
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}

	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int

	dropped  atomic.Int64
	lastDrop atomic.Int64
	closed   atomic.Bool

	closeOnce sync.Once
}

// NewBus makes a bus and starts the delivery goroutine
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	b := &Bus{
		events: make(chan Event, bufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		subs:   map[int]subscription{},
	}
	go b.run()
	return b
}

// Publish enqueues the event, filling id, version and timestamp if missing.
// It never blocks, events published after Close are ignored.
func (b *Bus) Publish(evt Event) {
	if b == nil || b.closed.Load() {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Version == 0 {
		evt.Version = Version
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	select {
	case b.events <- evt:
	default:
		total := b.dropped.Add(1)
		now := time.Now().UnixNano()
		last := b.lastDrop.Load()
		if now-last >= dropLogInterval.Nanoseconds() && b.lastDrop.CompareAndSwap(last, now) {
			lgr.Printf("[WARN] event bus is full, dropped %s, %d dropped so far", evt.Type, total)
		}
	}
}

// Subscribe registers a handler for the given event types, all types if none given.
// Returns a function removing the subscription.
func (b *Bus) Subscribe(h Handler, types ...Type) (unsubscribe func()) {
	sub := subscription{handler: h, types: map[Type]bool{}}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Dropped returns the number of events dropped due to a full buffer
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting events, delivers the buffered ones and waits for the delivery goroutine.
// Safe to call multiple times.
func (b *Bus) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stopCh)
	})
	select {
	case <-b.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus close wait: %w", ctx.Err())
	}
}

func (b *Bus) run() {
	defer close(b.doneCh)
	ctx := context.Background()
	for {
		select {
		case evt := <-b.events:
			b.deliver(ctx, evt)
		case <-b.stopCh:
			for {
				select {
				case evt := <-b.events:
					b.deliver(ctx, evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if len(s.types) == 0 || s.types[evt.Type] {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(ctx, h, evt)
	}
}

func (b *Bus) call(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			lgr.Printf("[WARN] event handler for %s panicked: %v", evt.Type, r)
		}
	}()
	h(ctx, evt)
}
