package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		res = append(res, e.Type)
	}
	return res
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(16)
	all, ingestion := &recorder{}, &recorder{}
	bus.Subscribe(all.handle)
	bus.Subscribe(ingestion.handle, IngestionStarted, IngestionCompleted)

	bus.Publish(Event{Type: IngestionStarted, ClientID: "c1", SourceID: 1})
	bus.Publish(Event{Type: SourceHealth, ClientID: "c1", SourceID: 1})
	bus.Publish(Event{Type: IngestionCompleted, ClientID: "c1", SourceID: 1, Payload: map[string]any{"inserted": 2}})
	require.NoError(t, bus.Close(context.Background()))

	assert.Equal(t, []Type{IngestionStarted, SourceHealth, IngestionCompleted}, all.types())
	assert.Equal(t, []Type{IngestionStarted, IngestionCompleted}, ingestion.types())

	evt := all.events[0]
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, Version, evt.Version)
	assert.False(t, evt.OccurredAt.IsZero())
	assert.NotEqual(t, all.events[0].ID, all.events[1].ID)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(4)
	rec := &recorder{}
	unsubscribe := bus.Subscribe(rec.handle)
	bus.Publish(Event{Type: QueueUpdated})
	require.Eventually(t, func() bool { return len(rec.types()) == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	bus.Publish(Event{Type: QueueUpdated})
	require.NoError(t, bus.Close(context.Background()))
	assert.Len(t, rec.types(), 1)
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(func(context.Context, Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	})

	bus.Publish(Event{Type: IngestionStarted}) // picked by the delivery goroutine and blocked
	<-started
	bus.Publish(Event{Type: IngestionStarted}) // fills the buffer
	bus.Publish(Event{Type: IngestionStarted}) // dropped
	bus.Publish(Event{Type: IngestionStarted}) // dropped
	assert.Equal(t, int64(2), bus.Dropped())

	close(block)
	require.NoError(t, bus.Close(context.Background()))
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewBus(4)
	rec := &recorder{}
	bus.Subscribe(func(context.Context, Event) { panic("boom") })
	bus.Subscribe(rec.handle)

	bus.Publish(Event{Type: ScoringFailed})
	bus.Publish(Event{Type: ScoreComplete})
	require.NoError(t, bus.Close(context.Background()))
	assert.Equal(t, []Type{ScoringFailed, ScoreComplete}, rec.types())
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(4)
	require.NoError(t, bus.Close(context.Background()))
	require.NoError(t, bus.Close(context.Background()), "second close is a no-op")
	bus.Publish(Event{Type: IngestionStarted}) // ignored after close

	var nilBus *Bus
	nilBus.Publish(Event{Type: IngestionStarted})
	require.NoError(t, nilBus.Close(context.Background()))

	stuck := NewBus(4)
	release := make(chan struct{})
	stuck.Subscribe(func(context.Context, Event) { <-release })
	stuck.Publish(Event{Type: IngestionStarted})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, stuck.Close(ctx))
	close(release)
	require.NoError(t, stuck.Close(context.Background()))
}
