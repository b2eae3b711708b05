package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-missions/internal/completion"
)

func TestBusDeliversToTypeSubscribers(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	var got []Type
	record := func(_ context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Type)
	}
	bus.Subscribe(OccurrenceCompleted, record)
	bus.Subscribe(LevelChanged, record)

	now := time.Now()
	bus.Publish(context.Background(), NewOccurrenceCompleted(completion.ExpGain{TaskID: 1, UserID: 2, Exp: 10, Occurrence: "2026-01-01"}, now))
	bus.Publish(context.Background(), NewSuggestionEvent(SuggestionDeclined, 2, SuggestionRef{}, now))
	bus.Drain()

	assert.Equal(t, []Type{OccurrenceCompleted}, got)
}

func TestBusSubscribeAllAndPanicRecovery(t *testing.T) {
	bus := NewBus(nil)
	var calls atomic.Int32

	bus.SubscribeAll(func(context.Context, Event) { calls.Add(1) })
	bus.Subscribe(LevelChanged, func(context.Context, Event) { panic("boom") })

	bus.Publish(context.Background(), NewLevelChanged(1, 1, 2, 100, time.Now()))
	bus.Publish(context.Background(), NewSuggestionEvent(SuggestionAccepted, 1, SuggestionRef{IDs: []string{"s"}}, time.Now()))
	bus.Drain()

	assert.Equal(t, int32(2), calls.Load())
}

func TestBusHandlersOutliveCallerContext(t *testing.T) {
	bus := NewBus(nil)
	errs := make(chan error, 1)
	bus.Subscribe(LevelChanged, func(ctx context.Context, _ Event) {
		time.Sleep(10 * time.Millisecond)
		errs <- ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, NewLevelChanged(1, 1, 2, 100, time.Now()))
	cancel()
	bus.Drain()

	require.Len(t, errs, 1)
	assert.NoError(t, <-errs)
}

func TestEventConstructors(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	gain := completion.ExpGain{TaskID: 4, UserID: 5, ActorID: 6, Exp: 25, Occurrence: "2026-01-02"}

	ev := NewOccurrenceCompleted(gain, now)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, uint(5), ev.UserID)
	require.NotNil(t, ev.Gain)
	assert.Equal(t, gain, *ev.Gain)
	assert.Nil(t, ev.Level)

	other := NewOccurrenceCompleted(gain, now)
	assert.NotEqual(t, ev.ID, other.ID)
}
