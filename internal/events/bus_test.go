package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBus(t *testing.T) EventBus {
	t.Helper()
	bus := NewEventBus(DefaultEventBusConfig(), nil)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Stop(ctx)
	})
	return bus
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestEventBus_PublishAndSubscribe(t *testing.T) {
	bus := startBus(t)

	got := &collector{}
	_, err := bus.Subscribe(EventFilter{Types: []EventType{EventUploadProgress}}, got.handle)
	require.NoError(t, err)

	require.NoError(t, bus.PublishAsync(Event{
		Type:   EventUploadProgress,
		Source: "push",
		JobID:  "abc",
	}))

	require.Eventually(t, func() bool {
		return len(got.all()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "abc", got.all()[0].JobID)
	assert.NotEmpty(t, got.all()[0].ID, "bus assigns an event id")
	assert.False(t, got.all()[0].Timestamp.IsZero())
}

func TestEventBus_FilterMatching(t *testing.T) {
	tests := []struct {
		name   string
		filter EventFilter
		event  Event
		want   bool
	}{
		{
			name:   "empty filter matches everything",
			filter: EventFilter{},
			event:  Event{Type: EventMediaAdded, Source: "upload"},
			want:   true,
		},
		{
			name:   "type mismatch",
			filter: EventFilter{Types: []EventType{EventUploadProgress}},
			event:  Event{Type: EventMediaAdded, Source: "upload"},
			want:   false,
		},
		{
			name:   "source mismatch",
			filter: EventFilter{Sources: []string{"push"}},
			event:  Event{Type: EventUploadProgress, Source: "upload"},
			want:   false,
		},
		{
			name:   "job id match",
			filter: EventFilter{JobIDs: []string{"abc"}},
			event:  Event{Type: EventUploadProgress, Source: "push", JobID: "abc"},
			want:   true,
		},
		{
			name:   "all constraints must hold",
			filter: EventFilter{Types: []EventType{EventUploadProgress}, Sources: []string{"push"}, JobIDs: []string{"abc"}},
			event:  Event{Type: EventUploadProgress, Source: "push", JobID: "other"},
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesFilter(tt.event, tt.filter))
		})
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := startBus(t)

	got := &collector{}
	sub, err := bus.Subscribe(EventFilter{}, got.handle)
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(sub.ID))

	require.NoError(t, bus.PublishAsync(Event{Type: EventUploadProgress, Source: "push"}))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, got.all())

	assert.Error(t, bus.Unsubscribe("sub-missing"))
}

func TestEventBus_RejectsInvalidEvents(t *testing.T) {
	bus := startBus(t)

	assert.Error(t, bus.PublishAsync(Event{Source: "push"}), "type is required")
	assert.Error(t, bus.PublishAsync(Event{Type: EventUploadProgress}), "source is required")
}

func TestEventBus_PublishWhileStopped(t *testing.T) {
	bus := NewEventBus(DefaultEventBusConfig(), nil)
	assert.Error(t, bus.PublishAsync(Event{Type: EventUploadProgress, Source: "push"}))
}

func TestEventBus_StartTwiceFails(t *testing.T) {
	bus := startBus(t)
	assert.Error(t, bus.Start(context.Background()))
}

func TestEventBus_Stats(t *testing.T) {
	bus := startBus(t)

	require.NoError(t, bus.PublishAsync(Event{Type: EventUploadProgress, Source: "push"}))
	require.NoError(t, bus.PublishAsync(Event{Type: EventMediaAdded, Source: "upload"}))

	require.Eventually(t, func() bool {
		return bus.GetStats().TotalEvents == 2
	}, 2*time.Second, 5*time.Millisecond)

	stats := bus.GetStats()
	assert.Equal(t, int64(1), stats.EventsByType[string(EventUploadProgress)])
	assert.Equal(t, int64(1), stats.EventsBySource["upload"])
	assert.Len(t, stats.RecentEvents, 2)
}
