package api

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *capture) OnEvent(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capture) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// TestNotifySafelyRecoversPanics verifies a panicking observer is contained
// and logged instead of crashing the caller.
func TestNotifySafelyRecoversPanics(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	angry := ObserverFunc(func(context.Context, Event) { panic("bug in observer") })

	require.NotPanics(t, func() {
		NotifySafely(context.Background(), angry, Event{Type: EventNodeStarted}, logger)
	})
	require.NotPanics(t, func() {
		NotifySafely(context.Background(), angry, Event{Type: EventNodeStarted}, nil)
	}, "a nil logger must not defeat the recovery")
}

// TestCompositeObserverFansOut verifies every member sees every event, even
// when an earlier member panics.
func TestCompositeObserverFansOut(t *testing.T) {
	t.Parallel()

	first := &capture{}
	second := &capture{}
	comp := NewCompositeObserver(first, second)

	comp.OnEvent(context.Background(), Event{Type: EventWorkflowStarted})
	require.Equal(t, 1, first.len())
	require.Equal(t, 1, second.len())

	angry := ObserverFunc(func(context.Context, Event) { panic("bad member") })
	tail := &capture{}
	comp = NewCompositeObserver(angry, tail)
	require.NotPanics(t, func() {
		comp.OnEvent(context.Background(), Event{Type: EventNodeCompleted})
	})
	require.Equal(t, 1, tail.len())
}

// TestLoggingObserverNilLogger verifies NewLoggingObserver(nil) is safe to
// use.
func TestLoggingObserverNilLogger(t *testing.T) {
	t.Parallel()

	obs := NewLoggingObserver(nil)
	require.NotPanics(t, func() {
		obs.OnEvent(context.Background(), Event{Type: EventWorkflowStarted, GraphName: "g"})
	})
}

// TestBasicMetricsCounts verifies counters and the average node duration
// derived from the event stream.
func TestBasicMetricsCounts(t *testing.T) {
	t.Parallel()

	m := &BasicMetrics{}
	ctx := context.Background()
	base := time.Now()

	m.OnEvent(ctx, Event{Type: EventWorkflowStarted, RunID: "r"})
	m.OnEvent(ctx, Event{Type: EventNodeStarted, RunID: "r", NodeName: "a", At: base})
	m.OnEvent(ctx, Event{Type: EventNodeCompleted, RunID: "r", NodeName: "a", At: base.Add(40 * time.Millisecond)})
	m.OnEvent(ctx, Event{Type: EventNodeStarted, RunID: "r", NodeName: "b", At: base})
	m.OnEvent(ctx, Event{Type: EventNodeFailed, RunID: "r", NodeName: "b", At: base.Add(10 * time.Millisecond)})
	m.OnEvent(ctx, Event{Type: EventWorkflowCompleted, RunID: "r"})

	snap := m.Snapshot()
	require.Equal(t, int64(1), snap.WorkflowsStarted)
	require.Equal(t, int64(1), snap.WorkflowsCompleted)
	require.Equal(t, int64(2), snap.NodesStarted)
	require.Equal(t, int64(1), snap.NodesCompleted)
	require.Equal(t, int64(1), snap.NodesFailed)
	require.Equal(t, 40*time.Millisecond, snap.AvgNodeDuration)
}

// TestBasicMetricsConcurrentEvents verifies the metrics observer tolerates
// events arriving from concurrent parallel branches.
func TestBasicMetricsConcurrentEvents(t *testing.T) {
	t.Parallel()

	m := &BasicMetrics{}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			node := string(rune('a' + n%8))
			at := time.Now()
			m.OnEvent(ctx, Event{Type: EventNodeStarted, RunID: "r", NodeName: node, At: at})
			m.OnEvent(ctx, Event{Type: EventNodeCompleted, RunID: "r", NodeName: node, At: at.Add(time.Millisecond)})
		}(i)
	}
	wg.Wait()

	snap := m.Snapshot()
	require.Equal(t, int64(16), snap.NodesStarted)
	require.Equal(t, int64(16), snap.NodesCompleted)
}
