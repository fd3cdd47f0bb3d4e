package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Observer receives one callback per lifecycle event of a run.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution. A panic or lingering
// error inside an observer never interrupts the run: the engine isolates
// each callback and logs failures.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a plain function into an Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnEvent(ctx context.Context, ev Event) {}

// CompositeObserver fans out events to multiple observers. Each callback is
// isolated: a panic in one observer is recovered, logged, and never reaches
// the others or the run.
type CompositeObserver struct {
	observers []Observer
	logger    *slog.Logger
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered, logger: slog.Default()}
}

func (c *CompositeObserver) OnEvent(ctx context.Context, ev Event) {
	for _, o := range c.observers {
		NotifySafely(ctx, o, ev, c.logger)
	}
}

// NotifySafely delivers one event to one observer, recovering from panics so
// a misbehaving subscriber cannot interrupt the run or its sibling
// observers. Failures are logged at error level.
func NotifySafely(ctx context.Context, o Observer, ev Event, logger *slog.Logger) {
	if o == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "observer_panic",
				slog.String("event", string(ev.Type)),
				slog.String("node", ev.NodeName),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	o.OnEvent(ctx, ev)
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs lifecycle events using
// the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnEvent(ctx context.Context, ev Event) {
	level := slog.LevelDebug
	switch ev.Type {
	case EventWorkflowStarted, EventWorkflowCompleted:
		level = slog.LevelInfo
	case EventNodeFailed:
		level = slog.LevelError
	}
	attrs := []any{
		slog.String("graph", ev.GraphName),
		slog.String("run_id", ev.RunID),
	}
	if ev.NodeName != "" {
		attrs = append(attrs, slog.String("node", ev.NodeName))
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.Any("error", ev.Err))
	}
	o.Logger.Log(ctx, level, string(ev.Type), attrs...)
}

// BasicMetrics collects simple counters and aggregate node durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	nodesStarted       atomic.Int64
	nodesCompleted     atomic.Int64
	nodesFailed        atomic.Int64

	totals atomic.Int64 // nanoseconds across completed nodes

	mu sync.Mutex
	// in-flight node starts keyed by run+node, so durations can be derived
	// from the event stream alone
	started map[string]time.Time
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	NodesStarted       int64
	NodesCompleted     int64
	NodesFailed        int64
	AvgNodeDuration    time.Duration
}

func (m *BasicMetrics) OnEvent(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventWorkflowStarted:
		m.workflowsStarted.Add(1)
	case EventWorkflowCompleted:
		m.workflowsCompleted.Add(1)
	case EventNodeStarted:
		m.nodesStarted.Add(1)
		m.recordStart(ev)
	case EventNodeCompleted:
		m.nodesCompleted.Add(1)
		m.recordDone(ev)
	case EventNodeFailed:
		m.nodesFailed.Add(1)
	}
}

func (m *BasicMetrics) recordStart(ev Event) {
	key := ev.RunID + "/" + ev.NodeName
	m.mu.Lock()
	if m.started == nil {
		m.started = make(map[string]time.Time)
	}
	m.started[key] = ev.At
	m.mu.Unlock()
}

func (m *BasicMetrics) recordDone(ev Event) {
	key := ev.RunID + "/" + ev.NodeName
	m.mu.Lock()
	started, ok := m.started[key]
	if ok {
		delete(m.started, key)
	}
	m.mu.Unlock()
	if ok {
		m.totals.Add(ev.At.Sub(started).Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	completed := m.nodesCompleted.Load()
	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(m.totals.Load() / completed)
	}
	return BasicMetricsSnapshot{
		WorkflowsStarted:   m.workflowsStarted.Load(),
		WorkflowsCompleted: m.workflowsCompleted.Load(),
		NodesStarted:       m.nodesStarted.Load(),
		NodesCompleted:     m.nodesCompleted.Load(),
		NodesFailed:        m.nodesFailed.Load(),
		AvgNodeDuration:    avg,
	}
}
