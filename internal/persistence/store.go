// Package persistence provides the append-only run history stores fed by
// the engine's lifecycle events.
package persistence

import (
	"context"
	"time"

	"github.com/loomwork/loom/pkg/api"
)

// StoredEvent is the persisted form of one lifecycle event. Context
// snapshots and error values stay in memory with the run; the history keeps
// the small, stable fields useful for audit and debugging.
type StoredEvent struct {
	RunID     string
	At        time.Time
	Type      api.EventType
	GraphName string
	NodeName  string
	// Detail is a small human-oriented annotation (chosen edge, error
	// string). Keep it low-volume: do NOT dump large payloads here.
	Detail string
}

// EventStore is an append-only history store for workflow lifecycle events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev StoredEvent) error
	// ListEvents returns all events for a run in chronological order.
	ListEvents(ctx context.Context, runID string) ([]StoredEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev StoredEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]StoredEvent, error) {
	return nil, nil
}

// FromEvent converts a lifecycle event into its persisted form.
func FromEvent(ev api.Event) StoredEvent {
	detail := ev.Detail
	if ev.Err != nil && detail == "" {
		detail = ev.Err.Error()
	}
	return StoredEvent{
		RunID:     ev.RunID,
		At:        ev.At,
		Type:      ev.Type,
		GraphName: ev.GraphName,
		NodeName:  ev.NodeName,
		Detail:    detail,
	}
}
