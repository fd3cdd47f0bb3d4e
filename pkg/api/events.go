package api

import "time"

// EventType identifies a workflow lifecycle event.
type EventType string

const (
	EventWorkflowStarted     EventType = "workflow.started"
	EventNodeStarted         EventType = "node.started"
	EventNodeCompleted       EventType = "node.completed"
	EventNodeFailed          EventType = "node.failed"
	EventTransitionEvaluated EventType = "transition.evaluated"
	EventWorkflowCompleted   EventType = "workflow.completed"
)

// Event is the record delivered to observers at each lifecycle point of a
// run. It is also the unit persisted by the history event store.
//
// Context is a snapshot taken at emission time; observers may inspect it
// freely without racing against the run.
type Event struct {
	RunID string
	At    time.Time
	Type  EventType

	// GraphName is the name of the graph being run. Sub-workflow events
	// carry the inner graph's name.
	GraphName string

	// NodeName is set for node-scoped events; empty for workflow-scoped
	// ones.
	NodeName string

	// Context is a snapshot of the workflow context at emission time.
	Context Context

	// Err is set on node.failed events.
	Err error

	// Detail is a small human-oriented annotation, e.g. the chosen target
	// of a transition.evaluated event. Keep it low-volume: do NOT dump
	// large payloads here.
	Detail string
}
