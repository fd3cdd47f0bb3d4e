package api

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Run holds the outcome of a single traversal of a graph. The engine
// allocates a fresh Run per call; the graph itself is shared and read-only.
type Run struct {
	ID        string
	GraphName string
	Status    Status

	// Context is the final workflow context (or the context at failure
	// time, with completed nodes' writes in place).
	Context Context

	// Err is the original step error or configuration error that aborted
	// the run; nil on success.
	Err error

	// FailedNode names the node whose step exhausted its policy, when Err
	// is a step failure.
	FailedNode string

	StartedAt   time.Time
	CompletedAt time.Time
}

// Engine drives graph traversal: it resolves node inputs from the context,
// invokes steps under their retry/timeout policies, follows transitions
// (including parallel fan-out and loop-back edges), and emits lifecycle
// events to its observers.
type Engine interface {
	// RegisterGraph registers a built graph under its name.
	RegisterGraph(g *Graph) error

	// Run executes a registered graph to completion against a copy of the
	// initial context and returns the finished Run record. The returned
	// error is the original step or configuration error, if any.
	Run(ctx context.Context, name string, initial Context) (*Run, error)

	// RunGraph is like Run but takes the graph directly, without prior
	// registration.
	RunGraph(ctx context.Context, g *Graph, initial Context) (*Run, error)

	// AddObserver subscribes an observer to every subsequent run,
	// including runs of nested sub-workflows.
	AddObserver(obs Observer)
}
