package api

import (
	"context"
	"time"
)

// StepFunc is a single unit of work in a workflow.
//
// The engine resolves one entry per declared input name (see InputsMapping)
// and invokes the step with the resolved values. The returned value is
// stored under the node's output key; when the node declares no output key,
// a structured result (map or struct) is merged into the workflow context
// instead, and any other result is dropped.
type StepFunc func(ctx context.Context, inputs map[string]any) (any, error)

// Condition is a predicate over the workflow context, used to guard
// transitions and loop exits.
type Condition func(wc Context) bool

// Not negates a condition. The builder uses it to derive loop-back guards
// from loop exit conditions.
func Not(c Condition) Condition {
	return func(wc Context) bool { return !c(wc) }
}

// InputSource describes where one step parameter comes from when it is not
// simply read from the context under its own name. Exactly one field is set:
// FromKey reads a different context key, Compute derives the value from the
// whole context.
type InputSource struct {
	FromKey string
	Compute func(wc Context) any
}

// FromKey maps a parameter to a different context key.
func FromKey(key string) InputSource {
	return InputSource{FromKey: key}
}

// Computed maps a parameter to a value derived from the context.
func Computed(fn func(wc Context) any) InputSource {
	return InputSource{Compute: fn}
}

// InputsMapping overrides how individual step parameters are resolved.
// Parameters without an entry are read from the context under their own
// name.
type InputsMapping map[string]InputSource

// Policy controls how a node invocation is retried and bounded in time.
//
// MaxRetries counts retries after the first attempt: MaxRetries = 0 means a
// single attempt, MaxRetries = 2 means up to three attempts in total. Delay
// is the pause between failed attempts. Timeout, when positive, bounds each
// attempt; an attempt that exceeds it counts as a failure for retry
// purposes.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	Timeout    time.Duration
}
