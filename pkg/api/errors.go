package api

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphNotFound is returned when a named graph is not registered.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrStepNotFound is returned by the registry when a step name is
	// unknown.
	ErrStepNotFound = errors.New("step not found")

	// ErrConditionNotFound is returned by the registry when a condition
	// name is unknown.
	ErrConditionNotFound = errors.New("condition not found")
)

// ConfigError reports a structural problem discovered while running a graph,
// such as a transition pointing at a node missing from the node table. It is
// deliberately distinct from a step failure: the step never ran, the graph
// itself is broken.
type ConfigError struct {
	Node   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Node == "" {
		return "workflow configuration: " + e.Reason
	}
	return fmt.Sprintf("workflow configuration: node %q: %s", e.Node, e.Reason)
}

// NewConfigError builds a ConfigError for the given node.
func NewConfigError(node, format string, args ...any) error {
	return &ConfigError{Node: node, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err (or anything it wraps) is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

