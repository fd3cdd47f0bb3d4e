package api

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps names to step functions and conditions. It is the explicit
// lookup table used when graphs are loaded from documents: function nodes
// and condition labels reference entries by name, never by reflection or
// implicit global state.
//
// A Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]StepFunc
	conds map[string]Condition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]StepFunc),
		conds: make(map[string]Condition),
	}
}

// RegisterStep registers a step function under the given name.
// Re-registering a name is an error.
func (r *Registry) RegisterStep(name string, fn StepFunc) error {
	if name == "" {
		return fmt.Errorf("step name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("step %q has nil function", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[name]; exists {
		return fmt.Errorf("step %q already registered", name)
	}
	r.steps[name] = fn
	return nil
}

// MustRegisterStep is like RegisterStep but panics on error.
// Useful for initialization in main().
func (r *Registry) MustRegisterStep(name string, fn StepFunc) {
	if err := r.RegisterStep(name, fn); err != nil {
		panic(err)
	}
}

// Step returns the step registered under name.
func (r *Registry) Step(name string) (StepFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.steps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStepNotFound, name)
	}
	return fn, nil
}

// HasStep reports whether a step is registered under name.
func (r *Registry) HasStep(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.steps[name]
	return ok
}

// StepNames returns the registered step names in lexical order.
func (r *Registry) StepNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.steps))
	for name := range r.steps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RegisterCondition registers a named condition. Re-registering a name is an
// error.
func (r *Registry) RegisterCondition(name string, cond Condition) error {
	if name == "" {
		return fmt.Errorf("condition name must not be empty")
	}
	if cond == nil {
		return fmt.Errorf("condition %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conds[name]; exists {
		return fmt.Errorf("condition %q already registered", name)
	}
	r.conds[name] = cond
	return nil
}

// MustRegisterCondition is like RegisterCondition but panics on error.
func (r *Registry) MustRegisterCondition(name string, cond Condition) {
	if err := r.RegisterCondition(name, cond); err != nil {
		panic(err)
	}
}

// Condition returns the condition registered under name.
func (r *Registry) Condition(name string) (Condition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cond, ok := r.conds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConditionNotFound, name)
	}
	return cond, nil
}
