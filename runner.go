package loom

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loomwork/loom/pkg/api"
)

// Runner bundles an Engine, a step Registry, and an in-memory run history
// into a single process-local helper for development and testing.
//
// Typical usage:
//
//	runner := loom.NewRunner()
//	runner.Registry.MustRegisterStep("greet", greet)
//
//	g := loom.New("hello").Step("greet", greet).Build()
//	runner.MustRegister(g)
//
//	// Synchronous run:
//	run, err := runner.Run(ctx, "hello", loom.Context{"name": "Ada"})
//
//	// Asynchronous run:
//	res := runner.RunAsync(ctx, "hello", loom.Context{"name": "Ada"})
//	...
//	run := <-res
//
// Runner is intentionally not durable; its history lives in memory and is
// lost when the process exits.
type Runner struct {
	// Engine runs registered graphs.
	Engine Engine

	// Registry resolves step and condition names for document-defined
	// workflows.
	Registry *Registry

	// History records every lifecycle event of every run.
	History EventStore

	wg sync.WaitGroup
}

// RunnerOption customizes a Runner built by NewRunner.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	logger    *slog.Logger
	observers []Observer
	llmStep   func(api.LLMConfig) api.StepFunc
}

// WithLogger sets the logger used for engine diagnostics and the logging
// observer.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(c *runnerConfig) { c.logger = l }
}

// WithObserver attaches an additional observer to every run.
func WithObserver(obs Observer) RunnerOption {
	return func(c *runnerConfig) { c.observers = append(c.observers, obs) }
}

// WithLLMStep installs the executable-step factory for LLM-configured
// nodes.
func WithLLMStep(factory func(api.LLMConfig) api.StepFunc) RunnerOption {
	return func(c *runnerConfig) { c.llmStep = factory }
}

// NewRunner constructs a Runner backed by an in-memory engine, an empty
// registry, and an in-memory history store.
func NewRunner(opts ...RunnerOption) *Runner {
	var cfg runnerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	history := NewMemoryHistory()
	observers := append([]Observer{NewHistoryObserver(history, cfg.logger)}, cfg.observers...)

	eng := NewEngineWithConfig(EngineConfig{
		Observer: NewCompositeObserver(observers...),
		Logger:   cfg.logger,
		LLMStep:  cfg.llmStep,
	})

	return &Runner{
		Engine:   eng,
		Registry: NewRegistry(),
		History:  history,
	}
}

// Register validates the graph and registers it on the runner's engine.
// Error-severity validation issues abort registration.
func (r *Runner) Register(g *Graph) error {
	for _, issue := range Validate(g) {
		if issue.Severity == SeverityError {
			return fmt.Errorf("graph %q is invalid: %s", g.Name, issue.String())
		}
	}
	return r.Engine.RegisterGraph(g)
}

// MustRegister is Register but panics on failure, for use at program
// startup.
func (r *Runner) MustRegister(g *Graph) {
	if err := r.Register(g); err != nil {
		panic(err)
	}
}

// Run runs a registered graph to completion.
func (r *Runner) Run(ctx context.Context, name string, initial Context) (*Run, error) {
	return r.Engine.Run(ctx, name, initial)
}

// RunAsync starts a registered graph in a background goroutine and returns
// a channel that yields the completed Run. The Run's Err field carries any
// failure; the channel is buffered so the result is never lost.
func (r *Runner) RunAsync(ctx context.Context, name string, initial Context) <-chan *Run {
	res := make(chan *Run, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		run, err := r.Engine.Run(ctx, name, initial)
		if run == nil {
			run = &Run{GraphName: name, Status: StatusFailed, Err: err}
		}
		res <- run
	}()
	return res
}

// Wait blocks until every run started with RunAsync has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Events returns the recorded history of a single run.
func (r *Runner) Events(ctx context.Context, runID string) ([]api.Event, error) {
	stored, err := r.History.ListEvents(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]api.Event, 0, len(stored))
	for _, ev := range stored {
		out = append(out, api.Event{
			RunID:     ev.RunID,
			At:        ev.At,
			Type:      ev.Type,
			GraphName: ev.GraphName,
			NodeName:  ev.NodeName,
			Detail:    ev.Detail,
		})
	}
	return out, nil
}
