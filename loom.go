package loom

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/loomwork/loom/internal/engine"
	"github.com/loomwork/loom/internal/persistence"
	"github.com/loomwork/loom/internal/validator"
	"github.com/loomwork/loom/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine          = api.Engine
	Graph           = api.Graph
	Node            = api.Node
	Transition      = api.Transition
	Target          = api.Target
	Loop            = api.Loop
	Context         = api.Context
	StepFunc        = api.StepFunc
	Condition       = api.Condition
	InputsMapping   = api.InputsMapping
	InputSource     = api.InputSource
	Policy          = api.Policy
	Run             = api.Run
	Status          = api.Status
	Event           = api.Event
	EventType       = api.EventType
	Observer        = api.Observer
	ObserverFunc    = api.ObserverFunc
	NoopObserver    = api.NoopObserver
	LoggingObserver = api.LoggingObserver
	BasicMetrics    = api.BasicMetrics
	Issue           = api.Issue
	Severity        = api.Severity
	Registry        = api.Registry
	LLMConfig       = api.LLMConfig
	TemplateConfig  = api.TemplateConfig
)

// Re-export common helpers and constructors.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewRegistry          = api.NewRegistry
	FromKey              = api.FromKey
	Computed             = api.Computed
	Not                  = api.Not
	HasErrors            = api.HasErrors
	IsConfigError        = api.IsConfigError
)

// Re-export status and severity values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed

	SeverityError   = api.SeverityError
	SeverityWarning = api.SeverityWarning
)

// Engine constructors
// These wrap the internal/engine package so external callers never need to
// import internal packages.

// EngineConfig configures an engine built by NewEngineWithConfig.
type EngineConfig struct {
	// Observer receives lifecycle events for every run, including nested
	// sub-workflow runs.
	Observer api.Observer

	// Logger is used for engine diagnostics and observer failure
	// isolation. Nil means slog.Default().
	Logger *slog.Logger

	// LLMStep builds the executable step for LLM-configured nodes. The
	// core never calls a completion service itself; without a factory,
	// running an LLM node is a configuration error.
	LLMStep func(api.LLMConfig) api.StepFunc

	// TemplateStep builds the executable step for template-configured
	// nodes. Nil selects the built-in text/template renderer.
	TemplateStep func(api.TemplateConfig) api.StepFunc
}

// NewEngine returns an engine with default configuration.
func NewEngine() Engine {
	return engine.New(engine.Config{})
}

// NewEngineWithObserver returns an engine with the given observer attached.
func NewEngineWithObserver(obs Observer) Engine {
	return engine.New(engine.Config{Observer: obs})
}

// NewEngineWithConfig returns an engine built from cfg.
func NewEngineWithConfig(cfg EngineConfig) Engine {
	return engine.New(engine.Config{
		Observer:     cfg.Observer,
		Logger:       cfg.Logger,
		LLMStep:      cfg.LLMStep,
		TemplateStep: cfg.TemplateStep,
	})
}

// Validate checks the structural correctness of a graph and returns every
// issue found. It never fails and executes nothing; callers decide whether
// error-severity issues should abort.
func Validate(g *Graph) []Issue {
	return validator.Validate(g)
}

// History constructors
// Run history is an append-only event log fed by a HistoryObserver.

// EventStore is an append-only history store for workflow lifecycle events.
type EventStore = persistence.EventStore

// NewMemoryHistory returns an in-memory event store, best for tests and
// development.
func NewMemoryHistory() EventStore {
	return persistence.NewMemoryEventStore()
}

// NewSQLiteHistory returns an event store persisting events in a SQLite
// database, creating its schema on first use.
func NewSQLiteHistory(db *sql.DB) (EventStore, error) {
	return persistence.NewSQLiteEventStore(db)
}

// NewHistoryObserver returns an observer that appends every lifecycle event
// to the given store. Append failures are logged, never propagated, matching
// the observer isolation contract.
func NewHistoryObserver(store EventStore, logger *slog.Logger) Observer {
	return persistence.NewHistoryObserver(store, logger)
}

// Convenience helpers that just forward to the underlying Engine.

// RunWorkflow runs a registered graph to completion.
func RunWorkflow(ctx context.Context, eng Engine, name string, initial Context) (*Run, error) {
	return eng.Run(ctx, name, initial)
}

// RunGraph runs a graph directly, without prior registration.
func RunGraph(ctx context.Context, eng Engine, g *Graph, initial Context) (*Run, error) {
	return eng.RunGraph(ctx, g, initial)
}
