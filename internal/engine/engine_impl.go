package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomwork/loom/pkg/api"
)

// engineImpl is a synchronous, in-process engine implementation. It owns a
// registry of graphs and a chain of observers; all per-run state lives in
// the run type so a single engine can drive any number of concurrent runs.
type engineImpl struct {
	mu     sync.RWMutex
	graphs map[string]*api.Graph

	observers []api.Observer
	logger    *slog.Logger

	llmStep      func(api.LLMConfig) api.StepFunc
	templateStep func(api.TemplateConfig) api.StepFunc
}

// Config describes how to construct an engine. Only used inside this
// package; external callers use the loom package constructors.
type Config struct {
	// Observer receives lifecycle events for every run, including nested
	// sub-workflow runs. Nil means no observer.
	Observer api.Observer

	// Logger is used for engine diagnostics and observer failure
	// isolation. Nil means slog.Default().
	Logger *slog.Logger

	// LLMStep builds the executable step for an LLM-configured node. The
	// core never calls a completion service itself; without a factory,
	// running an LLM node is a configuration error.
	LLMStep func(api.LLMConfig) api.StepFunc

	// TemplateStep builds the executable step for a template-configured
	// node. Nil selects the built-in text/template renderer.
	TemplateStep func(api.TemplateConfig) api.StepFunc
}

// New creates an engine from the given configuration.
func New(cfg Config) api.Engine {
	e := &engineImpl{
		graphs:       make(map[string]*api.Graph),
		logger:       cfg.Logger,
		llmStep:      cfg.LLMStep,
		templateStep: cfg.TemplateStep,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.templateStep == nil {
		e.templateStep = renderTemplateStep
	}
	if cfg.Observer != nil {
		e.observers = append(e.observers, cfg.Observer)
	}
	return e
}

func (e *engineImpl) RegisterGraph(g *api.Graph) error {
	if g == nil {
		return errors.New("graph is nil")
	}
	if g.Name == "" {
		return errors.New("graph name is required")
	}
	if len(g.Nodes) == 0 {
		return errors.New("graph must have at least one node")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.graphs[g.Name]; exists {
		return fmt.Errorf("graph already registered: %s", g.Name)
	}
	e.graphs[g.Name] = g
	return nil
}

func (e *engineImpl) AddObserver(obs api.Observer) {
	if obs == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, obs)
}

func (e *engineImpl) Run(ctx context.Context, name string, initial api.Context) (*api.Run, error) {
	e.mu.RLock()
	g, ok := e.graphs[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrGraphNotFound, name)
	}
	return e.RunGraph(ctx, g, initial)
}

func (e *engineImpl) RunGraph(ctx context.Context, g *api.Graph, initial api.Context) (*api.Run, error) {
	e.mu.RLock()
	chain := make([]api.Observer, 0, len(e.observers)+len(g.Observers))
	chain = append(chain, e.observers...)
	e.mu.RUnlock()
	chain = append(chain, g.Observers...)
	return e.runGraph(ctx, g, initial, chain)
}

// runGraph drives one traversal. Sub-workflow nodes re-enter here with the
// parent run's observer chain so nested events surface to the same
// subscribers.
func (e *engineImpl) runGraph(ctx context.Context, g *api.Graph, initial api.Context, observers []api.Observer) (*api.Run, error) {
	rec := &api.Run{
		ID:        uuid.NewString(),
		GraphName: g.Name,
		Status:    api.StatusRunning,
		StartedAt: time.Now(),
	}

	r := &run{
		eng:       e,
		graph:     g,
		rec:       rec,
		wc:        initial.Clone(),
		observers: observers,
	}

	if g.Start == "" {
		rec.Status = api.StatusFailed
		rec.Err = api.NewConfigError("", "graph %q has no start node", g.Name)
		rec.CompletedAt = time.Now()
		return rec, rec.Err
	}

	r.emit(ctx, api.EventWorkflowStarted, "", nil, "")

	_, err := r.runPath(ctx, g.Start, false)

	rec.Context = r.snapshot()
	rec.CompletedAt = time.Now()
	if err != nil {
		rec.Status = api.StatusFailed
		rec.Err = err
		return rec, err
	}

	rec.Status = api.StatusCompleted
	r.emit(ctx, api.EventWorkflowCompleted, "", nil, "")
	return rec, nil
}

// run carries the mutable state of one traversal: the shared context and the
// observer chain. The context is only written at node-completion points; the
// mutex makes those points mutually exclusive across parallel branches.
type run struct {
	eng       *engineImpl
	graph     *api.Graph
	rec       *api.Run
	observers []api.Observer

	mu sync.Mutex
	wc api.Context
}

// runPath executes nodes starting at start until the path ends. When
// stopAtConvergence is set (parallel branch traversal) the walk halts upon
// reaching a registered convergence node and reports it instead of executing
// it; the joined flag suppresses that check for the node a fan-out join just
// handed back, which belongs to the enclosing path.
func (r *run) runPath(ctx context.Context, start string, stopAtConvergence bool) (string, error) {
	current := start
	viaJoin := false
	for current != "" {
		if stopAtConvergence && !viaJoin && r.graph.IsConvergence(current) {
			return current, nil
		}
		next, joined, err := r.execNode(ctx, current)
		if err != nil {
			return "", err
		}
		current, viaJoin = next, joined
	}
	return "", nil
}

// execNode runs one node end to end: input resolution, policy-bounded
// invocation, result storage, and transition evaluation. It returns the next
// node to execute ("" when the path ends) and whether that node was handed
// back by a parallel join.
func (r *run) execNode(ctx context.Context, name string) (string, bool, error) {
	node := r.graph.Node(name)
	if node == nil {
		return "", false, api.NewConfigError(name, "transition references a node missing from the node table")
	}

	inputs := r.resolveInputs(node)

	r.emit(ctx, api.EventNodeStarted, name, nil, "")

	result, err := r.invoke(ctx, node, inputs)
	if err != nil {
		r.mu.Lock()
		if r.rec.FailedNode == "" {
			r.rec.FailedNode = name
		}
		r.mu.Unlock()
		r.emit(ctx, api.EventNodeFailed, name, err, "")
		return "", false, err
	}

	r.storeResult(node, result)
	r.emit(ctx, api.EventNodeCompleted, name, nil, "")

	return r.nextFrom(ctx, name)
}

// invoke executes the node's step under its retry/timeout policy. A timeout
// counts as a failed attempt. The error returned after the last attempt is
// the step's original error.
func (r *run) invoke(ctx context.Context, node *api.Node, inputs map[string]any) (any, error) {
	step, err := r.stepFor(node)
	if err != nil {
		return nil, err
	}

	attempts := node.Policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := r.attempt(ctx, node, step, inputs)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if node.Policy.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(node.Policy.Delay):
			}
		}
	}
	return nil, lastErr
}

// attempt performs a single invocation, enforcing the per-attempt timeout
// even against steps that ignore their context.
func (r *run) attempt(ctx context.Context, node *api.Node, step api.StepFunc, inputs map[string]any) (any, error) {
	if node.Policy.Timeout <= 0 {
		return step(ctx, inputs)
	}

	actx, cancel := context.WithTimeout(ctx, node.Policy.Timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := step(actx, inputs)
		done <- outcome{result, err}
	}()

	select {
	case <-actx.Done():
		return nil, fmt.Errorf("node %q timed out after %v: %w", node.Name, node.Policy.Timeout, actx.Err())
	case out := <-done:
		return out.result, out.err
	}
}

// stepFor resolves the executable step behind a node's populated variant,
// failing fast with a configuration error when the graph references
// something undefined.
func (r *run) stepFor(node *api.Node) (api.StepFunc, error) {
	switch node.Kind() {
	case api.KindFunction:
		if node.Func == nil || node.Func.Step == nil {
			return nil, api.NewConfigError(node.Name, "function node has no step defined")
		}
		return node.Func.Step, nil
	case api.KindSubWorkflow:
		return r.subWorkflowStep(node), nil
	case api.KindLLM:
		if r.eng.llmStep == nil {
			return nil, api.NewConfigError(node.Name, "llm node requires an LLM step factory on the engine")
		}
		return r.eng.llmStep(*node.LLM), nil
	case api.KindTemplate:
		return r.eng.templateStep(*node.Template), nil
	}
	return nil, api.NewConfigError(node.Name, "node has no executable variant")
}

// resolveInputs builds the named inputs for a node: a snapshot of the
// current context with every mapped parameter overridden, either from
// another context key or from a computed value.
func (r *run) resolveInputs(node *api.Node) map[string]any {
	snap := r.snapshot()
	if len(node.Inputs) == 0 {
		return snap
	}
	for param, src := range node.Inputs {
		switch {
		case src.Compute != nil:
			snap[param] = src.Compute(snap)
		case src.FromKey != "":
			snap[param] = snap[src.FromKey]
		}
	}
	return snap
}

// storeResult writes a node's result into the shared context. With an
// output key the result is stored verbatim; without one, a structured
// result (map or struct) is merged field by field, silently overwriting
// existing keys of the same name. A non-record result with no output key is
// dropped, matching the documented merge contract.
func (r *run) storeResult(node *api.Node, result any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node.Output != "" {
		r.wc[node.Output] = result
		return
	}
	if record, ok := api.AsRecord(result); ok {
		r.wc.Merge(record)
	}
}

// snapshot returns a copy of the shared context safe to hand to conditions,
// steps and observers.
func (r *run) snapshot() api.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wc.Clone()
}

// nextFrom evaluates the outgoing transitions of a node against the current
// context and returns the next node, fanning out and joining parallel
// targets in place. It emits the transition.evaluated event describing the
// chosen edge (or the lack of one).
func (r *run) nextFrom(ctx context.Context, name string) (string, bool, error) {
	transitions := r.graph.TransitionsFrom(name)
	if len(transitions) == 0 {
		r.emit(ctx, api.EventTransitionEvaluated, name, nil, "no outgoing transition")
		return "", false, nil
	}

	snap := r.snapshot()
	for _, t := range transitions {
		switch t.Kind() {
		case api.TransitionParallel:
			return r.fanOut(ctx, name, t)

		case api.TransitionSequential:
			tg := t.Targets[0]
			if tg.Condition == nil || tg.Condition(snap) {
				r.emit(ctx, api.EventTransitionEvaluated, name, nil, "-> "+tg.To)
				return tg.To, false, nil
			}

		case api.TransitionBranch:
			for _, tg := range t.Targets {
				if tg.Condition == nil || tg.Condition(snap) {
					r.emit(ctx, api.EventTransitionEvaluated, name, nil, "branch -> "+tg.To)
					return tg.To, false, nil
				}
			}
			if t.Default != "" {
				r.emit(ctx, api.EventTransitionEvaluated, name, nil, "branch default -> "+t.Default)
				return t.Default, false, nil
			}
		}
	}

	r.emit(ctx, api.EventTransitionEvaluated, name, nil, "no applicable transition")
	return "", false, nil
}

// emit delivers one lifecycle event to every observer with per-callback
// isolation.
func (r *run) emit(ctx context.Context, typ api.EventType, nodeName string, err error, detail string) {
	if len(r.observers) == 0 {
		return
	}
	ev := api.Event{
		RunID:     r.rec.ID,
		At:        time.Now(),
		Type:      typ,
		GraphName: r.graph.Name,
		NodeName:  nodeName,
		Context:   r.snapshot(),
		Err:       err,
		Detail:    detail,
	}
	for _, o := range r.observers {
		api.NotifySafely(ctx, o, ev, r.eng.logger)
	}
}
