package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine() api.Engine {
	return New(Config{Logger: testLogger()})
}

func fnNode(name string, step api.StepFunc, output string) *api.Node {
	return &api.Node{
		Name:   name,
		Func:   &api.FunctionSpec{Name: name, Step: step},
		Output: output,
	}
}

func seq(from, to string) *api.Transition {
	return &api.Transition{From: from, Targets: []api.Target{{To: to}}}
}

// recorder collects every event it sees, in order.
type recorder struct {
	mu     sync.Mutex
	events []api.Event
}

func (r *recorder) OnEvent(_ context.Context, ev api.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(typ api.EventType) []api.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []api.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// prefixer returns a step producing "stepN: <value of key>".
func prefixer(n int, key string) api.StepFunc {
	return func(_ context.Context, inputs map[string]any) (any, error) {
		return fmt.Sprintf("step%d: %v", n, inputs[key]), nil
	}
}

// TestRunSequentialChaining verifies that a three-node chain threads each
// node's output into the next node's input through the shared context.
func TestRunSequentialChaining(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "chain",
		Start: "stepA",
		Nodes: map[string]*api.Node{
			"stepA": fnNode("stepA", prefixer(1, "input"), "stepA_out"),
			"stepB": fnNode("stepB", prefixer(2, "stepA_out"), "stepB_out"),
			"stepC": fnNode("stepC", prefixer(3, "stepB_out"), "stepC_out"),
		},
		Transitions: []*api.Transition{seq("stepA", "stepB"), seq("stepB", "stepC")},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "chain", api.Context{"input": "test"})
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, run.Status)
	require.Equal(t, "step1: test", run.Context["stepA_out"])
	require.Equal(t, "step2: step1: test", run.Context["stepB_out"])
	require.Equal(t, "step3: step2: step1: test", run.Context["stepC_out"])
}

// TestRunBranchSelection verifies branch routing: the first target whose
// condition holds is taken, else the default, and only the chosen path
// writes its result.
func TestRunBranchSelection(t *testing.T) {
	t.Parallel()

	isHigh := func(wc api.Context) bool {
		high, _ := wc["is_high"].(bool)
		return high
	}
	tagStep := func(name string) api.StepFunc {
		return func(_ context.Context, inputs map[string]any) (any, error) {
			return fmt.Sprintf("%s: %v", name, inputs["value"]), nil
		}
	}

	g := &api.Graph{
		Name:  "branching",
		Start: "check",
		Nodes: map[string]*api.Node{
			"check": fnNode("check", func(_ context.Context, inputs map[string]any) (any, error) {
				v, _ := inputs["value"].(int)
				return v > 10, nil
			}, "is_high"),
			"high": fnNode("high", tagStep("high"), "high_result"),
			"low":  fnNode("low", tagStep("low"), "low_result"),
		},
		Transitions: []*api.Transition{
			{
				From:    "check",
				Targets: []api.Target{{To: "high", Condition: isHigh}},
				Default: "low",
			},
		},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "branching", api.Context{"value": 15})
	require.NoError(t, err)
	require.Equal(t, "high: 15", run.Context["high_result"])
	require.NotContains(t, run.Context, "low_result")

	run, err = eng.Run(context.Background(), "branching", api.Context{"value": 5})
	require.NoError(t, err)
	require.Equal(t, "low: 5", run.Context["low_result"])
	require.NotContains(t, run.Context, "high_result")
}

// TestRunInputMapping verifies that mapped parameters override the context
// snapshot: FromKey reads another key, Compute derives a value.
func TestRunInputMapping(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "mapping",
		Start: "greet",
		Nodes: map[string]*api.Node{
			"greet": {
				Name: "greet",
				Func: &api.FunctionSpec{Name: "greet", Step: func(_ context.Context, inputs map[string]any) (any, error) {
					return fmt.Sprintf("%v %v (%v)", inputs["salutation"], inputs["who"], inputs["len"]), nil
				}},
				Inputs: api.InputsMapping{
					"who": api.FromKey("user_name"),
					"len": api.Computed(func(wc api.Context) any {
						name, _ := wc["user_name"].(string)
						return len(name)
					}),
				},
				Output: "greeting",
			},
		},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "mapping", api.Context{
		"salutation": "hello",
		"user_name":  "ada",
	})
	require.NoError(t, err)
	require.Equal(t, "hello ada (3)", run.Context["greeting"])
}

// TestRunResultStorage verifies the three result contracts: an output key
// stores verbatim, a keyless record merges field by field (overwriting
// collisions), and a keyless scalar is dropped.
func TestRunResultStorage(t *testing.T) {
	t.Parallel()

	type report struct {
		Total int
		Title string
	}

	g := &api.Graph{
		Name:  "storage",
		Start: "keyed",
		Nodes: map[string]*api.Node{
			"keyed": fnNode("keyed", func(context.Context, map[string]any) (any, error) {
				return map[string]any{"inner": true}, nil
			}, "keyed_out"),
			"merged": fnNode("merged", func(context.Context, map[string]any) (any, error) {
				return report{Total: 7, Title: "weekly"}, nil
			}, ""),
			"dropped": fnNode("dropped", func(context.Context, map[string]any) (any, error) {
				return 42, nil
			}, ""),
		},
		Transitions: []*api.Transition{seq("keyed", "merged"), seq("merged", "dropped")},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "storage", api.Context{"Title": "will be overwritten"})
	require.NoError(t, err)

	require.Equal(t, map[string]any{"inner": true}, run.Context["keyed_out"],
		"an output key stores the whole value, even a record")
	require.Equal(t, 7, run.Context["Total"])
	require.Equal(t, "weekly", run.Context["Title"], "merge overwrites colliding keys")

	for k := range run.Context {
		require.NotEqual(t, 42, run.Context[k], "keyless scalar results are dropped, key %q", k)
	}
}

// TestRunRetryPolicy verifies MaxRetries grants extra attempts and the
// original error of the final attempt surfaces once the budget is spent.
func TestRunRetryPolicy(t *testing.T) {
	t.Parallel()

	var calls int
	flaky := func(context.Context, map[string]any) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}

	g := &api.Graph{
		Name:  "retrying",
		Start: "flaky",
		Nodes: map[string]*api.Node{
			"flaky": {
				Name:   "flaky",
				Func:   &api.FunctionSpec{Name: "flaky", Step: flaky},
				Output: "out",
				Policy: api.Policy{MaxRetries: 2, Delay: time.Millisecond},
			},
		},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "retrying", nil)
	require.NoError(t, err)
	require.Equal(t, 3, calls, "two retries mean three attempts")
	require.Equal(t, "ok", run.Context["out"])
}

// TestRunRetryExhausted verifies the run fails with the step's own error
// and records the failed node.
func TestRunRetryExhausted(t *testing.T) {
	t.Parallel()

	stepErr := errors.New("payment rejected")
	g := &api.Graph{
		Name:  "exhausted",
		Start: "pay",
		Nodes: map[string]*api.Node{
			"pay": {
				Name:   "pay",
				Func:   &api.FunctionSpec{Name: "pay", Step: func(context.Context, map[string]any) (any, error) { return nil, stepErr }},
				Policy: api.Policy{MaxRetries: 1},
			},
		},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "exhausted", nil)
	require.ErrorIs(t, err, stepErr, "the original step error must surface unwrapped")
	require.Equal(t, api.StatusFailed, run.Status)
	require.Equal(t, "pay", run.FailedNode)
	require.False(t, api.IsConfigError(err), "a step failure is not a configuration error")
}

// TestRunAttemptTimeout verifies the per-attempt timeout fires even when the
// step ignores its context, and that a timed-out attempt still consumes the
// retry budget.
func TestRunAttemptTimeout(t *testing.T) {
	t.Parallel()

	var calls int
	slow := func(context.Context, map[string]any) (any, error) {
		calls++
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	}

	g := &api.Graph{
		Name:  "timed",
		Start: "slow",
		Nodes: map[string]*api.Node{
			"slow": {
				Name:   "slow",
				Func:   &api.FunctionSpec{Name: "slow", Step: slow},
				Policy: api.Policy{MaxRetries: 1, Timeout: 20 * time.Millisecond},
			},
		},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	_, err := eng.Run(context.Background(), "timed", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "timed out after")
	require.Equal(t, 2, calls)
}

// TestRunMissingNodeIsConfigError verifies that a transition pointing at a
// node absent from the node table fails the run with a configuration error,
// distinct from a step failure.
func TestRunMissingNodeIsConfigError(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "dangling",
		Start: "a",
		Nodes: map[string]*api.Node{
			"a": fnNode("a", func(context.Context, map[string]any) (any, error) { return nil, nil }, ""),
		},
		Transitions: []*api.Transition{seq("a", "ghost")},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "dangling", nil)
	require.Error(t, err)
	require.True(t, api.IsConfigError(err))
	require.Equal(t, api.StatusFailed, run.Status)
}

// TestRunGraphNotFound verifies the sentinel error for unknown graph names.
func TestRunGraphNotFound(t *testing.T) {
	t.Parallel()

	eng := newTestEngine()
	_, err := eng.Run(context.Background(), "nope", nil)
	require.ErrorIs(t, err, api.ErrGraphNotFound)
}

// TestRunLLMNodeRequiresFactory verifies that an LLM node fails fast as a
// configuration error without a factory, and runs through the factory when
// one is installed.
func TestRunLLMNodeRequiresFactory(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "llm",
		Start: "ask",
		Nodes: map[string]*api.Node{
			"ask": {
				Name:   "ask",
				LLM:    &api.LLMConfig{Model: "small", PromptTemplate: "summarize {{.doc}}"},
				Output: "answer",
			},
		},
	}

	bare := newTestEngine()
	require.NoError(t, bare.RegisterGraph(g))
	_, err := bare.Run(context.Background(), "llm", nil)
	require.True(t, api.IsConfigError(err))

	wired := New(Config{
		Logger: testLogger(),
		LLMStep: func(cfg api.LLMConfig) api.StepFunc {
			return func(context.Context, map[string]any) (any, error) {
				return "echo from " + cfg.Model, nil
			}
		},
	})
	require.NoError(t, wired.RegisterGraph(g))
	run, err := wired.Run(context.Background(), "llm", nil)
	require.NoError(t, err)
	require.Equal(t, "echo from small", run.Context["answer"])
}

// TestRunTemplateNode verifies template nodes render against resolved
// inputs with the built-in text/template executor.
func TestRunTemplateNode(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "templated",
		Start: "render",
		Nodes: map[string]*api.Node{
			"render": {
				Name:     "render",
				Template: &api.TemplateConfig{Template: "order {{.id}} is {{.state}}"},
				Output:   "message",
			},
		},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "templated", api.Context{"id": 7, "state": "ready"})
	require.NoError(t, err)
	require.Equal(t, "order 7 is ready", run.Context["message"])
}

// TestRunObserverLifecycle verifies the event sequence of a successful run
// and that failures emit node.failed without workflow.completed.
func TestRunObserverLifecycle(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	eng := New(Config{Observer: rec, Logger: testLogger()})

	g := &api.Graph{
		Name:  "observed",
		Start: "only",
		Nodes: map[string]*api.Node{
			"only": fnNode("only", func(context.Context, map[string]any) (any, error) { return "v", nil }, "out"),
		},
	}
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "observed", nil)
	require.NoError(t, err)

	types := make([]api.EventType, 0, len(rec.events))
	for _, ev := range rec.events {
		require.Equal(t, run.ID, ev.RunID)
		types = append(types, ev.Type)
	}
	require.Equal(t, []api.EventType{
		api.EventWorkflowStarted,
		api.EventNodeStarted,
		api.EventNodeCompleted,
		api.EventTransitionEvaluated,
		api.EventWorkflowCompleted,
	}, types)

	// Failure path.
	rec2 := &recorder{}
	failing := New(Config{Observer: rec2, Logger: testLogger()})
	bad := &api.Graph{
		Name:  "failing",
		Start: "boom",
		Nodes: map[string]*api.Node{
			"boom": fnNode("boom", func(context.Context, map[string]any) (any, error) {
				return nil, errors.New("boom")
			}, ""),
		},
	}
	require.NoError(t, failing.RegisterGraph(bad))
	_, err = failing.Run(context.Background(), "failing", nil)
	require.Error(t, err)
	require.Len(t, rec2.ofType(api.EventNodeFailed), 1)
	require.Empty(t, rec2.ofType(api.EventWorkflowCompleted))
}

// TestRunObserverIsolation verifies a panicking observer neither fails the
// run nor starves later observers.
func TestRunObserverIsolation(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	angry := api.ObserverFunc(func(context.Context, api.Event) { panic("observer bug") })

	eng := New(Config{
		Observer: api.NewCompositeObserver(angry, rec),
		Logger:   testLogger(),
	})

	g := &api.Graph{
		Name:  "isolated",
		Start: "only",
		Nodes: map[string]*api.Node{
			"only": fnNode("only", func(context.Context, map[string]any) (any, error) { return nil, nil }, ""),
		},
	}
	require.NoError(t, eng.RegisterGraph(g))

	run, err := eng.Run(context.Background(), "isolated", nil)
	require.NoError(t, err)
	require.Equal(t, api.StatusCompleted, run.Status)
	require.NotEmpty(t, rec.events, "observers after the panicking one must still be notified")
}

// TestRunObserverContextSnapshots verifies events carry context snapshots
// that later mutations cannot change.
func TestRunObserverContextSnapshots(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	eng := New(Config{Observer: rec, Logger: testLogger()})

	g := &api.Graph{
		Name:  "snapshots",
		Start: "first",
		Nodes: map[string]*api.Node{
			"first":  fnNode("first", func(context.Context, map[string]any) (any, error) { return 1, nil }, "n"),
			"second": fnNode("second", func(context.Context, map[string]any) (any, error) { return 2, nil }, "n"),
		},
		Transitions: []*api.Transition{seq("first", "second")},
	}
	require.NoError(t, eng.RegisterGraph(g))

	_, err := eng.Run(context.Background(), "snapshots", nil)
	require.NoError(t, err)

	completed := rec.ofType(api.EventNodeCompleted)
	require.Len(t, completed, 2)
	require.Equal(t, 1, completed[0].Context["n"], "the first snapshot must not see the second write")
	require.Equal(t, 2, completed[1].Context["n"])
}

// TestRunDuplicateRegistration verifies a graph name registers only once.
func TestRunDuplicateRegistration(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "dup",
		Start: "a",
		Nodes: map[string]*api.Node{
			"a": fnNode("a", func(context.Context, map[string]any) (any, error) { return nil, nil }, ""),
		},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))
	require.Error(t, eng.RegisterGraph(g))
}

// TestRunInitialContextIsNotMutated verifies the caller's initial context
// map stays untouched; the run works on a clone.
func TestRunInitialContextIsNotMutated(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "cloned",
		Start: "write",
		Nodes: map[string]*api.Node{
			"write": fnNode("write", func(context.Context, map[string]any) (any, error) { return "x", nil }, "added"),
		},
	}

	eng := newTestEngine()
	require.NoError(t, eng.RegisterGraph(g))

	initial := api.Context{"seed": true}
	run, err := eng.Run(context.Background(), "cloned", initial)
	require.NoError(t, err)
	require.Equal(t, "x", run.Context["added"])
	require.NotContains(t, initial, "added")
}
