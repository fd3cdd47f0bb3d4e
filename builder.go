package loom

import (
	"fmt"

	"github.com/loomwork/loom/pkg/api"
)

// Builder provides a fluent API for assembling workflow graphs:
//
//	graph := loom.New("OnboardUser").
//	    Step("createAccount", createAccount, loom.WithOutput("account")).
//	    Step("sendWelcomeEmail", sendWelcomeEmail).
//	    Build()
//
// Every call returns the builder so calls compose. The builder threads an
// explicit cursor (current position, open branch targets, open parallel
// ends, open loop scopes) rather than hiding that state, so each call's
// effect on the graph is fully determined by the cursor it sees.
//
// Builder calls panic on structural misuse (empty names, nil steps,
// mismatched loop scopes), in the same spirit as a malformed literal;
// semantic problems are the validator's job.
type Builder struct {
	graph *api.Graph
	cur   cursor
}

// cursor is the builder's explicit position state.
type cursor struct {
	// position is the node new edges start from; empty while a parallel
	// fan-out is open or before the first node is wired.
	position string

	// branches holds the open branch targets awaiting convergence by the
	// next Then call.
	branches []string

	// open holds the dangling ends of a parallel fan-out awaiting
	// Converge.
	open []string

	// loops is the LIFO stack of open loop scopes.
	loops []*loopFrame
}

type loopFrame struct {
	nodes  []string
	nested []*api.Loop
}

// Case is one (target, condition) pair of a branch.
type Case struct {
	To    string
	When  api.Condition
	Label string
}

// NodeOption customizes a node added through the builder.
type NodeOption func(*api.Node)

// WithOutput stores the node's result under the given context key instead of
// merging a structured result.
func WithOutput(key string) NodeOption {
	return func(n *api.Node) { n.Output = key }
}

// WithInputs overrides how the node's parameters are resolved from the
// context.
func WithInputs(m api.InputsMapping) NodeOption {
	return func(n *api.Node) { n.Inputs = m }
}

// WithPolicy sets the node's retry/timeout policy.
func WithPolicy(p api.Policy) NodeOption {
	return func(n *api.Node) { n.Policy = p }
}

// WithParallelEligible marks the node as safe for concurrent execution.
func WithParallelEligible() NodeOption {
	return func(n *api.Node) { n.ParallelEligible = true }
}

// BranchOption customizes a Branch call.
type BranchOption func(*branchConfig)

type branchConfig struct {
	defaultTo string
	next      string
}

// WithDefault names the branch target taken when no condition matches.
// Without it, the first case's target is the default.
func WithDefault(name string) BranchOption {
	return func(c *branchConfig) { c.defaultTo = name }
}

// WithNext converges all branch targets onto the given node immediately,
// instead of leaving the builder in the open-branch state consumed by the
// next Then.
func WithNext(name string) BranchOption {
	return func(c *branchConfig) { c.next = name }
}

// New creates a builder for a graph with the given name.
func New(name string) *Builder {
	if name == "" {
		panic("loom: graph name must not be empty")
	}
	return &Builder{
		graph: &api.Graph{
			Name:  name,
			Nodes: make(map[string]*api.Node),
		},
	}
}

// Graph returns the graph under construction. Typically callers use Build,
// which also checks that no loop scope is left open.
func (b *Builder) Graph() *api.Graph {
	return b.graph
}

// Build finalizes the graph. It panics when a loop scope is still open,
// since the resulting graph could never validate.
func (b *Builder) Build() *api.Graph {
	if len(b.cur.loops) > 0 {
		panic(fmt.Sprintf("loom: Build with %d unclosed loop scope(s); EndLoop calls must match StartLoop", len(b.cur.loops)))
	}
	return b.graph
}

// Step defines a function node and wires it at the current position.
func (b *Builder) Step(name string, fn api.StepFunc, opts ...NodeOption) *Builder {
	if fn == nil {
		panic(fmt.Sprintf("loom: step %q has nil function", name))
	}
	b.define(name, &api.Node{Func: &api.FunctionSpec{Name: name, Step: fn}}, opts)
	return b.Node(name)
}

// StepLLM defines an LLM-configured node and wires it at the current
// position. Executing it requires an LLM step factory on the engine.
func (b *Builder) StepLLM(name string, cfg api.LLMConfig, opts ...NodeOption) *Builder {
	b.define(name, &api.Node{LLM: &cfg}, opts)
	return b.Node(name)
}

// StepTemplate defines a template-rendering node and wires it at the current
// position.
func (b *Builder) StepTemplate(name string, cfg api.TemplateConfig, opts ...NodeOption) *Builder {
	b.define(name, &api.Node{Template: &cfg}, opts)
	return b.Node(name)
}

// AddSubWorkflow defines a sub-workflow node embedding the given graph and
// wires it at the current position. inputs projects the outer context into
// the fresh inner context; output names the inner context key projected back
// under the node's own output key.
func (b *Builder) AddSubWorkflow(name string, inner *api.Graph, inputs api.InputsMapping, output string, opts ...NodeOption) *Builder {
	if inner == nil {
		panic(fmt.Sprintf("loom: sub-workflow %q has nil graph", name))
	}
	b.define(name, &api.Node{Sub: &api.SubWorkflowSpec{Graph: inner, Inputs: inputs, Output: output}}, opts)
	return b.Node(name)
}

// Define registers a function node without wiring it into the flow, for use
// as a branch, parallel, or sequence target.
func (b *Builder) Define(name string, fn api.StepFunc, opts ...NodeOption) *Builder {
	if fn == nil {
		panic(fmt.Sprintf("loom: step %q has nil function", name))
	}
	b.define(name, &api.Node{Func: &api.FunctionSpec{Name: name, Step: fn}}, opts)
	return b
}

// Sequence wires the named (already defined) nodes one after another from
// the current position. A requested next node equal to the current position
// is silently skipped: the builder never emits a self-transition, which
// guards against accidental cycles from copy/paste.
func (b *Builder) Sequence(names ...string) *Builder {
	for _, name := range names {
		b.Node(name)
	}
	return b
}

// Node wires the named node at the current position with an unconditional
// transition and moves the cursor to it. Inside an open loop scope the node
// is also recorded as a loop member. The self-transition guard applies.
func (b *Builder) Node(name string) *Builder {
	if name == "" {
		panic("loom: node name must not be empty")
	}
	b.wire(name, nil, "")
	return b
}

// Then is Node plus branch convergence: when the builder is in the
// open-branch state left by a Branch call without WithNext, Then adds a
// transition from every branch target to the given node and clears the
// branching state.
func (b *Builder) Then(name string) *Builder {
	if name == "" {
		panic("loom: node name must not be empty")
	}
	if len(b.cur.branches) > 0 {
		for _, from := range b.cur.branches {
			b.addEdge(from, name, nil, "")
		}
		b.cur.branches = nil
		b.cur.position = name
		b.trackLoopMember(name)
		return b
	}
	return b.Node(name)
}

// ThenIf wires the named node behind a condition: the transition is taken
// only when the predicate holds against the context at evaluation time.
func (b *Builder) ThenIf(name string, cond api.Condition) *Builder {
	if name == "" {
		panic("loom: node name must not be empty")
	}
	if cond == nil {
		panic(fmt.Sprintf("loom: condition for %q is nil", name))
	}
	b.wire(name, cond, "")
	return b
}

// Branch adds one conditional transition per case from the current position.
// The engine picks the first case whose condition holds, else the default
// target: the explicit WithDefault target, or the first case's target when
// none is named. No duplicate edge is added when the default target already
// appears among the cases.
//
// Without WithNext the builder enters the open-branch state and sets the
// position to the first case's target; the next Then converges every branch
// target and clears the state.
func (b *Builder) Branch(cases []Case, opts ...BranchOption) *Builder {
	if len(cases) == 0 {
		panic("loom: Branch requires at least one case")
	}
	from := b.position("Branch")

	var cfg branchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &api.Transition{From: from}
	targets := make([]string, 0, len(cases)+1)
	for _, c := range cases {
		if c.To == "" {
			panic("loom: branch case has empty target")
		}
		if c.When == nil {
			panic(fmt.Sprintf("loom: branch case for %q has nil condition", c.To))
		}
		t.Targets = append(t.Targets, api.Target{To: c.To, Condition: c.When, Label: c.Label})
		targets = append(targets, c.To)
	}

	if cfg.defaultTo == "" {
		t.Default = cases[0].To
	} else {
		t.Default = cfg.defaultTo
		if !contains(targets, cfg.defaultTo) {
			t.Targets = append(t.Targets, api.Target{To: cfg.defaultTo})
			targets = append(targets, cfg.defaultTo)
		}
	}
	b.graph.Transitions = append(b.graph.Transitions, t)

	if cfg.next != "" {
		for _, target := range targets {
			b.addEdge(target, cfg.next, nil, "")
		}
		b.cur.position = cfg.next
		b.trackLoopMember(cfg.next)
		return b
	}

	b.cur.branches = targets
	b.cur.position = cases[0].To
	return b
}

// Parallel fans out from the current position to every listed node
// concurrently. The cursor position becomes undefined (multiple open ends)
// until Converge is called.
func (b *Builder) Parallel(names ...string) *Builder {
	if len(names) < 2 {
		panic("loom: Parallel requires at least two targets")
	}
	from := b.position("Parallel")

	t := &api.Transition{From: from}
	for _, name := range names {
		if name == "" {
			panic("loom: parallel target must not be empty")
		}
		t.Targets = append(t.Targets, api.Target{To: name})
	}
	b.graph.Transitions = append(b.graph.Transitions, t)

	b.cur.open = append([]string(nil), names...)
	b.cur.position = ""
	return b
}

// Converge closes an open parallel fan-out: it adds a transition from every
// dangling open end to the given node, records the node as a convergence
// point, and moves the cursor there.
func (b *Builder) Converge(name string) *Builder {
	if name == "" {
		panic("loom: convergence node name must not be empty")
	}
	if len(b.cur.open) == 0 {
		panic("loom: Converge without an open Parallel fan-out")
	}
	for _, from := range b.cur.open {
		b.addEdge(from, name, nil, "")
	}
	if !contains(b.graph.ConvergenceNodes, name) {
		b.graph.ConvergenceNodes = append(b.graph.ConvergenceNodes, name)
	}
	b.cur.open = nil
	b.cur.position = name
	b.trackLoopMember(name)
	return b
}

// StartLoop opens a loop scope anchored at the current position. Subsequent
// Node/Step calls accumulate as loop members until the matching EndLoop.
// Loop scopes nest and must be closed in LIFO order.
func (b *Builder) StartLoop() *Builder {
	b.position("StartLoop") // a loop must be anchored somewhere
	b.cur.loops = append(b.cur.loops, &loopFrame{})
	return b
}

// EndLoop closes the innermost open loop scope. It emits the loop-back
// transition (last member back to the entry node, gated by the negation of
// cond) and the exit transition (gated by cond) to exitNode, records the
// loop metadata, and moves the cursor to the exit node.
func (b *Builder) EndLoop(cond api.Condition, exitNode string) *Builder {
	return b.EndLoopLabeled(cond, "", exitNode)
}

// EndLoopLabeled is EndLoop with a human-readable condition label carried
// into documents and diagrams.
func (b *Builder) EndLoopLabeled(cond api.Condition, label, exitNode string) *Builder {
	if cond == nil {
		panic("loom: EndLoop requires an exit condition")
	}
	if exitNode == "" {
		panic("loom: EndLoop requires an exit node")
	}
	depth := len(b.cur.loops)
	if depth == 0 {
		panic("loom: EndLoop without a matching StartLoop")
	}
	frame := b.cur.loops[depth-1]
	b.cur.loops = b.cur.loops[:depth-1]

	if len(frame.nodes) == 0 {
		panic("loom: EndLoop on a loop with no member nodes")
	}
	entry := frame.nodes[0]
	last := frame.nodes[len(frame.nodes)-1]

	negLabel := ""
	if label != "" {
		negLabel = "!(" + label + ")"
	}
	b.graph.Transitions = append(b.graph.Transitions, &api.Transition{
		From: last,
		Targets: []api.Target{
			{To: entry, Condition: api.Not(cond), Label: negLabel},
			{To: exitNode, Condition: cond, Label: label},
		},
	})

	loop := &api.Loop{
		Nodes:     append([]string(nil), frame.nodes...),
		EntryNode: entry,
		Condition: cond,
		Label:     label,
		ExitNode:  exitNode,
		Nested:    frame.nested,
	}
	if parent := b.openLoop(); parent != nil {
		parent.nested = append(parent.nested, loop)
		// The inner loop participates in the outer body through its entry
		// node; control re-enters the outer body at the inner exit node, so
		// the exit node must be the frame's last member or the outer
		// loop-back edge would collide with the inner loop branch.
		if !contains(parent.nodes, entry) {
			parent.nodes = append(parent.nodes, entry)
		}
		if !contains(parent.nodes, exitNode) {
			parent.nodes = append(parent.nodes, exitNode)
		}
	} else {
		b.graph.Loops = append(b.graph.Loops, loop)
	}

	b.cur.position = exitNode
	return b
}

// AddObserver subscribes an observer to every run of the built graph.
func (b *Builder) AddObserver(obs api.Observer) *Builder {
	if obs != nil {
		b.graph.Observers = append(b.graph.Observers, obs)
	}
	return b
}

// --- internals ---

func (b *Builder) define(name string, node *api.Node, opts []NodeOption) {
	if name == "" {
		panic("loom: node name must not be empty")
	}
	if _, exists := b.graph.Nodes[name]; exists {
		panic(fmt.Sprintf("loom: node %q already defined", name))
	}
	node.Name = name
	for _, opt := range opts {
		opt(node)
	}
	b.graph.Nodes[name] = node
}

// wire connects the current position to the named node and advances the
// cursor, applying the self-transition guard and loop-member tracking.
func (b *Builder) wire(name string, cond api.Condition, label string) {
	from := b.cur.position
	switch {
	case from != "":
		b.addEdge(from, name, cond, label)
	case b.graph.Start == "":
		b.graph.Start = name
	case len(b.cur.open) > 0:
		panic("loom: position undefined while a Parallel fan-out is open; call Converge first")
	}
	b.cur.position = name
	b.trackLoopMember(name)
}

// addEdge appends a transition unless it would be a self-transition.
// Skipping self-edges silently is the documented idempotence guard against
// accidental cycles.
func (b *Builder) addEdge(from, to string, cond api.Condition, label string) {
	if from == to {
		return
	}
	b.graph.Transitions = append(b.graph.Transitions, &api.Transition{
		From:    from,
		Targets: []api.Target{{To: to, Condition: cond, Label: label}},
	})
}

func (b *Builder) trackLoopMember(name string) {
	frame := b.openLoop()
	if frame == nil {
		return
	}
	if !contains(frame.nodes, name) {
		frame.nodes = append(frame.nodes, name)
	}
}

func (b *Builder) openLoop() *loopFrame {
	if len(b.cur.loops) == 0 {
		return nil
	}
	return b.cur.loops[len(b.cur.loops)-1]
}

func (b *Builder) position(op string) string {
	if b.cur.position == "" {
		panic(fmt.Sprintf("loom: %s requires a current position; wire a node first", op))
	}
	return b.cur.position
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
