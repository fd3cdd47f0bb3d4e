package api

// NodeKind discriminates the variants of a node. Exactly one variant is
// populated per node, mirroring the mutual-exclusivity rule of the document
// schema.
type NodeKind string

const (
	KindFunction    NodeKind = "function"
	KindSubWorkflow NodeKind = "sub_workflow"
	KindLLM         NodeKind = "llm"
	KindTemplate    NodeKind = "template"
)

// FunctionSpec backs a function node: a step function plus the registry name
// it was resolved from (empty for anonymous steps supplied directly to the
// builder).
type FunctionSpec struct {
	Name string
	Step StepFunc
}

// SubWorkflowSpec embeds an entire nested graph as a single node of the
// outer graph. Inputs maps outer context keys (or computed values) into the
// fresh inner context; Output names the inner context key projected back
// into the outer context under the node's output key.
type SubWorkflowSpec struct {
	Graph  *Graph
	Inputs InputsMapping
	Output string
}

// LLMConfig carries the prompt configuration of an LLM-backed node. The
// engine core never calls a completion service itself; execution is
// delegated to a pluggable factory (see the engine configuration).
type LLMConfig struct {
	Model          string  `yaml:"model" json:"model"`
	SystemPrompt   string  `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	PromptTemplate string  `yaml:"prompt_template" json:"prompt_template"`
	Temperature    float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens      int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// TemplateConfig carries the template of a template-rendering node.
// Templates use text/template syntax and are rendered against the node's
// resolved inputs.
type TemplateConfig struct {
	Template string `yaml:"template" json:"template"`
}

// Node is a named unit of work wrapping one step. Exactly one of Func, Sub,
// LLM and Template is set.
type Node struct {
	Name string

	Func     *FunctionSpec
	Sub      *SubWorkflowSpec
	LLM      *LLMConfig
	Template *TemplateConfig

	// Output is the context key the node's result is stored under. Empty
	// means a structured result is merged wholesale into the context.
	Output string

	// Inputs overrides how individual step parameters are resolved from
	// the context. Nil means every parameter is read under its own name.
	Inputs InputsMapping

	// Policy is the node's retry/timeout policy. The zero value means a
	// single unbounded attempt.
	Policy Policy

	// ParallelEligible marks the node as safe for concurrent execution
	// inside a parallel fan-out. It is carried for documents and tooling;
	// the engine derives concurrency from transitions, not from this flag.
	ParallelEligible bool
}

// Kind returns the populated variant of the node.
func (n *Node) Kind() NodeKind {
	switch {
	case n.Sub != nil:
		return KindSubWorkflow
	case n.LLM != nil:
		return KindLLM
	case n.Template != nil:
		return KindTemplate
	default:
		return KindFunction
	}
}

// Target is one destination of a transition, optionally guarded by a
// condition. Label carries the human-readable form of the condition for
// documents and diagrams; it has no runtime meaning.
type Target struct {
	To        string
	Condition Condition
	Label     string
}

// TransitionKind classifies how a transition's targets are interpreted.
type TransitionKind string

const (
	// TransitionSequential has a single target, possibly guarded.
	TransitionSequential TransitionKind = "sequential"
	// TransitionParallel fans out to every target concurrently.
	TransitionParallel TransitionKind = "parallel"
	// TransitionBranch selects the first target whose condition holds,
	// falling back to the default target.
	TransitionBranch TransitionKind = "branch"
)

// Transition is a directed edge (or edge group) out of a node.
//
// A single target means sequential flow. Multiple unconditional targets mean
// parallel fan-out. As soon as any target carries a condition the transition
// is a branch: the engine picks the first target whose condition evaluates
// true against the current context, else the Default target, else the run
// ends at this node.
type Transition struct {
	From    string
	Targets []Target

	// Default names the branch target taken when no condition matches.
	// The builder points it at the first branch pair when the caller does
	// not name one explicitly.
	Default string
}

// Kind classifies the transition from its targets.
func (t *Transition) Kind() TransitionKind {
	for _, tg := range t.Targets {
		if tg.Condition != nil {
			return TransitionBranch
		}
	}
	if len(t.Targets) > 1 {
		return TransitionParallel
	}
	return TransitionSequential
}

// Loop describes a cyclic region of the graph: its member nodes, the entry
// node the loop-back edge returns to, the exit condition evaluated after
// each full pass, and the node the workflow continues at once the condition
// holds. Loops nest; Nested lists loops opened inside this one.
type Loop struct {
	Nodes     []string
	EntryNode string
	Condition Condition
	// Label is the human-readable form of the exit condition.
	Label    string
	ExitNode string
	Nested   []*Loop
}

// Graph is the immutable description of a workflow: a start node, a table of
// named nodes, the transitions connecting them, and the loop/convergence
// metadata used by validation and tooling.
//
// A Graph is constructed once by the Builder (or the schema loader) and
// never mutated afterwards; all per-run state lives in the engine, so one
// Graph value can back any number of concurrent runs.
type Graph struct {
	Name        string
	Start       string
	Nodes       map[string]*Node
	Transitions []*Transition
	Loops       []*Loop

	// ConvergenceNodes are the nodes where parallel or branch paths are
	// expected to reunite. Execution uses them as join points for parallel
	// fan-out; validation checks they exist.
	ConvergenceNodes []string

	// Observers registered at build time. The engine copies this list into
	// its own observer chain when the graph is run.
	Observers []Observer
}

// Node returns the named node, or nil.
func (g *Graph) Node(name string) *Node {
	return g.Nodes[name]
}

// TransitionsFrom returns all transitions whose source is the given node, in
// insertion order.
func (g *Graph) TransitionsFrom(name string) []*Transition {
	var out []*Transition
	for _, t := range g.Transitions {
		if t.From == name {
			out = append(out, t)
		}
	}
	return out
}

// IsConvergence reports whether the named node is a registered convergence
// point.
func (g *Graph) IsConvergence(name string) bool {
	for _, n := range g.ConvergenceNodes {
		if n == name {
			return true
		}
	}
	return false
}

// ReachableSet walks the graph's own transitions from the given start node
// and returns every node name reached, including the start itself.
//
// For sub-workflow graphs this is the authoritative membership set: it is
// computed strictly from the sub-graph's start node and the sub-graph's own
// transitions, so nodes of an enclosing graph that happen to share a name
// are never pulled in.
func (g *Graph) ReachableSet(start string) map[string]bool {
	seen := make(map[string]bool)
	if start == "" {
		return seen
	}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		for _, t := range g.TransitionsFrom(current) {
			for _, tg := range t.Targets {
				if !seen[tg.To] {
					queue = append(queue, tg.To)
				}
			}
			if t.Default != "" && !seen[t.Default] {
				queue = append(queue, t.Default)
			}
		}
	}
	return seen
}
