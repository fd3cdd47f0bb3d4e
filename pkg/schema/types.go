package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/loomwork/loom/pkg/api"
)

// Document is the persisted form of a workflow graph.
type Document struct {
	// Name is optional on the wire; Build falls back to "workflow" when
	// absent.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Workflow WorkflowSection `json:"workflow" yaml:"workflow"`

	Nodes map[string]NodeDoc `json:"nodes" yaml:"nodes"`

	// Functions describes where each named function comes from. Embedded
	// functions are resolved through the registry at build time; external
	// ones additionally record their module and function of origin.
	Functions map[string]FunctionDoc `json:"functions,omitempty" yaml:"functions,omitempty"`

	Observers    []string `json:"observers,omitempty" yaml:"observers,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// WorkflowSection holds the graph topology.
type WorkflowSection struct {
	Start            string          `json:"start" yaml:"start"`
	Transitions      []TransitionDoc `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Loops            []LoopDoc       `json:"loops,omitempty" yaml:"loops,omitempty"`
	ConvergenceNodes []string        `json:"convergence_nodes,omitempty" yaml:"convergence_nodes,omitempty"`
}

// TransitionDoc is one outgoing edge set of a node. Condition guards the
// whole transition when ToNode is a single target; branch targets carry
// their own conditions inside ToNode.
type TransitionDoc struct {
	FromNode  string     `json:"from_node" yaml:"from_node"`
	ToNode    TargetList `json:"to_node" yaml:"to_node"`
	Condition string     `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// TargetDoc is one {to_node, condition} record of a branch list. An empty
// condition marks the branch default.
type TargetDoc struct {
	ToNode    string `json:"to_node" yaml:"to_node"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// TargetForm records which of the three wire shapes a to_node value used,
// so documents round-trip byte-compatibly.
type TargetForm int

const (
	// FormSingle is a plain string: sequential transition.
	FormSingle TargetForm = iota
	// FormParallel is a list of strings: parallel fan-out.
	FormParallel
	// FormBranch is a list of {to_node, condition} records.
	FormBranch
)

// TargetList is the polymorphic to_node value of a transition.
type TargetList struct {
	Form    TargetForm
	Targets []TargetDoc
}

// Single returns a sequential target list.
func Single(to string) TargetList {
	return TargetList{Form: FormSingle, Targets: []TargetDoc{{ToNode: to}}}
}

// Parallel returns a fan-out target list.
func Parallel(to ...string) TargetList {
	tl := TargetList{Form: FormParallel}
	for _, t := range to {
		tl.Targets = append(tl.Targets, TargetDoc{ToNode: t})
	}
	return tl
}

// Branch returns a conditional target list.
func Branch(targets ...TargetDoc) TargetList {
	return TargetList{Form: FormBranch, Targets: targets}
}

func (t TargetList) MarshalYAML() (any, error) {
	switch t.Form {
	case FormSingle:
		if len(t.Targets) != 1 {
			return nil, fmt.Errorf("single to_node needs exactly one target, got %d", len(t.Targets))
		}
		return t.Targets[0].ToNode, nil
	case FormParallel:
		names := make([]string, len(t.Targets))
		for i, tg := range t.Targets {
			names[i] = tg.ToNode
		}
		return names, nil
	default:
		return t.Targets, nil
	}
}

func (t *TargetList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var to string
		if err := value.Decode(&to); err != nil {
			return err
		}
		*t = Single(to)
		return nil
	case yaml.SequenceNode:
		if len(value.Content) == 0 {
			return fmt.Errorf("to_node list must not be empty")
		}
		if value.Content[0].Kind == yaml.ScalarNode {
			var names []string
			if err := value.Decode(&names); err != nil {
				return err
			}
			*t = Parallel(names...)
			return nil
		}
		var targets []TargetDoc
		if err := value.Decode(&targets); err != nil {
			return err
		}
		*t = Branch(targets...)
		return nil
	default:
		return fmt.Errorf("to_node must be a string, a string list, or a record list")
	}
}

func (t TargetList) MarshalJSON() ([]byte, error) {
	v, err := t.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (t *TargetList) UnmarshalJSON(data []byte) error {
	var to string
	if err := json.Unmarshal(data, &to); err == nil {
		*t = Single(to)
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		*t = Parallel(names...)
		return nil
	}
	var targets []TargetDoc
	if err := json.Unmarshal(data, &targets); err == nil {
		*t = Branch(targets...)
		return nil
	}
	return fmt.Errorf("to_node must be a string, a string list, or a record list")
}

// LoopDoc records one cyclic region of the graph.
type LoopDoc struct {
	Nodes       []string  `json:"nodes" yaml:"nodes"`
	Condition   string    `json:"condition" yaml:"condition"`
	ExitNode    string    `json:"exit_node" yaml:"exit_node"`
	EntryNode   string    `json:"entry_node,omitempty" yaml:"entry_node,omitempty"`
	NestedLoops []LoopDoc `json:"nested_loops,omitempty" yaml:"nested_loops,omitempty"`
}

// NodeDoc is the persisted form of one node. Exactly one of Function,
// SubWorkflow, LLMConfig and TemplateConfig must be set.
type NodeDoc struct {
	Function       string              `json:"function,omitempty" yaml:"function,omitempty"`
	SubWorkflow    *SubWorkflowDoc     `json:"sub_workflow,omitempty" yaml:"sub_workflow,omitempty"`
	LLMConfig      *api.LLMConfig      `json:"llm_config,omitempty" yaml:"llm_config,omitempty"`
	TemplateConfig *api.TemplateConfig `json:"template_config,omitempty" yaml:"template_config,omitempty"`

	// InputsMapping renames step parameters to context keys. Computed
	// sources are code and never appear on the wire.
	InputsMapping map[string]string `json:"inputs_mapping,omitempty" yaml:"inputs_mapping,omitempty"`

	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`

	// Delay and Timeout are seconds, fractional values allowed.
	Delay   float64 `json:"delay,omitempty" yaml:"delay,omitempty"`
	Timeout float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// SubWorkflowDoc embeds a nested workflow with its own node namespace.
type SubWorkflowDoc struct {
	Workflow WorkflowSection    `json:"workflow" yaml:"workflow"`
	Nodes    map[string]NodeDoc `json:"nodes" yaml:"nodes"`

	// InputsMapping projects outer context keys into the fresh inner
	// context; Output names the inner key returned as the node's result.
	InputsMapping map[string]string `json:"inputs_mapping,omitempty" yaml:"inputs_mapping,omitempty"`
	Output        string            `json:"output,omitempty" yaml:"output,omitempty"`
}

// FunctionDoc records the origin of a named function.
type FunctionDoc struct {
	// Type is "embedded" or "external".
	Type     string `json:"type" yaml:"type"`
	Code     string `json:"code,omitempty" yaml:"code,omitempty"`
	Module   string `json:"module,omitempty" yaml:"module,omitempty"`
	Function string `json:"function,omitempty" yaml:"function,omitempty"`
}

const (
	FunctionEmbedded = "embedded"
	FunctionExternal = "external"
)

// Validate checks the document's internal consistency: the exactly-one-of
// rule per node, referenced node existence, and function origin types. It
// returns an AggregateError describing every defect, or nil.
func (d *Document) Validate() error {
	var errs []error
	report := func(path, reason string) {
		errs = append(errs, &DocumentError{Path: path, Reason: reason})
	}

	validateSection(d.Workflow, d.Nodes, "", report)

	for name, fn := range d.Functions {
		if fn.Type != FunctionEmbedded && fn.Type != FunctionExternal {
			report("functions."+name, fmt.Sprintf("type must be %q or %q, got %q", FunctionEmbedded, FunctionExternal, fn.Type))
		}
	}

	return aggregate(errs)
}

func validateSection(w WorkflowSection, nodes map[string]NodeDoc, prefix string, report func(path, reason string)) {
	at := func(path string) string {
		if prefix == "" {
			return path
		}
		return prefix + "." + path
	}

	if w.Start == "" {
		report(at("workflow.start"), "start node is required")
	} else if _, ok := nodes[w.Start]; !ok {
		report(at("workflow.start"), fmt.Sprintf("start node %q is not in the node table", w.Start))
	}

	for i, tr := range w.Transitions {
		loc := at(fmt.Sprintf("workflow.transitions[%d]", i))
		if _, ok := nodes[tr.FromNode]; !ok {
			report(loc, fmt.Sprintf("from_node %q is not in the node table", tr.FromNode))
		}
		for _, tg := range tr.ToNode.Targets {
			if _, ok := nodes[tg.ToNode]; !ok {
				report(loc, fmt.Sprintf("to_node %q is not in the node table", tg.ToNode))
			}
		}
	}

	for name, node := range nodes {
		loc := at("nodes." + name)
		set := 0
		if node.Function != "" {
			set++
		}
		if node.SubWorkflow != nil {
			set++
		}
		if node.LLMConfig != nil {
			set++
		}
		if node.TemplateConfig != nil {
			set++
		}
		switch set {
		case 1:
		case 0:
			report(loc, "one of function, sub_workflow, llm_config or template_config is required")
		default:
			report(loc, "function, sub_workflow, llm_config and template_config are mutually exclusive")
		}
		if node.Retries < 0 {
			report(loc, "retries must not be negative")
		}
		if node.SubWorkflow != nil {
			validateSection(node.SubWorkflow.Workflow, node.SubWorkflow.Nodes, loc+".sub_workflow", report)
		}
	}
}
