package schema

import (
	"fmt"
	"time"

	"github.com/loomwork/loom/pkg/api"
)

// Build resolves a document into an executable graph. Step and condition
// names are looked up in the registry; a missing name fails the build.
func Build(doc *Document, reg *api.Registry) (*api.Graph, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	name := doc.Name
	if name == "" {
		name = "workflow"
	}
	return buildSection(name, doc.Workflow, doc.Nodes, reg)
}

func buildSection(name string, w WorkflowSection, nodes map[string]NodeDoc, reg *api.Registry) (*api.Graph, error) {
	g := &api.Graph{
		Name:             name,
		Start:            w.Start,
		Nodes:            make(map[string]*api.Node, len(nodes)),
		ConvergenceNodes: w.ConvergenceNodes,
	}

	for nodeName, nd := range nodes {
		n := &api.Node{
			Name:             nodeName,
			Output:           nd.Output,
			Inputs:           buildInputs(nd.InputsMapping),
			ParallelEligible: nd.Parallel,
			Policy: api.Policy{
				MaxRetries: nd.Retries,
				Delay:      seconds(nd.Delay),
				Timeout:    seconds(nd.Timeout),
			},
		}
		switch {
		case nd.Function != "":
			step, err := reg.Step(nd.Function)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", nodeName, err)
			}
			n.Func = &api.FunctionSpec{Name: nd.Function, Step: step}
		case nd.SubWorkflow != nil:
			inner, err := buildSection(nodeName, nd.SubWorkflow.Workflow, nd.SubWorkflow.Nodes, reg)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", nodeName, err)
			}
			n.Sub = &api.SubWorkflowSpec{
				Graph:  inner,
				Inputs: buildInputs(nd.SubWorkflow.InputsMapping),
				Output: nd.SubWorkflow.Output,
			}
		case nd.LLMConfig != nil:
			n.LLM = nd.LLMConfig
		case nd.TemplateConfig != nil:
			n.Template = nd.TemplateConfig
		}
		g.Nodes[nodeName] = n
	}

	for i, tr := range w.Transitions {
		t, err := buildTransition(tr, reg)
		if err != nil {
			return nil, fmt.Errorf("transition %d from %q: %w", i, tr.FromNode, err)
		}
		g.Transitions = append(g.Transitions, t)
	}

	loops, err := buildLoops(w.Loops, reg)
	if err != nil {
		return nil, err
	}
	g.Loops = loops

	return g, nil
}

func buildTransition(tr TransitionDoc, reg *api.Registry) (*api.Transition, error) {
	t := &api.Transition{From: tr.FromNode}

	switch tr.ToNode.Form {
	case FormSingle:
		tg := api.Target{To: tr.ToNode.Targets[0].ToNode}
		if tr.Condition != "" {
			cond, err := reg.Condition(tr.Condition)
			if err != nil {
				return nil, err
			}
			tg.Condition = cond
			tg.Label = tr.Condition
		}
		t.Targets = []api.Target{tg}

	case FormParallel:
		for _, rec := range tr.ToNode.Targets {
			t.Targets = append(t.Targets, api.Target{To: rec.ToNode})
		}

	case FormBranch:
		for _, rec := range tr.ToNode.Targets {
			tg := api.Target{To: rec.ToNode}
			if rec.Condition != "" {
				cond, err := reg.Condition(rec.Condition)
				if err != nil {
					return nil, err
				}
				tg.Condition = cond
				tg.Label = rec.Condition
			} else if t.Default == "" {
				// A record without a condition marks the default.
				t.Default = rec.ToNode
			}
			t.Targets = append(t.Targets, tg)
		}
		if t.Default == "" && len(t.Targets) > 0 {
			t.Default = t.Targets[0].To
		}
	}

	return t, nil
}

func buildLoops(docs []LoopDoc, reg *api.Registry) ([]*api.Loop, error) {
	var out []*api.Loop
	for _, ld := range docs {
		cond, err := reg.Condition(ld.Condition)
		if err != nil {
			return nil, fmt.Errorf("loop over %v: %w", ld.Nodes, err)
		}
		entry := ld.EntryNode
		if entry == "" && len(ld.Nodes) > 0 {
			entry = ld.Nodes[0]
		}
		nested, err := buildLoops(ld.NestedLoops, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, &api.Loop{
			Nodes:     ld.Nodes,
			EntryNode: entry,
			Condition: cond,
			Label:     ld.Condition,
			ExitNode:  ld.ExitNode,
			Nested:    nested,
		})
	}
	return out, nil
}

func buildInputs(m map[string]string) api.InputsMapping {
	if len(m) == 0 {
		return nil
	}
	out := make(api.InputsMapping, len(m))
	for param, key := range m {
		out[param] = api.FromKey(key)
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Export renders a graph back into its document form. Conditions are
// exported by the labels recorded on targets and loops; a condition without
// a label exports as an empty name, so code-level predicates do not round
// trip. Computed input sources are likewise dropped.
func Export(g *api.Graph) *Document {
	doc := &Document{
		Name:     g.Name,
		Workflow: exportSection(g),
		Nodes:    make(map[string]NodeDoc, len(g.Nodes)),
	}

	for name, n := range g.Nodes {
		nd := exportNode(n)
		doc.Nodes[name] = nd
		if n.Func != nil {
			if doc.Functions == nil {
				doc.Functions = make(map[string]FunctionDoc)
			}
			doc.Functions[n.Func.Name] = FunctionDoc{Type: FunctionEmbedded}
		}
	}

	return doc
}

func exportSection(g *api.Graph) WorkflowSection {
	w := WorkflowSection{
		Start:            g.Start,
		ConvergenceNodes: g.ConvergenceNodes,
		Loops:            exportLoops(g.Loops),
	}
	for _, t := range g.Transitions {
		w.Transitions = append(w.Transitions, exportTransition(t))
	}
	return w
}

func exportTransition(t *api.Transition) TransitionDoc {
	td := TransitionDoc{FromNode: t.From}

	switch t.Kind() {
	case api.TransitionSequential:
		tg := t.Targets[0]
		td.ToNode = Single(tg.To)
		td.Condition = tg.Label

	case api.TransitionParallel:
		names := make([]string, len(t.Targets))
		for i, tg := range t.Targets {
			names[i] = tg.To
		}
		td.ToNode = Parallel(names...)

	case api.TransitionBranch:
		var recs []TargetDoc
		defaultListed := false
		for _, tg := range t.Targets {
			rec := TargetDoc{ToNode: tg.To, Condition: tg.Label}
			if tg.Condition == nil && tg.To == t.Default {
				defaultListed = true
			}
			recs = append(recs, rec)
		}
		if t.Default != "" && !defaultListed && !hasTarget(t.Targets, t.Default) {
			recs = append(recs, TargetDoc{ToNode: t.Default})
		}
		td.ToNode = Branch(recs...)
	}

	return td
}

func hasTarget(targets []api.Target, name string) bool {
	for _, tg := range targets {
		if tg.To == name {
			return true
		}
	}
	return false
}

func exportLoops(loops []*api.Loop) []LoopDoc {
	var out []LoopDoc
	for _, l := range loops {
		out = append(out, LoopDoc{
			Nodes:       l.Nodes,
			Condition:   l.Label,
			ExitNode:    l.ExitNode,
			EntryNode:   l.EntryNode,
			NestedLoops: exportLoops(l.Nested),
		})
	}
	return out
}

func exportNode(n *api.Node) NodeDoc {
	nd := NodeDoc{
		Output:   n.Output,
		Retries:  n.Policy.MaxRetries,
		Delay:    n.Policy.Delay.Seconds(),
		Timeout:  n.Policy.Timeout.Seconds(),
		Parallel: n.ParallelEligible,
	}
	if n.Inputs != nil {
		nd.InputsMapping = exportInputs(n.Inputs)
	}

	switch n.Kind() {
	case api.KindFunction:
		nd.Function = n.Func.Name
	case api.KindSubWorkflow:
		inner := n.Sub.Graph
		nd.SubWorkflow = &SubWorkflowDoc{
			Workflow:      exportSection(inner),
			Nodes:         make(map[string]NodeDoc, len(inner.Nodes)),
			InputsMapping: exportInputs(n.Sub.Inputs),
			Output:        n.Sub.Output,
		}
		for name, in := range inner.Nodes {
			nd.SubWorkflow.Nodes[name] = exportNode(in)
		}
	case api.KindLLM:
		nd.LLMConfig = n.LLM
	case api.KindTemplate:
		nd.TemplateConfig = n.Template
	}

	return nd
}

func exportInputs(m api.InputsMapping) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string)
	for param, src := range m {
		if src.FromKey != "" {
			out[param] = src.FromKey
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
