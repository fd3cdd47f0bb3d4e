package schema

import (
	"context"

	"github.com/loomwork/loom/pkg/api"
)

// StubRegistry returns a registry that satisfies every function and
// condition name the document references, with do-nothing implementations.
// It exists for tooling that needs the graph's structure without its code:
// validation, diagram export, dry inspection. Graphs built against it must
// not be run.
func StubRegistry(doc *Document) *api.Registry {
	reg := api.NewRegistry()

	noopStep := func(ctx context.Context, inputs map[string]any) (any, error) { return nil, nil }
	falseCond := func(wc api.Context) bool { return false }

	var walk func(w WorkflowSection, nodes map[string]NodeDoc)
	var walkLoops func(loops []LoopDoc)

	walkLoops = func(loops []LoopDoc) {
		for _, l := range loops {
			if l.Condition != "" && !hasCondition(reg, l.Condition) {
				reg.MustRegisterCondition(l.Condition, falseCond)
			}
			walkLoops(l.NestedLoops)
		}
	}

	walk = func(w WorkflowSection, nodes map[string]NodeDoc) {
		for _, tr := range w.Transitions {
			if tr.Condition != "" && !hasCondition(reg, tr.Condition) {
				reg.MustRegisterCondition(tr.Condition, falseCond)
			}
			for _, tg := range tr.ToNode.Targets {
				if tg.Condition != "" && !hasCondition(reg, tg.Condition) {
					reg.MustRegisterCondition(tg.Condition, falseCond)
				}
			}
		}
		walkLoops(w.Loops)
		for _, nd := range nodes {
			if nd.Function != "" && !reg.HasStep(nd.Function) {
				reg.MustRegisterStep(nd.Function, noopStep)
			}
			if nd.SubWorkflow != nil {
				walk(nd.SubWorkflow.Workflow, nd.SubWorkflow.Nodes)
			}
		}
	}

	walk(doc.Workflow, doc.Nodes)
	return reg
}

func hasCondition(reg *api.Registry, name string) bool {
	_, err := reg.Condition(name)
	return err == nil
}
