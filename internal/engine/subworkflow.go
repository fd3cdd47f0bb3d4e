package engine

import (
	"context"

	"github.com/loomwork/loom/pkg/api"
)

// subWorkflowStep wraps a nested graph as an ordinary step. The inner run
// shares the outer run's observer chain, so nested lifecycle events surface
// to the same subscribers.
func (r *run) subWorkflowStep(node *api.Node) api.StepFunc {
	spec := node.Sub
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		if spec == nil || spec.Graph == nil {
			return nil, api.NewConfigError(node.Name, "sub-workflow node has no graph")
		}

		// Project the outer context through the input contract into a
		// fresh inner context. Only mapped parameters cross the boundary;
		// the inner graph's node namespace is fully isolated.
		inner := api.Context{}
		outer := api.Context(inputs)
		for param, src := range spec.Inputs {
			switch {
			case src.Compute != nil:
				inner[param] = src.Compute(outer)
			case src.FromKey != "":
				inner[param] = outer[src.FromKey]
			}
		}

		childRun, err := r.eng.runGraph(ctx, spec.Graph, inner, r.observers)
		if err != nil {
			return nil, err
		}

		if spec.Output != "" {
			return childRun.Context[spec.Output], nil
		}
		// No designated inner key: hand the whole inner context back as a
		// record, stored or merged per the node's own output contract.
		return map[string]any(childRun.Context), nil
	}
}
