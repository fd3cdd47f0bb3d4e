package diagram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/api"
)

func noop(context.Context, map[string]any) (any, error) { return nil, nil }

func fn(name string) *api.Node {
	return &api.Node{Name: name, Func: &api.FunctionSpec{Name: name, Step: noop}}
}

// TestMermaidShapesAndEdges verifies node shapes by kind, condition labels
// on branch edges, the default marker, and thick parallel edges.
func TestMermaidShapesAndEdges(t *testing.T) {
	t.Parallel()

	cond := func(api.Context) bool { return true }
	g := &api.Graph{
		Name:  "shapes",
		Start: "fetch",
		Nodes: map[string]*api.Node{
			"fetch":  fn("fetch"),
			"embed":  {Name: "embed", Sub: &api.SubWorkflowSpec{Graph: &api.Graph{Name: "inner"}}},
			"ask":    {Name: "ask", LLM: &api.LLMConfig{Model: "m", PromptTemplate: "p"}},
			"render": {Name: "render", Template: &api.TemplateConfig{Template: "t"}},
			"other":  fn("other"),
		},
		Transitions: []*api.Transition{
			{
				From: "fetch",
				Targets: []api.Target{
					{To: "ask", Condition: cond, Label: "needs_llm"},
					{To: "render"},
				},
				Default: "render",
			},
			{From: "ask", Targets: []api.Target{{To: "embed"}, {To: "other"}}},
		},
	}

	out := Mermaid(g)

	require.True(t, strings.HasPrefix(out, "graph TD\n"))
	require.Contains(t, out, `fetch(("fetch"))`, "start node renders as a circle")
	require.Contains(t, out, `embed[["embed"]]`, "sub-workflow renders as a subroutine")
	require.Contains(t, out, `ask[/"ask"/]`, "llm node renders as a parallelogram")
	require.Contains(t, out, `render>"render"]`, "template node renders as a flag")
	require.Contains(t, out, `other["other"]`)

	require.Contains(t, out, `fetch -- "needs_llm" --> ask`)
	require.Contains(t, out, `fetch -- "default" --> render`)
	require.Contains(t, out, `ask ==> embed`, "parallel edges render thick")
	require.Contains(t, out, `ask ==> other`)
}

// TestMermaidSanitizesIDs verifies awkward node names become valid Mermaid
// identifiers while labels keep the original text.
func TestMermaidSanitizesIDs(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "sanitized",
		Start: "fetch user.profile",
		Nodes: map[string]*api.Node{
			"fetch user.profile": fn("fetch user.profile"),
		},
	}

	out := Mermaid(g)
	require.Contains(t, out, `fetch_user_profile(("fetch user.profile"))`)
}

// TestMermaidDeterministic verifies repeated rendering yields identical
// text despite map-ordered nodes.
func TestMermaidDeterministic(t *testing.T) {
	t.Parallel()

	g := &api.Graph{
		Name:  "stable",
		Start: "a",
		Nodes: map[string]*api.Node{
			"a": fn("a"), "b": fn("b"), "c": fn("c"), "d": fn("d"),
		},
		Transitions: []*api.Transition{
			{From: "a", Targets: []api.Target{{To: "b"}}},
			{From: "b", Targets: []api.Target{{To: "c"}}},
			{From: "c", Targets: []api.Target{{To: "d"}}},
		},
	}

	first := Mermaid(g)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Mermaid(g))
	}
}
