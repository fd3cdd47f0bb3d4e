// Package validator checks the structural correctness of workflow graphs.
//
// Validation is a pure function over the graph: it executes nothing, mutates
// nothing, and never fails itself. It returns the full list of issues found,
// leaving the decision whether error-severity issues should abort to the
// caller.
package validator

import (
	"fmt"
	"sort"

	"github.com/loomwork/loom/pkg/api"
)

// Validate inspects a graph and returns every structural issue found, in a
// deterministic order: validating the same graph twice yields the identical
// list.
func Validate(g *api.Graph) []api.Issue {
	if g == nil {
		return []api.Issue{{Description: "graph is nil", Severity: api.SeverityError}}
	}
	var issues []api.Issue
	issues = append(issues, validateGraph(g, "")...)
	return issues
}

// validateGraph runs every check against one graph. prefix qualifies node
// names for issues found inside sub-workflows ("outer/inner").
func validateGraph(g *api.Graph, prefix string) []api.Issue {
	var issues []api.Issue

	qualify := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "/" + name
	}

	exists := func(name string) bool {
		_, ok := g.Nodes[name]
		return ok
	}

	// Start node.
	switch {
	case g.Start == "":
		issues = append(issues, api.Issue{
			Node:        qualify(""),
			Description: "start node is not set",
			Severity:    api.SeverityError,
		})
	case !exists(g.Start):
		issues = append(issues, api.Issue{
			Node:        qualify(g.Start),
			Description: fmt.Sprintf("start node %q is not defined", g.Start),
			Severity:    api.SeverityError,
		})
	}

	// Transition endpoints.
	for _, t := range g.Transitions {
		if !exists(t.From) {
			issues = append(issues, api.Issue{
				Node:        qualify(t.From),
				Description: fmt.Sprintf("transition source %q is not defined", t.From),
				Severity:    api.SeverityError,
			})
		}
		for _, tg := range t.Targets {
			if !exists(tg.To) {
				issues = append(issues, api.Issue{
					Node:        qualify(tg.To),
					Description: fmt.Sprintf("transition from %q targets undefined node %q", t.From, tg.To),
					Severity:    api.SeverityError,
				})
			}
		}
		if t.Default != "" && !exists(t.Default) {
			issues = append(issues, api.Issue{
				Node:        qualify(t.Default),
				Description: fmt.Sprintf("branch from %q defaults to undefined node %q", t.From, t.Default),
				Severity:    api.SeverityError,
			})
		}
	}

	// Node-kind checks, in sorted name order so output is deterministic.
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := g.Nodes[name]
		switch node.Kind() {
		case api.KindFunction:
			if node.Func == nil || node.Func.Step == nil {
				issues = append(issues, api.Issue{
					Node:        qualify(name),
					Description: fmt.Sprintf("function node %q references an undefined step %q", name, funcName(node)),
					Severity:    api.SeverityError,
				})
			}
		case api.KindSubWorkflow:
			issues = append(issues, validateSubWorkflow(name, node, qualify)...)
		}
	}

	// Loop membership.
	for _, loop := range g.Loops {
		issues = append(issues, validateLoop(g, loop, qualify)...)
	}

	// Convergence nodes.
	for _, name := range g.ConvergenceNodes {
		if !exists(name) {
			issues = append(issues, api.Issue{
				Node:        qualify(name),
				Description: fmt.Sprintf("convergence node %q is not defined", name),
				Severity:    api.SeverityError,
			})
		}
	}

	// Unreachable nodes: a warning, not an error.
	if g.Start != "" && exists(g.Start) {
		reachable := g.ReachableSet(g.Start)
		for _, name := range names {
			if !reachable[name] {
				issues = append(issues, api.Issue{
					Node:        qualify(name),
					Description: fmt.Sprintf("node %q is unreachable from the start node", name),
					Severity:    api.SeverityWarning,
				})
			}
		}
	}

	return issues
}

// validateSubWorkflow checks the embedded graph of a sub-workflow node. The
// membership set is computed strictly from the sub-graph's own start node
// and transitions, never from the enclosing graph's node table, so
// same-named outer nodes are never mistaken for sub-workflow members.
func validateSubWorkflow(name string, node *api.Node, qualify func(string) string) []api.Issue {
	var issues []api.Issue

	sub := node.Sub
	if sub.Graph == nil {
		return []api.Issue{{
			Node:        qualify(name),
			Description: fmt.Sprintf("sub-workflow node %q has no graph", name),
			Severity:    api.SeverityError,
		}}
	}

	inner := sub.Graph
	reachable := inner.ReachableSet(inner.Start)
	members := make([]string, 0, len(reachable))
	for member := range reachable {
		members = append(members, member)
	}
	sort.Strings(members)
	for _, member := range members {
		if _, ok := inner.Nodes[member]; !ok {
			issues = append(issues, api.Issue{
				Node:        qualify(name) + "/" + member,
				Description: fmt.Sprintf("sub-workflow %q reaches node %q which is not defined in the sub-workflow", name, member),
				Severity:    api.SeverityError,
			})
		}
	}

	// Recurse with qualified names so nested problems are attributable.
	issues = append(issues, validateGraph(inner, qualify(name))...)
	return issues
}

func validateLoop(g *api.Graph, loop *api.Loop, qualify func(string) string) []api.Issue {
	var issues []api.Issue

	check := func(name, role string) {
		if name == "" {
			return
		}
		if _, ok := g.Nodes[name]; !ok {
			issues = append(issues, api.Issue{
				Node:        qualify(name),
				Description: fmt.Sprintf("loop %s %q is not defined", role, name),
				Severity:    api.SeverityError,
			})
		}
	}

	for _, member := range loop.Nodes {
		check(member, "member")
	}
	check(loop.EntryNode, "entry node")
	check(loop.ExitNode, "exit node")

	for _, nested := range loop.Nested {
		issues = append(issues, validateLoop(g, nested, qualify)...)
	}
	return issues
}

func funcName(node *api.Node) string {
	if node.Func == nil {
		return ""
	}
	return node.Func.Name
}
