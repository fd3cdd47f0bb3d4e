// Package diagram renders workflow graphs as Mermaid flowchart text, an
// observability aid with no round-trip guarantee.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loomwork/loom/pkg/api"
)

// Mermaid produces a Mermaid flowchart from a graph.
// It applies semantic styling:
// - Start node: ((Circle))
// - Sub-workflow: [[Subroutine]]
// - LLM: [/Parallelogram/]
// - Template: [>Flag]
// - Function: [Rectangle]
// Conditions render as edge labels; parallel fan-out edges render thick.
func Mermaid(g *api.Graph) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := g.Nodes[name]
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch {
		case name == g.Start:
			opener, closer = "((", "))"
		case node.Kind() == api.KindSubWorkflow:
			opener, closer = "[[", "]]"
		case node.Kind() == api.KindLLM:
			opener, closer = "[/", "/]"
		case node.Kind() == api.KindTemplate:
			opener, closer = ">", "]"
		}

		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, name, closer))
	}

	for _, t := range g.Transitions {
		safeFrom := sanitizeMermaidID(t.From)
		parallel := t.Kind() == api.TransitionParallel

		for _, tg := range t.Targets {
			safeTo := sanitizeMermaidID(tg.To)

			arrow := "-->"
			if parallel {
				arrow = "==>"
			}
			if label := edgeLabel(t, tg); label != "" {
				safeLabel := strings.ReplaceAll(label, "\"", "'")
				arrow = fmt.Sprintf("-- \"%s\" -->", safeLabel)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeFrom, arrow, safeTo))
		}
	}

	return sb.String()
}

// edgeLabel chooses the label text for one target edge: the condition name
// when there is one, "default" for an unconditioned branch fallback.
func edgeLabel(t *api.Transition, tg api.Target) string {
	if tg.Label != "" {
		return tg.Label
	}
	if tg.Condition != nil {
		return "cond"
	}
	if t.Kind() == api.TransitionBranch && tg.To == t.Default {
		return "default"
	}
	return ""
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
