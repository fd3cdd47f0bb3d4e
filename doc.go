// Package loom provides a lightweight, embeddable workflow engine for Go.
//
// Loom is designed for backend services that need to orchestrate multi-step
// processes as explicit graphs of sequences, branches, parallel fan-outs,
// loops, and nested sub-workflows, without introducing external
// infrastructure. It runs fully in Go and integrates cleanly into existing
// codebases.
//
// # Core Concepts
//
// The Loom programming model is intentionally small and idiomatic:
//
//  1. Graph
//  2. Engine
//  3. Builder
//  4. StepFunc
//  5. Observer
//
// These components form a complete orchestration system with a shared
// workflow context, structural validation, and a clear mental model.
//
// # Graph
//
// A Graph is the static description of a workflow: a node table, a start
// node, transitions between nodes, and optional loop and convergence
// metadata. Graphs are plain data; they execute nothing on their own and can
// be validated, serialized, and rendered as diagrams.
//
// # Engine
//
// The Engine registers graphs and runs them. A run walks the graph from the
// start node, executing each node's step against a shared workflow context,
// evaluating transition conditions, fanning out parallel branches, and
// recursing into sub-workflows. Every run produces a Run record with the
// final status, context, and failure details.
//
// Engines are safe for concurrent use; each run carries its own state.
//
// # Builder
//
// New returns a Builder, the fluent API used to define graphs:
//
//	g := loom.New("review").
//	    Step("fetch", fetchDoc).
//	    Define("summarize", summarize).
//	    Define("publish", publish).
//	    Branch([]loom.Case{
//	        {To: "summarize", When: isLong},
//	        {To: "publish", When: isShort},
//	    }).
//	    Then("publish").
//	    Build()
//
// Builder methods panic on structural misuse (duplicate names, dangling
// branches) so malformed graphs fail at definition time, not run time.
//
// # StepFunc
//
// A StepFunc is the fundamental executable unit of a workflow:
//
//	type StepFunc func(ctx context.Context, inputs map[string]any) (any, error)
//
// Steps receive a snapshot of the workflow context, optionally reshaped by an
// inputs mapping, and return a value that is merged back into the context.
// Typed wraps strongly-typed Go functions so steps can work with structs
// instead of maps.
//
// # Observer
//
// Observers receive lifecycle events for every run: workflow start and
// completion, node start, completion and failure, and transition decisions.
// A panicking observer never affects the run. Built-in observers cover
// structured logging, basic metrics, and append-only run history (in-memory
// or SQLite).
//
// # Summary
//
// Loom's goal is to give Go developers a workflow engine that feels like Go:
// easy to embed, easy to test, deterministic where it can be, and without
// operational overhead. Graphs describe workflows, the Engine runs them,
// the Builder defines them, StepFuncs contain business logic, and Observers
// watch everything happen.
//
// For examples, see the /examples directory or the project README.
package loom
