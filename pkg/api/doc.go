// Package api contains the core building blocks used by the loom workflow
// engine. It provides the low-level primitives for describing workflow
// graphs, resolving step functions, and observing engine behavior.
//
// Most users interact with the higher-level loom package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - The workflow graph (nodes, transitions, loops, convergence nodes)
//   - The context, a mutable key/value map threaded through a run
//   - Steps and step functions
//   - Observability
//
// These primitives are assembled by the higher-level Builder API in the loom
// package, but can also be used directly where fine-grained control is
// needed.
//
// # The Workflow Graph
//
// A Graph describes the structure of a workflow: its start node, a table of
// named nodes, and the transitions connecting them. Transitions may be
// unconditional, conditional (branching on the first matching predicate),
// or parallel (fanning out to several targets concurrently). Loop and
// convergence metadata is carried alongside so that the validator and the
// diagram exporter can reason about the graph's shape.
//
// Graphs are immutable once built and are never mutated by the engine; the
// same Graph value can safely back any number of concurrent runs.
//
// # Context and Steps
//
// A Context is the single input and output channel between nodes: each step
// reads its named parameters from the context and writes its result back,
// either under the node's output key or by merging a structured record.
//
// A StepFunc is the fundamental executable unit. It receives the resolved
// named inputs for its node and returns a value plus an error. Step bodies
// are opaque to the engine; calling remote services, rendering prompts or
// running shell commands all live behind the same signature.
//
// # Observability
//
// The api package defines the Observer interface, which receives one Event
// per lifecycle point of a run (workflow started/completed, node
// started/completed/failed, transition evaluated). Ready-made
// implementations cover logging, in-memory metrics, and fan-out to multiple
// observers with per-callback error isolation.
//
// # Usage
//
// Most applications should start from the loom package, using the Builder
// and the engine constructors provided there. The api package is useful when
// you need lower-level access, custom composition, or when contributing
// changes to the core engine.
package api
