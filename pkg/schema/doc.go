// Package schema defines the persisted document form of a workflow graph.
//
// A Document mirrors the wire layout exactly, in both YAML and JSON:
//
//	workflow:
//	  start: fetch
//	  transitions:
//	    - {from_node: fetch, to_node: classify}
//	    - from_node: classify
//	      to_node:
//	        - {to_node: summarize, condition: is_long}
//	        - {to_node: publish}
//	  convergence_nodes: [publish]
//	nodes:
//	  fetch: {function: fetch_doc, output: doc}
//	  classify: {function: classify_doc, retries: 2, delay: 0.1}
//	  summarize: {llm_config: {model: small, prompt_template: "..."}}
//	  publish: {function: publish_doc}
//	functions:
//	  fetch_doc: {type: embedded}
//
// A transition's to_node takes three forms: a plain string (sequential), a
// list of strings (parallel fan-out), or a list of {to_node, condition}
// records (branch; a record without a condition is the default target).
//
// Documents hold names, not code. Build resolves step and condition names
// through a Registry and produces an executable api.Graph; Export renders a
// graph back into a Document using the labels recorded on its transitions.
// Conditions do not round-trip as code, only as names.
package schema
