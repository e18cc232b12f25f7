// Package harness runs scripted protocol scenarios against a simulated
// process fabric: one parent process, any number of content processes,
// all driven cooperatively from a single goroutine so every run is
// deterministic and golden-comparable.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: two_node_mirror
//	description: "A content tree is mirrored into the parent."
//	processes:
//	  - pid: parent
//	    role: parent
//	  - pid: web1
//	    role: content
//	steps:
//	  - op: create
//	    process: web1
//	    node: 1
//	    name: root
//	  - op: create
//	    process: web1
//	    node: 2
//	    parent: 1
//	    name: frame
//	asserts:
//	  - type: state
//	    process: parent
//	    node: 2
//	    state: active
//	  - type: children
//	    process: parent
//	    node: 1
//	    children: [2]
//
// A CUE topology file can replace the inline process list (and may also
// declare initial contexts); see the topology package.
//
// # Execution Model
//
// The runner drains every process loop after each step, parent first,
// then contents in declaration order, until the fabric is quiescent.
// Because bus delivery is synchronous and ordered, the interleaving —
// and therefore the journal trace — is fully determined by the step
// list. After each settle the runner sweeps all worlds for structural
// invariants (no dead children, consistent group live counts, orphaned
// roots) and records violations as failures.
//
// # Golden Traces
//
// CanonicalTrace serializes the journal trace with NFC-normalized text
// and stable field order; RunGolden compares it against a checked-in
// golden file, regenerated with -update.
package harness
