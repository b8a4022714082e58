// Package harness runs pass-pipeline conformance scenarios.
//
// A scenario loads a design, runs passes over one namespace and checks the
// outcome with assertions. The run is journaled to an in-memory SQLite store
// under a fixed run id and a fresh logical clock, so the trace read back from
// the journal is identical on every execution and can be compared against a
// golden file.
//
// # Scenario Format
//
//	name: addtree_elaboration
//	description: "addtree elaborates recursively and shares identical subtrees"
//	design: designs/adder        # CUE module dir, relative to the scenario file
//	source: |                    # or an inline CUE design
//	  namespace: global: module: ...
//	namespace: global
//	passes: [rungenerators, createinstancemap]
//	print: [createinstancemap]
//	expect_error: CONFIG_MISMATCH
//	assertions:
//	  - type: module_exists
//	    module: core.addtree__n2__width8
//	  - type: instance_target
//	    instance: global.Top.sum
//	    module: core.addtree__n2__width8
//	  - type: elaboration_count
//	    generator: core.addtree
//	    count: 2
//	  - type: no_generator_instances
//	  - type: pass_order
//	    passes: [rungenerators, createinstancemap]
//	  - type: print_contains
//	    pass: createinstancemap
//	    text: "sum"
//	  - type: diagnostic
//	    code: CONFIG_MISMATCH
//
// # Golden Files
//
// The snapshot of a result is canonical JSON holding the scenario name, the
// executed passes, the journal trace and the printed pass results.
package harness
