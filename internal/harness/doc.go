// Package harness provides conformance testing for attribute inference.
//
// A scenario names a program description, the target it is analysed for and
// assertions over the attributes the pass infers. Each scenario runs the
// pass for real against a fresh in-memory store, so replay and trace
// assertions read back what was persisted.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	module: ../modules/propagation.cue
//	target:
//	  default_cpu: gfx900
//	  code_object_version: 5
//	assertions:
//	  - type: absent
//	    function: kernel
//	    names: [queue-ptr, dispatch-ptr]
//	  - type: present
//	    function: kernel
//	    names: [workitem-id-y]
//	  - type: uniform
//	    function: callee
//	    value: "false"
//	  - type: idempotent
//
// An inline program can be given under source instead of module.
//
// # Assertion Types
//
//   - absent, present: named hidden arguments are, or are not, proven unused
//   - absent_exact: the whole proven-unused set, in bit order
//   - uniform: the uniform-work-group-size verdict
//   - flat_work_group_size: the inferred range of a non-entry function
//   - has_attr, lacks_attr: the manifested attribute set
//   - changed, exhausted: run-level verdicts
//   - idempotent: a second run over the result changes nothing
//   - replay_matches: replaying the stored run reproduces its result hash
//   - trace_count: the number of stored trace events of a function
//
// # Deterministic Testing
//
// The harness uses:
//   - Fixed run IDs (from scenario.run_id or "test-run-default")
//   - The engine's logical clock for trace sequence numbers
//   - In-memory SQLite database (isolated per test)
//
// This ensures identical results across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/propagation.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
