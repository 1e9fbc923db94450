// Package harness runs acquisition scenarios described in YAML against a
// real acquisition.Manager.
//
// # Scenario Format
//
//	name: stop_mid_direction
//	description: "Stop during the second direction"
//	config: |
//	  frame_rate: 10
//	  directions: ["LR", "RL"]
//	  stimulus: {}
//	camera:
//	  fail_after: 12
//	flow:
//	  - action: start
//	  - action: advance
//	    frames: 14
//	  - action: stop
//	  - action: start
//	    expect_error: BUSY
//	assertions:
//	  - type: mode
//	    mode: idle
//	  - type: direction
//	    label: LR
//	    expect: { valid: true, pairs_stored: 10 }
//
// # Flow Actions
//
//   - start: Manager.Start with the scenario config
//   - stop: Manager.Stop
//   - set_mode: Manager.SetMode(mode)
//   - advance: let the capture loop take exactly frames pacer ticks
//   - wait: block until the manager emits event
//
// # Assertion Types
//
//   - mode: final Status().Mode (and sub_state when given)
//   - direction: subset match on the saved direction summary for label
//   - event_count: number of manager events of kind event
//   - last_error: fault kind of Status().LastError ("" for none)
//   - session: subset match on the saved session descriptor
//
// # Deterministic Execution
//
// The camera is simulated and stamped by a step clock at the configured
// frame period, session IDs come from a fixed sequence and the pacer only
// ticks when the flow says so. Two runs of one scenario therefore produce
// byte-identical snapshots, which RunWithGolden checks.
package harness
