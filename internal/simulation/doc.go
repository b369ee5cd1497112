// Package simulation replays scripted input against the real render loop
// under a fake clock.
//
// A Scenario lists timed steps (stimulations and canvas clicks) plus optional
// parameter overrides. The Runner drives loop.Step on a deterministic frame
// grid, inserting an extra frame at every step time, and collects the
// published frames into a Result. The same harness backs the `simulate`
// command and the package's property tests.
//
// Usage:
//
//	sc, err := simulation.ParseScenario([]byte(`
//	name: fire-once
//	steps:
//	  - at: 0s
//	    stimulate: [input1]
//	  - at: 10ms
//	    stimulate: [input2]
//	`))
//	res, err := simulation.NewRunner().Run(ctx, sc)
//	simulation.AssertFiredAt(t, res, 10*time.Millisecond)
package simulation
