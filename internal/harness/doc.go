// Package harness runs scripted game timelines against the core and records
// a deterministic trace.
//
// A scenario is a YAML file listing steps (create, transition, charge,
// advance, corrupt, tick) and final-state assertions. Each run gets a fresh
// in-memory grimoire, a manual clock starting at the unix epoch and a scripted
// random source, so the same file always produces the same trace. Traces are
// compared against golden files under testdata/golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
