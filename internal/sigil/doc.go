// Package sigil defines the Sigil value type and its lifecycle state machine.
//
// A sigil moves through a fixed transition graph:
//
//	draft -> complete -> resting -> awakened -> charged -> spent
//
// with three backward edges (resting -> complete, awakened -> resting,
// charged -> awakened). spent is terminal. The graph is held as data in
// the transitions table; Transition is the only function that changes a
// sigil's status and it never persists anything. Committing an accepted
// transition is the grimoire store's job.
//
// Geometry and connection data produced by the drawing subsystem are kept
// in Sigil.Extra and passed through untouched.
package sigil
