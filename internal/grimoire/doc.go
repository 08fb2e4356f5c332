// Package grimoire persists sigil pages and per-entity research state.
//
// The durable aggregate is a single JSON document:
//
//	{
//	  "pages":    [ { "demonId": "...", "sigils": [ ... ] } ],
//	  "research": { "<demonId>": <opaque payload> }
//	}
//
// A bare array of pages (the legacy shape) is accepted on read and treated as
// having no research.
//
// # Store Semantics
//
//   - Every operation reloads the aggregate from the Backend before answering.
//   - Every mutation writes the whole aggregate back.
//   - Status changes go through sigil.Transition; illegal edges are returned
//     as errors and nothing is written.
//   - Read failures (missing backend, corrupt payload) yield an empty
//     aggregate. Write failures are logged and swallowed; the unsaved aggregate
//     stays authoritative for this Store until a later write succeeds.
//
// A Store assumes a single active writer. Several processes sharing one
// database is not supported.
package grimoire
