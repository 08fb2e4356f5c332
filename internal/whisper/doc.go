// Package whisper decides how often intrusive messages surface and what they say.
//
// Interval and Due are the pure timing decisions; Generate samples a message.
// All randomness comes through a RandomSource supplied by the caller so tests
// can script it. The timer loop itself lives with the caller.
package whisper
