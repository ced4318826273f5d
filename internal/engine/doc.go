// Package engine is the bytecode navigation engine.
//
// It composes the elementary execution driver (single substrate steps) and
// the event detector into the navigation operations: step and reverse-step
// over bytecode instructions, advance and reverse-advance to function calls,
// and search for the last change to an object's attributes in either
// direction.
//
// Every operation is one synchronous loop:
//
//	step -> read state -> classify transition -> test predicate -> repeat
//
// A call starts from the substrate's current position and ends in exactly
// one terminal outcome (found, process exited, timeline boundary, budget
// exhausted, cancelled, introspection mismatch). Terminal outcomes are
// results, not errors; Navigate returns an error only for an invalid request
// or a substrate failure.
//
// State is never carried between calls. Frames and positions read during a
// call are copies that describe the target at that instant only, because the
// same address may hold a different frame once execution has moved.
//
// Calls on one Engine must be serialized by the caller. Interrupt may be
// called from any goroutine.
package engine
