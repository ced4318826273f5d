// Package store provides SQLite-backed durable storage for recordings.
//
// A recording is stored as:
//   - recordings: one row per execution (build, exit state, live flag)
//   - symbols: the symbol table the substrate resolves names with
//   - segments: the initial memory image, one CBOR blob per segment
//   - steps: one row per elementary step, its write list as a CBOR blob
//
// # Ordering
//
// Steps are keyed by (recording_id, seq) and always read ORDER BY seq ASC.
// Recordings are listed ORDER BY created_seq ASC, a logical counter assigned
// on insert, never a timestamp.
//
// # Live recordings
//
// A recording written with Live set accepts AppendStep until MarkFinished.
// Reading a live recording returns the steps appended so far.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
