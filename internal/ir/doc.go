// Package ir provides the shared data model for bytecode-level navigation.
//
// This package contains type definitions and serialization helpers only.
// All other internal packages import ir; ir imports nothing internal, which
// keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Frames, instructions and attribute snapshots are read views. They are
//     rebuilt from the target's memory at every position and never cached
//     across positions: the same address may hold a different logical frame
//     after further stepping.
//   - Positions are totally ordered along one recorded execution (Seq).
//   - Attribute values are compared by identity (object address), never by
//     deep equality.
//   - All JSON tags use snake_case.
package ir
