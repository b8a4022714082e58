// Package store provides a SQLite-backed journal of pass-manager runs.
//
// The journal is append-only and records:
//   - Runs: one row per Manager.Run call, with the requested passes and status
//   - Pass runs: every pass execution inside a run
//   - Elaborations: every (generator, args) pair realized as a module
//
// # Ordering
//
// Pass runs and elaborations are ordered by seq, the manager's logical clock,
// never by wall time. Queries read ORDER BY seq ASC, id ASC so that two
// journals of the same run compare equal.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Store implements pass.Journal.
package store
