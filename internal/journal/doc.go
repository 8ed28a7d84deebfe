// Package journal keeps a local SQLite record of audit cycles.
//
// The shared output folder is best-effort: a batch that cannot be appended
// after all retries is dropped. The journal records each cycle's outcome and
// the events of dropped batches so the loss is visible afterwards. It never
// requeues anything.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Reads are ordered by seq so listings are stable.
package journal
