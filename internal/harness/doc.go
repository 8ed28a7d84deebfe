// Package harness replays scripted host sessions against the audit pipeline.
//
// A scenario describes one document, the operator editing it, and a timeline
// of host notifications. The harness runs the real auditor over an in-memory
// filesystem with a fake clock and no back-off delays, then exposes the
// resulting tables and the journal of cycles.
//
// # Scenario Format
//
//	name: delete_then_tick
//	description: "Two deletions reconciled by the periodic flush"
//	project: Tower
//	user: ivanov
//	prefix: ar
//	date: "2024-05-14"
//	elements:
//	  - { id: 1, category: Levels, name: L1 }
//	  - { id: 101, category: Door, name: D1, level: 1 }
//	steps:
//	  - { at: "09:55", do: open }
//	  - { at: "10:00", do: delete, ids: [101] }
//	  - { at: "10:15", do: tick }
//	expect:
//	  report_rows: 1
//	  pending: false
//
// Steps are one of open, delete, save, sync, tick, shutdown, lock and
// unlock. lock and unlock take a file (log, snapshot or report) and make
// writes to it fail with a share violation until unlocked.
package harness
