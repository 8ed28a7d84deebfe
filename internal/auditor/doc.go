// Package auditor wires the deletion audit pipeline into a host session.
//
// An Auditor listens to host lifecycle notifications. Edit callbacks only
// append to the event buffer. Flush cycles run on the auditor's ticker
// goroutine and synchronously inside checkpoint callbacks (open, synchronize,
// save); cycles are serialised so two triggers arriving together run one
// after the other.
//
// A cycle with pending deletions:
//
//  1. drains the buffer and appends the batch to the deletion log,
//  2. reconciles the log against the snapshot already on disk,
//  3. exports a fresh snapshot for the next cycle.
//
// Checkpoints export a snapshot even when nothing is pending. Reconciling
// before exporting keeps the snapshot one step behind the deletions, so the
// deleted elements are still described in it.
//
// Nothing in this package returns errors to the host. Failures are logged
// and, when a journal is configured, recorded there.
package auditor
