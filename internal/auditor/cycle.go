package auditor

import (
	"context"

	"github.com/roach88/deleteaudit/internal/audit"
	"github.com/roach88/deleteaudit/internal/journal"
	"github.com/roach88/deleteaudit/internal/persist"
)

// Cause names what triggered a flush cycle.
type Cause string

const (
	CauseTimer        Cause = "timer"
	CauseOpened       Cause = "opened"
	CauseSynchronized Cause = "synchronized"
	CauseSaved        Cause = "saved"
	CauseShutdown     Cause = "shutdown"
)

// Cycle outcomes as recorded in the journal.
const (
	OutcomeSnapshot         = "snapshot"
	OutcomeReconciled       = "reconciled"
	OutcomeReconcileSkipped = "reconcile_skipped"
	OutcomeReconcileFailed  = "reconcile_failed"
	OutcomeLogLost          = "log_lost"
	OutcomeNoDocument       = "no_document"
)

// runCycle performs one flush. forceExport is set by checkpoints, which
// always refresh the snapshot.
func (a *Auditor) runCycle(ctx context.Context, cause Cause, forceExport bool) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	pending := a.buf.Pending()
	if !pending && !forceExport {
		return
	}

	started := a.now()
	rec := journal.Cycle{
		ID:        a.ids.Generate(),
		Seq:       a.clock.Next(),
		Cause:     string(cause),
		StartedAt: started,
		Outcome:   OutcomeSnapshot,
	}
	log := a.log.With("cycle", rec.Seq, "cause", string(cause))

	doc := a.document()
	if doc == nil {
		// Events stay buffered until a document is known.
		rec.Outcome = OutcomeNoDocument
		log.Warn("flush skipped, no active document", "buffered", a.buf.Len())
		a.record(ctx, rec, nil)
		return
	}

	paths := a.layout.For(doc.Title(), started)
	rec.Project = paths.Project

	var lost []audit.DeletionEvent
	if pending {
		batch, _ := a.buf.DrainAll()
		rec.Drained = len(batch)

		// An empty batch still creates the log with its header, so a
		// pending flag left by a lost first batch can settle.
		body, err := audit.EncodeDeletionLog(batch)
		if err == nil {
			res := a.persister.Write(ctx, paths.DeletionLog, persist.Append, audit.EncodeHeader(audit.DeletionLogHeader), body)
			err = res.Err
		}
		switch {
		case err != nil && len(batch) > 0:
			// The batch is not requeued. It is recorded as lost instead.
			lost = batch
			rec.Outcome = OutcomeLogLost
			log.Error("deletion batch lost", "project", paths.Project, "events", len(batch), "error", err)
		case err != nil:
			log.Warn("deletion log header not written", "project", paths.Project, "error", err)
		default:
			rec.LogWritten = len(batch) > 0
		}

		out := a.reconciler.Reconcile(ctx, paths)
		switch {
		case out.Skipped:
			if rec.Outcome != OutcomeLogLost {
				rec.Outcome = OutcomeReconcileSkipped
			}
		case !out.OK():
			err := out.Err
			if err == nil {
				err = out.Write.Err
			}
			if rec.Outcome != OutcomeLogLost {
				rec.Outcome = OutcomeReconcileFailed
			}
			log.Error("reconcile failed", "project", paths.Project, "error", err)
		default:
			rec.ReportRows = out.Rows
			rec.Unresolved = out.Unresolved
			if rec.Outcome != OutcomeLogLost {
				rec.Outcome = OutcomeReconciled
			}
			if !a.buf.SettleIfEmpty() {
				log.Debug("deletions arrived during cycle, still pending")
			}
		}
	}

	// Export runs after reconcile so the join sees elements as they were
	// before this batch was deleted.
	exp := a.exporter.Export(ctx, doc, paths)
	if exp.OK() {
		rec.SnapshotRows = exp.Rows
	} else {
		log.Error("snapshot export failed", "project", paths.Project, "error", exp.Err)
	}

	log.Info("flush cycle",
		"project", paths.Project,
		"drained", rec.Drained,
		"snapshot_rows", rec.SnapshotRows,
		"report_rows", rec.ReportRows,
		"outcome", rec.Outcome,
	)
	a.record(ctx, rec, lost)
}

func (a *Auditor) record(ctx context.Context, c journal.Cycle, lost []audit.DeletionEvent) {
	if a.journal == nil {
		return
	}
	if err := a.journal.Record(ctx, c, lost); err != nil {
		a.log.Warn("journal record failed", "cycle", c.Seq, "error", err)
	}
}
