// Package reconcile joins the deletion log with the latest snapshot into the
// human-readable deleted-elements report.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/deleteaudit/internal/audit"
	"github.com/roach88/deleteaudit/internal/persist"
)

// Reconciler reads and writes one project output folder at a time.
type Reconciler struct {
	persister    *persist.Persister
	log          *slog.Logger
	carryForward bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCarryForward controls whether ids missing from the current snapshot
// keep the description they had in the previous report. Enabled by default.
func WithCarryForward(on bool) Option {
	return func(r *Reconciler) { r.carryForward = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Reconciler.
func New(p *persist.Persister, opts ...Option) *Reconciler {
	r := &Reconciler{
		persister:    p,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		carryForward: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Outcome reports a reconcile run.
type Outcome struct {
	// Skipped is set when the deletion log or the snapshot does not exist yet.
	Skipped bool
	JoinStats
	Rows      int
	Malformed int
	// Err is set when an input could not be read or decoded.
	Err   error
	Write persist.Result
}

// OK reports whether a report was written.
func (o Outcome) OK() bool {
	return !o.Skipped && o.Err == nil && o.Write.OK()
}

// Reconcile rebuilds the report for paths. Missing inputs make it a no-op;
// the next cycle tries again once both files exist.
func (r *Reconciler) Reconcile(ctx context.Context, paths persist.Paths) Outcome {
	if !r.persister.Exists(paths.DeletionLog) || !r.persister.Exists(paths.Snapshot) {
		r.log.Debug("reconcile skipped, inputs missing", "project", paths.Project)
		return Outcome{Skipped: true}
	}

	var out Outcome

	logData, res := r.persister.Read(ctx, paths.DeletionLog)
	if !res.OK() {
		out.Err = fmt.Errorf("read deletion log: %w", res.Err)
		return out
	}
	snapData, res := r.persister.Read(ctx, paths.Snapshot)
	if !res.OK() {
		out.Err = fmt.Errorf("read snapshot: %w", res.Err)
		return out
	}

	events, bad, err := audit.DecodeDeletionLog(logData)
	if err != nil {
		out.Err = err
		return out
	}
	out.Malformed += bad

	snapshot, bad, err := audit.DecodeSnapshot(snapData)
	if err != nil {
		out.Err = err
		return out
	}
	out.Malformed += bad

	previous := r.previousReport(ctx, paths)

	rows, stats := Join(events, snapshot, previous)
	out.JoinStats = stats
	out.Rows = len(rows)

	body, err := audit.EncodeReport(rows)
	if err != nil {
		out.Err = err
		return out
	}
	out.Write = r.persister.Write(ctx, paths.Report, persist.Replace, audit.EncodeHeader(audit.ReportHeader), body)

	if out.Malformed > 0 {
		r.log.Warn("skipped malformed rows", "project", paths.Project, "count", out.Malformed)
	}
	if out.Write.OK() {
		r.log.Info("report written",
			"project", paths.Project,
			"rows", out.Rows,
			"carried_forward", stats.CarriedForward,
			"unresolved", stats.Unresolved,
		)
	}
	return out
}

// previousReport loads the existing report for carry-forward. Any problem
// reading it just means nothing is carried.
func (r *Reconciler) previousReport(ctx context.Context, paths persist.Paths) []audit.ReconciledRow {
	if !r.carryForward || !r.persister.Exists(paths.Report) {
		return nil
	}
	data, res := r.persister.Read(ctx, paths.Report)
	if !res.OK() {
		return nil
	}
	rows, _, err := audit.DecodeReport(data)
	if err != nil {
		r.log.Warn("previous report unreadable", "path", paths.Report, "error", err)
		return nil
	}
	return rows
}
