// Package snapshot dumps the live element set of a host document.
//
// A snapshot is a full O(element count) scan written in replace mode; it
// runs only from the flush context, never from the edit callback.
package snapshot

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/deleteaudit/internal/audit"
	"github.com/roach88/deleteaudit/internal/host"
	"github.com/roach88/deleteaudit/internal/persist"
)

// Exporter writes snapshot tables through a Persister.
type Exporter struct {
	persister *persist.Persister
	log       *slog.Logger
}

// New creates an Exporter.
func New(p *persist.Persister, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exporter{persister: p, log: log}
}

// Result reports an export. Rows is the number of rows built, whether or not
// the write succeeded.
type Result struct {
	persist.Result
	Rows int
}

// Rows builds snapshot rows for every non-type element of doc.
func Rows(doc host.Document) []audit.SnapshotRow {
	project := doc.Title()
	elements := doc.Elements()

	rows := make([]audit.SnapshotRow, 0, len(elements))
	for _, el := range elements {
		if el.IsType {
			continue
		}
		rows = append(rows, audit.SnapshotRow{
			Project:   project,
			ElementID: int64(el.ID),
			Category:  orUnknown(el.Category),
			Name:      el.Name,
			Level:     levelName(doc, el.LevelID),
		})
	}
	return rows
}

func levelName(doc host.Document, id host.ElementID) string {
	if id == host.InvalidElementID {
		return audit.Unknown
	}
	level, ok := doc.Element(id)
	if !ok {
		return audit.Unknown
	}
	return orUnknown(level.Name)
}

func orUnknown(s string) string {
	if s == "" {
		return audit.Unknown
	}
	return s
}

// Export replaces the snapshot table at paths.Snapshot with the current
// contents of doc.
func (e *Exporter) Export(ctx context.Context, doc host.Document, paths persist.Paths) Result {
	rows := Rows(doc)
	body, err := audit.EncodeSnapshot(rows)
	if err != nil {
		e.log.Error("encode snapshot", "project", paths.Project, "error", err)
		return Result{Result: persist.Result{Path: paths.Snapshot, Err: err}, Rows: len(rows)}
	}

	res := e.persister.Write(ctx, paths.Snapshot, persist.Replace, audit.EncodeHeader(audit.SnapshotHeader), body)
	if res.OK() {
		e.log.Debug("snapshot exported", "project", paths.Project, "rows", len(rows), "path", paths.Snapshot)
	}
	return Result{Result: res, Rows: len(rows)}
}
