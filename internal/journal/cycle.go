package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/deleteaudit/internal/audit"
)

// Cycle is one flush/reconcile run as recorded in the journal.
type Cycle struct {
	ID           string    `json:"id"`
	Seq          int64     `json:"seq"`
	Cause        string    `json:"cause"`
	Project      string    `json:"project"`
	StartedAt    time.Time `json:"started_at"`
	Drained      int       `json:"drained"`
	LogWritten   bool      `json:"log_written"`
	SnapshotRows int       `json:"snapshot_rows"`
	ReportRows   int       `json:"report_rows"`
	Unresolved   int       `json:"unresolved"`
	Outcome      string    `json:"outcome"`
}

// Record stores a cycle and, when its batch was dropped, the lost events,
// in one transaction. Re-recording the same cycle id is a no-op.
func (s *Store) Record(ctx context.Context, c Cycle, lost []audit.DeletionEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record cycle: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cycles
		(id, seq, cause, project, started_at, drained, log_written, snapshot_rows, report_rows, unresolved, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		c.ID,
		c.Seq,
		c.Cause,
		c.Project,
		c.StartedAt.Format(time.RFC3339Nano),
		c.Drained,
		boolToInt(c.LogWritten),
		c.SnapshotRows,
		c.ReportRows,
		c.Unresolved,
		c.Outcome,
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record cycle: rows affected: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	for i, ev := range lost {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lost_events (cycle_id, ord, project, element_id, deleted_at, operator)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.ID, i, ev.Project, ev.ElementID, ev.Time.Format(audit.TimeLayout), ev.User)
		if err != nil {
			return fmt.Errorf("record lost event %d: %w", ev.ElementID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record cycle: commit: %w", err)
	}
	return nil
}

// Cycles returns the most recent cycles, newest first. limit <= 0 returns all.
func (s *Store) Cycles(ctx context.Context, limit int) ([]Cycle, error) {
	query := `
		SELECT id, seq, cause, project, started_at, drained, log_written,
		       snapshot_rows, report_rows, unresolved, outcome
		FROM cycles
		ORDER BY seq DESC, id COLLATE BINARY ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []Cycle{}
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

func scanCycle(rows *sql.Rows) (Cycle, error) {
	var (
		c          Cycle
		startedAt  string
		logWritten int
	)
	if err := rows.Scan(&c.ID, &c.Seq, &c.Cause, &c.Project, &startedAt, &c.Drained, &logWritten,
		&c.SnapshotRows, &c.ReportRows, &c.Unresolved, &c.Outcome); err != nil {
		return Cycle{}, fmt.Errorf("scan cycle: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Cycle{}, fmt.Errorf("cycle %s: started_at: %w", c.ID, err)
	}
	c.StartedAt = ts
	c.LogWritten = logWritten != 0
	return c, nil
}

// LostEvents returns the dropped events recorded for a cycle, in batch order.
func (s *Store) LostEvents(ctx context.Context, cycleID string) ([]audit.DeletionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, element_id, deleted_at, operator
		FROM lost_events
		WHERE cycle_id = ?
		ORDER BY ord ASC
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query lost events: %w", err)
	}
	defer rows.Close()

	events := []audit.DeletionEvent{}
	for rows.Next() {
		var (
			ev        audit.DeletionEvent
			deletedAt string
		)
		if err := rows.Scan(&ev.Project, &ev.ElementID, &deletedAt, &ev.User); err != nil {
			return nil, fmt.Errorf("scan lost event: %w", err)
		}
		ts, err := time.ParseInLocation(audit.TimeLayout, deletedAt, time.Local)
		if err != nil {
			return nil, fmt.Errorf("lost event %d: %w", ev.ElementID, err)
		}
		ev.Time = ts
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lost events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest recorded cycle seq, or 0 for an empty journal.
// Used to resume the cycle clock after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM cycles").Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
