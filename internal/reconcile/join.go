package reconcile

import "github.com/roach88/deleteaudit/internal/audit"

// JoinStats counts how deletion-log ids were resolved.
type JoinStats struct {
	Resolved       int
	CarriedForward int
	Unresolved     int
}

// Join resolves deletion events against snapshot rows by element id.
//
// Both inputs are grouped first-seen-wins. Output follows the order in which
// ids first appear in events. An id missing from the snapshot falls back to
// its description in previous (an earlier report) and is otherwise dropped.
func Join(events []audit.DeletionEvent, snapshot []audit.SnapshotRow, previous []audit.ReconciledRow) ([]audit.ReconciledRow, JoinStats) {
	described := make(map[int64]audit.SnapshotRow, len(snapshot))
	for _, row := range snapshot {
		if _, ok := described[row.ElementID]; !ok {
			described[row.ElementID] = row
		}
	}

	carried := make(map[int64]audit.SnapshotRow, len(previous))
	for _, row := range previous {
		if _, ok := carried[row.ElementID]; !ok {
			carried[row.ElementID] = row.Describe()
		}
	}

	var stats JoinStats
	seen := make(map[int64]bool, len(events))
	out := make([]audit.ReconciledRow, 0, len(events))
	for _, ev := range events {
		if seen[ev.ElementID] {
			continue
		}
		seen[ev.ElementID] = true

		if row, ok := described[ev.ElementID]; ok {
			out = append(out, audit.Resolve(ev, row))
			stats.Resolved++
			continue
		}
		if row, ok := carried[ev.ElementID]; ok {
			out = append(out, audit.Resolve(ev, row))
			stats.CarriedForward++
			continue
		}
		stats.Unresolved++
	}
	return out, stats
}
