package audit

import "time"

// TimeLayout is the timestamp format used in the deletion log and the report.
const TimeLayout = "2006-01-02 15:04:05"

// Unknown is written when a category or level cannot be resolved.
const Unknown = "Unknown"

// Table headers.
var (
	DeletionLogHeader = []string{"Project Name", "Element ID", "Time", "User"}
	SnapshotHeader    = []string{"Project Name", "Element ID", "Element Type", "Element Name", "Level"}
	ReportHeader      = []string{"Project Name", "Element ID", "Element Type", "Element Name", "Level", "Time", "User"}
)

// DeletionEvent records one element removed from the host document.
// Events are immutable once created.
type DeletionEvent struct {
	Project   string
	Time      time.Time
	ElementID int64
	User      string
}

// SnapshotRow describes one element as it existed when the snapshot was taken.
type SnapshotRow struct {
	Project   string
	ElementID int64
	Category  string
	Name      string
	Level     string
}

// ReconciledRow is a deletion event resolved against a snapshot row.
type ReconciledRow struct {
	Project   string
	ElementID int64
	Category  string
	Name      string
	Level     string
	Time      time.Time
	User      string
}

// Resolve joins a deletion event with the snapshot row that describes it.
func Resolve(ev DeletionEvent, row SnapshotRow) ReconciledRow {
	return ReconciledRow{
		Project:   ev.Project,
		ElementID: ev.ElementID,
		Category:  row.Category,
		Name:      row.Name,
		Level:     row.Level,
		Time:      ev.Time,
		User:      ev.User,
	}
}

// Describe extracts the element description carried by a report row.
func (r ReconciledRow) Describe() SnapshotRow {
	return SnapshotRow{
		Project:   r.Project,
		ElementID: r.ElementID,
		Category:  r.Category,
		Name:      r.Name,
		Level:     r.Level,
	}
}
