package harness

import (
	"fmt"
	"slices"

	"github.com/roach88/deleteaudit/internal/audit"
)

// Expect holds the checks of a scenario. Absent fields are not checked.
type Expect struct {
	// ReportRows is the number of data rows in the report.
	ReportRows *int `yaml:"report_rows,omitempty"`

	// Logged is the number of data rows in the deletion log.
	Logged *int `yaml:"logged,omitempty"`

	// Reported lists the element ids of the report, in order.
	Reported []int64 `yaml:"reported,omitempty"`

	// Pending is the final pending flag.
	Pending *bool `yaml:"pending,omitempty"`

	// Outcomes lists the journal outcome of every cycle, in order.
	Outcomes []string `yaml:"outcomes,omitempty"`

	// Lost is the number of events in abandoned batches.
	Lost *int `yaml:"lost,omitempty"`
}

// Check evaluates e against r and returns one message per failed check.
func (e *Expect) Check(r *Result) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	report, bad, err := audit.DecodeReport(r.Report)
	if err != nil || bad > 0 {
		fail("report unreadable: %d malformed rows, error %v", bad, err)
	}

	if e.ReportRows != nil && len(report) != *e.ReportRows {
		fail("report_rows: expected %d, got %d", *e.ReportRows, len(report))
	}
	if e.Reported != nil {
		ids := make([]int64, len(report))
		for i, row := range report {
			ids[i] = row.ElementID
		}
		if !slices.Equal(ids, e.Reported) {
			fail("reported: expected %v, got %v", e.Reported, ids)
		}
	}
	if e.Logged != nil {
		events, _, err := audit.DecodeDeletionLog(r.DeletionLog)
		if err != nil {
			fail("deletion log unreadable: %v", err)
		} else if len(events) != *e.Logged {
			fail("logged: expected %d, got %d", *e.Logged, len(events))
		}
	}
	if e.Pending != nil && r.Pending != *e.Pending {
		fail("pending: expected %t, got %t", *e.Pending, r.Pending)
	}
	if e.Outcomes != nil {
		got := make([]string, len(r.Cycles))
		for i, c := range r.Cycles {
			got[i] = c.Outcome
		}
		if !slices.Equal(got, e.Outcomes) {
			fail("outcomes: expected %v, got %v", e.Outcomes, got)
		}
	}
	if e.Lost != nil && len(r.Lost) != *e.Lost {
		fail("lost: expected %d, got %d", *e.Lost, len(r.Lost))
	}
	return failures
}
