package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Render formats a result as plain text: the three tables followed by one
// line per cycle. The output is deterministic for a given scenario.
func Render(r *Result) []byte {
	var buf bytes.Buffer
	section := func(title string, data []byte) {
		fmt.Fprintf(&buf, "## %s\n", title)
		if data == nil {
			buf.WriteString("(absent)\n")
		} else {
			buf.Write(data)
		}
		buf.WriteString("\n")
	}

	section("report", r.Report)
	section("deletion log", r.DeletionLog)
	section("snapshot", r.Snapshot)

	buf.WriteString("## cycles\n")
	for _, c := range r.Cycles {
		fmt.Fprintf(&buf, "%d %s %s %s drained=%d log=%t snapshot=%d report=%d unresolved=%d\n",
			c.Seq, c.StartedAt.Format("15:04:05"), c.Cause, c.Outcome,
			c.Drained, c.LogWritten, c.SnapshotRows, c.ReportRows, c.Unresolved)
	}
	fmt.Fprintf(&buf, "pending=%t buffered=%d lost=%d waits=%d\n", r.Pending, r.Buffered, len(r.Lost), r.Waits)
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares the rendered result
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Render(result))
	return result
}
