package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deleteaudit/internal/audit"
	"github.com/roach88/deleteaudit/internal/persist"
	"github.com/roach88/deleteaudit/internal/testutil"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 5, 14, hour, min, 0, 0, time.Local)
}

func deletion(id int64, ts time.Time) audit.DeletionEvent {
	return audit.DeletionEvent{Project: "Tower", Time: ts, ElementID: id, User: "ivanov"}
}

func described(id int64, category, name, level string) audit.SnapshotRow {
	return audit.SnapshotRow{Project: "Tower", ElementID: id, Category: category, Name: name, Level: level}
}

type fixture struct {
	fs    afero.Fs
	p     *persist.Persister
	paths persist.Paths
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	return &fixture{
		fs:    fs,
		p:     persist.New(fs, persist.WithSleep((&testutil.Sleeper{}).Sleep)),
		paths: persist.Layout{Root: "/share", Prefix: "ar"}.For("Tower", at(0, 0)),
	}
}

func (f *fixture) writeLog(t *testing.T, events ...audit.DeletionEvent) {
	t.Helper()
	body, err := audit.EncodeDeletionLog(events)
	require.NoError(t, err)
	res := f.p.Write(context.Background(), f.paths.DeletionLog, persist.Append, audit.EncodeHeader(audit.DeletionLogHeader), body)
	require.True(t, res.OK())
}

func (f *fixture) writeSnapshot(t *testing.T, rows ...audit.SnapshotRow) {
	t.Helper()
	body, err := audit.EncodeSnapshot(rows)
	require.NoError(t, err)
	res := f.p.Write(context.Background(), f.paths.Snapshot, persist.Replace, audit.EncodeHeader(audit.SnapshotHeader), body)
	require.True(t, res.OK())
}

func (f *fixture) report(t *testing.T) []byte {
	t.Helper()
	data, err := afero.ReadFile(f.fs, f.paths.Report)
	require.NoError(t, err)
	return data
}

func TestJoin_DropsUnmatched(t *testing.T) {
	events := []audit.DeletionEvent{deletion(1, at(10, 0)), deletion(2, at(10, 1)), deletion(3, at(10, 2))}
	snapshot := []audit.SnapshotRow{described(1, "Door", "D1", "L1"), described(2, "Wall", "W1", "L1")}

	rows, stats := Join(events, snapshot, nil)

	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].ElementID)
	assert.Equal(t, int64(2), rows[1].ElementID)
	assert.Equal(t, JoinStats{Resolved: 2, Unresolved: 1}, stats)
}

func TestJoin_FirstSeenWins(t *testing.T) {
	events := []audit.DeletionEvent{deletion(7, at(10, 0)), deletion(7, at(11, 0))}
	snapshot := []audit.SnapshotRow{described(7, "Door", "first", "L1"), described(7, "Door", "second", "L2")}

	rows, _ := Join(events, snapshot, nil)

	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0].Name)
	assert.True(t, rows[0].Time.Equal(at(10, 0)))
}

func TestJoin_OrderFollowsDeletionLog(t *testing.T) {
	events := []audit.DeletionEvent{deletion(30, at(10, 0)), deletion(10, at(10, 1)), deletion(20, at(10, 2))}
	snapshot := []audit.SnapshotRow{described(10, "A", "a", "L"), described(20, "B", "b", "L"), described(30, "C", "c", "L")}

	rows, _ := Join(events, snapshot, nil)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{30, 10, 20}, []int64{rows[0].ElementID, rows[1].ElementID, rows[2].ElementID})
}

func TestReconcile_Scenario(t *testing.T) {
	f := newFixture(t)
	f.writeSnapshot(t, described(101, "Door", "D1", "L1"), described(202, "Wall", "W3", "L2"), described(303, "Floor", "F1", "L1"))
	f.writeLog(t, deletion(101, at(10, 0)), deletion(202, at(10, 5)))

	out := New(f.p).Reconcile(context.Background(), f.paths)
	require.True(t, out.OK())
	assert.Equal(t, 2, out.Rows)
	assert.Zero(t, out.Unresolved)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "door_and_wall", f.report(t))
}

func TestReconcile_JoinCorrectness(t *testing.T) {
	f := newFixture(t)
	f.writeSnapshot(t, described(1, "Door", "D1", "L1"), described(2, "Wall", "W1", "L1"))
	f.writeLog(t, deletion(1, at(10, 0)), deletion(2, at(10, 1)), deletion(3, at(10, 2)))

	out := New(f.p).Reconcile(context.Background(), f.paths)
	require.True(t, out.OK())
	assert.Equal(t, 2, out.Rows)
	assert.Equal(t, 1, out.Unresolved)

	rows, _, err := audit.DecodeReport(f.report(t))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].ElementID)
	assert.Equal(t, int64(2), rows[1].ElementID)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.writeSnapshot(t, described(1, "Door", "D1", "L1"), described(2, "Wall", "W1", "L1"))
	f.writeLog(t, deletion(1, at(10, 0)), deletion(2, at(10, 1)), deletion(9, at(10, 2)))
	r := New(f.p)

	require.True(t, r.Reconcile(context.Background(), f.paths).OK())
	first := f.report(t)
	require.True(t, r.Reconcile(context.Background(), f.paths).OK())
	second := f.report(t)

	assert.Equal(t, first, second)
}

func TestReconcile_MissingInputsIsNoop(t *testing.T) {
	t.Run("no snapshot", func(t *testing.T) {
		f := newFixture(t)
		f.writeLog(t, deletion(1, at(10, 0)))

		out := New(f.p).Reconcile(context.Background(), f.paths)
		assert.True(t, out.Skipped)
		assert.False(t, out.OK())
		assert.NoError(t, out.Err)
		assert.False(t, f.p.Exists(f.paths.Report))
	})

	t.Run("no deletion log", func(t *testing.T) {
		f := newFixture(t)
		f.writeSnapshot(t, described(1, "Door", "D1", "L1"))

		out := New(f.p).Reconcile(context.Background(), f.paths)
		assert.True(t, out.Skipped)
		assert.False(t, f.p.Exists(f.paths.Report))
	})
}

func TestReconcile_CarryForward(t *testing.T) {
	f := newFixture(t)
	f.writeSnapshot(t, described(101, "Door", "D1", "L1"), described(202, "Wall", "W3", "L2"))
	f.writeLog(t, deletion(101, at(10, 0)))
	r := New(f.p)
	require.True(t, r.Reconcile(context.Background(), f.paths).OK())

	// The next snapshot no longer contains 101; 202 is deleted afterwards.
	f.writeSnapshot(t, described(202, "Wall", "W3", "L2"))
	f.writeLog(t, deletion(202, at(10, 5)))

	out := r.Reconcile(context.Background(), f.paths)
	require.True(t, out.OK())
	assert.Equal(t, JoinStats{Resolved: 1, CarriedForward: 1}, out.JoinStats)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "door_and_wall", f.report(t))
}

func TestReconcile_CarryForwardDisabled(t *testing.T) {
	f := newFixture(t)
	f.writeSnapshot(t, described(101, "Door", "D1", "L1"))
	f.writeLog(t, deletion(101, at(10, 0)))
	r := New(f.p, WithCarryForward(false))
	require.True(t, r.Reconcile(context.Background(), f.paths).OK())

	f.writeSnapshot(t)
	out := r.Reconcile(context.Background(), f.paths)
	require.True(t, out.OK())
	assert.Zero(t, out.Rows)
	assert.Equal(t, 1, out.Unresolved)
	assert.Equal(t, "Project Name,Element ID,Element Type,Element Name,Level,Time,User\n", string(f.report(t)))
}

func TestReconcile_LockedReportIsAbandoned(t *testing.T) {
	base := afero.NewMemMapFs()
	fs := testutil.NewLockingFs(base, persist.ErrLocked)
	sleeper := &testutil.Sleeper{}
	p := persist.New(fs, persist.WithSleep(sleeper.Sleep))
	f := &fixture{fs: fs, p: p, paths: persist.Layout{Root: "/share", Prefix: "ar"}.For("Tower", at(0, 0))}
	f.writeSnapshot(t, described(1, "Door", "D1", "L1"))
	f.writeLog(t, deletion(1, at(10, 0)))
	fs.Lock(f.paths.Report)

	out := New(p).Reconcile(context.Background(), f.paths)
	assert.False(t, out.OK())
	assert.True(t, out.Write.Exhausted)
	assert.Equal(t, 3, out.Write.Attempts)
	assert.Len(t, sleeper.Calls(), 2)
}

func TestReconcile_MalformedRowsAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.writeSnapshot(t, described(1, "Door", "D1", "L1"))
	require.NoError(t, afero.WriteFile(f.fs, f.paths.DeletionLog, []byte(
		"Project Name,Element ID,Time,User\n"+
			"Tower,abc,2024-05-14 10:00:00,ivanov\n"+
			"Tower,1,2024-05-14 10:00:00,ivanov\n"), 0o644))

	out := New(f.p).Reconcile(context.Background(), f.paths)
	require.True(t, out.OK())
	assert.Equal(t, 1, out.Malformed)
	assert.Equal(t, 1, out.Rows)
}
