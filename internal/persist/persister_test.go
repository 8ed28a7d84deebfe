package persist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deleteaudit/internal/testutil"
)

const header = "Project Name,Element ID,Time,User\n"

func newTestPersister(t *testing.T, fs afero.Fs) (*Persister, *testutil.Sleeper) {
	t.Helper()
	sleeper := &testutil.Sleeper{}
	return New(fs, WithSleep(sleeper.Sleep)), sleeper
}

func readString(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func TestWrite_AppendWritesHeaderOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	p, _ := newTestPersister(t, fs)
	path := "/share/Tower_14-05-2024/Tower_ar/SourceTables/Tower_ar.csv"
	ctx := context.Background()

	res := p.Write(ctx, path, Append, []byte(header), []byte("Tower,1,2024-05-14 10:00:00,a\n"))
	require.True(t, res.OK())
	assert.Equal(t, 1, res.Attempts)

	res = p.Write(ctx, path, Append, []byte(header), []byte("Tower,2,2024-05-14 10:05:00,a\n"))
	require.True(t, res.OK())

	assert.Equal(t,
		header+"Tower,1,2024-05-14 10:00:00,a\nTower,2,2024-05-14 10:05:00,a\n",
		readString(t, fs, path))
}

func TestWrite_AppendEmptyBodyCreatesHeader(t *testing.T) {
	fs := afero.NewMemMapFs()
	p, _ := newTestPersister(t, fs)

	res := p.Write(context.Background(), "/out/log.csv", Append, []byte(header), nil)
	require.True(t, res.OK())
	assert.Equal(t, header, readString(t, fs, "/out/log.csv"))
}

func TestWrite_ReplaceOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	p, _ := newTestPersister(t, fs)
	ctx := context.Background()

	require.True(t, p.Write(ctx, "/out/db.csv", Replace, []byte("H\n"), []byte("one\ntwo\n")).OK())
	require.True(t, p.Write(ctx, "/out/db.csv", Replace, []byte("H\n"), []byte("three\n")).OK())

	assert.Equal(t, "H\nthree\n", readString(t, fs, "/out/db.csv"))
	ok, err := afero.Exists(fs, "/out/db.csv.tmp")
	require.NoError(t, err)
	assert.False(t, ok, "temp file must not linger")
}

func TestWrite_RetryBound(t *testing.T) {
	for _, mode := range []Mode{Append, Replace} {
		t.Run(mode.String(), func(t *testing.T) {
			fs := testutil.NewLockingFs(afero.NewMemMapFs(), ErrLocked)
			p, sleeper := newTestPersister(t, fs)
			path := "/out/Tower_arDeleted.csv"
			fs.Lock(path)

			res := p.Write(context.Background(), path, mode, []byte("H\n"), []byte("row\n"))

			assert.False(t, res.OK())
			assert.True(t, res.Exhausted)
			assert.Equal(t, 3, res.Attempts)
			assert.Equal(t, 3, fs.Attempts(path), "one initial attempt plus exactly two retries")
			assert.Equal(t, []time.Duration{DefaultDelay, DefaultDelay}, sleeper.Calls(), "no delay after the final attempt")
		})
	}
}

func TestWrite_RecoversAfterUnlock(t *testing.T) {
	fs := testutil.NewLockingFs(afero.NewMemMapFs(), ErrLocked)
	path := "/out/log.csv"
	fs.Lock(path)

	calls := 0
	p := New(fs, WithSleep(func(ctx context.Context, d time.Duration) error {
		calls++
		fs.Unlock(path)
		return nil
	}))

	res := p.Write(context.Background(), path, Append, []byte(header), []byte("x\n"))
	require.True(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, calls)
	assert.Equal(t, header+"x\n", readString(t, fs.Fs, path))
}

func TestDo_NonContentionFailsFast(t *testing.T) {
	p, sleeper := newTestPersister(t, afero.NewMemMapFs())
	boom := errors.New("disk full")

	attempts := 0
	res := p.Do(context.Background(), "/x", func() error {
		attempts++
		return boom
	})

	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, res.Exhausted)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeper.Calls())
}

func TestDo_CancelledWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(afero.NewMemMapFs(), WithDelay(time.Hour))

	res := p.Do(ctx, "/x", func() error { return ErrLocked })
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
}

func TestWithAttempts(t *testing.T) {
	p := New(afero.NewMemMapFs(), WithAttempts(5), WithSleep((&testutil.Sleeper{}).Sleep))
	attempts := 0
	res := p.Do(context.Background(), "/x", func() error {
		attempts++
		return ErrLocked
	})
	assert.True(t, res.Exhausted)
	assert.Equal(t, 5, attempts)
}

func TestRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in.csv", []byte("data"), 0o644))
	p, _ := newTestPersister(t, fs)

	data, res := p.Read(context.Background(), "/in.csv")
	require.True(t, res.OK())
	assert.Equal(t, "data", string(data))

	_, res = p.Read(context.Background(), "/missing.csv")
	assert.False(t, res.OK())
	assert.False(t, p.Exists("/missing.csv"))
	assert.True(t, p.Exists("/in.csv"))
}

func TestIsContention(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrLocked, true},
		{"wrapped sentinel", fmt.Errorf("write: %w", ErrLocked), true},
		{"other", errors.New("nope"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsContention(tt.err))
		})
	}
}

func TestLayout_For(t *testing.T) {
	l := Layout{Root: "/share", Prefix: "ar"}
	p := l.For("Tower", time.Date(2024, 5, 4, 23, 59, 0, 0, time.UTC))

	dir := filepath.Join("/share", "Tower_04-05-2024", "Tower_ar")
	assert.Equal(t, dir, p.Dir)
	assert.Equal(t, filepath.Join(dir, "SourceTables"), p.SourceTables)
	assert.Equal(t, filepath.Join(dir, "SourceTables", "Tower_ar.csv"), p.DeletionLog)
	assert.Equal(t, filepath.Join(dir, "SourceTables", "Tower_ar_Db.csv"), p.Snapshot)
	assert.Equal(t, filepath.Join(dir, "Tower_arDeleted.csv"), p.Report)
}
