package auditor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deleteaudit/internal/config"
	"github.com/roach88/deleteaudit/internal/gate"
	"github.com/roach88/deleteaudit/internal/host"
	"github.com/roach88/deleteaudit/internal/journal"
)

func sessionConfig(t *testing.T, fs afero.Fs) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SharedRoot = root
	cfg.UsersDir = filepath.Join(root, "DeleteLog")
	cfg.FlushInterval = time.Hour
	cfg.JournalPath = filepath.Join(t.TempDir(), "journal.db")

	require.NoError(t, fs.MkdirAll(cfg.UsersDir, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(cfg.UsersDir, "ar_users.txt"), []byte("ivanov\n"), 0o644))
	return cfg
}

func TestOpen_DeniedIsInactive(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := sessionConfig(t, fs)
	h := host.NewMemory(nil)

	s, err := Open(context.Background(), h, fs, cfg, gate.Identity{User: "sidorov"}, nil)
	require.NoError(t, err)

	assert.False(t, s.Active())
	assert.Nil(t, s.Auditor())
	assert.Zero(t, h.SubscriptionCount())
	assert.NotPanics(t, func() { s.Close(context.Background()) })
}

func TestOpen_JournalsAndResumesSequence(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := sessionConfig(t, fs)
	ctx := context.Background()

	run := func() {
		h := host.NewMemory(nil)
		s, err := Open(ctx, h, fs, cfg, gate.Identity{User: "Ivanov"}, nil)
		require.NoError(t, err)
		require.True(t, s.Active())

		doc := tower()
		h.Open(doc)
		h.Delete(doc, 101)
		s.Close(ctx)
		s.Close(ctx)
		assert.Zero(t, h.SubscriptionCount())
	}
	run()
	run()

	st, err := journal.Open(cfg.JournalPath)
	require.NoError(t, err)
	defer st.Close()

	cycles, err := st.Cycles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, cycles, 4)
	assert.Equal(t, int64(4), cycles[0].Seq, "second session continues numbering")
	assert.Equal(t, string(CauseShutdown), cycles[0].Cause)
	assert.Equal(t, string(CauseOpened), cycles[1].Cause)
}
