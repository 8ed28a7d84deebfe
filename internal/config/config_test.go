package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("shared_root: //fs01/BIM/DeleteLog\n"))
	require.NoError(t, err)

	want := Default()
	want.SharedRoot = "//fs01/BIM/DeleteLog"
	want.UsersDir = "//fs01/BIM/DeleteLog"
	assert.Equal(t, want, cfg)
	assert.Equal(t, 15*time.Minute, cfg.FlushInterval)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 3*time.Minute, cfg.Retry.Delay)
	assert.True(t, cfg.CarryForward)
}

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
shared_root: /mnt/share
users_dir: /mnt/share/users
allow_list_pattern: "*_allow.txt"
flush_interval: 5m
retry:
  attempts: 5
  delay: 30s
journal_path: /var/lib/deleteaudit/journal.db
carry_forward: false
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "/mnt/share/users", cfg.UsersDir)
	assert.Equal(t, "*_allow.txt", cfg.AllowListPattern)
	assert.Equal(t, 5*time.Minute, cfg.FlushInterval)
	assert.Equal(t, Retry{Attempts: 5, Delay: 30 * time.Second}, cfg.Retry)
	assert.Equal(t, "/var/lib/deleteaudit/journal.db", cfg.JournalPath)
	assert.False(t, cfg.CarryForward)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Len(t, cfg.PersistOptions(), 2)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"missing root", "users_dir: /x\n"},
		{"empty root", "shared_root: \"\"\n"},
		{"unknown key", "shared_root: /x\nflush_every: 5m\n"},
		{"bad duration", "shared_root: /x\nflush_interval: soon\n"},
		{"attempts out of range", "shared_root: /x\nretry:\n  attempts: 0\n"},
		{"bad log format", "shared_root: /x\nlog:\n  format: xml\n"},
		{"zero interval", "shared_root: /x\nflush_interval: 0s\n"},
		{"not yaml", "shared_root: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/deleteaudit.yaml", []byte("shared_root: /share\n"), 0o644))

	cfg, err := Load(fs, "/etc/deleteaudit.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/share", cfg.SharedRoot)

	_, err = Load(fs, "/etc/missing.yaml")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestSlogLevel(t *testing.T) {
	for level, want := range map[string]string{"debug": "DEBUG", "warn": "WARN", "error": "ERROR", "": "INFO", "loud": "INFO"} {
		cfg := Config{Log: Log{Level: level}}
		assert.Equal(t, want, cfg.SlogLevel().String(), level)
	}
}
