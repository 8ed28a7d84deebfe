package auditor

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/roach88/deleteaudit/internal/config"
	"github.com/roach88/deleteaudit/internal/gate"
	"github.com/roach88/deleteaudit/internal/host"
	"github.com/roach88/deleteaudit/internal/journal"
	"github.com/roach88/deleteaudit/internal/persist"
	"github.com/roach88/deleteaudit/internal/reconcile"
)

// Session is the audit installed into one host process from configuration.
type Session struct {
	auditor *Auditor
	journal *journal.Store
	log     *slog.Logger
}

// Open resolves the operator against the configured allow-lists and, when
// authorized, attaches and starts an Auditor on h. A denied operator yields
// an inactive Session and no error; the host keeps running unaudited.
//
// Errors are returned only for a journal that cannot be opened.
func Open(ctx context.Context, h host.Host, fs afero.Fs, cfg config.Config, id gate.Identity, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{log: log}

	g := gate.New(gate.NewDirAllowList(fs, cfg.UsersDir, cfg.AllowListPattern), log)
	decision := g.Authorize(ctx, id)
	if !decision.Authorized {
		return s, nil
	}

	clock := NewClockAt(0)
	if cfg.JournalPath != "" {
		st, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		last, err := st.LastSeq(ctx)
		if err != nil {
			st.Close()
			return nil, err
		}
		clock = NewClockAt(last)
		s.journal = st
	}

	p := persist.New(fs, append(cfg.PersistOptions(), persist.WithLogger(log))...)
	opts := Options{
		Root:       cfg.SharedRoot,
		Interval:   cfg.FlushInterval,
		Logger:     log,
		Clock:      clock,
		Reconciler: reconcile.New(p, reconcile.WithCarryForward(cfg.CarryForward), reconcile.WithLogger(log)),
	}
	if s.journal != nil {
		opts.Journal = s.journal
	}

	a, err := New(decision, p, opts)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	a.Attach(h)
	a.Start(ctx)
	s.auditor = a
	return s, nil
}

// Active reports whether the operator was authorized.
func (s *Session) Active() bool { return s.auditor != nil }

// Auditor returns the running auditor, nil when inactive.
func (s *Session) Auditor() *Auditor { return s.auditor }

// Close shuts the auditor down, flushing pending deletions, then closes the
// journal. Safe to call on an inactive Session and more than once.
func (s *Session) Close(ctx context.Context) {
	if s.auditor != nil {
		s.auditor.Shutdown(ctx)
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.Warn("close journal", "error", err)
		}
		s.journal = nil
	}
}
