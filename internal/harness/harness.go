package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/roach88/deleteaudit/internal/audit"
	"github.com/roach88/deleteaudit/internal/auditor"
	"github.com/roach88/deleteaudit/internal/gate"
	"github.com/roach88/deleteaudit/internal/host"
	"github.com/roach88/deleteaudit/internal/journal"
	"github.com/roach88/deleteaudit/internal/persist"
	"github.com/roach88/deleteaudit/internal/reconcile"
	"github.com/roach88/deleteaudit/internal/testutil"
)

// Root is the shared folder scenarios write under.
const Root = "/share"

// Result is the observable state after a scenario.
type Result struct {
	Paths persist.Paths

	// Table contents; nil when the file was never written.
	DeletionLog []byte
	Snapshot    []byte
	Report      []byte

	Pending  bool
	Buffered int

	// Cycles in execution order.
	Cycles []journal.Cycle
	// Lost holds the events of batches that exhausted their retries.
	Lost []audit.DeletionEvent
	// Waits counts back-off delays the persister asked for.
	Waits int

	// Failures lists unmet expectations. Empty means the scenario passed.
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Option configures Run.
type Option func(*runner)

// WithLogger sends pipeline logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.log = l
		}
	}
}

type runner struct {
	log *slog.Logger
}

// memoryJournal keeps cycles in memory in record order.
type memoryJournal struct {
	mu     sync.Mutex
	cycles []journal.Cycle
	lost   []audit.DeletionEvent
}

func (j *memoryJournal) Record(_ context.Context, c journal.Cycle, lost []audit.DeletionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cycles = append(j.cycles, c)
	j.lost = append(j.lost, lost...)
	return nil
}

// Run executes a scenario. Each run uses a fresh in-memory filesystem, so
// runs are isolated and deterministic.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	r := &runner{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}

	day, err := s.Day()
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}

	clock := testutil.NewFakeClock(day)
	fs := testutil.NewLockingFs(afero.NewMemMapFs(), persist.ErrLocked)
	sleeper := &testutil.Sleeper{}
	p := persist.New(fs, persist.WithSleep(sleeper.Sleep), persist.WithLogger(r.log))

	carry := true
	if s.CarryForward != nil {
		carry = *s.CarryForward
	}
	j := &memoryJournal{}

	a, err := auditor.New(
		gate.Decision{Authorized: true, Prefix: s.Prefix, Source: "scenario"},
		p,
		auditor.Options{
			Root:       Root,
			Now:        clock.Now,
			Logger:     r.log,
			Journal:    j,
			IDs:        auditor.NewSequenceGenerator(s.Name),
			Reconciler: reconcile.New(p, reconcile.WithCarryForward(carry), reconcile.WithLogger(r.log)),
		},
	)
	if err != nil {
		return nil, err
	}

	h := host.NewMemory(r.log)
	a.Attach(h)
	doc := host.NewMemoryDocument(s.Project, s.User, elements(s.Elements)...)
	paths := persist.Layout{Root: Root, Prefix: s.Prefix}.For(s.Project, day)

	for i, step := range s.Steps {
		offset, err := step.Offset()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		clock.Set(day.Add(offset))

		switch step.Do {
		case StepOpen:
			h.Open(doc)
		case StepDelete:
			ids := make([]host.ElementID, len(step.IDs))
			for k, id := range step.IDs {
				ids[k] = host.ElementID(id)
			}
			h.Delete(doc, ids...)
		case StepSave:
			h.Save(doc)
		case StepSync:
			h.Synchronize(doc)
		case StepTick:
			a.Tick(ctx)
		case StepShutdown:
			a.Shutdown(ctx)
		case StepLock:
			fs.Lock(tablePath(paths, step.File))
		case StepUnlock:
			fs.Unlock(tablePath(paths, step.File))
		default:
			return nil, fmt.Errorf("step %d: unknown step %q", i, step.Do)
		}
	}

	res := &Result{
		Paths:    paths,
		Pending:  a.Pending(),
		Buffered: a.Buffered(),
		Waits:    len(sleeper.Calls()),
	}
	if res.DeletionLog, err = readIfExists(fs, paths.DeletionLog); err != nil {
		return nil, err
	}
	if res.Snapshot, err = readIfExists(fs, paths.Snapshot); err != nil {
		return nil, err
	}
	if res.Report, err = readIfExists(fs, paths.Report); err != nil {
		return nil, err
	}

	j.mu.Lock()
	res.Cycles = append([]journal.Cycle(nil), j.cycles...)
	res.Lost = append([]audit.DeletionEvent(nil), j.lost...)
	j.mu.Unlock()

	if s.Expect != nil {
		res.Failures = s.Expect.Check(res)
	}
	return res, nil
}

func elements(specs []ElementSpec) []host.Element {
	out := make([]host.Element, len(specs))
	for i, e := range specs {
		level := host.InvalidElementID
		if e.Level != nil {
			level = host.ElementID(*e.Level)
		}
		out[i] = host.Element{
			ID:       host.ElementID(e.ID),
			Category: e.Category,
			Name:     e.Name,
			LevelID:  level,
			IsType:   e.Type,
		}
	}
	return out
}

func tablePath(paths persist.Paths, file string) string {
	switch file {
	case FileSnapshot:
		return paths.Snapshot
	case FileReport:
		return paths.Report
	default:
		return paths.DeletionLog
	}
}

// readIfExists reads the underlying file, bypassing locks.
func readIfExists(fs *testutil.LockingFs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs.Fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
