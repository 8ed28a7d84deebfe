package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Defaults match the cadence of the shared-folder deployment: three attempts
// in total, three minutes apart.
const (
	DefaultAttempts = 3
	DefaultDelay    = 3 * time.Minute
)

// Mode selects how a table is written.
type Mode int

const (
	// Append adds rows to the end of the file, writing the header first when
	// the file is new or empty.
	Append Mode = iota + 1
	// Replace writes header and rows to a temporary file and renames it over
	// the target.
	Replace
)

func (m Mode) String() string {
	switch m {
	case Append:
		return "append"
	case Replace:
		return "replace"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Result describes the outcome of a retried operation.
type Result struct {
	Path     string
	Attempts int
	// Exhausted is set when every attempt hit contention.
	Exhausted bool
	// Err is the last error seen, nil on success.
	Err error
}

// OK reports whether the operation eventually succeeded.
func (r Result) OK() bool { return r.Err == nil }

// SleepFunc suspends the calling goroutine between attempts.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Persister writes tables through an afero.Fs, retrying on contention.
// It is safe for concurrent use; concurrent writers to the same path are
// the caller's responsibility.
type Persister struct {
	fs       afero.Fs
	attempts int
	delay    time.Duration
	sleep    SleepFunc
	log      *slog.Logger
}

// Option configures a Persister.
type Option func(*Persister)

// WithAttempts sets the total number of attempts (first try included).
func WithAttempts(n int) Option {
	return func(p *Persister) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithDelay sets the fixed delay between attempts.
func WithDelay(d time.Duration) Option {
	return func(p *Persister) {
		if d >= 0 {
			p.delay = d
		}
	}
}

// WithSleep replaces the back-off sleep. Tests use it to avoid real delays.
func WithSleep(fn SleepFunc) Option {
	return func(p *Persister) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithLogger sets the logger for retry and abandon messages.
func WithLogger(l *slog.Logger) Option {
	return func(p *Persister) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a Persister over fs.
func New(fs afero.Fs, opts ...Option) *Persister {
	p := &Persister{
		fs:       fs,
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		sleep:    sleepContext,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fs returns the underlying filesystem.
func (p *Persister) Fs() afero.Fs { return p.fs }

// Do runs op, retrying while it fails with contention. Non-contention
// errors end the loop at once. No delay follows the final attempt.
func (p *Persister) Do(ctx context.Context, path string, op func() error) Result {
	res := Result{Path: path}
	for {
		res.Attempts++
		err := op()
		if err == nil {
			res.Err = nil
			return res
		}
		res.Err = err

		if !IsContention(err) {
			p.log.Warn("audit file operation failed", "path", path, "attempt", res.Attempts, "error", err)
			return res
		}
		if res.Attempts >= p.attempts {
			res.Exhausted = true
			p.log.Warn("audit file busy, giving up", "path", path, "attempts", res.Attempts, "error", err)
			return res
		}

		p.log.Info("audit file busy, retrying", "path", path, "attempt", res.Attempts, "delay", p.delay)
		if serr := p.sleep(ctx, p.delay); serr != nil {
			res.Err = fmt.Errorf("retry wait: %w", serr)
			return res
		}
	}
}

// Write persists header and body at path using mode. The parent directory
// is created when missing.
func (p *Persister) Write(ctx context.Context, path string, mode Mode, header, body []byte) Result {
	return p.Do(ctx, path, func() error {
		if err := p.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create folder: %w", err)
		}
		switch mode {
		case Append:
			return p.appendTo(path, header, body)
		case Replace:
			return p.replace(path, header, body)
		default:
			return fmt.Errorf("unsupported write mode %s", mode)
		}
	})
}

// Read returns the contents of path, retrying on contention.
func (p *Persister) Read(ctx context.Context, path string) ([]byte, Result) {
	var data []byte
	res := p.Do(ctx, path, func() error {
		var err error
		data, err = afero.ReadFile(p.fs, path)
		return err
	})
	if !res.OK() {
		return nil, res
	}
	return data, res
}

// Exists reports whether path exists. Lookup errors count as absent.
func (p *Persister) Exists(path string) bool {
	ok, err := afero.Exists(p.fs, path)
	return err == nil && ok
}

func (p *Persister) appendTo(path string, header, body []byte) (err error) {
	f, err := p.fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var out []byte
	if info.Size() == 0 {
		out = append(out, header...)
	}
	out = append(out, body...)
	if len(out) == 0 {
		return nil
	}
	_, err = f.Write(out)
	return err
}

func (p *Persister) replace(path string, header, body []byte) error {
	tmp := path + ".tmp"
	data := make([]byte, 0, len(header)+len(body))
	data = append(data, header...)
	data = append(data, body...)

	if err := afero.WriteFile(p.fs, tmp, data, 0o644); err != nil {
		return err
	}
	if err := p.fs.Rename(tmp, path); err != nil {
		if rerr := p.fs.Remove(tmp); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			p.log.Debug("remove temp file", "path", tmp, "error", rerr)
		}
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
