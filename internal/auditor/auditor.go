package auditor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/roach88/deleteaudit/internal/audit"
	"github.com/roach88/deleteaudit/internal/buffer"
	"github.com/roach88/deleteaudit/internal/gate"
	"github.com/roach88/deleteaudit/internal/host"
	"github.com/roach88/deleteaudit/internal/journal"
	"github.com/roach88/deleteaudit/internal/persist"
	"github.com/roach88/deleteaudit/internal/reconcile"
	"github.com/roach88/deleteaudit/internal/snapshot"
)

// DefaultInterval is the periodic flush cadence.
const DefaultInterval = 15 * time.Minute

// ErrNotAuthorized is returned by New when the gate denied the operator.
var ErrNotAuthorized = errors.New("operator not authorized for audit logging")

// Journal records cycle outcomes. *journal.Store implements it.
type Journal interface {
	Record(ctx context.Context, c journal.Cycle, lost []audit.DeletionEvent) error
}

// Options configures an Auditor. Zero values select defaults.
type Options struct {
	// Root is the shared output folder.
	Root string
	// Interval between periodic flushes. Default DefaultInterval.
	Interval time.Duration
	// Now reads the wall clock. Default time.Now.
	Now func() time.Time
	Logger  *slog.Logger
	// Reconciler overrides the default reconciler over the persister.
	Reconciler *reconcile.Reconciler
	// Journal is optional.
	Journal Journal
	// IDs generates cycle ids. Default UUIDv7Generator.
	IDs IDGenerator
	// Clock numbers cycles. Default starts at 0.
	Clock *Clock
}

// Auditor is the host listener driving the audit pipeline. It implements
// host.Listener.
type Auditor struct {
	layout     persist.Layout
	interval   time.Duration
	now        func() time.Time
	log        *slog.Logger
	journal    Journal
	ids        IDGenerator
	clock      *Clock
	buf        *buffer.Buffer
	persister  *persist.Persister
	exporter   *snapshot.Exporter
	reconciler *reconcile.Reconciler

	docMu sync.Mutex
	doc   host.Document

	// cycleMu serialises flush cycles from the ticker and checkpoints.
	cycleMu sync.Mutex

	lifeMu      sync.Mutex
	started     bool
	stopped     bool
	ticker      *time.Ticker
	stop        chan struct{}
	done        chan struct{}
	unsubscribe func()
}

var _ host.Listener = (*Auditor)(nil)

// New creates an Auditor for an authorized decision. The decision's prefix
// is fixed for the life of the Auditor.
func New(decision gate.Decision, p *persist.Persister, opts Options) (*Auditor, error) {
	if !decision.Authorized {
		return nil, ErrNotAuthorized
	}
	if p == nil {
		return nil, fmt.Errorf("auditor: nil persister")
	}

	a := &Auditor{
		layout:    persist.Layout{Root: opts.Root, Prefix: decision.Prefix},
		interval:  opts.Interval,
		now:       opts.Now,
		log:       opts.Logger,
		journal:   opts.Journal,
		ids:       opts.IDs,
		clock:     opts.Clock,
		buf:       buffer.New(),
		persister: p,
	}
	if a.interval <= 0 {
		a.interval = DefaultInterval
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.log == nil {
		a.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if a.ids == nil {
		a.ids = UUIDv7Generator{}
	}
	if a.clock == nil {
		a.clock = NewClockAt(0)
	}
	a.log = a.log.With("prefix", decision.Prefix)
	a.exporter = snapshot.New(p, a.log)
	a.reconciler = opts.Reconciler
	if a.reconciler == nil {
		a.reconciler = reconcile.New(p, reconcile.WithLogger(a.log))
	}
	return a, nil
}

// Install authorizes the operator through g and, when allowed, attaches a
// new Auditor to h and starts its timer. It returns nil when the operator
// is denied; the host then runs without auditing.
func Install(ctx context.Context, h host.Host, g *gate.Gate, id gate.Identity, p *persist.Persister, opts Options) *Auditor {
	a, err := New(g.Authorize(ctx, id), p, opts)
	if err != nil {
		return nil
	}
	a.Attach(h)
	a.Start(ctx)
	return a
}

// Attach subscribes the Auditor to h. The subscription is cancelled by
// Shutdown. Attaching twice is ignored.
func (a *Auditor) Attach(h host.Host) {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.unsubscribe != nil || a.stopped {
		return
	}
	a.unsubscribe = h.Subscribe(a)
}

// Start launches the periodic flush. Calling Start more than once, or after
// Shutdown, does nothing.
func (a *Auditor) Start(ctx context.Context) {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.started || a.stopped {
		return
	}
	a.started = true
	a.ticker = time.NewTicker(a.interval)
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.loop(ctx, a.ticker.C, a.stop, a.done)
}

func (a *Auditor) loop(ctx context.Context, tick <-chan time.Time, stop, done chan struct{}) {
	defer close(done)
	// Retries inside a running cycle are not cut short by cancellation.
	cycleCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-tick:
			a.Tick(cycleCtx)
		}
	}
}

// Shutdown stops the timer, waits for a running periodic cycle, cancels the
// host subscription, and runs one final cycle when deletions are pending.
// It blocks until that cycle completes, retries included.
func (a *Auditor) Shutdown(ctx context.Context) {
	a.lifeMu.Lock()
	if a.stopped {
		a.lifeMu.Unlock()
		return
	}
	a.stopped = true
	ticker, stop, done, unsubscribe := a.ticker, a.stop, a.done, a.unsubscribe
	a.unsubscribe = nil
	a.lifeMu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		<-done
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if a.buf.Pending() {
		a.runCycle(context.WithoutCancel(ctx), CauseShutdown, false)
	}
	a.log.Info("audit stopped")
}

// Tick runs the periodic flush: a full cycle when deletions are pending,
// nothing otherwise.
func (a *Auditor) Tick(ctx context.Context) {
	defer a.recoverHost("tick")
	if !a.buf.Pending() {
		return
	}
	a.runCycle(ctx, CauseTimer, false)
}

// Pending reports whether deletions await a successful reconcile.
func (a *Auditor) Pending() bool { return a.buf.Pending() }

// Buffered returns the number of events not yet drained.
func (a *Auditor) Buffered() int { return a.buf.Len() }

// DocumentOpened implements host.Listener.
func (a *Auditor) DocumentOpened(doc host.Document) {
	defer a.recoverHost("opened")
	a.setDocument(doc)
	a.runCycle(context.Background(), CauseOpened, true)
}

// DocumentChanged implements host.Listener. It only appends to the buffer.
func (a *Auditor) DocumentChanged(doc host.Document, deleted []host.ElementID) {
	defer a.recoverHost("changed")
	if len(deleted) == 0 {
		return
	}
	a.adoptDocument(doc)

	project := doc.Title()
	user := doc.Username()
	ts := a.now()

	events := make([]audit.DeletionEvent, len(deleted))
	for i, id := range deleted {
		events[i] = audit.DeletionEvent{Project: project, Time: ts, ElementID: int64(id), User: user}
	}
	a.buf.Append(events...)
}

// DocumentSynchronized implements host.Listener.
func (a *Auditor) DocumentSynchronized(doc host.Document) {
	defer a.recoverHost("synchronized")
	a.setDocument(doc)
	a.runCycle(context.Background(), CauseSynchronized, true)
}

// DocumentSaved implements host.Listener.
func (a *Auditor) DocumentSaved(doc host.Document) {
	defer a.recoverHost("saved")
	a.setDocument(doc)
	a.runCycle(context.Background(), CauseSaved, true)
}

func (a *Auditor) setDocument(doc host.Document) {
	a.docMu.Lock()
	defer a.docMu.Unlock()
	a.doc = doc
}

// adoptDocument remembers doc when no checkpoint has named one yet, so a
// session attached after the document was opened still flushes.
func (a *Auditor) adoptDocument(doc host.Document) {
	a.docMu.Lock()
	defer a.docMu.Unlock()
	if a.doc == nil {
		a.doc = doc
	}
}

func (a *Auditor) document() host.Document {
	a.docMu.Lock()
	defer a.docMu.Unlock()
	return a.doc
}

func (a *Auditor) recoverHost(where string) {
	if r := recover(); r != nil {
		a.log.Error("audit callback panicked", "callback", where, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	}
}
