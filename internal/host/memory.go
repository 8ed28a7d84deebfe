package host

import (
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryDocument is an in-process Document. It is safe for concurrent use:
// the flush cycle may enumerate elements while the edit path deletes them.
type MemoryDocument struct {
	title string
	user  string

	mu       sync.RWMutex
	elements map[ElementID]Element
}

// NewMemoryDocument creates a document with the given elements.
func NewMemoryDocument(title, user string, elements ...Element) *MemoryDocument {
	d := &MemoryDocument{
		title:    title,
		user:     user,
		elements: make(map[ElementID]Element, len(elements)),
	}
	for _, e := range elements {
		d.elements[e.ID] = e
	}
	return d
}

// Title implements Document.
func (d *MemoryDocument) Title() string { return d.title }

// Username implements Document.
func (d *MemoryDocument) Username() string { return d.user }

// Elements implements Document. Results are ordered by id.
func (d *MemoryDocument) Elements() []Element {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Element, 0, len(d.elements))
	for _, e := range d.elements {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Element implements Document.
func (d *MemoryDocument) Element(id ElementID) (Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.elements[id]
	return e, ok
}

// Add inserts or replaces elements.
func (d *MemoryDocument) Add(elements ...Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range elements {
		d.elements[e.ID] = e
	}
}

// Remove deletes elements and returns the ids that existed.
func (d *MemoryDocument) Remove(ids ...ElementID) []ElementID {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := make([]ElementID, 0, len(ids))
	for _, id := range ids {
		if _, ok := d.elements[id]; ok {
			delete(d.elements, id)
			removed = append(removed, id)
		}
	}
	return removed
}

type subscription struct {
	id       uint64
	listener Listener
}

// Memory is an in-process Host. Notifications are delivered synchronously
// in subscription order; a panicking listener is logged and skipped.
type Memory struct {
	log *slog.Logger

	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
}

// NewMemory creates a host with no listeners.
func NewMemory(log *slog.Logger) *Memory {
	if log == nil {
		log = slog.Default()
	}
	return &Memory{log: log}
}

// Subscribe implements Host.
func (m *Memory) Subscribe(l Listener) func() {
	id := m.nextID.Add(1)

	m.mu.Lock()
	m.subs = append(m.subs, subscription{id: id, listener: l})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(id) })
	}
}

func (m *Memory) unsubscribe(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.id == id {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return
		}
	}
}

// SubscriptionCount returns the number of registered listeners.
func (m *Memory) SubscriptionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Open notifies listeners that doc was opened.
func (m *Memory) Open(doc Document) {
	m.publish("opened", func(l Listener) { l.DocumentOpened(doc) })
}

// Delete removes ids from doc and notifies listeners of the ones that
// existed. Nothing is published when no element was removed.
func (m *Memory) Delete(doc *MemoryDocument, ids ...ElementID) {
	removed := doc.Remove(ids...)
	if len(removed) == 0 {
		return
	}
	m.publish("changed", func(l Listener) { l.DocumentChanged(doc, removed) })
}

// Synchronize notifies listeners of a synchronize-with-central.
func (m *Memory) Synchronize(doc Document) {
	m.publish("synchronized", func(l Listener) { l.DocumentSynchronized(doc) })
}

// Save notifies listeners that doc was saved.
func (m *Memory) Save(doc Document) {
	m.publish("saved", func(l Listener) { l.DocumentSaved(doc) })
}

func (m *Memory) publish(kind string, call func(Listener)) {
	m.mu.RLock()
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	m.mu.RUnlock()

	for _, s := range subs {
		m.safeCall(kind, s.listener, call)
	}
}

func (m *Memory) safeCall(kind string, l Listener, call func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("host listener panicked", "event", kind, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	call(l)
}
