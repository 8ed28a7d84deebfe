package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deleteaudit/internal/audit"
)

func event(id int64) audit.DeletionEvent {
	return audit.DeletionEvent{
		Project:   "Tower",
		Time:      time.Date(2024, 5, 14, 10, 0, 0, 0, time.Local),
		ElementID: id,
		User:      "ivanov",
	}
}

func ids(events []audit.DeletionEvent) []int64 {
	out := make([]int64, len(events))
	for i, ev := range events {
		out[i] = ev.ElementID
	}
	return out
}

func TestBuffer_AppendDrain(t *testing.T) {
	b := New()

	b.Append(event(1), event(2))
	b.Append(event(3))
	require.Equal(t, 3, b.Len())
	assert.True(t, b.Pending())

	batch, ok := b.DrainAll()
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2, 3}, ids(batch))
	assert.Zero(t, b.Len())

	_, ok = b.DrainAll()
	assert.False(t, ok, "second drain on empty buffer")
}

func TestBuffer_AppendNothing(t *testing.T) {
	b := New()
	b.Append()
	assert.False(t, b.Pending())
	assert.Zero(t, b.Len())
}

func TestBuffer_SettleIfEmpty(t *testing.T) {
	b := New()
	b.Append(event(1))

	assert.False(t, b.SettleIfEmpty(), "undrained events keep the flag")
	assert.True(t, b.Pending())

	b.DrainAll()
	assert.True(t, b.Pending(), "drain alone does not clear the flag")
	assert.True(t, b.SettleIfEmpty())
	assert.False(t, b.Pending())
}

func TestBuffer_DrainedBatchIsDetached(t *testing.T) {
	b := New()
	b.Append(event(1))
	batch, _ := b.DrainAll()

	b.Append(event(2))
	assert.Equal(t, []int64{1}, ids(batch), "later appends must not alias the drained batch")
}

func TestBuffer_NoLossSingleWriter(t *testing.T) {
	b := New()
	var drained []audit.DeletionEvent

	const n = 500
	for i := 1; i <= n; i++ {
		b.Append(event(int64(i)))
		if i%7 == 0 {
			batch, _ := b.DrainAll()
			drained = append(drained, batch...)
		}
	}
	batch, _ := b.DrainAll()
	drained = append(drained, batch...)

	require.Len(t, drained, n)
	for i, ev := range drained {
		assert.Equal(t, int64(i+1), ev.ElementID)
	}
}

func TestBuffer_ConcurrentAppendDrain(t *testing.T) {
	b := New()

	const n = 2000
	var wg sync.WaitGroup
	done := make(chan struct{})

	var mu sync.Mutex
	seen := make(map[int64]int)
	record := func(batch []audit.DeletionEvent) {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range batch {
			// A partially constructed event would carry zero values.
			assert.Equal(t, "Tower", ev.Project)
			assert.Equal(t, "ivanov", ev.User)
			seen[ev.ElementID]++
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			b.Append(event(int64(i)))
		}
		close(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			batch, _ := b.DrainAll()
			record(batch)
		}
	}()

	wg.Wait()

	mu.Lock()
	drainedCount := 0
	for _, c := range seen {
		drainedCount += c
	}
	mu.Unlock()
	assert.Equal(t, n-drainedCount, b.Len(), "buffer holds exactly what was not drained")

	batch, _ := b.DrainAll()
	record(batch)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, n)
	for id, c := range seen {
		assert.Equal(t, 1, c, "event %d drained %d times", id, c)
	}
}

func TestBuffer_WaitSignals(t *testing.T) {
	b := New()
	b.Append(event(1))

	select {
	case <-b.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected signal after Append")
	}
}
