package testutil

import (
	"context"
	"sync"
	"time"
)

// Sleeper records requested back-off delays without sleeping.
type Sleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

// Sleep records d and returns immediately unless ctx is already done.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return nil
}

// Calls returns the recorded delays.
func (s *Sleeper) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.calls))
	copy(out, s.calls)
	return out
}
