package mistral

import (
	"context"
	"sync"
	"time"
)

// pacer spaces the start of outbound calls by at least an interval. Each
// caller reserves its start slot under the lock, so concurrent callers never
// lose an update and never share a slot. A caller that gives up while
// waiting keeps its slot; the shared timestamp is never rewound.
type pacer struct {
	mu    sync.Mutex
	last  time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newPacer() *pacer {
	return &pacer{now: time.Now, sleep: sleepContext}
}

// wait blocks until the caller's reserved slot.
func (p *pacer) wait(ctx context.Context, interval time.Duration) error {
	_, err := p.reserve(ctx, interval)
	return err
}

// reserve claims the next start slot, sleeps until it and returns it.
func (p *pacer) reserve(ctx context.Context, interval time.Duration) (time.Time, error) {
	p.mu.Lock()
	now := p.now()
	start := now
	if next := p.last.Add(interval); interval > 0 && next.After(start) {
		start = next
	}
	p.last = start
	p.mu.Unlock()

	if delay := start.Sub(now); delay > 0 {
		if err := p.sleep(ctx, delay); err != nil {
			return start, err
		}
	}
	return start, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
