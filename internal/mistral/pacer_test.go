package mistral

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return nil
}

func newFakePacer(start time.Time) (*pacer, *fakeClock) {
	clock := &fakeClock{now: start}
	return &pacer{now: clock.Now, sleep: clock.Sleep}, clock
}

func TestPacer_FirstCallIsImmediate(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p, _ := newFakePacer(start)
	got, err := p.reserve(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !got.Equal(start) {
		t.Fatalf("expected immediate slot, got %s", got.Sub(start))
	}
}

func TestPacer_SequentialSpacing(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p, _ := newFakePacer(start)
	interval := 100 * time.Millisecond

	var prev time.Time
	for i := 0; i < 5; i++ {
		slot, err := p.reserve(context.Background(), interval)
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		if i > 0 && slot.Sub(prev) != interval {
			t.Fatalf("slot %d spaced %s from previous, want %s", i, slot.Sub(prev), interval)
		}
		prev = slot
	}
}

func TestPacer_IdleGapResetsWait(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p, clock := newFakePacer(start)
	interval := 100 * time.Millisecond

	if _, err := p.reserve(context.Background(), interval); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	_ = clock.Sleep(context.Background(), time.Second)
	before := clock.Now()
	slot, err := p.reserve(context.Background(), interval)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !slot.Equal(before) {
		t.Fatalf("expected no wait after idle period, got %s", slot.Sub(before))
	}
}

func TestPacer_ConcurrentCallersGetDistinctSlots(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	// Sleep is a no-op here so every caller reserves against the same
	// wall-clock instant; only the reservation logic spaces them.
	p := &pacer{
		now:   func() time.Time { return start },
		sleep: func(context.Context, time.Duration) error { return nil },
	}
	interval := 100 * time.Millisecond

	const callers = 20
	slots := make([]time.Time, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot, err := p.reserve(context.Background(), interval)
			if err != nil {
				t.Errorf("reserve: %v", err)
			}
			slots[i] = slot
		}(i)
	}
	wg.Wait()

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	for i := 1; i < len(slots); i++ {
		if gap := slots[i].Sub(slots[i-1]); gap < interval {
			t.Fatalf("slots %d and %d only %s apart", i-1, i, gap)
		}
	}
	if !slots[0].Equal(start) {
		t.Fatalf("first slot should be immediate")
	}
}

func TestPacer_CanceledWaitKeepsSlot(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	canceled := errors.New("canceled")
	p := &pacer{
		now:   func() time.Time { return start },
		sleep: func(context.Context, time.Duration) error { return canceled },
	}
	interval := 100 * time.Millisecond

	if _, err := p.reserve(context.Background(), interval); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := p.reserve(context.Background(), interval); !errors.Is(err, canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	slot, _ := p.reserve(context.Background(), interval)
	if want := start.Add(2 * interval); !slot.Equal(want) {
		t.Fatalf("abandoned slot was reused: got %s want %s", slot.Sub(start), want.Sub(start))
	}
}

func TestPacer_ZeroIntervalNeverWaits(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &pacer{
		now: func() time.Time { return start },
		sleep: func(context.Context, time.Duration) error {
			t.Fatalf("sleep should not be called")
			return nil
		},
	}
	for i := 0; i < 3; i++ {
		if err := p.wait(context.Background(), 0); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
}

func TestSleepContext_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
