package appstate

import (
	"errors"
	"sync"
	"testing"

	"codemcp/internal/model"
)

func TestStats_RecordsOutcomes(t *testing.T) {
	s := NewStats()

	done := s.Begin("fix")
	s.RecordSuccess(&model.Usage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42})
	done()

	done = s.Begin("test")
	s.RecordFailure(model.NewError(model.KindRateLimit, "slow down"))
	done()

	done = s.Begin("fix")
	s.RecordFailure(errors.New("boom"))
	done()
	done()

	snap := s.Snapshot()
	if snap.Requests != 3 || snap.Succeeded != 1 || snap.Failed != 2 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.InFlight != 0 {
		t.Fatalf("expected no in-flight requests, got %d", snap.InFlight)
	}
	if snap.PromptTokens != 12 || snap.CompletionTokens != 30 {
		t.Fatalf("unexpected token totals: %+v", snap)
	}
	if snap.ErrorsByCode["MISTRAL_RATE_LIMIT"] != 1 || snap.ErrorsByCode["UNKNOWN"] != 1 {
		t.Fatalf("unexpected error counts: %#v", snap.ErrorsByCode)
	}
	if snap.TasksByKind["fix"] != 2 || snap.TasksByKind["test"] != 1 {
		t.Fatalf("unexpected task counts: %#v", snap.TasksByKind)
	}
	if codes := snap.ErrorCodes(); len(codes) != 2 || codes[0] != "MISTRAL_RATE_LIMIT" || codes[1] != "UNKNOWN" {
		t.Fatalf("unexpected sorted codes: %v", codes)
	}
}

func TestStats_SnapshotIsACopy(t *testing.T) {
	s := NewStats()
	s.RecordFailure(model.NewError(model.KindAuth, "nope"))

	snap := s.Snapshot()
	snap.ErrorsByCode["MISTRAL_AUTH"] = 99

	if got := s.Snapshot().ErrorsByCode["MISTRAL_AUTH"]; got != 1 {
		t.Fatalf("snapshot mutation leaked into stats: %d", got)
	}
}

func TestStats_NilIsNoop(t *testing.T) {
	var s *Stats
	s.Begin("fix")()
	s.RecordSuccess(nil)
	s.RecordFailure(errors.New("x"))
	snap := s.Snapshot()
	if snap.Requests != 0 || snap.ErrorsByCode == nil {
		t.Fatalf("unexpected nil snapshot: %+v", snap)
	}
}

func TestStats_ConcurrentUpdates(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			done := s.Begin("complete")
			defer done()
			if i%2 == 0 {
				s.RecordSuccess(&model.Usage{PromptTokens: 1, CompletionTokens: 2})
				return
			}
			s.RecordFailure(model.NewError(model.KindServer, "down"))
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.Requests != 50 || snap.Succeeded != 25 || snap.Failed != 25 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.PromptTokens != 25 || snap.CompletionTokens != 50 {
		t.Fatalf("unexpected tokens: %+v", snap)
	}
	if snap.ErrorsByCode["MISTRAL_SERVER"] != 25 || snap.TasksByKind["complete"] != 50 {
		t.Fatalf("unexpected maps: %+v", snap)
	}
}
