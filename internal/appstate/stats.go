package appstate

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codemcp/internal/model"
)

type StatsSnapshot struct {
	StartedAt        time.Time        `json:"started_at"`
	InFlight         int64            `json:"in_flight"`
	Requests         int64            `json:"requests"`
	Succeeded        int64            `json:"succeeded"`
	Failed           int64            `json:"failed"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	ErrorsByCode     map[string]int64 `json:"errors_by_code"`
	TasksByKind      map[string]int64 `json:"tasks_by_kind"`
}

// Stats counts completion traffic for the life of the process. A nil *Stats
// is a valid no-op recorder.
type Stats struct {
	startedAt time.Time

	inFlight         atomic.Int64
	requests         atomic.Int64
	succeeded        atomic.Int64
	failed           atomic.Int64
	promptTokens     atomic.Int64
	completionTokens atomic.Int64

	mu           sync.Mutex
	errorsByCode map[string]int64
	tasksByKind  map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		startedAt:    time.Now().UTC(),
		errorsByCode: map[string]int64{},
		tasksByKind:  map[string]int64{},
	}
}

// Begin marks one request as started and returns the func that must be
// called when it finishes.
func (s *Stats) Begin(kind string) func() {
	if s == nil {
		return func() {}
	}
	s.requests.Add(1)
	s.inFlight.Add(1)

	kind = strings.TrimSpace(kind)
	if kind != "" {
		s.mu.Lock()
		s.tasksByKind[kind]++
		s.mu.Unlock()
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.inFlight.Add(-1) })
	}
}

func (s *Stats) RecordSuccess(usage *model.Usage) {
	if s == nil {
		return
	}
	s.succeeded.Add(1)
	if usage != nil {
		s.promptTokens.Add(int64(usage.PromptTokens))
		s.completionTokens.Add(int64(usage.CompletionTokens))
	}
}

// RecordFailure counts err under its error code; errors outside the
// taxonomy are counted as UNKNOWN.
func (s *Stats) RecordFailure(err error) {
	if s == nil {
		return
	}
	s.failed.Add(1)

	code := string(model.KindOf(err))
	if code == "" {
		code = "UNKNOWN"
	}
	s.mu.Lock()
	s.errorsByCode[code]++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{
			ErrorsByCode: map[string]int64{},
			TasksByKind:  map[string]int64{},
		}
	}

	s.mu.Lock()
	errorsByCode := copyCounts(s.errorsByCode)
	tasksByKind := copyCounts(s.tasksByKind)
	s.mu.Unlock()

	return StatsSnapshot{
		StartedAt:        s.startedAt,
		InFlight:         s.inFlight.Load(),
		Requests:         s.requests.Load(),
		Succeeded:        s.succeeded.Load(),
		Failed:           s.failed.Load(),
		PromptTokens:     s.promptTokens.Load(),
		CompletionTokens: s.completionTokens.Load(),
		ErrorsByCode:     errorsByCode,
		TasksByKind:      tasksByKind,
	}
}

// ErrorCodes returns the codes seen so far, sorted.
func (snap StatsSnapshot) ErrorCodes() []string {
	codes := make([]string, 0, len(snap.ErrorsByCode))
	for code := range snap.ErrorsByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
