// Package coder turns code-assistance tasks into completion calls and
// returns the extracted code.
package coder

import (
	"context"
	"strings"
	"time"

	"codemcp/internal/appstate"
	"codemcp/internal/codeblock"
	"codemcp/internal/events"
	"codemcp/internal/model"
	"codemcp/internal/prompt"
)

// Completer is the subset of the Mistral client the service needs.
type Completer interface {
	ChatCompletion(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.CompletionResponse, error)
	FIMCompletion(ctx context.Context, prompt string, opts model.FIMOptions) (*model.CompletionResponse, error)
}

type Task struct {
	Kind     model.TaskKind
	Code     string
	Language string
	Suffix   string
	// Model overrides the client's default chat model when set.
	Model string
}

type Infill struct {
	Prompt    string
	Suffix    string
	Stop      []string
	MaxTokens int
}

type Result struct {
	Text         string
	Model        string
	FinishReason string
	Usage        model.Usage
	Duration     time.Duration
}

const infillKind = "infill"

type Service struct {
	client Completer
	stats  *appstate.Stats
	events events.Emitter
	now    func() time.Time
}

type Option func(*Service)

func WithStats(stats *appstate.Stats) Option {
	return func(s *Service) { s.stats = stats }
}

func WithEmitter(e events.Emitter) Option {
	return func(s *Service) { s.events = events.Or(e) }
}

func New(client Completer, opts ...Option) *Service {
	s := &Service{
		client: client,
		events: events.Discard,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes a chat-based task: prompt, completion, code extraction.
func (s *Service) Run(ctx context.Context, task Task) (Result, error) {
	kind := string(task.Kind)
	done := s.stats.Begin(kind)
	defer done()
	start := s.now()

	if err := validateTask(task); err != nil {
		return Result{}, s.fail(kind, start, err)
	}

	messages := prompt.Build(task.Kind, task.Code, strings.TrimSpace(task.Language), task.Suffix)
	resp, err := s.client.ChatCompletion(ctx, messages, model.ChatOptions{Model: strings.TrimSpace(task.Model)})
	if err != nil {
		return Result{}, s.fail(kind, start, err)
	}
	return s.finish(kind, start, resp)
}

// Infill completes the gap between Prompt and Suffix with the native FIM
// endpoint.
func (s *Service) Infill(ctx context.Context, req Infill) (Result, error) {
	done := s.stats.Begin(infillKind)
	defer done()
	start := s.now()

	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, s.fail(infillKind, start, model.NewError(model.KindInvalidRequest, "prompt is required"))
	}

	resp, err := s.client.FIMCompletion(ctx, req.Prompt, model.FIMOptions{
		Suffix:    req.Suffix,
		Stop:      req.Stop,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return Result{}, s.fail(infillKind, start, err)
	}
	return s.finish(infillKind, start, resp)
}

func validateTask(task Task) error {
	if !isKnownKind(task.Kind) {
		return model.Errorf(model.KindInvalidRequest, "unknown task %q", task.Kind)
	}
	if strings.TrimSpace(task.Code) == "" {
		return model.NewError(model.KindInvalidRequest, "code is required")
	}
	return nil
}

func isKnownKind(kind model.TaskKind) bool {
	for _, k := range model.TaskKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *Service) finish(kind string, start time.Time, resp *model.CompletionResponse) (Result, error) {
	text, err := codeblock.FromResponse(resp)
	if err != nil {
		return Result{}, s.fail(kind, start, err)
	}

	result := Result{
		Text:     text,
		Model:    resp.Model,
		Duration: s.now().Sub(start),
	}
	if resp.Usage != nil {
		result.Usage = *resp.Usage
	}
	if len(resp.Choices) > 0 {
		result.FinishReason = resp.Choices[0].FinishReason
	}

	s.stats.RecordSuccess(resp.Usage)
	s.events.Emit(events.LevelInfo, "task_completed", map[string]interface{}{
		"task":              kind,
		"model":             result.Model,
		"prompt_tokens":     result.Usage.PromptTokens,
		"completion_tokens": result.Usage.CompletionTokens,
		"duration_ms":       result.Duration.Milliseconds(),
	})
	return result, nil
}

func (s *Service) fail(kind string, start time.Time, err error) error {
	s.stats.RecordFailure(err)

	data := map[string]interface{}{
		"task":        kind,
		"message":     err.Error(),
		"duration_ms": s.now().Sub(start).Milliseconds(),
	}
	if code := model.KindOf(err); code != "" {
		data["code"] = string(code)
	}
	s.events.Emit(events.LevelError, "task_failed", data)
	return err
}
