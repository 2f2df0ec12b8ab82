package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// TaskKind selects the system prompt and user-content rule for a request.
type TaskKind string

const (
	TaskComplete     TaskKind = "complete"
	TaskFix          TaskKind = "fix"
	TaskTest         TaskKind = "test"
	TaskFillInMiddle TaskKind = "fill_in_middle"
)

// TaskKinds lists every kind in presentation order.
var TaskKinds = []TaskKind{TaskComplete, TaskFix, TaskTest, TaskFillInMiddle}

// ParseTaskKind accepts the canonical names plus a few common spellings of
// fill-in-the-middle.
func ParseTaskKind(raw string) (TaskKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "complete", "completion":
		return TaskComplete, nil
	case "fix":
		return TaskFix, nil
	case "test", "tests":
		return TaskTest, nil
	case "fill_in_middle", "fim", "fill-in-the-middle", "fill-in-middle", "infill":
		return TaskFillInMiddle, nil
	default:
		return "", Errorf(KindInvalidRequest, "unknown task %q (want complete, fix, test or fill_in_middle)", raw)
	}
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type contentChunk struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts content either as a plain string or as an array of
// typed chunks, keeping only the text chunks. The content key must be
// present; an explicit null reads as empty.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Content == nil {
		return errors.New("message.content is required")
	}
	m.Role = raw.Role
	m.Content = ""

	trimmed := strings.TrimSpace(string(raw.Content))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(raw.Content, &m.Content)
	case '[':
		var chunks []contentChunk
		if err := json.Unmarshal(raw.Content, &chunks); err != nil {
			return err
		}
		parts := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			if chunk.Type != "" && chunk.Type != "text" {
				continue
			}
			parts = append(parts, chunk.Text)
		}
		m.Content = strings.Join(parts, "\n")
		return nil
	default:
		return errors.New("message content must be a string or an array of text chunks")
	}
}

// CompletionRequest is the payload of POST /chat/completions.
type CompletionRequest struct {
	Model       string    `json:"model" validate:"required"`
	Messages    []Message `json:"messages" validate:"required,min=1,dive"`
	Temperature float64   `json:"temperature" validate:"gte=0,lte=2"`
	TopP        float64   `json:"top_p" validate:"gt=0,lte=1"`
	MaxTokens   int       `json:"max_tokens" validate:"gt=0"`
	Stop        []string  `json:"stop,omitempty"`
}

// FIMRequest is the payload of POST /fim/completions.
type FIMRequest struct {
	Model       string   `json:"model" validate:"required"`
	Prompt      string   `json:"prompt" validate:"required"`
	Suffix      string   `json:"suffix,omitempty"`
	Temperature float64  `json:"temperature" validate:"gte=0,lte=2"`
	TopP        float64  `json:"top_p" validate:"gt=0,lte=1"`
	MaxTokens   int      `json:"max_tokens" validate:"gt=0"`
	Stop        []string `json:"stop,omitempty"`
}

type CompletionResponse struct {
	ID      string   `json:"id" validate:"required"`
	Object  string   `json:"object,omitempty"`
	Created *int64   `json:"created" validate:"required"`
	Model   string   `json:"model" validate:"required"`
	Choices []Choice `json:"choices" validate:"required,dive"`
	Usage   *Usage   `json:"usage" validate:"required"`
}

type Choice struct {
	Index        *int     `json:"index" validate:"required,gte=0"`
	Message      *Message `json:"message" validate:"required"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens" validate:"gte=0"`
	CompletionTokens int `json:"completion_tokens" validate:"gte=0"`
	TotalTokens      int `json:"total_tokens" validate:"gte=0"`
}

// UnmarshalJSON requires all three counters to be present and non-null.
func (u *Usage) UnmarshalJSON(data []byte) error {
	var raw struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
		TotalTokens      *int `json:"total_tokens"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var missing []string
	if raw.PromptTokens == nil {
		missing = append(missing, "usage.prompt_tokens")
	}
	if raw.CompletionTokens == nil {
		missing = append(missing, "usage.completion_tokens")
	}
	if raw.TotalTokens == nil {
		missing = append(missing, "usage.total_tokens")
	}
	if len(missing) > 0 {
		return errors.New("missing required field(s): " + strings.Join(missing, ", "))
	}
	*u = Usage{
		PromptTokens:     *raw.PromptTokens,
		CompletionTokens: *raw.CompletionTokens,
		TotalTokens:      *raw.TotalTokens,
	}
	return nil
}

// ModelCard is one entry of GET /models.
type ModelCard struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type ModelList struct {
	Object string      `json:"object,omitempty"`
	Data   []ModelCard `json:"data"`
}
