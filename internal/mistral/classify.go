package mistral

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"codemcp/internal/model"
)

const maxErrorMessageLen = 500

// ClassifyStatus maps a non-2xx status and its body to a ProviderError. It
// performs no I/O.
func ClassifyStatus(statusCode int, body []byte) *model.ProviderError {
	message := remoteMessage(body)
	if message == "" {
		message = fmt.Sprintf("mistral returned status %d", statusCode)
	}

	var kind model.ErrorKind
	switch {
	case statusCode == http.StatusUnauthorized:
		kind = model.KindAuth
	case statusCode == http.StatusTooManyRequests:
		kind = model.KindRateLimit
	case statusCode >= http.StatusInternalServerError:
		kind = model.KindServer
	default:
		kind = model.KindUnclassified
	}

	pe := model.NewError(kind, message)
	pe.StatusCode = statusCode
	return pe
}

type errorBody struct {
	Message json.RawMessage `json:"message"`
	Detail  json.RawMessage `json:"detail"`
	Error   json.RawMessage `json:"error"`
}

// remoteMessage digs the human-readable message out of the error shapes the
// API is known to return. Non-JSON bodies are used verbatim.
func remoteMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var parsed errorBody
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			return ""
		}
		return truncate(trimmed)
	}
	for _, raw := range []json.RawMessage{parsed.Message, parsed.Detail, parsed.Error} {
		if msg := messageFromRaw(raw); msg != "" {
			return truncate(msg)
		}
	}
	return ""
}

func messageFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var obj struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return strings.TrimSpace(obj.Message)
		}
		return strings.TrimSpace(obj.Msg)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if msg := strings.TrimSpace(item.Msg); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func truncate(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	return s[:maxErrorMessageLen] + "..."
}
