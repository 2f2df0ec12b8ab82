package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"codemcp/internal/coder"
	"codemcp/internal/events"
	"codemcp/internal/model"
	"codemcp/internal/protocol"
)

var toolOrder = []string{
	protocol.ToolNameCodeTask,
	protocol.ToolNameInfill,
}

type toolHandler func(context.Context, map[string]interface{}) (toolCallResult, *toolExecutionError)

type toolDefinition struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
	handler      toolHandler            `json:"-"`
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content           []toolContentItem `json:"content"`
	StructuredContent interface{}       `json:"structuredContent,omitempty"`
	IsError           bool              `json:"isError,omitempty"`
}

type toolContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolExecutionError struct {
	Code      string
	Message   string
	Retryable bool
}

type validationError struct {
	message       string
	canonicalCode string
}

func (e validationError) Error() string { return e.message }

func (s *Server) buildToolRegistry() map[string]toolDefinition {
	return map[string]toolDefinition{
		protocol.ToolNameCodeTask: {
			Name: protocol.ToolNameCodeTask,
			Description: "Run a code-assistance task with Codestral: complete code, fix bugs, " +
				"write tests, or fill in the middle up to a given ending. Returns the code only.",
			InputSchema:  codeTaskInputSchema(),
			OutputSchema: taskOutputSchema(),
			handler:      s.handleCodeTaskTool,
		},
		protocol.ToolNameInfill: {
			Name:         protocol.ToolNameInfill,
			Description:  "Native fill-in-the-middle completion: generate the code between prompt and suffix.",
			InputSchema:  infillInputSchema(),
			OutputSchema: taskOutputSchema(),
			handler:      s.handleInfillTool,
		},
	}
}

func (s *Server) listTools() []toolDefinition {
	tools := make([]toolDefinition, 0, len(s.tools))
	seen := make(map[string]struct{}, len(s.tools))
	for _, name := range toolOrder {
		if tool, ok := s.tools[name]; ok {
			tools = append(tools, tool)
			seen[name] = struct{}{}
		}
	}

	var rest []string
	for name := range s.tools {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		tools = append(tools, s.tools[name])
	}
	return tools
}

func (s *Server) processToolsCall(ctx context.Context, rawParams json.RawMessage) (toolCallResult, *rpcError) {
	params, err := parseToolsCallParams(rawParams)
	if err != nil {
		canonicalCode := protocol.ErrorCodeInvalidField
		var vErr validationError
		if errors.As(err, &vErr) && vErr.canonicalCode != "" {
			canonicalCode = vErr.canonicalCode
		}
		return toolCallResult{}, &rpcError{
			Code:    protocol.RPCInvalidParams,
			Message: err.Error(),
			Data:    &rpcErrorData{Code: canonicalCode},
		}
	}

	tool, ok := s.tools[params.Name]
	if !ok {
		return newToolErrorResult(toolExecutionError{
			Code:    protocol.ErrorCodeUnknownTool,
			Message: fmt.Sprintf("unknown tool: %s", params.Name),
		}), nil
	}

	start := time.Now()
	result, toolErr := tool.handler(ctx, params.Arguments)
	if toolErr != nil {
		result = newToolErrorResult(*toolErr)
	}
	s.events.Emit(events.LevelDebug, "tool_called", map[string]interface{}{
		"tool":        params.Name,
		"is_error":    result.IsError,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func parseToolsCallParams(raw json.RawMessage) (toolsCallParams, error) {
	if len(raw) == 0 {
		return toolsCallParams{}, validationError{
			message:       "params is required",
			canonicalCode: protocol.ErrorCodeMissingField,
		}
	}

	var params toolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return toolsCallParams{}, validationError{
			message:       "invalid tools/call params",
			canonicalCode: protocol.ErrorCodeInvalidField,
		}
	}

	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return toolsCallParams{}, validationError{
			message:       "tools/call params.name is required",
			canonicalCode: protocol.ErrorCodeMissingField,
		}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}
	return params, nil
}

func newToolErrorResult(toolErr toolExecutionError) toolCallResult {
	text := fmt.Sprintf("ERROR: %s: %s", toolErr.Code, toolErr.Message)
	return toolCallResult{
		IsError: true,
		Content: []toolContentItem{
			{Type: "text", Text: text},
		},
		StructuredContent: map[string]interface{}{
			"error": map[string]interface{}{
				"code":      toolErr.Code,
				"message":   toolErr.Message,
				"retryable": toolErr.Retryable,
			},
		},
	}
}

func newTaskResult(task string, res coder.Result) toolCallResult {
	return toolCallResult{
		Content: []toolContentItem{
			{Type: "text", Text: res.Text},
		},
		StructuredContent: map[string]interface{}{
			"task":          task,
			"code":          res.Text,
			"model":         res.Model,
			"finish_reason": res.FinishReason,
			"usage": map[string]interface{}{
				"prompt_tokens":     res.Usage.PromptTokens,
				"completion_tokens": res.Usage.CompletionTokens,
				"total_tokens":      res.Usage.TotalTokens,
			},
		},
	}
}

func (s *Server) handleCodeTaskTool(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"code": {}, "language": {}, "task": {}, "suffix": {},
	}); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}

	code, present, err := parseRequiredText(args, "code")
	if !present {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeMissingField, Message: "code is required"}
	}
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}

	rawTask, present, err := parseRequiredString(args, "task")
	if !present {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeMissingField, Message: "task is required"}
	}
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}
	kind, err := model.ParseTaskKind(rawTask)
	if err != nil {
		return toolCallResult{}, s.mapToolError(err)
	}

	language, err := parseOptionalString(args, "language")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}
	suffix, err := parseOptionalText(args, "suffix")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}

	res, err := s.runner.Run(ctx, coder.Task{
		Kind:     kind,
		Code:     code,
		Language: language,
		Suffix:   suffix,
	})
	if err != nil {
		return toolCallResult{}, s.mapToolError(err)
	}
	return newTaskResult(string(kind), res), nil
}

func (s *Server) handleInfillTool(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"prompt": {}, "suffix": {}, "max_tokens": {},
	}); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}

	prompt, present, err := parseRequiredText(args, "prompt")
	if !present {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeMissingField, Message: "prompt is required"}
	}
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}
	suffix, err := parseOptionalText(args, "suffix")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}
	maxTokens, present, err := parseOptionalIntegerWithPresence(args, "max_tokens")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: err.Error()}
	}
	if present && maxTokens < 1 {
		return toolCallResult{}, &toolExecutionError{Code: protocol.ErrorCodeInvalidField, Message: "max_tokens must be at least 1"}
	}

	res, err := s.runner.Infill(ctx, coder.Infill{
		Prompt:    prompt,
		Suffix:    suffix,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return toolCallResult{}, s.mapToolError(err)
	}
	return newTaskResult(protocol.ToolNameInfill, res), nil
}

// mapToolError turns task errors into tool errors. Provider errors keep
// their code and message; anything else is logged and sanitized.
func (s *Server) mapToolError(err error) *toolExecutionError {
	if err == nil {
		return nil
	}
	var providerErr *model.ProviderError
	if errors.As(err, &providerErr) {
		msg := strings.TrimSpace(providerErr.Message)
		if msg == "" {
			msg = providerErr.Error()
		}
		return &toolExecutionError{
			Code:      string(providerErr.Code),
			Message:   msg,
			Retryable: providerErr.Retryable,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &toolExecutionError{Code: string(model.KindTransport), Message: err.Error(), Retryable: true}
	}

	s.events.Emit(events.LevelError, "tool_error", map[string]interface{}{
		"error": err.Error(),
		"msg":   "internal server error",
	})
	return &toolExecutionError{
		Code:    protocol.ErrorCodeInternal,
		Message: "internal server error",
	}
}

func assertNoUnknownArguments(args map[string]interface{}, allowed map[string]struct{}) error {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("unknown argument: %s", key)
		}
	}
	return nil
}

func parseRequiredString(args map[string]interface{}, key string) (string, bool, error) {
	raw, ok := args[key]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", true, fmt.Errorf("%s must be a string", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true, fmt.Errorf("%s must be a non-empty string", key)
	}
	return value, true, nil
}

// parseRequiredText is parseRequiredString for source text: the value is
// returned untrimmed because leading indentation is significant.
func parseRequiredText(args map[string]interface{}, key string) (string, bool, error) {
	raw, ok := args[key]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", true, fmt.Errorf("%s must be a string", key)
	}
	if strings.TrimSpace(value) == "" {
		return "", true, fmt.Errorf("%s must be a non-empty string", key)
	}
	return value, true, nil
}

func parseOptionalString(args map[string]interface{}, key string) (string, error) {
	value, err := parseOptionalText(args, key)
	return strings.TrimSpace(value), err
}

func parseOptionalText(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return value, nil
}

func parseInteger(value interface{}, field string) (int, error) {
	switch v := value.(type) {
	case float64:
		if math.Trunc(v) != v {
			return 0, fmt.Errorf("%s must be an integer", field)
		}
		if v < math.MinInt || v > math.MaxInt {
			return 0, fmt.Errorf("%s is out of range", field)
		}
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", field)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer", field)
	}
}

func parseOptionalIntegerWithPresence(args map[string]interface{}, key string) (int, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	v, err := parseInteger(raw, key)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

func taskNames() []string {
	names := make([]string, 0, len(model.TaskKinds))
	for _, kind := range model.TaskKinds {
		names = append(names, string(kind))
	}
	return names
}

func codeTaskInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"code": map[string]interface{}{
				"type":        "string",
				"minLength":   1,
				"description": "Source code to work on.",
			},
			"language": map[string]interface{}{
				"type":        "string",
				"description": "Language tag for the code fence, e.g. python or go.",
			},
			"task": map[string]interface{}{
				"type": "string",
				"enum": taskNames(),
			},
			"suffix": map[string]interface{}{
				"type":        "string",
				"description": "Required ending for fill_in_middle; ignored by other tasks.",
			},
		},
		"required": []string{"code", "task"},
	}
}

func infillInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"prompt":     map[string]interface{}{"type": "string", "minLength": 1},
			"suffix":     map[string]interface{}{"type": "string"},
			"max_tokens": map[string]interface{}{"type": "integer", "minimum": 1, "default": model.DefaultMaxTokens},
		},
		"required": []string{"prompt"},
	}
}

func taskOutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task":          map[string]interface{}{"type": "string"},
			"code":          map[string]interface{}{"type": "string"},
			"model":         map[string]interface{}{"type": "string"},
			"finish_reason": map[string]interface{}{"type": "string"},
			"usage": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt_tokens":     map[string]interface{}{"type": "integer"},
					"completion_tokens": map[string]interface{}{"type": "integer"},
					"total_tokens":      map[string]interface{}{"type": "integer"},
				},
			},
		},
		"required": []string{"task", "code", "model", "usage"},
	}
}
