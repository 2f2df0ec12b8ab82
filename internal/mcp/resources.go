package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"codemcp/internal/model"
	"codemcp/internal/prompt"
	"codemcp/internal/protocol"
)

const resourceMIMEType = "application/json"

type resourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mimeType"`
}

type resourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text"`
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func resourceList() []resourceDescriptor {
	return []resourceDescriptor{
		{
			URI:         protocol.ResourceURITasks,
			Name:        "tasks",
			Description: "Supported code tasks and the system prompt each one uses.",
			MIMEType:    resourceMIMEType,
		},
		{
			URI:         protocol.ResourceURIModels,
			Name:        "models",
			Description: "Configured model identifiers and, when reachable, the models the API key can use.",
			MIMEType:    resourceMIMEType,
		},
		{
			URI:         protocol.ResourceURIStats,
			Name:        "stats",
			Description: "Request counters since the server started.",
			MIMEType:    resourceMIMEType,
		},
	}
}

func (s *Server) readResource(ctx context.Context, raw json.RawMessage) (map[string]interface{}, *rpcError) {
	var params resourcesReadParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{
				Code:    protocol.RPCInvalidParams,
				Message: "invalid resources/read params",
				Data:    &rpcErrorData{Code: protocol.ErrorCodeInvalidField},
			}
		}
	}
	uri := strings.TrimSpace(params.URI)
	if uri == "" {
		return nil, &rpcError{
			Code:    protocol.RPCInvalidParams,
			Message: "resources/read params.uri is required",
			Data:    &rpcErrorData{Code: protocol.ErrorCodeMissingField},
		}
	}

	var payload interface{}
	switch uri {
	case protocol.ResourceURITasks:
		payload = tasksPayload()
	case protocol.ResourceURIModels:
		payload = s.modelsPayload(ctx)
	case protocol.ResourceURIStats:
		payload = s.stats.Snapshot()
	default:
		return nil, &rpcError{
			Code:    protocol.RPCInvalidParams,
			Message: "unknown resource: " + uri,
			Data:    &rpcErrorData{Code: protocol.ErrorCodeInvalidField},
		}
	}

	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, &rpcError{Code: protocol.RPCInternalError, Message: "failed to encode resource"}
	}
	return map[string]interface{}{
		"contents": []resourceContent{{URI: uri, MIMEType: resourceMIMEType, Text: string(text)}},
	}, nil
}

func tasksPayload() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(model.TaskKinds))
	for _, kind := range model.TaskKinds {
		out = append(out, map[string]interface{}{
			"task":          string(kind),
			"system_prompt": prompt.SystemPrompt(kind),
			"uses_suffix":   kind == model.TaskFillInMiddle,
		})
	}
	return out
}

func (s *Server) modelsPayload(ctx context.Context) map[string]interface{} {
	out := map[string]interface{}{
		"chat_model":  s.cfg.Mistral.Model,
		"mamba_model": s.cfg.Mistral.MambaModel,
		"fim_model":   s.cfg.Mistral.Model,
	}
	if s.models == nil {
		return out
	}

	cards, err := s.models.ListModels(ctx)
	if err != nil {
		out["available_error"] = err.Error()
		return out
	}
	ids := make([]string, 0, len(cards))
	for _, card := range cards {
		ids = append(ids, card.ID)
	}
	out["available"] = ids
	return out
}
