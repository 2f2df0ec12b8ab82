package mcp

import (
	"bytes"
	"encoding/json"
	"strings"

	"codemcp/internal/protocol"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id and therefore
// must not be answered.
func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    *rpcErrorData `json:"data,omitempty"`
}

type rpcErrorData struct {
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func newResult(id json.RawMessage, result interface{}) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func newErrorResponse(id json.RawMessage, code int, message string, data *rpcErrorData) *rpcResponse {
	return &rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	}
}

// decodeRequest parses one JSON-RPC message. On failure it returns the error
// response to send back.
func decodeRequest(raw []byte) (rpcRequest, *rpcResponse) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return rpcRequest{}, newErrorResponse(nil, protocol.RPCInvalidRequest, "batch requests are not supported", nil)
	}

	var req rpcRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return rpcRequest{}, newErrorResponse(nil, protocol.RPCParseError, "parse error: "+err.Error(), nil)
	}
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return req, newErrorResponse(req.ID, protocol.RPCInvalidRequest, "invalid request: jsonrpc must be \"2.0\" and method is required", nil)
	}
	return req, nil
}
