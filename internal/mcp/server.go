// Package mcp exposes the code tasks over the Model Context Protocol, on
// stdio or streamable HTTP.
package mcp

import (
	"context"
	"encoding/json"

	"codemcp/internal/appstate"
	"codemcp/internal/coder"
	"codemcp/internal/config"
	"codemcp/internal/events"
	"codemcp/internal/model"
	"codemcp/internal/protocol"
)

var supportedProtocolVersions = []string{
	protocol.ProtocolVersion,
	"2025-03-26",
	"2024-11-05",
}

// TaskRunner executes code tasks. *coder.Service satisfies it.
type TaskRunner interface {
	Run(ctx context.Context, task coder.Task) (coder.Result, error)
	Infill(ctx context.Context, req coder.Infill) (coder.Result, error)
}

// ModelLister reports the models visible to the configured credential.
// *mistral.Client satisfies it.
type ModelLister interface {
	ListModels(ctx context.Context) ([]model.ModelCard, error)
}

type Server struct {
	cfg     config.Config
	runner  TaskRunner
	models  ModelLister
	stats   *appstate.Stats
	events  events.Emitter
	version string

	tools    map[string]toolDefinition
	sessions *sessionStore
	limiter  *ipRateLimiter
}

type Option func(*Server)

func WithStats(stats *appstate.Stats) Option {
	return func(s *Server) { s.stats = stats }
}

func WithEventEmitter(e events.Emitter) Option {
	return func(s *Server) { s.events = events.Or(e) }
}

func WithModelLister(l ModelLister) Option {
	return func(s *Server) { s.models = l }
}

func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

func NewServer(cfg config.Config, runner TaskRunner, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		runner:   runner,
		events:   events.Discard,
		version:  "dev",
		sessions: newSessionStore(),
		limiter:  newIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tools = s.buildToolRegistry()
	return s
}

// handleMessage decodes and dispatches one raw message. It returns nil when
// nothing must be sent back.
func (s *Server) handleMessage(ctx context.Context, raw []byte) *rpcResponse {
	req, errResp := decodeRequest(raw)
	if errResp != nil {
		return errResp
	}
	return s.dispatch(ctx, req)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) *rpcResponse {
	var resp *rpcResponse
	switch req.Method {
	case "initialize":
		resp = newResult(req.ID, s.initializeResult(req.Params))
	case "ping":
		resp = newResult(req.ID, map[string]interface{}{})
	case "tools/list":
		resp = newResult(req.ID, map[string]interface{}{"tools": s.listTools()})
	case "tools/call":
		result, rpcErr := s.processToolsCall(ctx, req.Params)
		if rpcErr != nil {
			resp = &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
			break
		}
		resp = newResult(req.ID, result)
	case "resources/list":
		resp = newResult(req.ID, map[string]interface{}{"resources": resourceList()})
	case "resources/read":
		result, rpcErr := s.readResource(ctx, req.Params)
		if rpcErr != nil {
			resp = &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
			break
		}
		resp = newResult(req.ID, result)
	default:
		if req.isNotification() {
			// notifications/initialized, notifications/cancelled and any
			// other notification need no reply.
			return nil
		}
		resp = newErrorResponse(req.ID, protocol.RPCMethodNotFound, "method not found: "+req.Method, nil)
	}

	if req.isNotification() {
		return nil
	}
	return resp
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (s *Server) initializeResult(raw json.RawMessage) map[string]interface{} {
	var params initializeParams
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &params)
	}

	s.events.Emit(events.LevelInfo, "client_initialized", map[string]interface{}{
		"client":           params.ClientInfo.Name,
		"client_version":   params.ClientInfo.Version,
		"protocol_version": params.ProtocolVersion,
	})

	return map[string]interface{}{
		"protocolVersion": negotiateProtocolVersion(params.ProtocolVersion),
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{"listChanged": false},
			"resources": map[string]interface{}{"listChanged": false, "subscribe": false},
		},
		"serverInfo": map[string]interface{}{
			"name":    protocol.ServerName,
			"version": s.version,
		},
		"instructions": "Use code_task to complete, fix, test or fill in code, and infill for raw fill-in-the-middle completion.",
	}
}

// negotiateProtocolVersion echoes the client's version when supported and
// otherwise offers the latest one.
func negotiateProtocolVersion(requested string) string {
	for _, v := range supportedProtocolVersions {
		if v == requested {
			return v
		}
	}
	return protocol.ProtocolVersion
}
