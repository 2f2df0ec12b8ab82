package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"codemcp/internal/events"
	"codemcp/internal/protocol"
)

const (
	maxRequestBodyBytes = 8 << 20
	janitorInterval     = time.Minute
	limiterIdleTTL      = 10 * time.Minute
)

// Handler returns the streamable HTTP handler: POST and DELETE on the MCP
// path plus GET /healthz.
func (s *Server) Handler() http.Handler {
	mcpPath := s.cfg.Server.MCPPath
	if mcpPath == "" {
		mcpPath = protocol.DefaultMCPPath
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.requireAuth)
		r.Post(mcpPath, s.handlePost)
		r.Delete(mcpPath, s.handleDelete)
		r.Get(mcpPath, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, DELETE")
			w.WriteHeader(http.StatusMethodNotAllowed)
		})
	})
	return r
}

// Serve blocks while handling HTTP on listener. Cancel ctx to shut down;
// in-flight requests are allowed to drain.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.writeTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	s.events.Emit(events.LevelInfo, "server_started", map[string]interface{}{
		"transport": "http",
		"url":       "http://" + listener.Addr().String() + s.cfg.Server.MCPPath,
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.runJanitor(janitorCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.events.Emit(events.LevelInfo, "server_stopped", map[string]interface{}{"transport": "http"})
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// writeTimeout leaves room for a full upstream call.
func (s *Server) writeTimeout() time.Duration {
	timeout := s.cfg.Mistral.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return timeout + 30*time.Second
}

func (s *Server) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.sweep(sessionIdleTTL); n > 0 {
				s.events.Emit(events.LevelDebug, "sessions_expired", map[string]interface{}{"count": n})
			}
			s.limiter.cleanup(limiterIdleTTL)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"sessions": s.sessions.count(),
	})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, newErrorResponse(nil, protocol.RPCInvalidRequest, "request body too large", nil))
			return
		}
		writeJSON(w, http.StatusBadRequest, newErrorResponse(nil, protocol.RPCParseError, "failed to read request body", nil))
		return
	}

	req, errResp := decodeRequest(body)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, errResp)
		return
	}

	if req.Method == "initialize" {
		resp := s.dispatch(r.Context(), req)
		if resp == nil || resp.Error != nil {
			writeRPC(w, resp)
			return
		}
		version := protocol.ProtocolVersion
		if result, ok := resp.Result.(map[string]interface{}); ok {
			if v, ok := result["protocolVersion"].(string); ok {
				version = v
			}
		}
		sessionID := s.sessions.create(version)
		s.events.Emit(events.LevelInfo, "session_created", map[string]interface{}{"session_id": sessionID})
		w.Header().Set(protocol.MCPSessionHeader, sessionID)
		writeRPC(w, resp)
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(protocol.MCPSessionHeader))
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, newErrorResponse(req.ID, protocol.RPCServerError,
			"missing "+protocol.MCPSessionHeader+" header; call initialize first",
			&rpcErrorData{Code: protocol.ErrorCodeSessionNotFound}))
		return
	}
	if !s.sessions.touch(sessionID) {
		writeJSON(w, http.StatusNotFound, newErrorResponse(req.ID, protocol.RPCServerError,
			"session not found", &rpcErrorData{Code: protocol.ErrorCodeSessionNotFound}))
		return
	}

	writeRPC(w, s.dispatch(r.Context(), req))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.Header.Get(protocol.MCPSessionHeader))
	if sessionID == "" || !s.sessions.remove(sessionID) {
		writeJSON(w, http.StatusNotFound, newErrorResponse(nil, protocol.RPCServerError,
			"session not found", &rpcErrorData{Code: protocol.ErrorCodeSessionNotFound}))
		return
	}
	s.events.Emit(events.LevelInfo, "session_closed", map[string]interface{}{"session_id": sessionID})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	token := strings.TrimSpace(s.cfg.Server.AuthToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			s.events.Emit(events.LevelWarn, "unauthorized", map[string]interface{}{"remote": realIP(r)})
			w.Header().Set("WWW-Authenticate", `Bearer realm="codemcp"`)
			writeJSON(w, http.StatusUnauthorized, newErrorResponse(nil, protocol.RPCServerError,
				"missing or invalid bearer token", &rpcErrorData{Code: protocol.ErrorCodeUnauthorized}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := realIP(r)
		if !s.limiter.allow(ip) {
			s.events.Emit(events.LevelWarn, "rate_limited", map[string]interface{}{"remote": ip})
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, newErrorResponse(nil, protocol.RPCServerError,
				"rate limit exceeded", &rpcErrorData{Code: protocol.ErrorCodeRateLimited, Retryable: true}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.events.Emit(events.LevelDebug, "http_request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// writeRPC writes a JSON-RPC response, or 202 Accepted for notifications.
func writeRPC(w http.ResponseWriter, resp *rpcResponse) {
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
