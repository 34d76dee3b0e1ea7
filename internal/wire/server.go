package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/logging"
)

// Server hosts one agent over HTTP/JSON-RPC.
type Server struct {
	agent  agent.Agent
	card   AgentCard
	logger logging.Logger
	http   *http.Server
	addr   string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithCard overrides the card derived from the agent.
func WithCard(card AgentCard) ServerOption {
	return func(s *Server) {
		s.card = card
	}
}

// NewServer creates a server for a.
func NewServer(a agent.Agent, opts ...ServerOption) *Server {
	s := &Server{agent: a, card: CardOf(a)}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "wire")
	return s
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CardPath, s.handleAgentCard)
	mux.HandleFunc("POST /", s.handleJSONRPC)
	return mux
}

// Start binds addr and serves in a background goroutine. It returns once the
// listener is open, so a bind failure is reported here.
func (s *Server) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("wire: listen %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()
	s.http = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "addr", s.addr, "error", err)
		}
	}()
	s.logger.Info("agent hosted", "agent", s.card.ID, "addr", s.addr)
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.card); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleJSONRPC decodes a JSON-RPC 2.0 request and dispatches it to the
// hosted agent.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPCError(w, nil, ErrCodeParse, "Parse error: "+err.Error())
		return
	}
	if req.JSONRPC != JSONRPCVersion {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidRequest, fmt.Sprintf("Invalid request: jsonrpc %q", req.JSONRPC))
		return
	}

	ctx := r.Context()
	switch req.Method {
	case MethodCard:
		writeJSONRPCResult(w, req.ID, s.card)
	case MethodProcess:
		s.dispatchProcess(ctx, w, &req)
	case MethodCommunicate:
		s.dispatchCommunicate(ctx, w, &req)
	default:
		writeJSONRPCError(w, req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) dispatchProcess(ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest) {
	var params ProcessParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}

	out, err := s.agent.Process(ctx, params.Input)
	if err != nil {
		s.logger.Warn("process failed", "input", params.Input.ID, "error", err)
		writeJSONRPCError(w, req.ID, ErrCodeAgentFailed, err.Error())
		return
	}
	writeJSONRPCResult(w, req.ID, out)
}

func (s *Server) dispatchCommunicate(ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest) {
	comm, ok := s.agent.(agent.Communicator)
	if !ok {
		writeJSONRPCError(w, req.ID, ErrCodeNotCommunicator, fmt.Sprintf("agent %s takes no peer messages", s.card.ID))
		return
	}

	var params CommunicateParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}

	reply, err := comm.Communicate(ctx, params.Peer, params.Message)
	if err != nil {
		s.logger.Warn("communicate failed", "peer", params.Peer, "error", err)
		writeJSONRPCError(w, req.ID, ErrCodeAgentFailed, err.Error())
		return
	}
	writeJSONRPCResult(w, req.ID, reply)
}

// writeJSONRPCResult writes a successful JSON-RPC response.
func writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		writeJSONRPCError(w, id, ErrCodeInternal, "Failed to marshal result: "+err.Error())
		return
	}
	json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  data,
	})
}

// writeJSONRPCError writes a JSON-RPC error response.
func writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	})
}
