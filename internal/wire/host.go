package wire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dusk-indust/coordinate/internal/coordinator"
	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/task"
)

// keepAliveInterval is how often an idle event stream receives a comment.
const keepAliveInterval = 15 * time.Second

// Host exposes a coordinator over HTTP:
//
//	GET    /agents                  registered agents
//	GET    /sessions                active sessions
//	POST   /sessions                create a session from a task (JSON or YAML); ?run=true starts it
//	GET    /sessions/{id}           session snapshot
//	POST   /sessions/{id}/run       drive the session in the background
//	GET    /sessions/{id}/result    result of the last drive
//	POST   /sessions/{id}/resolve   resolve the first detected conflict
//	POST   /sessions/{id}/optimize  proposed rebalanced assignment
//	DELETE /sessions/{id}           clean up a terminal session
//	GET    /events                  SSE stream of coordinator events; ?session= filters
type Host struct {
	coord  *coordinator.Coordinator
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHost creates a Host over c.
func NewHost(c *coordinator.Coordinator, logger logging.Logger) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		coord:  c,
		logger: logging.Component(logger, "host"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the HTTP routes of the host.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents", h.handleAgents)
	mux.HandleFunc("GET /sessions", h.handleSessions)
	mux.HandleFunc("POST /sessions", h.handleCreate)
	mux.HandleFunc("GET /sessions/{id}", h.handleSession)
	mux.HandleFunc("POST /sessions/{id}/run", h.handleRun)
	mux.HandleFunc("GET /sessions/{id}/result", h.handleResult)
	mux.HandleFunc("POST /sessions/{id}/resolve", h.handleResolve)
	mux.HandleFunc("POST /sessions/{id}/optimize", h.handleOptimize)
	mux.HandleFunc("DELETE /sessions/{id}", h.handleCleanup)
	mux.HandleFunc("GET /events", h.handleEvents)
	return mux
}

// Close cancels background drives and open event streams and waits for
// the drives to return.
func (h *Host) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Host) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Agents())
}

func (h *Host) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Sessions())
}

func (h *Host) handleCreate(w http.ResponseWriter, r *http.Request) {
	t, err := task.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := h.coord.CreateSession(t)
	if err != nil {
		h.writeCoordError(w, err)
		return
	}
	if r.URL.Query().Get("run") == "true" {
		h.start(snap.ID)
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Host) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coord.Session(r.PathValue("id"))
	if err != nil {
		h.writeCoordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Host) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.coord.Session(id); err != nil {
		h.writeCoordError(w, err)
		return
	}
	h.start(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": id})
}

// start drives a session on the host context. Outcomes reach observers
// through the event stream and the result endpoint.
func (h *Host) start(id string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.coord.Coordinate(h.ctx, id); err != nil {
			h.logger.Warn("session drive failed", "session", id, "error", err)
		}
	}()
}

func (h *Host) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.coord.Result(r.PathValue("id"))
	if err != nil {
		h.writeCoordError(w, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, errors.New("session has not produced a result"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Host) handleResolve(w http.ResponseWriter, r *http.Request) {
	res, err := h.coord.ResolveConflicts(r.PathValue("id"))
	if err != nil {
		h.writeCoordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Host) handleOptimize(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coord.Optimize(r.PathValue("id"))
	if err != nil {
		h.writeCoordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Host) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.Cleanup(r.Context(), r.PathValue("id")); err != nil {
		h.writeCoordError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams coordinator events until the client goes away, the
// host closes, or the coordinator closes its event bus.
func (h *Host) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("session")
	events, detach := h.coord.Subscribe(0)
	defer detach()

	sw := NewSSEWriter(w)
	sw.Init()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if err := sw.WriteComment("keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filter != "" && ev.SessionID != filter {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encode event", "error", err)
				continue
			}
			se := StreamEvent{Type: string(ev.Type), SessionID: ev.SessionID, Data: data}
			if err := sw.WriteEvent(se); err != nil {
				h.logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}

func (h *Host) writeCoordError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, coordinator.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, coordinator.ErrSessionActive), errors.Is(err, coordinator.ErrSessionBusy):
		status = http.StatusConflict
	case errors.Is(err, task.ErrInvalid):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
