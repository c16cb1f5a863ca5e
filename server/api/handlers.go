// Package api implements the REST handlers over the workflow engine.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sprocketd/sprocket/contract"
	"github.com/sprocketd/sprocket/engine"
	"github.com/sprocketd/sprocket/task"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Engine  *engine.Engine
	Logger  *slog.Logger
	Version string
	StartAt int64 // unix timestamp of server start
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("POST /api/tasks/cancel-all", h.cancelAll)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("POST /api/tasks/{id}/start", h.startTask)
	mux.HandleFunc("POST /api/tasks/{id}/complete", h.completeTask)
	mux.HandleFunc("POST /api/tasks/{id}/fail", h.failTask)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", h.cancelTask)
	mux.HandleFunc("POST /api/tasks/{id}/chain", h.chainTask)
	mux.HandleFunc("PUT /api/tasks/{id}/metadata", h.setMetadata)

	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("POST /api/validate", h.validateOutputs)
	mux.HandleFunc("GET /api/resolve/next-agent", h.resolveNextAgent)
	mux.HandleFunc("GET /api/resolve/next-source", h.resolveNextSource)
	mux.HandleFunc("GET /api/history", h.eventHistory)

	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps engine/store errors to HTTP status codes. Protocol errors
// are the caller's fault, never the server's.
func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrNotFound), errors.Is(err, contract.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, task.ErrAgentBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	setParam := r.URL.Query().Get("set")
	sets := task.LiveSets
	if setParam != "" {
		sets = []task.Status{task.Status(setParam)}
	}

	tasks := []*task.Task{}
	for _, set := range sets {
		list, err := h.Engine.List(set)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		tasks = append(tasks, list...)
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := h.Engine.Create(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Engine.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// startTask blocks until the worker returns; with automation enabled the
// response reflects the whole chain that ran.
func (h *Handlers) startTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Engine.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) completeTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.Engine.Complete(r.Context(), r.PathValue("id"), body.Result)
	if err != nil {
		if res != nil {
			// The task completed but the chain did not; report both.
			writeJSON(w, http.StatusOK, map[string]any{"task": res.Task, "chain_error": err.Error()})
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) failTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := h.Engine.Fail(r.Context(), r.PathValue("id"), body.Error)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) cancelTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := h.Engine.Cancel(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) cancelAll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	n, err := h.Engine.CancelAll(r.Context(), body.Reason)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

func (h *Handlers) chainTask(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.AutoChain(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chain": res, "message": res.Message()})
}

func (h *Handlers) setMetadata(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Key == "" {
		writeError(w, http.StatusBadRequest, "metadata key is required")
		return
	}
	if err := h.Engine.SetMetadata(r.PathValue("id"), body.Key, body.Value); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Agent / resolution handlers ---

func (h *Handlers) listAgents(w http.ResponseWriter, _ *http.Request) {
	agents, err := h.Engine.Agents()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if agents == nil {
		agents = []*task.Availability{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handlers) validateOutputs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Agent string `json:"agent"`
		Unit  string `json:"unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res := h.Engine.ValidateOutputs(body.Agent, body.Unit)
	writeJSON(w, http.StatusOK, map[string]any{"result": res, "summary": res.Summary()})
}

func (h *Handlers) resolveNextAgent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	next, err := h.Engine.ResolveNextAgent(q.Get("agent"), q.Get("status"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"next_agent": next})
}

func (h *Handlers) resolveNextSource(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src, err := h.Engine.ResolveNextSource(q.Get("unit"), q.Get("agent"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source_path": src})
}

func (h *Handlers) eventHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	history, err := h.Engine.Bus().History(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// --- Status ---

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}

// StatusHandler returns the public status endpoint handler.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": h.Version,
		})
	}
}
