package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"tanbih/internal/dispatch"
	"tanbih/internal/domain"
	"tanbih/internal/observability"
	"tanbih/internal/store"
)

type Dispatcher interface {
	Run(ctx context.Context, now time.Time, opts dispatch.RunOptions) (dispatch.Summary, error)
	SendUnified(ctx context.Context, req domain.UnifiedRequest, now time.Time) (domain.UnifiedResponse, error)
}

type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]store.AutomationRun, error)
	GetRun(ctx context.Context, id string) (store.AutomationRun, bool, error)
}

type TriggerQueue interface {
	EnqueueDispatch(ctx context.Context, triggeredBy, source string) error
}

type API struct {
	Dispatcher Dispatcher
	Runs       RunStore
	Queue      TriggerQueue // nil disables the async path
	Now        func() time.Time
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/automated-reminders", a.handleAutomatedReminders).Methods(http.MethodPost)
	r.HandleFunc("/unified-notification", a.handleUnifiedNotification).Methods(http.MethodPost)
	r.HandleFunc("/automation-runs", a.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/automation-runs/{id}", a.handleGetRun).Methods(http.MethodGet)
}

type triggerRequest struct {
	TriggeredBy string `json:"triggered_by"`
	Source      string `json:"source"`
	Queue       bool   `json:"queue"`
}

type triggerResponse struct {
	Success    bool              `json:"success"`
	RunID      string            `json:"run_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	DurationMS int64             `json:"duration_ms"`
	Results    domain.RunResults `json:"results"`
	Error      string            `json:"error,omitempty"`
}

func (a *API) handleAutomatedReminders(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	// body is optional metadata; an empty body is a plain trigger
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "manual"
	}
	if req.Source == "" {
		req.Source = "api"
	}

	if req.Queue && a.Queue != nil {
		if err := a.Queue.EnqueueDispatch(r.Context(), req.TriggeredBy, req.Source); err != nil {
			slog.Error("dispatch enqueue failed", "err", err)
			observability.Enqueues.WithLabelValues("error").Inc()
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
			return
		}
		observability.Enqueues.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "queued": true})
		return
	}

	summary, err := a.Dispatcher.Run(r.Context(), a.Now(), dispatch.RunOptions{
		TriggeredBy: req.TriggeredBy,
		Source:      req.Source,
	})
	if err != nil {
		slog.Error("dispatch run failed", "err", err, "run_id", summary.RunID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, triggerResponse{
		Success:    true,
		RunID:      summary.RunID,
		Timestamp:  a.Now().UTC(),
		DurationMS: summary.DurationMS,
		Results:    summary.Results,
		Error:      summary.Error,
	})
}

func (a *API) handleUnifiedNotification(w http.ResponseWriter, r *http.Request) {
	var req domain.UnifiedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := a.Dispatcher.SendUnified(r.Context(), req, a.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNoChannels) || errors.Is(err, domain.ErrUnknownChannel) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("unified notification failed", "err", err, "type", req.Type)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.Runs.ListRuns(r.Context(), 20)
	if err != nil {
		slog.Error("list runs failed", "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	run, found, err := a.Runs.GetRun(r.Context(), id)
	if err != nil {
		slog.Error("get run failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
