// Package api exposes the engine over HTTP for the host process. The
// engine itself is library-level; nothing in here is required to drive
// it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"memflow/internal/domain"
	"memflow/internal/recurrence"
	"memflow/internal/scheduler"
)

// History is the optional archive query surface.
type History interface {
	ListRecent(ctx context.Context, limit int) ([]domain.TaskSnapshot, error)
	Attempts(ctx context.Context, executionID string) ([]domain.StageAttempt, error)
}

type Server struct {
	r     *chi.Mux
	sched *scheduler.Scheduler
	rec   *recurrence.Service
	hist  History
}

func NewServer(sched *scheduler.Scheduler, rec *recurrence.Service, hist History) http.Handler {
	return NewServerWithDebug(sched, rec, hist, false)
}

func NewServerWithDebug(sched *scheduler.Scheduler, rec *recurrence.Service, hist History, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, sched: sched, rec: rec, hist: hist}

	r.Get("/health", s.health)
	r.Post("/api/tasks", s.submitTask)
	r.Get("/api/tasks", s.listTasks)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Post("/api/tasks/{id}/cancel", s.cancelTask)
	r.Post("/api/tasks/{id}/pause", s.pauseTask)
	r.Post("/api/tasks/{id}/resume", s.resumeTask)
	r.Post("/api/tasks/{id}/restart", s.restartTask)
	r.Get("/api/stats", s.stats)
	r.Get("/api/resources", s.resources)
	r.Get("/api/history", s.history)
	r.Get("/api/history/{id}/attempts", s.historyAttempts)
	r.Post("/api/recurrences", s.createRecurrence)
	r.Get("/api/recurrences", s.listRecurrences)
	r.Post("/api/recurrences/{id}/enable", s.setRecurrenceEnabled(true))
	r.Post("/api/recurrences/{id}/disable", s.setRecurrenceEnabled(false))
	r.Delete("/api/recurrences/{id}", s.deleteRecurrence)

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type submitReq struct {
	ProfileID string `json:"profile_id"`
	Priority  string `json:"priority"`
}

type idResp struct {
	ID string `json:"id"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.ProfileID == "" {
		http.Error(w, "profile_id is required", 400)
		return
	}
	priority, ok := domain.ParsePriority(req.Priority)
	if !ok {
		http.Error(w, "unknown priority tier", 400)
		return
	}
	id, err := s.sched.SubmitProfile(req.ProfileID, priority)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, idResp{ID: id})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	state := domain.TaskState(r.URL.Query().Get("state"))
	if state == "" {
		http.Error(w, "state query parameter is required", 400)
		return
	}
	snaps := s.sched.GetByState(state)
	if snaps == nil {
		snaps = []domain.TaskSnapshot{}
	}
	writeJSON(w, 200, snaps)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sched.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, snap)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Cancel(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) pauseTask(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Pause(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) resumeTask(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Resume(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) restartTask(w http.ResponseWriter, r *http.Request) {
	id, err := s.sched.Restart(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, idResp{ID: id})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.sched.Stats())
}

func (s *Server) resources(w http.ResponseWriter, r *http.Request) {
	locks := s.sched.Resources()
	if locks == nil {
		locks = []domain.ResourceLock{}
	}
	writeJSON(w, 200, locks)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		http.Error(w, "history store not configured", 404)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	snaps, err := s.hist.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if snaps == nil {
		snaps = []domain.TaskSnapshot{}
	}
	writeJSON(w, 200, snaps)
}

func (s *Server) historyAttempts(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		http.Error(w, "history store not configured", 404)
		return
	}
	attempts, err := s.hist.Attempts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if attempts == nil {
		attempts = []domain.StageAttempt{}
	}
	writeJSON(w, 200, attempts)
}

type createRecurrenceReq struct {
	Name      string `json:"name"`
	CronExpr  string `json:"cron_expr"`
	ProfileID string `json:"profile_id"`
	Priority  string `json:"priority"`
}

func (s *Server) createRecurrence(w http.ResponseWriter, r *http.Request) {
	var req createRecurrenceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Name == "" || req.CronExpr == "" || req.ProfileID == "" {
		http.Error(w, "name, cron_expr, and profile_id are required", 400)
		return
	}
	if err := recurrence.ValidateCronExpression(req.CronExpr); err != nil {
		http.Error(w, "invalid cron expression: "+err.Error(), 400)
		return
	}
	priority, ok := domain.ParsePriority(req.Priority)
	if !ok {
		http.Error(w, "unknown priority tier", 400)
		return
	}
	id, err := s.rec.Add(req.Name, req.CronExpr, req.ProfileID, priority)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, idResp{ID: id})
}

func (s *Server) listRecurrences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.rec.List())
}

func (s *Server) setRecurrenceEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.rec.SetEnabled(chi.URLParam(r, "id"), enabled); err != nil {
			http.Error(w, "not found", 404)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) deleteRecurrence(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Remove(chi.URLParam(r, "id")); err != nil {
		http.Error(w, "not found", 404)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), 400)
	case errors.Is(err, domain.ErrTaskNotFound):
		http.Error(w, err.Error(), 404)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), 409)
	default:
		http.Error(w, err.Error(), 500)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
