package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/BTreeMap/JarvisPipe/internal/scheduler"
	"github.com/go-chi/chi/v5"
)

const defaultHistoryLimit = 100

type utteranceRequest struct {
	Text string `json:"text" validate:"required,max=4096"`
}

func (s *Server) submitUtteranceHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.submitUtteranceHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("text is required and must be at most 4096 characters"))
		return
	}

	accepted := s.deps.Gate.Evaluate(req.Text)
	if err := s.deps.Submitter.Submit(r.Context(), req.Text); err != nil {
		slog.Error("Server.submitUtteranceHandler: submit failed", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Assistant is not running"))
		return
	}
	writeJSONResponse(w, http.StatusAccepted, models.Gated(accepted))
}

func (s *Server) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.deps.Transcript.Messages()))
}

func (s *Server) listActionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.deps.Actions.Pending()))
}

func (s *Server) actionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Action history is not recorded"))
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = n
	}
	records, err := s.deps.History.ActionRecords(r.Context(), limit)
	if err != nil {
		slog.Error("Server.actionHistoryHandler: failed to load records", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load action history"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

func (s *Server) cancelActionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid action id"))
		return
	}
	if err := s.deps.Actions.Cancel(id); err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
			return
		}
		slog.Error("Server.cancelActionHandler: cancel failed", "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel action"))
		return
	}
	slog.Info("Server.cancelActionHandler: action cancelled", "id", id)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]uint64{"cancelled": id}))
}
