// Package api exposes a small HTTP control surface for a running assistant:
// submitting text utterances, reading the transcript and managing pending actions.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submitter hands utterances to the conversation loop.
type Submitter interface {
	Submit(ctx context.Context, text string) error
}

// Gate predicts whether an utterance will pass the wake-word check.
type Gate interface {
	Evaluate(utterance string) bool
}

// Transcript exposes the conversation so far.
type Transcript interface {
	Messages() []models.Message
}

// Actions manages pending deferred actions.
type Actions interface {
	Pending() []models.ActionInfo
	Cancel(id uint64) error
}

// History returns persisted action lifecycle records.
type History interface {
	ActionRecords(ctx context.Context, limit int) ([]models.ActionRecord, error)
}

// Deps are the collaborators served by the API. History may be nil.
type Deps struct {
	Submitter  Submitter
	Gate       Gate
	Transcript Transcript
	Actions    Actions
	History    History
}

// Server serves the control API.
type Server struct {
	deps       Deps
	validate   *validator.Validate
	httpServer *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{deps: deps, validate: validator.New()}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "alive"}))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/utterances", s.submitUtteranceHandler)
	r.Get("/transcript", s.transcriptHandler)
	r.Route("/actions", func(r chi.Router) {
		r.Get("/", s.listActionsHandler)
		r.Get("/history", s.actionHistoryHandler)
		r.Delete("/{id}", s.cancelActionHandler)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("Server.Start: stopped")
	return nil
}
