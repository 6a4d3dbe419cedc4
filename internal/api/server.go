// Package api exposes uploads, analysis jobs and reports over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/mixsig/internal/store"
)

// Store is the persistence the API needs.
type Store interface {
	CreateUpload(ctx context.Context, u store.NewUpload) (uuid.UUID, error)
	GetUpload(ctx context.Context, id uuid.UUID) (*store.Upload, error)
	DeleteUpload(ctx context.Context, id uuid.UUID) error
	CountMessages(ctx context.Context, uploadID uuid.UUID) (int, error)
	CreateJob(ctx context.Context, uploadID uuid.UUID) (*store.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error)
	UpdateJob(ctx context.Context, id uuid.UUID, status string, progress int, errMsg string) error
	GetReport(ctx context.Context, uploadID uuid.UUID) (*store.Report, error)
	ListExcerpts(ctx context.Context, uploadID uuid.UUID, purpose string) (map[uuid.UUID]string, error)
	Ping(ctx context.Context) error
}

// FileStore keeps raw exports on disk.
type FileStore interface {
	Save(platform, filename, contentType string, r io.Reader) (string, error)
	Open(path string) (*os.File, error)
	Delete(path string) error
}

// Cipher encrypts and decrypts text at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Submitter schedules analysis jobs.
type Submitter interface {
	Submit(jobID, uploadID uuid.UUID) error
}

// EventBus reports the health of the event bus connection.
type EventBus interface {
	Connected() bool
}

// Config holds the server settings.
type Config struct {
	Port               int
	APIToken           string
	RateLimitPerMinute int
	MaxUploadBytes     int64
	Retention          time.Duration
	Engine             string
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Store  Store
	Files  FileStore
	Cipher Cipher
	Jobs   Submitter
	// Bus is nil when analyses run in-process without NATS.
	Bus EventBus
}

type Server struct {
	router *chi.Mux
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}

	router.Get("/health", s.health)

	limiter := newClientLimiter(cfg.RateLimitPerMinute)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(cfg.APIToken))
		r.Use(limiter.middleware)

		r.Get("/status", s.status)

		r.Post("/uploads", s.createUpload)
		r.Get("/uploads/{id}", s.getUpload)
		r.Delete("/uploads/{id}", s.deleteUpload)
		r.Post("/uploads/{id}/analyze", s.analyzeUpload)

		r.Get("/jobs/{id}", s.getJob)

		r.Get("/reports/{id}", s.getReport)
		r.Get("/reports/{id}/highlights", s.getHighlights)
		r.Get("/reports/{id}/download", s.downloadReport)
	})

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	db := "ok"
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.logger.Warn("database ping failed", "error", err)
		db = "unavailable"
	}
	events := "disabled"
	if s.deps.Bus != nil {
		events = "connected"
		if !s.deps.Bus.Connected() {
			events = "disconnected"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":    "mixsig",
		"status":   "ok",
		"engine":   s.cfg.Engine,
		"database": db,
		"events":   events,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps store failures onto HTTP statuses.
func (s *Server) storeError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("store error", "what", what, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
