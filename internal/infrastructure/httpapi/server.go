package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/infrastructure/metrics"
	"AvitoMonitor/internal/infrastructure/storage"
	"AvitoMonitor/internal/ports"
	"AvitoMonitor/internal/usecase"
)

// Registrar creates searches from registration requests.
type Registrar interface {
	Register(ctx context.Context, telegramID int64, rawURL, name string) (domain.Search, error)
}

// MetricsSource exposes the process block counters.
type MetricsSource interface {
	Snapshot() metrics.Snapshot
}

// Server is the operational HTTP surface: health, counters and search management.
type Server struct {
	registrar Registrar
	searches  ports.SearchReader
	metrics   MetricsSource
	logger    *slog.Logger
	router    chi.Router
}

type registerRequest struct {
	TelegramID int64  `json:"telegram_id"`
	URL        string `json:"url"`
	Name       string `json:"name"`
}

type searchResponse struct {
	ID       int64   `json:"id"`
	UserID   int64   `json:"user_id"`
	URL      string  `json:"url"`
	Name     string  `json:"name"`
	MaxPrice float64 `json:"max_price"`
	Active   bool    `json:"active"`
}

// NewServer builds the router. A nil registrar disables POST /searches and a
// nil reader disables GET /searches/{id}.
func NewServer(registrar Registrar, searches ports.SearchReader, source MetricsSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{registrar: registrar, searches: searches, metrics: source, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", s.handleMetrics)
	if registrar != nil {
		r.Post("/searches", s.handleRegister)
	}
	if searches != nil {
		r.Get("/searches/{id}", s.handleGetSearch)
	}

	s.router = r
	return s
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var snap metrics.Snapshot
	if s.metrics != nil {
		snap = s.metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	search, err := s.registrar.Register(r.Context(), req.TelegramID, req.URL, req.Name)
	switch {
	case err == nil:
	case usecase.IsValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, usecase.ErrSearchLimit):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	default:
		s.logger.Error("register search", "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(search))
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid search id"})
		return
	}

	search, err := s.searches.GetSearch(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "search not found"})
		return
	default:
		s.logger.Error("get search", "request_id", middleware.GetReqID(r.Context()), "search_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, toResponse(search))
}

func toResponse(search domain.Search) searchResponse {
	return searchResponse{
		ID:       search.ID,
		UserID:   search.UserID,
		URL:      search.URL,
		Name:     search.Name,
		MaxPrice: search.MaxPrice,
		Active:   search.Active,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
