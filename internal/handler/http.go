// Package handler exposes the read API over HTTP: match replicas, their
// event logs and stats, career leaderboards, and session status. Writes go
// through the sync protocol, not this API; the one write-ish endpoint
// injects a wire payload into the normal dispatch path.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
	"github.com/xinchenjiangau/PickUpSoccer/internal/reconcile"
	"github.com/xinchenjiangau/PickUpSoccer/internal/session"
	"github.com/xinchenjiangau/PickUpSoccer/internal/stats"
)

// Handler provides HTTP handlers for the match sync API
type Handler struct {
	store   reconcile.Store
	engine  *reconcile.Engine
	session *session.Session
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(store reconcile.Store, engine *reconcile.Engine, sess *session.Session, logger *slog.Logger) *Handler {
	return &Handler{
		store:   store,
		engine:  engine,
		session: sess,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", h.GetSessionStatus)
		r.Post("/commands", h.InjectCommand)

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", h.ListMatches)

			r.Route("/{matchID}", func(r chi.Router) {
				r.Get("/", h.GetMatch)
				r.Delete("/", h.DeleteMatch)
				r.Get("/events", h.GetMatchEvents)
				r.Get("/stats", h.GetMatchStats)
			})
		})

		r.Get("/leaderboard/{metric}", h.GetLeaderboard)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetSessionStatus reports peer reachability and pairing
func (h *Handler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"reachable": h.session.Reachable(),
		"paired":    h.session.Paired(),
	})
}

// InjectCommand feeds one wire-format payload into the dispatch path, as
// if it had arrived from the peer. Malformed commands are dropped by the
// dispatcher, so this endpoint always accepts.
func (h *Handler) InjectCommand(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidCommand)
		return
	}

	h.session.Dispatch(r.Context(), payload)
	h.writeSuccess(w, map[string]string{"status": "accepted"})
}

// ListMatches returns all known match replicas
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.store.ListMatches(r.Context())
	if err != nil {
		h.logger.Error("failed to list matches", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, matches)
}

// GetMatch returns one match replica with its lifecycle state
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := h.matchID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	m, err := h.store.GetMatch(r.Context(), matchID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get match", "match_id", matchID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"match":     m,
		"lifecycle": h.engine.LifecycleState(matchID),
	})
}

// DeleteMatch removes a match and everything it owns
func (h *Handler) DeleteMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := h.matchID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.engine.DeleteMatch(r.Context(), matchID); err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to delete match", "match_id", matchID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// GetMatchEvents returns the match's event log in replay order
func (h *Handler) GetMatchEvents(w http.ResponseWriter, r *http.Request) {
	matchID, err := h.matchID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	m, err := h.store.GetMatch(r.Context(), matchID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get match", "match_id", matchID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, m.Log.EventsSorted())
}

// GetMatchStats returns the per-player aggregates of a match
func (h *Handler) GetMatchStats(w http.ResponseWriter, r *http.Request) {
	matchID, err := h.matchID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	m, err := h.store.GetMatch(r.Context(), matchID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get match", "match_id", matchID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"home_score": m.HomeScore,
		"away_score": m.AwayScore,
		"awards":     m.Awards,
		"players":    m.Stats,
	})
}

// GetLeaderboard returns career leaders for one counting metric
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	metric, ok := stats.ParseMetric(chi.URLParam(r, "metric"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidCommand)
		return
	}

	rows, err := h.store.AllStats(r.Context())
	if err != nil {
		h.logger.Error("failed to load stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, stats.CareerLeaders(rows, metric))
}

// matchID parses the match ID path parameter
func (h *Handler) matchID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "matchID"))
	if err != nil {
		return uuid.Nil, domain.ErrInvalidCommand
	}
	return id, nil
}
