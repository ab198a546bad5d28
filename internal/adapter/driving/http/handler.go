// Package httphandler is the HTTP driving adapter serving the proxy API.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mytt-tools/ttrproxy/internal/application"
	"github.com/mytt-tools/ttrproxy/internal/domain/model"
	"github.com/mytt-tools/ttrproxy/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the proxy REST API.
type Handler struct {
	aggregator *application.Aggregator
	auth       *application.AuthService
	gateway    driven.UpstreamGateway
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	aggregator *application.Aggregator,
	auth *application.AuthService,
	gateway driven.UpstreamGateway,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		aggregator: aggregator,
		auth:       auth,
		gateway:    gateway,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/search/players", h.SearchPlayers)
	mux.HandleFunc("GET /api/ttr/player/{id}", h.GetRating)
	mux.HandleFunc("GET /api/ttr/history/{id}", h.GetRatingHistory)
	mux.HandleFunc("GET /api/player/{id}", h.GetPlayer)
	mux.HandleFunc("GET /api/q-ttr/player/{id}", h.GetQuarterlyRating)
	mux.HandleFunc("GET /api/auth/status", h.AuthStatus)
	mux.HandleFunc("POST /api/auth/refresh", h.RefreshAuth)
	mux.HandleFunc("GET /api/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// SearchPlayers runs the player search, enriched with rating data unless
// the caller opts out via with_ttr=false.
func (h *Handler) SearchPlayers(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	if utf8.RuneCountInString(strings.TrimSpace(req.Query)) < 3 {
		writeError(w, http.StatusBadRequest, model.ErrInvalidQuery.Error())
		return
	}
	if req.Page < 1 {
		writeError(w, http.StatusBadRequest, "page must be at least 1")
		return
	}
	if req.PageSize < 1 || req.PageSize > 50 {
		writeError(w, http.StatusBadRequest, "pagesize must be between 1 and 50")
		return
	}

	withTTR := req.WithTTR == nil || *req.WithTTR

	if !withTTR {
		result, err := h.aggregator.Search(r.Context(), req.Query, req.Page, req.PageSize)
		if err != nil {
			h.logger.Error("search failed", "query", req.Query, "error", err)
			writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSearchResponse(result))
		return
	}

	result, err := h.aggregator.EnrichedSearch(r.Context(), req.Query, req.Page, req.PageSize)
	if err != nil {
		h.logger.Error("enriched search failed", "query", req.Query, "error", err)
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEnrichedSearchResponse(result))
}

// GetRating is the current-rating passthrough. Upstream failures surface as
// the mapped status with {ttr: null, error} -- the handler never panics the
// caller.
func (h *Handler) GetRating(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	blob := h.auth.EnsureFresh(r.Context())

	rating, err := h.gateway.GetRating(r.Context(), blob, id)
	if err != nil {
		h.logger.Warn("rating fetch failed", "player", id, "error", err)
		writeJSON(w, statusForError(err), RatingResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, RatingResponse{TTR: &rating.Rating})
}

// GetRatingHistory is the rating-history passthrough, same error shape as
// GetRating.
func (h *Handler) GetRatingHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	blob := h.auth.EnsureFresh(r.Context())

	history, err := h.gateway.GetRatingHistory(r.Context(), blob, id)
	if err != nil {
		h.logger.Warn("history fetch failed", "player", id, "error", err)
		writeJSON(w, statusForError(err), HistoryResponse{Error: err.Error()})
		return
	}

	resp := HistoryResponse{
		PersonName: history.PersonName,
		ClubName:   history.ClubName,
	}
	if history.PreviousQuarter > 0 {
		resp.PreviousQuarter = &history.PreviousQuarter
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPlayer returns the aggregated player record; 404 when the player
// cannot be found via the rating lookup.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	record, err := h.aggregator.PlayerByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "player not found")
			return
		}
		h.logger.Error("player aggregation failed", "player", id, "error", err)
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPlayerRecordResponse(*record))
}

// GetQuarterlyRating is the best-effort leaderboard scan. It always answers
// 200; a miss or upstream failure yields {qttr: null, error}.
func (h *Handler) GetQuarterlyRating(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result := h.aggregator.QuarterlyRatingByID(r.Context(), id)

	resp := QTTRResponse{QTTR: result.Rating, Error: result.Error}
	if result.Player != nil {
		name := strings.TrimSpace(result.Player.FirstName + " " + result.Player.LastName)
		resp.Player = &QTTRPlayerResponse{
			Name: name,
			NUID: result.Player.NUID,
			Club: result.Player.Club,
			QTTR: result.Player.FedRank,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// AuthStatus reports the credential lifecycle state. No network call.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	state, cred := h.auth.State()
	writeJSON(w, http.StatusOK, toAuthStatusResponse(state, cred, time.Now()))
}

// RefreshAuth manually triggers a refresh exchange and persist.
func (h *Handler) RefreshAuth(w http.ResponseWriter, r *http.Request) {
	cred, err := h.auth.Refresh(r.Context())
	if err != nil {
		h.logger.Error("manual refresh failed", "error", err)
		writeUpstreamError(w, err)
		return
	}

	now := time.Now()
	writeJSON(w, http.StatusOK, RefreshResponse{
		ExpiresAt:   time.Unix(cred.ExpiresAt, 0).UTC().Format(time.RFC3339),
		ExpiresInMS: cred.ExpiresIn(now).Milliseconds(),
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
