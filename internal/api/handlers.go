// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/trackwire/internal/config"
	"github.com/tomtom215/trackwire/internal/janitor"
	"github.com/tomtom215/trackwire/internal/logging"
	"github.com/tomtom215/trackwire/internal/models"
	"github.com/tomtom215/trackwire/internal/pipeline"
	"github.com/tomtom215/trackwire/internal/store"
	ws "github.com/tomtom215/trackwire/internal/websocket"
)

// recentWindow is how fresh a position timestamp must be for is_recent.
const recentWindow = 30 * time.Second

// defaultTrailHours is the trail query window when ?hours is absent.
const defaultTrailHours = 2

// Version is set from main at startup.
var Version = "dev"

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	store     *store.Store
	pipeline  *pipeline.Pipeline
	hub       *ws.Hub
	janitor   *janitor.Janitor
	cfg       *config.Config
	startTime time.Time
}

// NewHandler wires the API handlers.
func NewHandler(s *store.Store, p *pipeline.Pipeline, hub *ws.Hub, j *janitor.Janitor, cfg *config.Config) *Handler {
	return &Handler{
		store:     s,
		pipeline:  p,
		hub:       hub,
		janitor:   j,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// GenerateTrack issues a fresh track identifier. Collisions with stored
// tracks are retried; UUID collisions are practically impossible but the
// check is cheap.
func (h *Handler) GenerateTrack(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var trackID string
	for attempt := 0; attempt < 3; attempt++ {
		trackID = pipeline.GenerateTrackID()
		_, err := h.store.GetPosition(r.Context(), trackID)
		if errors.Is(err, store.ErrNotFound) {
			respondSuccess(w, http.StatusOK, models.GenerateTrackResponse{TrackID: trackID}, start)
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, ErrCodeDatabase, "failed to check track identifier", err)
			return
		}
	}
	respondError(w, http.StatusInternalServerError, ErrCodeDatabase, "could not generate a unique track identifier", nil)
}

// UpdateLocation accepts one location update and runs it through the
// pipeline.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req pipeline.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, "invalid JSON payload", err)
		return
	}

	pos, err := h.pipeline.Submit(r.Context(), req)
	switch {
	case err == nil:
		respondSuccess(w, http.StatusOK, pos, start)
	case errors.Is(err, pipeline.ErrOutOfRange):
		respondError(w, http.StatusBadRequest, ErrCodeOutOfRange, err.Error(), nil)
	case errors.Is(err, pipeline.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabase, "failed to store location update", err)
	}
}

// GetLocation returns the latest position for a track with the freshness
// flag.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	trackID := chi.URLParam(r, "trackID")

	pos, err := h.store.GetPosition(r.Context(), trackID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "track not found", nil)
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabase, "failed to read position", err)
	default:
		respondSuccess(w, http.StatusOK, models.PositionResponse{
			Position: *pos,
			IsRecent: time.Since(pos.Timestamp) <= recentWindow,
		}, start)
	}
}

// GetPath returns a track's trail within the ?hours query window. Unknown
// tracks yield an empty points list rather than 404, so a fresh track can be
// polled before its first update.
func (h *Handler) GetPath(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	trackID := chi.URLParam(r, "trackID")

	hours := defaultTrailHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeValidation, "hours must be a positive integer", nil)
			return
		}
		hours = parsed
	}

	points, err := h.store.GetTrail(r.Context(), trackID, time.Duration(hours)*time.Hour)
	switch {
	case errors.Is(err, store.ErrNotFound):
		points = []models.TrailPoint{}
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabase, "failed to read trail", err)
		return
	}
	if points == nil {
		points = []models.TrailPoint{}
	}

	respondSuccess(w, http.StatusOK, models.TrailResponse{TrackID: trackID, Points: points}, start)
}

// DeactivateLocation clears the active flag for a track.
func (h *Handler) DeactivateLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	trackID := chi.URLParam(r, "trackID")

	err := h.store.DeactivatePosition(r.Context(), trackID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "track not found", nil)
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabase, "failed to deactivate track", err)
	default:
		respondSuccess(w, http.StatusOK, map[string]string{"track_id": trackID, "status": "inactive"}, start)
	}
}

// Cleanup triggers a retention sweep immediately.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	result, err := h.janitor.RunNow(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabase, "cleanup sweep failed", err)
		return
	}
	respondSuccess(w, http.StatusOK, result, start)
}

// Stats reports store totals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabase, "failed to collect stats", err)
		return
	}
	respondSuccess(w, http.StatusOK, stats, start)
}

// Health reports process and store health. Store failures degrade the
// status but still return 200; orchestrators read the body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := models.HealthStatus{
		Status:         "ok",
		StoreConnected: true,
		UptimeSeconds:  time.Since(h.startTime).Seconds(),
		Version:        Version,
	}
	if h.hub != nil {
		status.ConnectedClients = h.hub.ClientCount()
	}
	if err := h.store.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.StoreConnected = false
		logging.Warn().Err(err).Msg("health check: store ping failed")
	}

	respondSuccess(w, http.StatusOK, status, start)
}

// WebSocket upgrades the connection and hands it to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	upgrader := gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.hub, conn, h.pipeline)
	h.hub.Register <- client
	client.Start()
}

// checkWebSocketOrigin validates the Origin header against the configured
// CORS origins. Requests without an Origin header (curl, native clients)
// are allowed.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if allowedURL, err := url.Parse(allowed); err == nil && allowedURL.Host == parsed.Host {
			return true
		}
	}
	return false
}
