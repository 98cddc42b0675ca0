package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/trogers1052/stock-watch-agent/internal/commands"
	"github.com/trogers1052/stock-watch-agent/internal/models"
	"github.com/trogers1052/stock-watch-agent/internal/monitor"
	"github.com/trogers1052/stock-watch-agent/internal/store"
)

// Pinger reports backend health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store     store.Store
	stats     commands.StatsProvider
	publisher commands.EventPublisher
	pingers   map[string]Pinger
}

// NewHandler creates a new Handler. stats and publisher may be nil.
func NewHandler(st store.Store, stats commands.StatsProvider, publisher commands.EventPublisher) *Handler {
	return &Handler{
		store:     st,
		stats:     stats,
		publisher: publisher,
		pingers:   make(map[string]Pinger),
	}
}

// AddHealthCheck registers a backend probed by /health
func (h *Handler) AddHealthCheck(name string, p Pinger) {
	h.pingers[name] = p
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.pingers))
	status := http.StatusOK
	for name, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	respondJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}

// statusResponse is the operator view of the agent
type statusResponse struct {
	Users     int             `json:"users"`
	Settings  models.Settings `json:"settings"`
	Scheduler *monitor.Stats  `json:"scheduler,omitempty"`
}

// GetStatus handles GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.CountUsers(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	settings, err := h.store.GlobalSettings(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	resp := statusResponse{Users: users, Settings: settings}
	if h.stats != nil {
		s := h.stats.Stats()
		resp.Scheduler = &s
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetUsers handles GET /api/v1/users
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

// GetWatchlist handles GET /api/v1/users/{chatID}/watchlist
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	entries, err := h.store.ListWatchlist(r.Context(), chatID)
	if err != nil {
		respondError(w, err)
		return
	}
	if entries == nil {
		entries = []models.WatchlistEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// AddTicker handles POST /api/v1/users/{chatID}/watchlist
func (h *Handler) AddTicker(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Ticker string `json:"ticker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ticker, err := commands.ValidateTicker(req.Ticker)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.store.EnsureUser(r.Context(), chatID); err != nil {
		respondError(w, err)
		return
	}
	result, err := h.store.AddTicker(r.Context(), chatID, ticker)
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusOK
	if result == models.AddResultAdded {
		status = http.StatusCreated
	}
	if result != models.AddResultAlreadyPresent {
		h.publish(r.Context(), models.EventTypeTickerAdded, chatID, ticker, 0)
	}
	respondJSON(w, status, map[string]string{"ticker": ticker, "result": result.String()})
}

// RemoveTicker handles DELETE /api/v1/users/{chatID}/watchlist/{ticker}
func (h *Handler) RemoveTicker(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	ticker := commands.NormalizeTicker(mux.Vars(r)["ticker"])

	removed, err := h.store.RemoveTicker(r.Context(), chatID, ticker)
	if err != nil {
		respondError(w, err)
		return
	}
	if !removed {
		http.Error(w, "ticker not on watchlist", http.StatusNotFound)
		return
	}

	h.publish(r.Context(), models.EventTypeTickerRemoved, chatID, ticker, 0)
	w.WriteHeader(http.StatusNoContent)
}

// SetTickerEnabled handles PATCH /api/v1/users/{chatID}/watchlist/{ticker}
func (h *Handler) SetTickerEnabled(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	ticker := commands.NormalizeTicker(mux.Vars(r)["ticker"])

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}

	if err := h.store.SetEnabled(r.Context(), chatID, ticker, *req.Enabled); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ticker": ticker, "enabled": *req.Enabled})
}

// SetUserInterval handles PUT /api/v1/users/{chatID}/interval
func (h *Handler) SetUserInterval(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	minutes, ok := minutesBody(w, r)
	if !ok {
		return
	}

	if err := h.store.EnsureUser(r.Context(), chatID); err != nil {
		respondError(w, err)
		return
	}
	if err := h.store.SetUserInterval(r.Context(), chatID, minutes); err != nil {
		respondError(w, err)
		return
	}

	h.publish(r.Context(), models.EventTypeIntervalChanged, chatID, "", minutes)
	respondJSON(w, http.StatusOK, map[string]int{"minutes": minutes})
}

// GetSettings handles GET /api/v1/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GlobalSettings(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// SetGlobalInterval handles PUT /api/v1/settings/interval
func (h *Handler) SetGlobalInterval(w http.ResponseWriter, r *http.Request) {
	minutes, ok := minutesBody(w, r)
	if !ok {
		return
	}

	if err := h.store.SetGlobalInterval(r.Context(), minutes); err != nil {
		respondError(w, err)
		return
	}

	h.publish(r.Context(), models.EventTypeIntervalChanged, 0, "", minutes)
	respondJSON(w, http.StatusOK, map[string]int{"minutes": minutes})
}

func (h *Handler) publish(ctx context.Context, eventType string, chatID int64, ticker string, minutes int) {
	if h.publisher == nil {
		return
	}
	ev := models.BusEvent{
		ID:        uuid.New().String(),
		EventType: eventType,
		ChatID:    chatID,
		Ticker:    ticker,
		Minutes:   minutes,
	}
	if err := h.publisher.PublishWatchlistEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to publish watchlist event")
	}
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(mux.Vars(r)["chatID"], 10, 64)
	if err != nil || chatID == 0 {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return 0, false
	}
	return chatID, true
}

func minutesBody(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return 0, false
	}
	return req.Minutes, true
}

// respondError maps domain errors onto status codes
func respondError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Error().Err(err).Msg("API request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
