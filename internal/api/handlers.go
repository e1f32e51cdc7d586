package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/STRATINT/eventcatalog/internal/audit"
	"github.com/STRATINT/eventcatalog/internal/catalog"
	"github.com/STRATINT/eventcatalog/internal/models"
)

// maxLogLimit caps enrichment log listings.
const maxLogLimit = 100

// EventReader loads single events.
type EventReader interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// LogReader lists the enrichment audit trail of an event.
type LogReader interface {
	Logs(ctx context.Context, eventID int64, query audit.ListQuery) ([]models.EnrichmentLog, error)
}

// HealthFunc reports whether a dependency is reachable.
type HealthFunc func(ctx context.Context) error

// Handler serves the read-only catalog API.
type Handler struct {
	catalog   *catalog.Service
	events    EventReader
	logs      LogReader
	health    map[string]HealthFunc
	logger    *slog.Logger
	startTime time.Time
	now       func() time.Time
}

// NewHandler creates the API handler. health maps a dependency name to its
// check and may be empty.
func NewHandler(svc *catalog.Service, events EventReader, logs LogReader, health map[string]HealthFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog:   svc,
		events:    events,
		logs:      logs,
		health:    health,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// EventsResponse wraps a catalog listing.
type EventsResponse struct {
	Window string         `json:"window"`
	Events []models.Event `json:"events"`
	Count  int            `json:"count"`
}

// LogsResponse wraps an enrichment log listing.
type LogsResponse struct {
	EventID int64                  `json:"event_id"`
	Logs    []models.EnrichmentLog `json:"logs"`
	Count   int                    `json:"count"`
}

// HealthResponse reports dependency status.
type HealthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type windowFunc func(ctx context.Context, age catalog.AgeRange, limit int) ([]models.Event, error)

// GetWindowHandler handles GET /api/catalog/{window}.
func (h *Handler) GetWindowHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "window")

	var list windowFunc
	switch name {
	case "today":
		list = h.catalog.Today
	case "tomorrow":
		list = h.catalog.Tomorrow
	case "week":
		list = h.catalog.Week
	case "weekend":
		list = h.catalog.Weekend
	default:
		h.writeError(w, http.StatusNotFound, "unknown window: "+name)
		return
	}

	age, limit, err := parseFilters(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := list(r.Context(), age, limit)
	h.respondEvents(w, name, events, err)
}

// GetNewSinceHandler handles GET /api/catalog/new?since=RFC3339. Without
// since it lists events first seen in the last 24 hours.
func (h *Handler) GetNewSinceHandler(w http.ResponseWriter, r *http.Request) {
	since := h.now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = t
	}

	age, limit, err := parseFilters(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.catalog.NewSince(r.Context(), since, age, limit)
	h.respondEvents(w, "new", events, err)
}

// GetEventByIDHandler handles GET /api/events/{id}.
func (h *Handler) GetEventByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}

	event, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get event by ID", "event_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if event == nil {
		h.writeError(w, http.StatusNotFound, "event not found")
		return
	}
	h.writeJSON(w, http.StatusOK, event)
}

// GetEnrichmentLogsHandler handles GET /api/events/{id}/enrichment-logs.
func (h *Handler) GetEnrichmentLogsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}

	query := audit.ListQuery{Limit: 20}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.LogStatus(raw)
		switch status {
		case models.LogStatusPending, models.LogStatusSuccess, models.LogStatusFallback, models.LogStatusFailed:
			query.Status = status
		default:
			h.writeError(w, http.StatusBadRequest, "unknown status: "+raw)
			return
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = min(n, maxLogLimit)
	}

	logs, err := h.logs.Logs(r.Context(), id, query)
	if err != nil {
		h.logger.Error("failed to list enrichment logs", "event_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if logs == nil {
		logs = []models.EnrichmentLog{}
	}
	h.writeJSON(w, http.StatusOK, LogsResponse{EventID: id, Logs: logs, Count: len(logs)})
}

// HealthHandler handles GET /healthz.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	status := http.StatusOK

	if len(h.health) > 0 {
		resp.Checks = make(map[string]string, len(h.health))
		for name, check := range h.health {
			if err := check(r.Context()); err != nil {
				h.logger.Warn("health check failed", "dependency", name, "error", err)
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) respondEvents(w http.ResponseWriter, window string, events []models.Event, err error) {
	if errors.Is(err, catalog.ErrInvalidQuery) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to list catalog", "window", window, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	h.writeJSON(w, http.StatusOK, EventsResponse{Window: window, Events: events, Count: len(events)})
}

func (h *Handler) eventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "event id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
