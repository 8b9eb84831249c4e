package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/bus"
	"github.com/opensource-finance/ledgerbus/internal/domain"
	"github.com/opensource-finance/ledgerbus/internal/pipeline"
	"github.com/opensource-finance/ledgerbus/internal/system"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	bus     domain.Bus
	chain   *pipeline.Chain
	system  *system.System
	version string
}

// NewHandler creates a new API handler.
func NewHandler(b domain.Bus, chain *pipeline.Chain, sys *system.System, version string) *Handler {
	return &Handler{
		bus:     b,
		chain:   chain,
		system:  sys,
		version: version,
	}
}

// teamBus scopes the shared bus to the request's tenant.
func (h *Handler) teamBus(r *http.Request) *bus.TeamBus {
	ctx := r.Context()
	return bus.NewTeamBus(h.bus, h.chain, GetTenantID(ctx), GetUserID(ctx))
}

// EmitRequest is the request body for POST /events.
type EmitRequest struct {
	Type     string          `json:"type"`
	Source   string          `json:"source,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// EmitResponse is the response for POST /events.
type EmitResponse struct {
	EventID string `json:"eventId"`
	Status  string `json:"status"`
}

// Emit handles POST /events requests.
func (h *Handler) Emit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type is required",
		})
		return
	}

	evt := &domain.Event{
		Type:     req.Type,
		Source:   domain.Source(req.Source),
		Metadata: req.Metadata,
	}
	if evt.Source == "" {
		evt.Source = domain.SourceAPI
	}

	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		payload, err := domain.UnmarshalPayload(domain.Category(req.Type), req.Payload)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		evt.Payload = payload
	}

	if err := h.teamBus(r).Emit(ctx, evt); err != nil {
		writeEmitError(w, evt, err)
		return
	}

	writeJSON(w, http.StatusAccepted, EmitResponse{
		EventID: evt.ID,
		Status:  "accepted",
	})
}

// writeEmitError maps emission failures to HTTP status codes.
func writeEmitError(w http.ResponseWriter, evt *domain.Event, err error) {
	var (
		validationErr *domain.ValidationError
		isolationErr  *domain.TeamIsolationError
		rateErr       *domain.RateLimitError
		accessErr     *domain.AccessDeniedError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &isolationErr):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": err.Error(),
			"code":  isolationErr.Code,
		})
	case errors.As(err, &rateErr):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.As(err, &accessErr):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("event emission failed", "event_type", evt.Type, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "event emission failed",
		})
	}
}

// History handles GET /events requests.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	q := domain.HistoryQuery{
		EventType: query.Get("type"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		q.Limit = limit
	}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC3339 timestamp",
			})
			return
		}
		q.Since = since
	}

	events := h.teamBus(r).EventHistory(ctx, q)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Stats handles GET /events/stats requests.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC3339 timestamp",
			})
			return
		}
		since = parsed
	}

	stats := h.teamBus(r).EventStats(ctx, since)
	writeJSON(w, http.StatusOK, stats)
}

// Health returns the aggregate component health report.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": h.version,
		})
		return
	}

	health := h.system.HealthCheck(r.Context())
	status := "healthy"
	if !health.Overall {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  health,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.system != nil && !h.system.Initialized() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
