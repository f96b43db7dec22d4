package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/stats"
	"gatekeeper/internal/storage"
	"gatekeeper/internal/version"

	"github.com/gorilla/mux"
)

// DefaultSweepListLimit is used when GET /api/v1/sweeps has no limit.
const DefaultSweepListLimit = 20

// Handlers contains HTTP handlers for the gatekeeper API
type Handlers struct {
	limiter    ratelimit.Limiter
	janitor    *ratelimit.Janitor
	sweeps     storage.SweepStore
	stats      stats.Recorder
	maxAllowed int64
	version    version.Info
	startedAt  time.Time
}

// HandlersOption configures optional Handlers dependencies.
type HandlersOption func(*Handlers)

// WithSweepStore sets the sweep history backend.
func WithSweepStore(s storage.SweepStore) HandlersOption {
	return func(h *Handlers) { h.sweeps = s }
}

// WithStats sets the decision statistics recorder.
func WithStats(r stats.Recorder) HandlersOption {
	return func(h *Handlers) { h.stats = r }
}

// WithMaxAllowedRequests reports the load ceiling on GET /api/v1/load.
func WithMaxAllowedRequests(n int64) HandlersOption {
	return func(h *Handlers) { h.maxAllowed = n }
}

// WithVersion sets the build info reported by the health check.
func WithVersion(v version.Info) HandlersOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates a new handlers instance
func NewHandlers(limiter ratelimit.Limiter, janitor *ratelimit.Janitor, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		limiter:   limiter,
		janitor:   janitor,
		stats:     stats.Nop{},
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Admit handles admission checks
// POST /api/v1/admit
func (h *Handlers) Admit(w http.ResponseWriter, r *http.Request) {
	var req models.AdmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.ActiveRequests != nil {
		if *req.ActiveRequests < 0 {
			h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "active_requests cannot be negative")
			return
		}
		h.limiter.UpdateLoad(*req.ActiveRequests)
	}

	d := h.limiter.HandleRequest(req.ClientID)

	if err := h.stats.Record(r.Context(), stats.Event{
		ClientID: req.ClientID,
		Accepted: d.Accepted,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       time.Now(),
	}); err != nil {
		slog.Debug("Failed to record admission stats", "error", err)
	}

	resp := models.DecisionResponse{
		ClientID:  req.ClientID,
		Accepted:  d.Accepted,
		Reason:    d.Reason,
		Limit:     d.Limit,
		Remaining: d.Remaining,
	}

	ratelimit.WriteHeaders(w, d)
	if !d.Accepted {
		resp.RetryAfterMs = d.RetryAfter.Milliseconds()
		w.Header().Set("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(d.RetryAfter)))
		h.writeJSONResponse(w, http.StatusTooManyRequests, resp)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// GetLoad reports the current load factor
// GET /api/v1/load
func (h *Handlers) GetLoad(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.loadResponse())
}

// UpdateLoad sets the load signal from a request count or a direct factor
// PUT /api/v1/load
// Requires the admin token when one is configured
func (h *Handlers) UpdateLoad(w http.ResponseWriter, r *http.Request) {
	var req models.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	if req.ActiveRequests != nil {
		h.limiter.UpdateLoad(*req.ActiveRequests)
	} else {
		h.limiter.SetLoadFactor(*req.LoadFactor)
	}

	slog.Debug("Load updated", "load_factor", h.limiter.LoadFactor())
	h.writeJSONResponse(w, http.StatusOK, h.loadResponse())
}

func (h *Handlers) loadResponse() models.LoadResponse {
	return models.LoadResponse{
		LoadFactor:         h.limiter.LoadFactor(),
		MaxAllowedRequests: h.maxAllowed,
	}
}

// GetBucket returns a snapshot of one client's bucket
// GET /api/v1/buckets/{client_id}
func (h *Handlers) GetBucket(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]

	state, ok := h.limiter.Bucket(clientID)
	if !ok {
		h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "No bucket for client "+clientID)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, bucketResponse(clientID, state, false))
}

// InitializeBucket creates a full bucket unless one already exists
// PUT /api/v1/buckets/{client_id}
// Requires the admin token when one is configured
func (h *Handlers) InitializeBucket(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]

	created := h.limiter.InitializeBucket(clientID)
	state, ok := h.limiter.Bucket(clientID)
	if !ok {
		// Evicted between the two calls.
		h.writeErrorResponse(w, r, http.StatusConflict, models.ErrorCodeInvalidRequest, "Bucket was evicted; retry")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		slog.Info("Bucket initialized", "client_id", clientID)
	}
	h.writeJSONResponse(w, status, bucketResponse(clientID, state, created))
}

// RefillBucket tops up an existing bucket for elapsed time
// POST /api/v1/buckets/{client_id}/refill
// Requires the admin token when one is configured
func (h *Handlers) RefillBucket(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]

	if _, ok := h.limiter.Bucket(clientID); !ok {
		h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "No bucket for client "+clientID)
		return
	}
	h.limiter.Refill(clientID)

	state, ok := h.limiter.Bucket(clientID)
	if !ok {
		h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "No bucket for client "+clientID)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, bucketResponse(clientID, state, false))
}

func bucketResponse(clientID string, s ratelimit.BucketState, created bool) models.BucketResponse {
	return models.BucketResponse{
		ClientID:      clientID,
		Capacity:      s.Capacity,
		Tokens:        s.Tokens,
		LastRefillAt:  s.LastRefillAt,
		LastRequestAt: s.LastRequestAt,
		Created:       created,
	}
}

// TriggerSweep runs the janitor immediately
// POST /api/v1/sweep
// Requires the admin token when one is configured
func (h *Handlers) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.janitor == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Janitor is not configured")
		return
	}

	slog.Info("Manual sweep requested", "remote_addr", r.RemoteAddr, "request_id", RequestIDFromContext(r.Context()))
	record := h.janitor.RunOnce(r.Context(), models.SweepTriggerManual)
	h.writeJSONResponse(w, http.StatusOK, record)
}

// ListSweeps returns recent janitor runs, newest first
// GET /api/v1/sweeps?limit=
func (h *Handlers) ListSweeps(w http.ResponseWriter, r *http.Request) {
	if h.sweeps == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Sweep history is not configured")
		return
	}

	limit := DefaultSweepListLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 {
			h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.sweeps.RecentSweeps(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list sweeps", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to list sweeps")
		return
	}
	if records == nil {
		records = []*models.SweepRecord{}
	}

	h.writeJSONResponse(w, http.StatusOK, models.ListSweepsResponse{
		Sweeps:     records,
		TotalCount: len(records),
		Limit:      limit,
	})
}

// GetSweep returns one janitor run
// GET /api/v1/sweeps/{id}
func (h *Handlers) GetSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeps == nil {
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Sweep history is not configured")
		return
	}

	id := mux.Vars(r)["id"]
	record, err := h.sweeps.GetSweep(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Sweep not found: "+id)
			return
		}
		slog.Error("Failed to get sweep", "sweep_id", id, "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to get sweep")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, record)
}

// GetStats returns decision statistics and limiter state. With ?client_id=
// it also returns that client's counters when client tracking is enabled.
// GET /api/v1/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	var client *models.ClientStats
	if query := r.URL.Query(); query.Has("client_id") {
		clientID := query.Get("client_id")
		counters, err := h.stats.Client(r.Context(), clientID)
		if errors.Is(err, stats.ErrClientsNotTracked) {
			h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Per-client statistics are not enabled")
			return
		}
		if err != nil {
			slog.Error("Failed to read client stats", "client_id", clientID, "error", err)
			h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to read stats")
			return
		}
		client = &models.ClientStats{ClientID: clientID, DecisionCounters: models.DecisionCounters(counters)}
	}

	summary, err := h.stats.Summary(r.Context())
	if err != nil {
		slog.Error("Failed to read stats", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to read stats")
		return
	}

	resp := models.StatsResponse{
		Total:      models.DecisionCounters(summary.Total),
		Client:     client,
		Buckets:    h.limiter.Len(),
		LoadFactor: h.limiter.LoadFactor(),
		SystemInfo: map[string]interface{}{
			"capacity": h.limiter.Capacity(),
			"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
		},
	}
	if len(summary.Routes) > 0 {
		resp.Routes = make(map[string]models.DecisionCounters, len(summary.Routes))
		for route, c := range summary.Routes {
			resp.Routes[route] = models.DecisionCounters(c)
		}
	}
	if h.janitor != nil {
		resp.LastSweep = h.janitor.LastSweep()
		if next := h.janitor.NextRun(); next != nil {
			resp.SystemInfo["next_sweep"] = next.UTC()
		}
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// pinger is implemented by stats backends that can be health checked.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = time.Since(h.startedAt).Round(time.Second).String()

	response.AddComponent("limiter", models.StatusHealthy, "Limiter is operational")
	response.AddMetric("buckets", h.limiter.Len())
	response.AddMetric("load_factor", h.limiter.LoadFactor())

	if h.sweeps != nil {
		if err := h.sweeps.Ping(r.Context()); err != nil {
			response.Status = models.StatusDegraded
			response.AddComponent("storage", models.StatusUnhealthy, "Sweep history unavailable")
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Sweep history is operational")
		}
	}

	if p, ok := h.stats.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			response.Status = models.StatusDegraded
			response.AddComponent("stats", models.StatusUnhealthy, "Stats backend unavailable")
		} else {
			response.AddComponent("stats", models.StatusHealthy, "Stats backend is operational")
		}
	}

	if h.janitor != nil {
		status, message := models.StatusHealthy, "Janitor is scheduled"
		if !h.janitor.IsRunning() {
			status, message = models.StatusUnknown, "Janitor is not running"
		}
		response.AddComponent("janitor", status, message)
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response tagged with the request ID
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	writeError(w, r, statusCode, errorCode, message)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing else can be sent.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode).WithRequestID(RequestIDFromContext(r.Context()))
	writeJSON(w, statusCode, errorResp)
}
