package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/flight-listing-service/internal/apperr"
	"github.com/kjstillabower/flight-listing-service/internal/degraded"
	"github.com/kjstillabower/flight-listing-service/internal/idle"
	"github.com/kjstillabower/flight-listing-service/internal/lifecycle"
	"github.com/kjstillabower/flight-listing-service/internal/models"
	"github.com/kjstillabower/flight-listing-service/internal/observability"
	"github.com/kjstillabower/flight-listing-service/internal/overload"
	"github.com/kjstillabower/flight-listing-service/internal/query"
	"github.com/kjstillabower/flight-listing-service/internal/service"
)

// DefaultMaxBodyBytes caps an ingestion body when no limit is configured.
const DefaultMaxBodyBytes = 32 << 20

// HealthConfig holds lifecycle thresholds and dependency probes for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
	// StoragePing checks the row store. Required.
	StoragePing func(ctx context.Context) error
	// RemotePing checks the remote object store. Nil when none is configured.
	RemotePing func(ctx context.Context) error
	// RemoteBreakerState reports the remote circuit breaker state, if any.
	RemoteBreakerState func() string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	flights          *service.FlightService
	ingest           *service.IngestService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	maxBodyBytes     int64
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. maxBodyBytes <= 0 uses DefaultMaxBodyBytes.
func NewHandler(
	flights *service.FlightService,
	ingest *service.IngestService,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	maxBodyBytes int64,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		flights:      flights,
		ingest:       ingest,
		healthConfig: healthConfig,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// GetFlights handles GET /api/flights.
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	idle.RecordRequest()
	page, err := h.flights.List(r.Context(), req)
	if err != nil {
		degraded.RecordError()
		writeServiceError(w, r, err)
		return
	}
	degraded.RecordSuccess()
	writeJSON(w, http.StatusOK, page)
}

// parseListRequest reads listing parameters. Empty values are treated as
// absent; numeric values that do not parse are rejected.
func parseListRequest(r *http.Request) (service.ListRequest, error) {
	q := r.URL.Query()
	get := func(key string) string { return strings.TrimSpace(q.Get(key)) }

	var req service.ListRequest
	var err error
	if req.Page, err = parseInt("page", get("page")); err != nil {
		return req, err
	}
	if req.Limit, err = parseInt("limit", get("limit")); err != nil {
		return req, err
	}

	if v := get("origin"); v != "" {
		req.Filter.Origin = &v
	}
	if v := get("destination"); v != "" {
		req.Filter.Destination = &v
	}
	if v := get("maxPrice"); v != "" {
		n, err := parseInt("maxPrice", v)
		if err != nil {
			return req, err
		}
		req.Filter.MaxPrice = &n
	}
	if v := get("maxRain"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return req, errors.New("maxRain must be a number")
		}
		req.Filter.MaxRain = &f
	}
	req.Filter.Airlines = query.ParseAirlines(q.Get("airline"))

	sortBy := get("sortBy")
	if sortBy == "" {
		sortBy = get("sort_by")
	}
	req.Sort = query.ParseSort(sortBy)
	return req, nil
}

func parseInt(name, v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

// PostFlights handles POST /api/flights?password=... . The body is a JSON
// array of flight records that replaces the whole dataset.
func (h *Handler) PostFlights(w http.ResponseWriter, r *http.Request) {
	credential := r.URL.Query().Get("password")
	if err := h.ingest.Authorize(credential); err != nil {
		writeServiceError(w, r, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	var batch []models.FlightInput
	if err := dec.Decode(&batch); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON: "+err.Error())
		return
	}
	if batch == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "request body must be a JSON array")
		return
	}
	if _, err := dec.Token(); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "unexpected data after JSON array")
		return
	}

	result, err := h.ingest.Ingest(r.Context(), batch, credential)
	if err != nil {
		if errors.Is(err, apperr.ErrStorageUnavailable) || errors.Is(err, apperr.ErrStorageOperationFailed) {
			degraded.RecordError()
		}
		writeServiceError(w, r, err)
		return
	}
	degraded.RecordSuccess()

	resp := models.IngestResponse{Status: "success", Inserted: result.Inserted}
	if result.Degraded() {
		resp.Status = "warning"
		resp.SyncError = result.SyncErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	storageErr := h.pingStorage(ctx)
	if storageErr == nil {
		checks["storage"] = "healthy"
	} else {
		checks["storage"] = "unhealthy"
	}
	h.addRemoteChecks(ctx, checks)
	checks["lifecycle"] = lifecycle.CurrentPhase().String()

	result := h.computeHealthStatus(storageErr)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

func (h *Handler) pingStorage(ctx context.Context) error {
	if h.healthConfig == nil || h.healthConfig.StoragePing == nil {
		return nil
	}
	return h.healthConfig.StoragePing(ctx)
}

// addRemoteChecks reports remote reachability and whether the last flush
// succeeded. Remote problems never fail the health check: reads and writes
// are served locally either way.
func (h *Handler) addRemoteChecks(ctx context.Context, checks map[string]string) {
	if h.healthConfig == nil || h.healthConfig.RemotePing == nil {
		checks["remote"] = "disabled"
		return
	}
	if err := h.healthConfig.RemotePing(ctx); err != nil {
		checks["remote"] = "unhealthy"
	} else {
		checks["remote"] = "healthy"
	}
	if h.healthConfig.RemoteBreakerState != nil {
		checks["remoteCircuit"] = h.healthConfig.RemoteBreakerState()
	}
	if stale, since, _ := degraded.RemoteStale(); stale {
		checks["remoteSync"] = "stale since " + since.UTC().Format(time.RFC3339)
	} else {
		checks["remoteSync"] = "in-sync"
	}
}

// computeHealthStatus determines the current health status by evaluating multiple conditions
// in priority order. Decision order: shutting-down > storage unavailable > overloaded > idle > degraded > healthy.
func (h *Handler) computeHealthStatus(storageErr error) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if storageErr != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "storage_unavailable"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	cfg := h.healthConfig
	if overload.Exceeded(cfg.OverloadWindow, cfg.RateLimitRPS, cfg.OverloadThresholdPct) {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	}
	if idle.Below(cfg.IdleWindow, cfg.IdleThresholdReqPerMin, cfg.StartTime, cfg.MinimumLifespan) {
		return healthResult{"idle", http.StatusOK, "low_traffic"}
	}
	if degraded.Breached(cfg.DegradedWindow, cfg.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func correlationID(r *http.Request) string {
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		return v
	}
	return ""
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r),
		},
	})
}

// writeServiceError maps a service error onto the HTTP error envelope.
// Storage failures are logged with the underlying cause; the response only
// carries a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger, _ := r.Context().Value("logger").(*zap.Logger)
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	case errors.Is(err, apperr.ErrInvalidPayload):
		writeError(w, r, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	case errors.Is(err, apperr.ErrInvalidRecord):
		writeError(w, r, http.StatusBadRequest, "INVALID_RECORD", "a record was rejected by storage constraints (duplicate uuid or out-of-range value)")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(r.Context().Err(), context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "TIMEOUT", "Request timed out")
	case errors.Is(err, apperr.ErrStorageUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage is unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Storage operation failed")
	}
	if logger != nil {
		logger.Warn("request failed", zap.Error(err))
	}
}
