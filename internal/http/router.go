package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/flight-listing-service/internal/observability"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // GET /api/flights deadline; 0 disables
	IngestTimeout  time.Duration // POST /api/flights deadline; 0 disables
}

// NewRouter wires the handler into a mux router: /health and /metrics at the
// root, and /api/flights behind rate limiting. Reads and ingestion get
// separate deadlines since a full replace plus flush is much slower than a page read.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(opts.Limiter))
	api.Handle("/flights", TimeoutMiddleware(opts.RequestTimeout)(http.HandlerFunc(h.GetFlights))).Methods(http.MethodGet)
	api.Handle("/flights", TimeoutMiddleware(opts.IngestTimeout)(http.HandlerFunc(h.PostFlights))).Methods(http.MethodPost)
	return router
}
