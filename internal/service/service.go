package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/flight-listing-service/internal/models"
	"github.com/kjstillabower/flight-listing-service/internal/observability"
	"github.com/kjstillabower/flight-listing-service/internal/query"
)

// FlightStore is the row store used by the listing and ingestion services.
// *store.Store implements it.
type FlightStore interface {
	Load(ctx context.Context, f query.Filter, sort query.Sort, limit, offset int) ([]models.Flight, error)
	Count(ctx context.Context, f query.Filter) (int64, error)
	ReplaceAll(ctx context.Context, flights []models.Flight) (int, error)
}

// ListRequest is a parsed listing query. Page and Limit are raw caller values;
// List clamps them.
type ListRequest struct {
	Page   int
	Limit  int
	Filter query.Filter
	Sort   query.Sort
}

// FlightService serves paginated flight listings straight from the store.
// There is no read cache: every call observes the latest committed dataset.
type FlightService struct {
	store FlightStore
}

// NewFlightService creates a new FlightService backed by store.
func NewFlightService(store FlightStore) *FlightService {
	return &FlightService{store: store}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// List returns one page of flights matching req.Filter in req.Sort order,
// with totals computed by a count query over the same filter.
func (s *FlightService) List(ctx context.Context, req ListRequest) (models.FlightPage, error) {
	start := time.Now()
	page := query.NewPage(req.Page, req.Limit)
	sort := req.Sort
	if sort == "" {
		sort = query.SortByPrice
	}

	flights, err := s.store.Load(ctx, req.Filter, sort, page.Size, page.Offset())
	if err != nil {
		return models.FlightPage{}, fmt.Errorf("load flights: %w", err)
	}
	total, err := s.store.Count(ctx, req.Filter)
	if err != nil {
		return models.FlightPage{}, fmt.Errorf("count flights: %w", err)
	}
	observability.RecordFlightQuery(string(sort))

	if logger := loggerFromContext(ctx); logger != nil {
		logger.Debug("flights served",
			zap.Int("page", page.Number),
			zap.Int("size", page.Size),
			zap.Int("returned", len(flights)),
			zap.Int64("total", total),
			zap.Duration("duration", time.Since(start)))
	}
	return models.FlightPage{
		Data:       flights,
		Page:       page.Number,
		TotalPages: query.TotalPages(total, page.Size),
		TotalItems: total,
	}, nil
}
