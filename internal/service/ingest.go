package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/flight-listing-service/internal/apperr"
	"github.com/kjstillabower/flight-listing-service/internal/degraded"
	"github.com/kjstillabower/flight-listing-service/internal/models"
	"github.com/kjstillabower/flight-listing-service/internal/observability"
	"github.com/kjstillabower/flight-listing-service/internal/validation"
)

// Syncer pushes the local backing file to durable storage.
// *remotesync.Manager implements it.
type Syncer interface {
	Flush(ctx context.Context) error
}

// IngestResult reports a completed ingestion. SyncErr is set when the data
// was written locally but the remote flush failed.
type IngestResult struct {
	Inserted int
	SyncErr  error
}

// Degraded reports whether the remote copy is behind the local data.
func (r IngestResult) Degraded() bool {
	return r.SyncErr != nil
}

// IngestOptions configures an IngestService.
type IngestOptions struct {
	// Secret is the shared credential. Empty rejects every request.
	Secret string
	// FlushTimeout bounds the post-write flush. The flush is detached from
	// the caller's cancellation so a disconnect after commit still uploads.
	FlushTimeout time.Duration
}

// IngestService replaces the whole dataset from a submitted batch and then
// flushes the backing file.
type IngestService struct {
	store        FlightStore
	syncer       Syncer
	secret       []byte
	flushTimeout time.Duration
	logger       *zap.Logger
	newUUID      func() string

	// held across replace + flush
	mu sync.Mutex
}

// NewIngestService creates a new IngestService. syncer may be nil when no
// remote store is configured.
func NewIngestService(store FlightStore, syncer Syncer, opts IngestOptions, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 60 * time.Second
	}
	return &IngestService{
		store:        store,
		syncer:       syncer,
		secret:       []byte(opts.Secret),
		flushTimeout: opts.FlushTimeout,
		logger:       logger.With(zap.String("component", "ingest")),
		newUUID:      func() string { return uuid.New().String() },
	}
}

// Authorize compares credential with the configured secret in constant time.
func (s *IngestService) Authorize(credential string) error {
	if len(s.secret) == 0 || subtle.ConstantTimeCompare([]byte(credential), s.secret) != 1 {
		return apperr.ErrUnauthorized
	}
	return nil
}

// Ingest authorizes, validates every record, replaces the stored dataset with
// the batch and flushes the backing file. Authorization and validation
// failures happen before storage is touched. A storage failure leaves the
// previous dataset intact. A flush failure is not an error: the result is
// returned with SyncErr set.
func (s *IngestService) Ingest(ctx context.Context, batch []models.FlightInput, credential string) (result IngestResult, err error) {
	start := time.Now()
	defer func() {
		observability.IngestTotal.WithLabelValues(ingestStatus(result, err)).Inc()
	}()

	if err := s.Authorize(credential); err != nil {
		s.logger.Warn("ingestion rejected", zap.String("reason", "unauthorized"))
		return IngestResult{}, err
	}

	flights := make([]models.Flight, 0, len(batch))
	for i, in := range batch {
		f, err := validation.ValidateFlightInput(i, in)
		if err != nil {
			return IngestResult{}, err
		}
		if f.UUID == "" {
			f.UUID = s.newUUID()
		}
		flights = append(flights, f)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, err := s.store.ReplaceAll(ctx, flights)
	if err != nil {
		s.logger.Error("replace failed", zap.Int("records", len(flights)), zap.Error(err))
		return IngestResult{}, fmt.Errorf("replace flights: %w", err)
	}
	observability.IngestedRecords.Set(float64(inserted))
	result = IngestResult{Inserted: inserted}

	if s.syncer != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flushTimeout)
		defer cancel()
		if err := s.syncer.Flush(flushCtx); err != nil {
			degraded.MarkRemoteStale(err)
			s.logger.Warn("flights stored locally but remote flush failed",
				zap.Int("inserted", inserted), zap.Error(err))
			result.SyncErr = err
			return result, nil
		}
		degraded.ClearRemoteStale()
	}

	s.logger.Info("flights ingested",
		zap.Int("inserted", inserted),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func ingestStatus(r IngestResult, err error) string {
	switch {
	case err == nil && r.Degraded():
		return "warning"
	case err == nil:
		return "success"
	case errors.Is(err, apperr.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperr.ErrInvalidPayload), errors.Is(err, apperr.ErrInvalidRecord):
		return "invalid"
	default:
		return "error"
	}
}
