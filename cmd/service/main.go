package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/flight-listing-service/internal/circuitbreaker"
	"github.com/kjstillabower/flight-listing-service/internal/config"
	httphandler "github.com/kjstillabower/flight-listing-service/internal/http"
	"github.com/kjstillabower/flight-listing-service/internal/lifecycle"
	"github.com/kjstillabower/flight-listing-service/internal/objectstore"
	"github.com/kjstillabower/flight-listing-service/internal/observability"
	"github.com/kjstillabower/flight-listing-service/internal/remotesync"
	"github.com/kjstillabower/flight-listing-service/internal/service"
	"github.com/kjstillabower/flight-listing-service/internal/store"
)

const remoteComponent = "remote_store"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("configuration loaded",
		zap.String("profile", cfg.Profile),
		zap.String("storage_path", cfg.StoragePath),
		zap.String("remote_backend", cfg.RemoteBackend))
	if cfg.IngestPassword == "" {
		logger.Warn("FLIGHT_API_PASSWORD not set; every ingestion request will be rejected")
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), cfg.RemoteTimeout+30*time.Second)
	remote, breaker, err := buildRemote(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal("remote store", zap.Error(err))
	}

	var remoteStore objectstore.ObjectStore
	if remote != nil {
		remoteStore = remote
	}
	syncer := remotesync.New(remoteStore, remotesync.Options{
		LocalPath: cfg.StoragePath,
		Key:       cfg.RemoteKey,
	}, logger)

	outcome, err := syncer.EnsureLocal(startCtx)
	if err != nil {
		logger.Warn("cold start fetch failed; serving an empty dataset until the next ingestion", zap.Error(err))
	}
	logger.Info("cold start complete", zap.String("outcome", string(outcome)))

	st, err := openStore(startCtx, cfg, syncer, outcome, logger)
	startCancel()
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}

	flightService := service.NewFlightService(st)
	ingestService := service.NewIngestService(st, syncer, service.IngestOptions{
		Secret:       cfg.IngestPassword,
		FlushTimeout: cfg.RemoteTimeout,
	}, logger)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
		StoragePing:            st.Ping,
	}
	if remote != nil {
		healthConfig.RemotePing = remote.Ping
		healthConfig.RemoteBreakerState = func() string { return breaker.State().String() }
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	handler := httphandler.NewHandler(flightService, ingestService, healthConfig, logger, cfg.IngestMaxBodyBytes)
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		IngestTimeout:  cfg.IngestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	lifecycle.SetPhase(lifecycle.PhaseServing)
	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := st.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
	logger.Info("shutdown complete")
}

// buildRemote returns the configured remote store wrapped in a circuit
// breaker, or nil when the backend is "none".
func buildRemote(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*objectstore.Guarded, *circuitbreaker.CircuitBreaker, error) {
	var inner objectstore.ObjectStore
	switch cfg.RemoteBackend {
	case config.RemoteS3:
		s3Store, err := objectstore.NewS3Store(ctx, objectstore.S3Options{
			Bucket:          cfg.RemoteBucket,
			Region:          cfg.RemoteRegion,
			Endpoint:        cfg.RemoteEndpoint,
			UsePathStyle:    cfg.RemoteUsePathStyle,
			AccessKeyID:     cfg.RemoteAccessKeyID,
			SecretAccessKey: cfg.RemoteSecretAccessKey,
			Timeout:         cfg.RemoteTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		inner = s3Store
		logger.Info("remote backend: s3", zap.String("bucket", cfg.RemoteBucket), zap.String("key", cfg.RemoteKey))
	case config.RemoteFilesystem:
		fsStore, err := objectstore.NewFilesystemStore(cfg.RemoteDir)
		if err != nil {
			return nil, nil, err
		}
		inner = fsStore
		logger.Info("remote backend: filesystem", zap.String("dir", cfg.RemoteDir), zap.String("key", cfg.RemoteKey))
	default:
		logger.Info("remote backend: none; local file is the only copy")
		return nil, nil, nil
	}

	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.RemoteBreakerFailureThreshold,
		Timeout:          cfg.RemoteBreakerTimeout,
		Component:        remoteComponent,
		IsFailure:        objectstore.IsFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(remoteComponent, from.String(), to.String(), int(to))
			logger.Warn("remote store circuit breaker transition",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	observability.SetCircuitBreakerState(remoteComponent, int(circuitbreaker.StateClosed))
	return objectstore.NewGuarded(inner, cb), cb, nil
}

// openStore opens the SQLite file. A restored copy that does not open as a
// database is moved aside and replaced by a fresh store.
func openStore(ctx context.Context, cfg *config.Config, syncer *remotesync.Manager, outcome remotesync.Outcome, logger *zap.Logger) (*store.Store, error) {
	opts := store.Options{
		Path:         cfg.StoragePath,
		MaxOpenConns: cfg.StorageMaxOpenConns,
		BusyTimeout:  cfg.StorageBusyTimeout,
	}
	st, err := store.Open(ctx, opts, logger)
	if err == nil {
		return st, nil
	}
	if outcome != remotesync.OutcomeRestored {
		return nil, err
	}
	logger.Error("restored database failed to open", zap.Error(err))
	if _, qerr := syncer.Quarantine(); qerr != nil {
		return nil, errors.Join(err, qerr)
	}
	return store.Open(ctx, opts, logger)
}
