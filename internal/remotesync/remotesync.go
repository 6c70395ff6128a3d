// Package remotesync keeps the local backing file and its remote copy in step:
// it materializes the file on cold start and pushes it back after writes.
//
// Replication is single-writer, last-flush-wins. Concurrent instances flushing
// to the same key are not reconciled.
package remotesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/flight-listing-service/internal/apperr"
	"github.com/kjstillabower/flight-listing-service/internal/objectstore"
	"github.com/kjstillabower/flight-listing-service/internal/observability"
)

// Outcome describes what cold-start recovery did.
type Outcome string

const (
	// OutcomeWarm: the local file already existed and was used as is.
	OutcomeWarm Outcome = "warm"
	// OutcomeRestored: the local file was downloaded from the remote store.
	OutcomeRestored Outcome = "restored"
	// OutcomeFresh: neither copy was usable; the store starts empty.
	OutcomeFresh Outcome = "fresh"
	// OutcomeLocalOnly: no remote store is configured.
	OutcomeLocalOnly Outcome = "local_only"
)

// Options configures a Manager.
type Options struct {
	LocalPath string
	Key       string
}

// Manager owns the local file <-> remote key relationship.
type Manager struct {
	remote    objectstore.ObjectStore
	localPath string
	key       string
	logger    *zap.Logger
}

// New returns a Manager. remote may be nil, in which case EnsureLocal and
// Flush only touch the local file system.
func New(remote objectstore.ObjectStore, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		remote:    remote,
		localPath: opts.LocalPath,
		key:       opts.Key,
		logger:    logger.With(zap.String("component", "remotesync")),
	}
}

// Enabled reports whether a remote store is configured.
func (m *Manager) Enabled() bool {
	return m.remote != nil
}

// Remote returns the configured remote store (nil when disabled).
func (m *Manager) Remote() objectstore.ObjectStore {
	return m.remote
}

// EnsureLocal runs cold-start recovery. It must complete before the store is
// opened. An existing local file is never re-fetched. A missing remote copy
// or a failed fetch leaves no local file (the store then creates a fresh
// one) and is only logged; the returned error, if any, wraps
// apperr.ErrRemoteFetchFailed and is not meant to stop startup.
func (m *Manager) EnsureLocal(ctx context.Context) (outcome Outcome, err error) {
	start := time.Now()
	defer func() {
		observability.ColdStartTotal.WithLabelValues(string(outcome)).Inc()
		observability.ColdStartDuration.Observe(time.Since(start).Seconds())
	}()

	if _, statErr := os.Stat(m.localPath); statErr == nil {
		m.logger.Info("local database found", zap.String("path", m.localPath))
		return OutcomeWarm, nil
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return OutcomeFresh, fmt.Errorf("%w: stat %s: %v", apperr.ErrRemoteFetchFailed, m.localPath, statErr)
	}

	if m.remote == nil {
		m.logger.Info("local database missing, no remote store configured; starting fresh", zap.String("path", m.localPath))
		return OutcomeLocalOnly, nil
	}

	m.logger.Info("local database missing, downloading from remote store",
		zap.String("backend", m.remote.Name()), zap.String("key", m.key))

	data, err := m.remote.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			m.logger.Warn("remote database does not exist yet; starting fresh", zap.String("key", m.key))
			return OutcomeFresh, nil
		}
		m.logger.Warn("remote database fetch failed; starting fresh", zap.String("key", m.key), zap.Error(err))
		return OutcomeFresh, fmt.Errorf("%w: %v", apperr.ErrRemoteFetchFailed, err)
	}

	if err := objectstore.WriteFileAtomic(m.localPath, data); err != nil {
		m.logger.Warn("writing downloaded database failed; starting fresh", zap.String("path", m.localPath), zap.Error(err))
		return OutcomeFresh, fmt.Errorf("%w: write local copy: %v", apperr.ErrRemoteFetchFailed, err)
	}
	m.logger.Info("database downloaded", zap.String("path", m.localPath), zap.Int("bytes", len(data)))
	return OutcomeRestored, nil
}

// Quarantine moves an unusable local file aside (path.corrupt-<unix>) so a
// fresh store can be created in its place. Used when a restored copy fails to
// open as a database.
func (m *Manager) Quarantine() (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", m.localPath, time.Now().Unix())
	if err := os.Rename(m.localPath, dst); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", m.localPath, err)
	}
	m.logger.Warn("local database quarantined", zap.String("path", m.localPath), zap.String("moved_to", dst))
	return dst, nil
}

// Flush uploads the whole local file under the fixed key, overwriting the
// remote copy. Callers must ensure no write is in progress. A nil remote makes
// Flush a no-op. Failures wrap apperr.ErrRemoteFlushFailed.
func (m *Manager) Flush(ctx context.Context) (err error) {
	if m.remote == nil {
		return nil
	}
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RemoteFlushTotal.WithLabelValues(status).Inc()
		observability.RemoteFlushDuration.Observe(time.Since(start).Seconds())
	}()

	data, err := os.ReadFile(m.localPath)
	if err != nil {
		return fmt.Errorf("%w: read local database: %v", apperr.ErrRemoteFlushFailed, err)
	}
	if err := m.remote.Put(ctx, m.key, data); err != nil {
		m.logger.Warn("database upload failed", zap.String("key", m.key), zap.Error(err))
		return fmt.Errorf("%w: %v", apperr.ErrRemoteFlushFailed, err)
	}
	m.logger.Info("database uploaded", zap.String("key", m.key), zap.Int("bytes", len(data)))
	return nil
}
