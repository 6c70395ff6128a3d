//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/flight-listing-service/internal/objectstore"
	"github.com/kjstillabower/flight-listing-service/internal/observability"
	"github.com/kjstillabower/flight-listing-service/internal/remotesync"
	"github.com/kjstillabower/flight-listing-service/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests against a
// real S3-compatible bucket (AWS or MinIO).
type IntegrationTestConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	KeyPrefix    string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if S3_TEST_BUCKET is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	bucket := os.Getenv("S3_TEST_BUCKET")
	if bucket == "" {
		t.Skip("S3_TEST_BUCKET not set, skipping integration test")
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	pathStyle, _ := strconv.ParseBool(os.Getenv("S3_TEST_PATH_STYLE"))

	return IntegrationTestConfig{
		Bucket:       bucket,
		Region:       region,
		Endpoint:     os.Getenv("S3_TEST_ENDPOINT"),
		UsePathStyle: pathStyle,
		// unique per run so parallel CI jobs do not overwrite each other
		KeyPrefix: fmt.Sprintf("integration/%s/", uuid.NewString()),
	}
}

// SetupS3Store creates an S3Store for integration tests.
func SetupS3Store(t *testing.T, cfg IntegrationTestConfig) *objectstore.S3Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s3Store, err := objectstore.NewS3Store(ctx, objectstore.S3Options{
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.UsePathStyle,
		Timeout:      10 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}
	if err := s3Store.Ping(ctx); err != nil {
		t.Skipf("bucket %s not reachable (%v), skipping integration test", cfg.Bucket, err)
	}
	return s3Store
}

// SetupRemoteSync creates a remote sync manager over remote with a fresh local
// path, plus a func that opens the store at that path and registers Close.
func SetupRemoteSync(t *testing.T, remote objectstore.ObjectStore, key string) (*remotesync.Manager, func() *store.Store) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "flights.db")
	m := remotesync.New(remote, remotesync.Options{LocalPath: path, Key: key}, logger)
	open := func() *store.Store {
		t.Helper()
		st, err := store.Open(context.Background(), store.Options{Path: path}, logger)
		if err != nil {
			t.Fatalf("store.Open() error = %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		return st
	}
	return m, open
}
