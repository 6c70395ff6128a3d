package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Deployment profiles. The profile picks defaults for the storage path and
// the remote backend; explicit settings always win.
const (
	ProfileLocal      = "local"
	ProfileHosted     = "hosted"
	ProfileServerless = "serverless"
)

// Remote backends.
const (
	RemoteNone       = "none"
	RemoteS3         = "s3"
	RemoteFilesystem = "filesystem"
)

// Config holds service configuration loaded from YAML, .env and env.
type Config struct {
	Profile string

	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	StoragePath         string
	StorageMaxOpenConns int
	StorageBusyTimeout  time.Duration

	RemoteBackend                 string
	RemoteBucket                  string
	RemoteKey                     string
	RemoteRegion                  string
	RemoteEndpoint                string
	RemoteUsePathStyle            bool
	RemoteDir                     string
	RemoteTimeout                 time.Duration
	RemoteAccessKeyID             string
	RemoteSecretAccessKey         string
	RemoteBreakerFailureThreshold int
	RemoteBreakerTimeout          time.Duration

	// IngestPassword is the shared secret for POST /api/flights. Empty
	// rejects every ingestion.
	IngestPassword     string
	IngestMaxBodyBytes int64
	IngestTimeout      time.Duration

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
}

type fileConfig struct {
	Profile string `yaml:"profile"`

	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		Path         string `yaml:"path"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		BusyTimeout  string `yaml:"busy_timeout"`
	} `yaml:"storage"`

	Remote struct {
		Backend      string `yaml:"backend"`
		Bucket       string `yaml:"bucket"`
		Key          string `yaml:"key"`
		Region       string `yaml:"region"`
		Endpoint     string `yaml:"endpoint"`
		UsePathStyle bool   `yaml:"use_path_style"`
		Dir          string `yaml:"dir"`
		Timeout      string `yaml:"timeout"`
		Breaker      struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"breaker"`
	} `yaml:"remote"`

	Ingest struct {
		MaxBodyBytes int64  `yaml:"max_body_bytes"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"ingest"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	FlightAPIPassword  string `yaml:"flight_api_password"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads dir/.env (optional, never overriding variables already set),
// then dir/config/{ENV_NAME}.yaml (default dev), then dir/config/secrets.yaml
// (optional), and finally applies environment overrides.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}
	cfg.Profile = strings.ToLower(firstNonEmpty(os.Getenv("PROFILE"), fc.Profile, detectProfile()))

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.ServerReadTimeout = parseDuration(fc.Server.ReadTimeout, 30*time.Second)

	cfg.StoragePath = firstNonEmpty(os.Getenv("DATABASE_PATH"), databaseURLPath(os.Getenv("DATABASE_URL")), fc.Storage.Path)
	if cfg.StoragePath == "" {
		cfg.StoragePath = "./data/flights.db"
		if cfg.Profile == ProfileServerless {
			cfg.StoragePath = "/tmp/flights.db"
		}
	}
	cfg.StorageMaxOpenConns = fc.Storage.MaxOpenConns
	if cfg.StorageMaxOpenConns <= 0 {
		cfg.StorageMaxOpenConns = 4
	}
	cfg.StorageBusyTimeout = parseDuration(fc.Storage.BusyTimeout, 5*time.Second)

	cfg.RemoteBackend = strings.ToLower(firstNonEmpty(os.Getenv("REMOTE_BACKEND"), fc.Remote.Backend))
	if cfg.RemoteBackend == "" {
		cfg.RemoteBackend = RemoteNone
		if cfg.Profile == ProfileServerless {
			cfg.RemoteBackend = RemoteS3
		}
	}
	cfg.RemoteBucket = firstNonEmpty(os.Getenv("S3_BUCKET"), fc.Remote.Bucket)
	cfg.RemoteKey = firstNonEmpty(os.Getenv("S3_KEY"), fc.Remote.Key, "flights.db")
	cfg.RemoteRegion = firstNonEmpty(os.Getenv("AWS_REGION"), fc.Remote.Region)
	cfg.RemoteEndpoint = firstNonEmpty(os.Getenv("S3_ENDPOINT"), fc.Remote.Endpoint)
	cfg.RemoteUsePathStyle = fc.Remote.UsePathStyle
	if v := os.Getenv("S3_USE_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("S3_USE_PATH_STYLE: %w", err)
		}
		cfg.RemoteUsePathStyle = b
	}
	cfg.RemoteDir = firstNonEmpty(os.Getenv("REMOTE_DIR"), fc.Remote.Dir)
	cfg.RemoteTimeout = parseDuration(fc.Remote.Timeout, 30*time.Second)
	cfg.RemoteAccessKeyID = sec.AWSAccessKeyID
	cfg.RemoteSecretAccessKey = sec.AWSSecretAccessKey
	cfg.RemoteBreakerFailureThreshold = fc.Remote.Breaker.FailureThreshold
	if cfg.RemoteBreakerFailureThreshold <= 0 {
		cfg.RemoteBreakerFailureThreshold = 3
	}
	cfg.RemoteBreakerTimeout = parseDuration(fc.Remote.Breaker.Timeout, 30*time.Second)

	cfg.IngestPassword = firstNonEmpty(os.Getenv("FLIGHT_API_PASSWORD"), sec.FlightAPIPassword)
	cfg.IngestMaxBodyBytes = fc.Ingest.MaxBodyBytes
	if cfg.IngestMaxBodyBytes <= 0 {
		cfg.IngestMaxBodyBytes = 32 << 20
	}
	cfg.IngestTimeout = parseDuration(fc.Ingest.Timeout, 2*time.Minute)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, cfg.RemoteTimeout)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	// an ingestion must be able to finish replace + flush before the server write deadline
	cfg.ServerWriteTimeout = parseDuration(fc.Server.WriteTimeout, cfg.IngestTimeout+cfg.RemoteTimeout+5*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// detectProfile infers the profile from the hosting platform.
func detectProfile() string {
	switch {
	case os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "":
		return ProfileServerless
	case os.Getenv("RAILWAY_ENVIRONMENT") != "", os.Getenv("RAILWAY_PROJECT_ID") != "":
		return ProfileHosted
	default:
		return ProfileLocal
	}
}

// databaseURLPath accepts DATABASE_URL values such as "flights.db",
// "sqlite://data/flights.db" or "file:flights.db" and returns the file path.
func databaseURLPath(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.Profile {
	case ProfileLocal, ProfileHosted, ProfileServerless:
	default:
		return fmt.Errorf("profile must be local, hosted or serverless, got %q", cfg.Profile)
	}
	switch cfg.RemoteBackend {
	case RemoteNone:
	case RemoteS3:
		if cfg.RemoteBucket == "" {
			return fmt.Errorf("remote.bucket (S3_BUCKET) required for s3 backend")
		}
	case RemoteFilesystem:
		if cfg.RemoteDir == "" {
			return fmt.Errorf("remote.dir (REMOTE_DIR) required for filesystem backend")
		}
	default:
		return fmt.Errorf("remote.backend must be none, s3 or filesystem, got %q", cfg.RemoteBackend)
	}
	if cfg.Profile == ProfileServerless && cfg.RemoteBackend != RemoteS3 {
		return fmt.Errorf("serverless profile requires the s3 remote backend (local disk is ephemeral), got %q", cfg.RemoteBackend)
	}
	if strings.TrimSpace(cfg.RemoteKey) == "" {
		return fmt.Errorf("remote.key must not be empty")
	}
	return nil
}
