package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache partition name constants. The version suffix is part of the
// compatibility surface: changing CacheVersion triggers full partition
// replacement on activation.
const (
	FailedRequestsPartition = "failed-requests"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig
	Queue   QueueConfig
	Cache   CacheConfig
	Replay  ReplayConfig
	Routes  RoutesConfig
	Probe   ProbeConfig
	Logging LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	UpstreamURL string
}

// QueueConfig holds mutation-queue configuration
type QueueConfig struct {
	Path string
}

// CacheConfig holds cache-store configuration
type CacheConfig struct {
	Backend       string // "memory" or "leveldb"
	Dir           string // leveldb directory
	Version       int
	SweepInterval time.Duration
}

// ReplayConfig holds background-sync configuration
type ReplayConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	ReplayTimeout time.Duration
}

// RoutesConfig holds the strategy classification tables and the list of
// assets precached at install time. Prefixes are evaluated in table
// order: cache-first first, then network-first, then
// stale-while-revalidate; first match wins.
type RoutesConfig struct {
	CacheFirst           []string `yaml:"cache_first"`
	NetworkFirst         []string `yaml:"network_first"`
	StaleWhileRevalidate []string `yaml:"stale_while_revalidate"`
	Precache             []string `yaml:"precache"`
}

// ProbeConfig holds connectivity-probe configuration
type ProbeConfig struct {
	Interval time.Duration
	Path     string
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Verbose bool
}

// routesFile is the on-disk YAML shape of the routes configuration.
type routesFile struct {
	CacheVersion int          `yaml:"cache_version"`
	Routes       RoutesConfig `yaml:"routes"`
	Precache     []string     `yaml:"precache"`
}

// DefaultRoutes mirrors the tables the dashboard ships with.
func DefaultRoutes() RoutesConfig {
	return RoutesConfig{
		CacheFirst:           []string{"/static/", "/assets/", "/fonts/", "/icons/"},
		NetworkFirst:         []string{"/api/"},
		StaleWhileRevalidate: []string{"/settings", "/profile", "/teams"},
		Precache:             []string{"/offline.html", "/static/app.css", "/static/app.js"},
	}
}

// New creates a new config with the given parameters
func New(port, upstreamURL, queuePath, cacheBackend, cacheDir, routesFilePath string,
	maxRetries int, retryDelay, replayTimeout, sweepInterval, probeInterval time.Duration,
	verbose bool) (*Config, error) {

	cfg := &Config{
		Server: ServerConfig{
			Port:        port,
			UpstreamURL: upstreamURL,
		},
		Queue: QueueConfig{
			Path: queuePath,
		},
		Cache: CacheConfig{
			Backend:       cacheBackend,
			Dir:           cacheDir,
			Version:       1,
			SweepInterval: sweepInterval,
		},
		Replay: ReplayConfig{
			MaxRetries:    maxRetries,
			RetryDelay:    retryDelay,
			ReplayTimeout: replayTimeout,
		},
		Routes: DefaultRoutes(),
		Probe: ProbeConfig{
			Interval: probeInterval,
			Path:     "/api/health",
		},
		Logging: LoggingConfig{
			Verbose: verbose,
		},
	}

	if routesFilePath != "" {
		if err := cfg.loadRoutesFile(routesFilePath); err != nil {
			return nil, fmt.Errorf("failed to load routes file: %w", err)
		}
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadRoutesFile overlays the YAML routes file onto the defaults.
func (c *Config) loadRoutesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var rf routesFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if rf.CacheVersion > 0 {
		c.Cache.Version = rf.CacheVersion
	}
	if len(rf.Routes.CacheFirst) > 0 {
		c.Routes.CacheFirst = rf.Routes.CacheFirst
	}
	if len(rf.Routes.NetworkFirst) > 0 {
		c.Routes.NetworkFirst = rf.Routes.NetworkFirst
	}
	if len(rf.Routes.StaleWhileRevalidate) > 0 {
		c.Routes.StaleWhileRevalidate = rf.Routes.StaleWhileRevalidate
	}
	if len(rf.Precache) > 0 {
		c.Routes.Precache = rf.Precache
	}

	return nil
}

// StaticPartition returns the versioned static partition name.
func (c *Config) StaticPartition() string {
	return fmt.Sprintf("static-v%d", c.Cache.Version)
}

// DynamicPartition returns the versioned dynamic partition name.
func (c *Config) DynamicPartition() string {
	return fmt.Sprintf("dynamic-v%d", c.Cache.Version)
}

// ActivePartitions returns every partition name the current version
// keeps alive. Activation deletes anything not in this set.
func (c *Config) ActivePartitions() []string {
	return []string{c.StaticPartition(), c.DynamicPartition(), FailedRequestsPartition}
}

// validate validates the configuration values
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if c.Server.UpstreamURL == "" {
		return fmt.Errorf("upstream URL cannot be empty")
	}
	parsed, err := url.Parse(c.Server.UpstreamURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("upstream URL must be http or https, got: %s", c.Server.UpstreamURL)
	}

	if c.Queue.Path == "" {
		return fmt.Errorf("queue database path cannot be empty")
	}

	switch c.Cache.Backend {
	case "memory":
	case "leveldb":
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache dir cannot be empty with the leveldb backend")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	if c.Cache.Version < 1 {
		return fmt.Errorf("cache version must be positive, got: %d", c.Cache.Version)
	}

	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got: %v", c.Cache.SweepInterval)
	}

	if c.Replay.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got: %d", c.Replay.MaxRetries)
	}

	if c.Replay.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative, got: %v", c.Replay.RetryDelay)
	}

	if c.Replay.ReplayTimeout <= 0 {
		return fmt.Errorf("replay timeout must be positive, got: %v", c.Replay.ReplayTimeout)
	}

	if c.Probe.Interval < 0 {
		return fmt.Errorf("probe interval cannot be negative, got: %v", c.Probe.Interval)
	}

	for _, prefix := range append(append(append([]string{},
		c.Routes.CacheFirst...), c.Routes.NetworkFirst...), c.Routes.StaleWhileRevalidate...) {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("route prefix must start with '/', got: %s", prefix)
		}
	}

	return nil
}
