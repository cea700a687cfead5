// Package config provides configuration management for the publication tracker.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/staffpage"
	"github.com/yohaboy/research-tracker/internal/temporal"
)

// PostgreSQL sslmode values.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "PUBTRACK"

// Config holds all configuration for the publication tracker.
type Config struct {
	// Server contains HTTP/gRPC server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal job runner settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Tracing contains OpenTelemetry distributed tracing settings.
	Tracing TracingConfig `mapstructure:"tracing"`
	// Kafka contains event bus settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Sources contains per-source API settings.
	Sources SourcesConfig `mapstructure:"sources"`
	// StaffPage contains staff-profile scraping settings.
	StaffPage StaffPageConfig `mapstructure:"staff_page"`
	// Reconcile contains pipeline and schedule settings.
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	// Auth contains HTTP bearer-token settings.
	Auth AuthConfig `mapstructure:"auth"`
	// Cache contains HTTP report cache settings.
	Cache CacheConfig `mapstructure:"cache"`
}

// ServerConfig holds listener settings. The HTTP API, gRPC health service
// and Prometheus endpoint each bind their own port on Host.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL pool settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	// SSLMode is one of the SSLMode constants. It defaults to require;
	// local development sets disable.
	SSLMode string `mapstructure:"ssl_mode"`

	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`

	// MigrationPath is the directory of golang-migrate SQL files.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun applies pending migrations when the server starts.
	MigrationAutoRun       bool `mapstructure:"migration_auto_run"`
	StatementCacheCapacity int  `mapstructure:"statement_cache_capacity"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for reconciliation workflows.
	TaskQueue string `mapstructure:"task_queue"`
	// AuthorJobTimeout bounds a single author reconciliation workflow.
	AuthorJobTimeout time.Duration `mapstructure:"author_job_timeout"`
	// MaxConcurrentReconciles bounds author reconciliations per worker process.
	MaxConcurrentReconciles int `mapstructure:"max_concurrent_reconciles"`
	// TLS client certificate, key and CA bundle. Empty paths leave TLS off.
	TLSCertFile   string `mapstructure:"tls_cert_file"`
	TLSKeyFile    string `mapstructure:"tls_key_file"`
	TLSCAFile     string `mapstructure:"tls_ca_file"`
	TLSServerName string `mapstructure:"tls_server_name"`
}

// Worker converts the settings into a worker configuration.
func (c TemporalConfig) Worker() temporal.WorkerConfig {
	cfg := temporal.DefaultWorkerConfig(c.TaskQueue)
	if c.MaxConcurrentReconciles > 0 {
		cfg.MaxConcurrentReconciles = c.MaxConcurrentReconciles
	}
	return cfg
}

// Client converts the settings into a Temporal client configuration.
func (c TemporalConfig) Client() temporal.ClientConfig {
	return temporal.ClientConfig{
		HostPort:         c.HostPort,
		Namespace:        c.Namespace,
		TaskQueue:        c.TaskQueue,
		AuthorJobTimeout: c.AuthorJobTimeout,
		CertFile:         c.TLSCertFile,
		KeyFile:          c.TLSKeyFile,
		CAFile:           c.TLSCAFile,
		ServerName:       c.TLSServerName,
	}
}

// LoggingConfig mirrors observability.LoggingConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig controls the Prometheus endpoint served on Server.MetricsPort.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig controls OpenTelemetry export. An empty Endpoint exports to
// stdout; otherwise spans go to an OTLP/HTTP collector at host:port.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// KafkaConfig holds Kafka settings for reconciliation events and roster triggers.
type KafkaConfig struct {
	// Enabled controls whether events are published and roster updates consumed.
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	// ReconciledTopic receives one event per finished author reconciliation.
	ReconciledTopic string `mapstructure:"reconciled_topic"`
	// RosterTopic carries roster-updated events that trigger a fan-out job.
	RosterTopic string `mapstructure:"roster_topic"`
	// GroupID is the consumer group of the roster listener.
	GroupID string `mapstructure:"group_id"`
	// Writer batching.
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// SourcesConfig holds configuration for the three publication sources.
type SourcesConfig struct {
	// Scopus is the citation index.
	Scopus SourceConfig `mapstructure:"scopus"`
	// Scholar is the profile aggregator.
	Scholar SourceConfig `mapstructure:"scholar"`
	// ORCID is the identifier registry.
	ORCID SourceConfig `mapstructure:"orcid"`
}

// SourceConfig holds configuration for a single publication source.
type SourceConfig struct {
	// Enabled controls whether this source is queried.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment only, e.g. PUBTRACK_SOURCES_SCOPUS_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds every single HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit (requests/s) and Burst cap the adaptive limiter.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
	// PageSize is the page size used for paginated listings.
	PageSize int `mapstructure:"page_size"`
	// MaxPages caps the number of pages fetched per author (0 = unlimited).
	MaxPages int `mapstructure:"max_pages"`
	// MaxRetries is the retry budget for transient failures (0 disables retries).
	MaxRetries int `mapstructure:"max_retries"`
}

// StaffPageConfig holds staff-profile scraping settings.
type StaffPageConfig struct {
	// Enabled turns identifier enrichment on during author upserts.
	Enabled bool `mapstructure:"enabled"`
	// URLTemplate builds the staff URL; {first} and {last} are substituted.
	URLTemplate string `mapstructure:"url_template"`
	// Timeout bounds the page fetch.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReconcileConfig holds pipeline and schedule settings.
type ReconcileConfig struct {
	// DefaultSince is used when a trigger carries no since date (YYYY-MM-DD).
	DefaultSince string `mapstructure:"default_since"`
	// ScheduleEnabled turns on the periodic reconcile-all trigger in the worker.
	ScheduleEnabled bool `mapstructure:"schedule_enabled"`
	// Schedule is a standard five-field cron spec.
	Schedule string `mapstructure:"schedule"`
	// SourceConcurrency bounds concurrent source fetches per author.
	SourceConcurrency int `mapstructure:"source_concurrency"`
}

// AuthConfig holds HTTP bearer-token settings.
type AuthConfig struct {
	// Enabled requires an HS256 bearer token on mutating routes.
	Enabled bool `mapstructure:"enabled"`
	// Issuer, when set, must match the token's iss claim.
	Issuer string `mapstructure:"issuer"`
	// JWTSecret is the HMAC secret (PUBTRACK_AUTH_JWT_SECRET, environment only).
	JWTSecret string `mapstructure:"-"`
}

// CacheConfig holds HTTP report cache settings.
type CacheConfig struct {
	// ReportTTL is how long a computed report is served from memory (0 disables caching).
	ReportTTL time.Duration `mapstructure:"report_ttl"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// GRPCAddress returns the gRPC server address.
func (c *ServerConfig) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// DefaultSinceDate parses Reconcile.DefaultSince.
func (c *ReconcileConfig) DefaultSinceDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.DefaultSince)
}

// Scraper converts the staff page section into scraper options.
func (c *StaffPageConfig) Scraper() staffpage.Config {
	return staffpage.Config{
		URLTemplate: c.URLTemplate,
		Timeout:     c.Timeout,
	}
}

// Observability converts the logging section into logger options.
func (c *LoggingConfig) Observability() observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddSource:  c.AddSource,
		TimeFormat: c.TimeFormat,
	}
}

// Observability converts the tracing section into tracer provider options.
func (c *TracingConfig) Observability() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Enabled,
		Endpoint:    c.Endpoint,
		Insecure:    c.Insecure,
		ServiceName: c.ServiceName,
		SampleRate:  c.SampleRate,
	}
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pubtrack")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	if pw := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}
	cfg.Sources.Scopus.APIKey = os.Getenv(EnvPrefix + "_SOURCES_SCOPUS_API_KEY")
	cfg.Auth.JWTSecret = os.Getenv(EnvPrefix + "_AUTH_JWT_SECRET")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pubtrack")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "pubtrack")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "publication-reconciliation")
	v.SetDefault("temporal.author_job_timeout", "30m")
	v.SetDefault("temporal.max_concurrent_reconciles", 10)
	v.SetDefault("temporal.tls_cert_file", "")
	v.SetDefault("temporal.tls_key_file", "")
	v.SetDefault("temporal.tls_ca_file", "")
	v.SetDefault("temporal.tls_server_name", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "pubtrack")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", "research-tracker")
	v.SetDefault("tracing.sample_rate", 0.1)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.reconciled_topic", "publications.reconciled")
	v.SetDefault("kafka.roster_topic", "authors.roster-updated")
	v.SetDefault("kafka.group_id", "pubtrack-worker")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Scopus (citation index). Disabled until an API key is provided.
	v.SetDefault("sources.scopus.enabled", false)
	v.SetDefault("sources.scopus.base_url", "https://api.elsevier.com/content")
	v.SetDefault("sources.scopus.timeout", "30s")
	v.SetDefault("sources.scopus.rate_limit", 5.0)
	v.SetDefault("sources.scopus.burst", 5)
	v.SetDefault("sources.scopus.page_size", 25)
	v.SetDefault("sources.scopus.max_pages", 0)
	v.SetDefault("sources.scopus.max_retries", 0)

	// Google Scholar (profile aggregator). Scraped; keep the rate low.
	v.SetDefault("sources.scholar.enabled", true)
	v.SetDefault("sources.scholar.base_url", "https://scholar.google.com")
	v.SetDefault("sources.scholar.timeout", "20s")
	v.SetDefault("sources.scholar.rate_limit", 0.5)
	v.SetDefault("sources.scholar.burst", 1)
	v.SetDefault("sources.scholar.page_size", 100)
	v.SetDefault("sources.scholar.max_pages", 5)
	v.SetDefault("sources.scholar.max_retries", 2)

	// ORCID (identifier registry)
	v.SetDefault("sources.orcid.enabled", true)
	v.SetDefault("sources.orcid.base_url", "https://pub.orcid.org/v3.0")
	v.SetDefault("sources.orcid.timeout", "30s")
	v.SetDefault("sources.orcid.rate_limit", 8.0)
	v.SetDefault("sources.orcid.burst", 8)
	v.SetDefault("sources.orcid.page_size", 0)
	v.SetDefault("sources.orcid.max_pages", 0)
	v.SetDefault("sources.orcid.max_retries", 3)

	// Staff page defaults
	v.SetDefault("staff_page.enabled", false)
	v.SetDefault("staff_page.url_template", "https://people.unisa.edu.au/{first}.{last}")
	v.SetDefault("staff_page.timeout", "5s")

	// Reconcile defaults
	v.SetDefault("reconcile.default_since", "2024-01-01")
	v.SetDefault("reconcile.schedule_enabled", false)
	v.SetDefault("reconcile.schedule", "0 3 * * 1")
	v.SetDefault("reconcile.source_concurrency", 3)

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "")

	// Cache defaults
	v.SetDefault("cache.report_ttl", "30s")
}

// Validate reports every configuration problem at once, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	port := func(name string, p int) {
		if p <= 0 || p > 65535 {
			fail("invalid %s port: %d", name, p)
		}
	}

	port("HTTP", c.Server.HTTPPort)
	port("gRPC", c.Server.GRPCPort)
	port("metrics", c.Server.MetricsPort)

	db := c.Database
	if db.Host == "" {
		fail("database host is required")
	}
	port("database", db.Port)
	if db.Name == "" {
		fail("database name is required")
	}
	if db.MaxConns < db.MinConns {
		fail("database.max_conns (%d) must be >= min_conns (%d)", db.MaxConns, db.MinConns)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil || c.Logging.Level == "" {
		fail("invalid log level: %q", c.Logging.Level)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		fail("tracing sample rate must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		fail("kafka.brokers is required when kafka is enabled")
	}

	for _, src := range []struct {
		name string
		cfg  SourceConfig
	}{
		{"scopus", c.Sources.Scopus},
		{"scholar", c.Sources.Scholar},
		{"orcid", c.Sources.ORCID},
	} {
		if !src.cfg.Enabled {
			continue
		}
		if src.cfg.BaseURL == "" {
			fail("sources.%s.base_url is required when the source is enabled", src.name)
		}
		if src.cfg.Timeout <= 0 {
			fail("sources.%s.timeout must be positive", src.name)
		}
		if src.cfg.MaxRetries < 0 {
			fail("sources.%s.max_retries must not be negative", src.name)
		}
	}
	if c.Sources.Scopus.Enabled && c.Sources.Scopus.APIKey == "" {
		fail("sources.scopus requires %s_SOURCES_SCOPUS_API_KEY to be set", EnvPrefix)
	}

	if c.StaffPage.Enabled && !strings.Contains(c.StaffPage.URLTemplate, "{first}") {
		fail("staff_page.url_template must contain {first}")
	}

	if _, err := c.Reconcile.DefaultSinceDate(); err != nil {
		fail("reconcile.default_since must be YYYY-MM-DD: %w", err)
	}
	if c.Reconcile.ScheduleEnabled {
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			fail("invalid reconcile.schedule %q: %w", c.Reconcile.Schedule, err)
		}
	}
	if c.Reconcile.SourceConcurrency <= 0 {
		fail("reconcile.source_concurrency must be positive")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		fail("auth requires %s_AUTH_JWT_SECRET to be set", EnvPrefix)
	}

	return errors.Join(errs...)
}
