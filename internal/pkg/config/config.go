package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Registry  UpstreamConfig  `mapstructure:"registry"`
	IBGE      UpstreamConfig  `mapstructure:"ibge"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	BodyLimit    int      `mapstructure:"body_limit"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	RateLimit    int      `mapstructure:"rate_limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UpstreamConfig points at an external HTTP API.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionsConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	MaxImageBytes int           `mapstructure:"max_image_bytes"`
	PreviewSize   int           `mapstructure:"preview_size"`
}

type CacheConfig struct {
	ItemsTTL      time.Duration `mapstructure:"items_ttl"`
	LocalitiesTTL time.Duration `mapstructure:"localities_ttl"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	// LocalTTL bounds client-side caching of Valkey reads; 0 disables it.
	LocalTTL      time.Duration `mapstructure:"local_ttl"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// MaxPayloadBytes is the largest workflow input the server accepts
	// (Temporal's blob size limit, 2 MiB by default).
	MaxPayloadBytes int `mapstructure:"max_payload_bytes"`
	// SyncFallback sends deferred submissions that exceed MaxPayloadBytes
	// to the registry directly instead of rejecting them.
	SyncFallback bool `mapstructure:"sync_fallback"`
}

// workflowOverhead is reserved in a workflow input for everything but the image.
const workflowOverhead = 64 << 10

// DeferredPayloadBytes estimates the workflow input of a deferred submission
// carrying an image of imageBytes: the JSON payload encodes it as base64.
func DeferredPayloadBytes(imageBytes int) int {
	return base64.StdEncoding.EncodedLen(imageBytes) + workflowOverhead
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Enabled      bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: ECOLETA_REGISTRY_BASE_URL → registry.base_url
	v.SetEnvPrefix("ECOLETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.body_limit", 8*1024*1024)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:19006"})
	v.SetDefault("server.rate_limit", 240)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("registry.base_url", "http://localhost:3333")
	v.SetDefault("registry.timeout", 10*time.Second)
	v.SetDefault("ibge.base_url", "https://servicodados.ibge.gov.br/api/v1/localidades")
	v.SetDefault("ibge.timeout", 10*time.Second)
	v.SetDefault("sessions.idle_ttl", 30*time.Minute)
	v.SetDefault("sessions.fetch_timeout", 15*time.Second)
	v.SetDefault("sessions.max_image_bytes", 5*1024*1024)
	v.SetDefault("sessions.preview_size", 300)
	v.SetDefault("cache.items_ttl", 10*time.Minute)
	v.SetDefault("cache.localities_ttl", 24*time.Hour)
	v.SetDefault("cache.key_prefix", "ecoleta:")
	v.SetDefault("cache.local_ttl", 30*time.Second)
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ecoleta")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ecoleta")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "point-registration")
	v.SetDefault("temporal.max_payload_bytes", 2<<20)
	v.SetDefault("temporal.sync_fallback", true)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RateLimit <= 0 {
		errs = append(errs, "server.rate_limit must be positive")
	}
	if err := validURL(c.Registry.BaseURL); err != nil {
		errs = append(errs, "registry.base_url "+err.Error())
	}
	if err := validURL(c.IBGE.BaseURL); err != nil {
		errs = append(errs, "ibge.base_url "+err.Error())
	}
	if c.Sessions.IdleTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("sessions.idle_ttl must be at least 1m, got %s", c.Sessions.IdleTTL))
	}
	if c.Sessions.FetchTimeout <= 0 {
		errs = append(errs, "sessions.fetch_timeout must be positive")
	}
	if c.Sessions.MaxImageBytes <= 0 {
		errs = append(errs, "sessions.max_image_bytes must be positive")
	}
	if c.Server.BodyLimit < c.Sessions.MaxImageBytes {
		errs = append(errs, "server.body_limit must be at least sessions.max_image_bytes")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Cache.LocalTTL < 0 {
		errs = append(errs, "cache.local_ttl must not be negative")
	}
	if c.Temporal.Enabled {
		if c.Temporal.HostPort == "" || c.Temporal.TaskQueue == "" {
			errs = append(errs, "temporal.host_port and temporal.task_queue are required")
		}
		switch need := DeferredPayloadBytes(c.Sessions.MaxImageBytes); {
		case c.Temporal.MaxPayloadBytes <= workflowOverhead:
			errs = append(errs, fmt.Sprintf("temporal.max_payload_bytes must exceed %d", workflowOverhead))
		case need > c.Temporal.MaxPayloadBytes && !c.Temporal.SyncFallback:
			errs = append(errs, fmt.Sprintf(
				"sessions.max_image_bytes (%d) needs a %d-byte workflow input, above temporal.max_payload_bytes (%d); lower it or enable temporal.sync_fallback",
				c.Sessions.MaxImageBytes, need, c.Temporal.MaxPayloadBytes))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is invalid: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	return nil
}
