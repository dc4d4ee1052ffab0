// Package config handles loading and validating rubani configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for rubani.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.rubani/data. Override: RUBANI_DATA_DIR env var.
	Server        ServerConfig         `json:"server" yaml:"server"`
	LLM           LLMConfig            `json:"llm" yaml:"llm"`
	Octopus       OctopusConfig        `json:"octopus" yaml:"octopus"`
	Octoterra     OctoterraConfig      `json:"octoterra" yaml:"octoterra"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"` // nil = SQLite default (derived from data dir)
	Admin         AdminConfig          `json:"admin" yaml:"admin"`
	Secrets       *SecretsConfig       `json:"secrets,omitempty" yaml:"secrets,omitempty"`             // nil = env-only credential references
	Scheduler     *SchedulerConfig     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`         // nil = token sweeper disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	MCP           []MCPServerConfig    `json:"mcp,omitempty" yaml:"mcp,omitempty"`                     // External MCP tool servers.
}

// ServerConfig configures the HTTP/WebSocket gateway.
type ServerConfig struct {
	ListenAddr          string            `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	EnableDocs          bool              `json:"enable_docs" yaml:"enable_docs"`
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"` // Default: 1 MiB.
	APIKeys             map[string]string `json:"api_keys" yaml:"api_keys"`                             // API key → username.
	RateLimit           RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
	WebSocket           bool              `json:"websocket" yaml:"websocket"` // Enable the /ws chat endpoint.
}

// Addr returns the listen address with a default of ":8080".
func (s ServerConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the request size limit with a default of 1 MiB.
func (s ServerConfig) MaxRequestSize() int64 {
	if s.MaxRequestSizeBytes > 0 {
		return s.MaxRequestSizeBytes
	}
	return 1 << 20
}

// RateLimitConfig configures per-principal rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// LLMConfig configures the chat-completion backend.
type LLMConfig struct {
	Provider           string      `json:"provider" yaml:"provider"` // "openai" (default) or "azure".
	APIKey             string      `json:"api_key" yaml:"api_key"`   // Override: OPENAI_API_KEY env var.
	Model              string      `json:"model" yaml:"model"`
	BaseURL            string      `json:"base_url" yaml:"base_url"` // Optional. Defaults to https://api.openai.com.
	Azure              AzureConfig `json:"azure" yaml:"azure"`
	Fallback           []string    `json:"fallback,omitempty" yaml:"fallback,omitempty"` // Providers tried in order when the default fails.
	ContextBudgetChars int         `json:"context_budget_chars" yaml:"context_budget_chars"`
	StepByStep         bool        `json:"step_by_step" yaml:"step_by_step"` // Verbose chain-of-thought answers.
}

// AzureConfig holds Azure OpenAI deployment settings.
type AzureConfig struct {
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Deployment string `json:"deployment" yaml:"deployment"`
	APIVersion string `json:"api_version" yaml:"api_version"` // Default: "2024-03-01-preview".
}

// ProviderName returns the configured provider, defaulting to "openai".
func (l LLMConfig) ProviderName() string {
	if l.Provider != "" {
		return l.Provider
	}
	return "openai"
}

// ContextBudget returns the configuration character budget. The default fits
// a 13500-token context at roughly four characters per token.
func (l LLMConfig) ContextBudget() int {
	if l.ContextBudgetChars > 0 {
		return l.ContextBudgetChars
	}
	return 13500 * 4
}

// OctopusConfig holds the default Octopus server credentials, used when a
// caller has no stored record.
type OctopusConfig struct {
	URL            string `json:"url" yaml:"url"`
	APIKey         string `json:"api_key" yaml:"api_key"` // Override: OCTOPUS_API_KEY env var.
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the request timeout with a default of 30s.
func (o OctopusConfig) Timeout() time.Duration {
	if o.TimeoutSeconds > 0 {
		return time.Duration(o.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// OctoterraConfig configures the space exporter service.
type OctoterraConfig struct {
	URL            string `json:"url" yaml:"url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the export timeout with a default of 60s. Exports walk the
// whole space and are slow.
func (o OctoterraConfig) Timeout() time.Duration {
	if o.TimeoutSeconds > 0 {
		return time.Duration(o.TimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// SecretsConfig configures credential reference resolution. API key values
// of the form env://NAME or vault://path#field are resolved at startup;
// plain values are used as-is.
type SecretsConfig struct {
	Vault map[string]string `json:"vault,omitempty" yaml:"vault,omitempty"` // Vault settings: address, token, namespace, timeout, tls_skip_verify.
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data dir.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// AdminConfig configures the administrator allow list for the guarded
// user-management endpoints.
type AdminConfig struct {
	Users    []string `json:"users,omitempty" yaml:"users,omitempty"`         // Static allow list.
	UsersEnv string   `json:"users_env,omitempty" yaml:"users_env,omitempty"` // Env var holding a JSON array; re-read per call. Default: RUBANI_ADMIN_USERS.
}

// AllowListEnv returns the env var name holding the admin allow list.
func (a AdminConfig) AllowListEnv() string {
	if a.UsersEnv != "" {
		return a.UsersEnv
	}
	return "RUBANI_ADMIN_USERS"
}

// SchedulerConfig configures the login-token sweeper.
// When nil, expired tokens are only rejected at redeem time, never removed.
type SchedulerConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	SweepCron       string `json:"sweep_cron" yaml:"sweep_cron"`               // Default: "*/10 * * * *".
	TokenTTLSeconds int    `json:"token_ttl_seconds" yaml:"token_ttl_seconds"` // Default: 900 (15 min).
}

// SweepSchedule returns the sweep cron expression with a default of every
// ten minutes.
func (s *SchedulerConfig) SweepSchedule() string {
	if s != nil && s.SweepCron != "" {
		return s.SweepCron
	}
	return "*/10 * * * *"
}

// TokenTTL returns the login-token lifetime with a default of 15m.
func (s *SchedulerConfig) TokenTTL() time.Duration {
	if s != nil && s.TokenTTLSeconds > 0 {
		return time.Duration(s.TokenTTLSeconds) * time.Second
	}
	return 15 * time.Minute
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "rubani"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB bool `json:"include_db" yaml:"include_db"`
}

// MCPServerConfig defines a single external MCP server connection.
// rubani acts as an MCP client, connecting at startup, discovering tools,
// and registering them alongside the built-in Octopus tools.
type MCPServerConfig struct {
	Name      string            `json:"name" yaml:"name"`                           // Server ID used for tool namespacing (e.g., "github").
	Transport string            `json:"transport" yaml:"transport"`                 // "stdio", "sse", or "streamable_http".
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"` // Executable to launch (stdio only).
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`       // Command arguments (stdio only).
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`         // Subprocess env vars (stdio only). Values support ${VAR} expansion.
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`         // Server endpoint (sse/streamable_http only).
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // HTTP headers (sse/streamable_http). Values support ${VAR} expansion.
}

// DefaultConfigPath returns the default config file path (~/.rubani/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/rubani.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".rubani", "config.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Credentials can be set in the config file or overridden by
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	// Environment variable overrides — env vars take precedence over config values.
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		cfg.LLM.APIKey = envKey
	}
	if envKey := os.Getenv("OCTOPUS_API_KEY"); envKey != "" {
		cfg.Octopus.APIKey = envKey
	}
	if envURL := os.Getenv("OCTOPUS_URL"); envURL != "" {
		cfg.Octopus.URL = envURL
	}
	if envURL := os.Getenv("RUBANI_OCTOTERRA_URL"); envURL != "" {
		cfg.Octoterra.URL = envURL
	}
	if envAddr := os.Getenv("RUBANI_LISTEN_ADDR"); envAddr != "" {
		cfg.Server.ListenAddr = envAddr
	}
	if envDD := os.Getenv("RUBANI_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}

	// Resolve DataDir default.
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".rubani", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".rubani", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "rubani.db")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	switch c.LLM.ProviderName() {
	case "openai":
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required")
		}
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required (set OPENAI_API_KEY env var)")
		}
	case "azure":
		if c.LLM.Azure.Endpoint == "" {
			return fmt.Errorf("llm.azure.endpoint is required")
		}
		if c.LLM.Azure.Deployment == "" {
			return fmt.Errorf("llm.azure.deployment is required")
		}
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required (set OPENAI_API_KEY env var)")
		}
	default:
		return fmt.Errorf("llm.provider %q is not supported (use openai or azure)", c.LLM.Provider)
	}
	for i, name := range c.LLM.Fallback {
		if name != "openai" && name != "azure" {
			return fmt.Errorf("llm.fallback[%d] %q is not supported (use openai or azure)", i, name)
		}
	}
	if c.LLM.ContextBudgetChars < 0 {
		return fmt.Errorf("llm.context_budget_chars must not be negative")
	}
	if c.Octoterra.URL == "" {
		return fmt.Errorf("octoterra.url is required")
	}
	// Storage driver validation.
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.StorageDriverName() == "postgres" {
		if c.Storage == nil || c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
		}
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 || c.Server.RateLimit.BurstSize < 0 {
		return fmt.Errorf("server.rate_limit values must not be negative")
	}
	// MCP server config validation.
	mcpNames := make(map[string]bool, len(c.MCP))
	for i, srv := range c.MCP {
		if srv.Name == "" {
			return fmt.Errorf("mcp[%d].name is required", i)
		}
		if mcpNames[srv.Name] {
			return fmt.Errorf("mcp[%d]: duplicate server name %q", i, srv.Name)
		}
		mcpNames[srv.Name] = true
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("mcp[%d] (%q): command is required for stdio transport", i, srv.Name)
			}
		case "sse", "streamable_http":
			if srv.URL == "" {
				return fmt.Errorf("mcp[%d] (%q): url is required for %s transport", i, srv.Name, srv.Transport)
			}
		default:
			return fmt.Errorf("mcp[%d] (%q): transport must be stdio, sse, or streamable_http", i, srv.Name)
		}
	}
	return nil
}
