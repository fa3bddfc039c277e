// ABOUTME: Configuration loading and parsing for ppa-gateway
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing, and TTL floors

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUpstreamBaseURL is the known-good backend used when no base URL is
// configured, matching the behavior shipped to existing installations.
const DefaultUpstreamBaseURL = "https://apps.techwithwayne.com/postpress-ai"

// Floors and defaults for the gate timing knobs. The floors keep a
// misconfigured site from hammering the license backend.
const (
	DefaultMaxAge            = 900 * time.Second
	MinMaxAge                = 30 * time.Second
	DefaultVerifyInterval    = 60 * time.Second
	MinVerifyInterval        = 15 * time.Second
	DefaultUpstreamTimeout   = 90 * time.Second
	DefaultGateCacheCeiling  = 60 * time.Second
	MinGateCacheTTL          = 15 * time.Second
	DefaultVerifyResultCache = 5 * time.Minute
)

// Config represents the complete ppa-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Site     SiteConfig     `yaml:"site"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	Gate     GateConfig     `yaml:"gate"`
	License  LicenseConfig  `yaml:"license"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the inbound listener address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// SiteConfig identifies the installation the license is bound to
type SiteConfig struct {
	URL string `yaml:"url"`
}

// UpstreamConfig holds the content backend connection settings
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// AuthConfig holds inbound authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// GateConfig holds the license gate timing knobs
type GateConfig struct {
	MaxAge            time.Duration `yaml:"-"`
	MinVerifyInterval time.Duration `yaml:"-"`

	MaxAgeRaw            string `yaml:"max_age"`
	MinVerifyIntervalRaw string `yaml:"min_verify_interval"`
}

// LicenseConfig holds credential selection policy
type LicenseConfig struct {
	// PreferLicenseKey forces the license key as the content-endpoint
	// credential even when a shared secret is configured.
	PreferLicenseKey bool `yaml:"prefer_license_key"`
	// AllowProbe permits trying the license key first on verify calls.
	AllowProbe *bool `yaml:"allow_probe"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and clamped to floors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// finalize parses durations, applies defaults and floors, and validates.
func (c *Config) finalize() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset values and normalizes the upstream base URL.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8787"
	}

	c.Upstream.BaseURL = NormalizeBaseURL(c.Upstream.BaseURL)

	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}

	if c.Gate.MaxAge == 0 {
		c.Gate.MaxAge = DefaultMaxAge
	}
	if c.Gate.MaxAge < MinMaxAge {
		c.Gate.MaxAge = MinMaxAge
	}

	if c.Gate.MinVerifyInterval == 0 {
		c.Gate.MinVerifyInterval = DefaultVerifyInterval
	}
	if c.Gate.MinVerifyInterval < MinVerifyInterval {
		c.Gate.MinVerifyInterval = MinVerifyInterval
	}

	if c.License.AllowProbe == nil {
		allow := true
		c.License.AllowProbe = &allow
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// NormalizeBaseURL hardens a configured backend base URL: blank input falls
// back to the known-good default, a missing scheme is assumed https, and any
// trailing slash is stripped.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultUpstreamBaseURL
	}
	lower := strings.ToLower(base)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		base = "https://" + strings.TrimLeft(base, "/")
	}
	return strings.TrimRight(base, "/")
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Site.URL == "" {
		return fmt.Errorf("site.url is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// ProbeAllowed reports whether the verifier may try the license key against
// the verify endpoint before the shared secret.
func (c *Config) ProbeAllowed() bool {
	return c.License.AllowProbe == nil || *c.License.AllowProbe
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Upstream.TimeoutRaw != "" {
		cfg.Upstream.Timeout, err = time.ParseDuration(cfg.Upstream.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing upstream.timeout %q: %w", cfg.Upstream.TimeoutRaw, err)
		}
	}

	if cfg.Gate.MaxAgeRaw != "" {
		cfg.Gate.MaxAge, err = time.ParseDuration(cfg.Gate.MaxAgeRaw)
		if err != nil {
			return fmt.Errorf("parsing gate.max_age %q: %w", cfg.Gate.MaxAgeRaw, err)
		}
	}

	if cfg.Gate.MinVerifyIntervalRaw != "" {
		cfg.Gate.MinVerifyInterval, err = time.ParseDuration(cfg.Gate.MinVerifyIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing gate.min_verify_interval %q: %w", cfg.Gate.MinVerifyIntervalRaw, err)
		}
	}

	return nil
}
