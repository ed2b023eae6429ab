package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"remitlend/crypto"
)

type RateLimitConfig struct {
	ID                string  `yaml:"id"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst             int     `yaml:"burst"`
}

type ObservabilityConfig struct {
	ServiceName string `yaml:"serviceName"`
	Metrics     bool   `yaml:"metrics"`
	Tracing     bool   `yaml:"tracing"`
	LogRequests bool   `yaml:"logRequests"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StreamConfig struct {
	// Buffer is the per-subscriber receipt queue. A subscriber that falls
	// further behind misses receipts.
	Buffer       int           `yaml:"buffer"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type Config struct {
	ListenAddress  string              `yaml:"listen"`
	ReadTimeout    time.Duration       `yaml:"readTimeout"`
	WriteTimeout   time.Duration       `yaml:"writeTimeout"`
	IdleTimeout    time.Duration       `yaml:"idleTimeout"`
	RequestTimeout time.Duration       `yaml:"requestTimeout"`
	RateLimits     []RateLimitConfig   `yaml:"rateLimits"`
	Observability  ObservabilityConfig `yaml:"observability"`
	Auth           AuthConfig          `yaml:"auth"`
	Security       SecurityConfig      `yaml:"security"`
	CORS           CORSConfig          `yaml:"cors"`
	Stream         StreamConfig        `yaml:"stream"`
}

type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HMACSecret     string        `yaml:"hmacSecret"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	OptionalPaths  []string      `yaml:"optionalPaths"`
	AllowAnonymous bool          `yaml:"allowAnonymous"`
	ClockSkew      time.Duration `yaml:"clockSkew"`
	// Operators are the API keys oracle services sign requests with.
	Operators  []OperatorKeyConfig `yaml:"operators"`
	NonceTTL   time.Duration       `yaml:"nonceTTL"`
	enabledSet bool                `yaml:"-"`
}

// OperatorKeyConfig binds an API key to the operator address it acts as.
type OperatorKeyConfig struct {
	APIKey  string `yaml:"apiKey"`
	Secret  string `yaml:"secret"`
	Address string `yaml:"address"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled        *bool               `yaml:"enabled"`
		HMACSecret     string              `yaml:"hmacSecret"`
		Issuer         string              `yaml:"issuer"`
		Audience       string              `yaml:"audience"`
		OptionalPaths  []string            `yaml:"optionalPaths"`
		AllowAnonymous bool                `yaml:"allowAnonymous"`
		ClockSkew      time.Duration       `yaml:"clockSkew"`
		Operators      []OperatorKeyConfig `yaml:"operators"`
		NonceTTL       time.Duration       `yaml:"nonceTTL"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	a.Enabled = raw.Enabled != nil && *raw.Enabled
	a.enabledSet = raw.Enabled != nil
	a.HMACSecret = raw.HMACSecret
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.OptionalPaths = raw.OptionalPaths
	a.AllowAnonymous = raw.AllowAnonymous
	a.ClockSkew = raw.ClockSkew
	a.Operators = raw.Operators
	a.NonceTTL = raw.NonceTTL
	return nil
}

type SecurityConfig struct {
	TLSCertFile string `yaml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile"`
}

// TLSEnabled reports whether both TLS files are configured.
func (s SecurityConfig) TLSEnabled() bool {
	return strings.TrimSpace(s.TLSCertFile) != "" && strings.TrimSpace(s.TLSKeyFile) != ""
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddress:  ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		RequestTimeout: 10 * time.Second,
		RateLimits: []RateLimitConfig{
			{ID: "read", RequestsPerMinute: 600, Burst: 60},
			{ID: "write", RequestsPerMinute: 120, Burst: 20},
		},
		Observability: ObservabilityConfig{
			ServiceName: "remitlend-gateway",
			Metrics:     true,
			Tracing:     true,
			LogRequests: true,
		},
		Auth: AuthConfig{
			Enabled:    true,
			ClockSkew:  2 * time.Minute,
			NonceTTL:   10 * time.Minute,
			enabledSet: true,
		},
		Stream: StreamConfig{Buffer: 64, WriteTimeout: 5 * time.Second},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		cfg.applyDefaults()
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	// Decoding into the defaults would let a file without an auth block
	// inherit enabledSet, so auth is decoded fresh.
	cfg.Auth = AuthConfig{}
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg == nil {
		return
	}
	if secret := strings.TrimSpace(os.Getenv(EnvHMACSecret)); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	if !cfg.Auth.enabledSet {
		cfg.Auth.Enabled = true
		cfg.Auth.enabledSet = true
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Auth.NonceTTL <= 0 {
		cfg.Auth.NonceTTL = 10 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Stream.Buffer <= 0 {
		cfg.Stream.Buffer = 64
	}
	if cfg.Stream.WriteTimeout <= 0 {
		cfg.Stream.WriteTimeout = 5 * time.Second
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "remitlend-gateway"
	}
}

// EnvHMACSecret overrides auth.hmacSecret so the secret can stay out of the
// config file.
const EnvHMACSecret = "REMITLEND_GATEWAY_SECRET"

// ErrMissingSecret is returned when auth is on without a signing secret.
var ErrMissingSecret = errors.New("auth.hmacSecret required when auth is enabled")

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return ErrMissingSecret
	}
	trimmed := make([]string, len(cfg.Auth.OptionalPaths))
	for i, path := range cfg.Auth.OptionalPaths {
		trimmedPath := strings.TrimSpace(path)
		if trimmedPath == "" {
			return fmt.Errorf("auth.optionalPaths[%d] cannot be empty", i)
		}
		if !strings.HasPrefix(trimmedPath, "/") {
			return fmt.Errorf("auth.optionalPaths[%d] must start with '/'", i)
		}
		trimmed[i] = trimmedPath
	}
	cfg.Auth.OptionalPaths = trimmed
	if cfg.Auth.Enabled && cfg.Auth.AllowAnonymous && len(cfg.Auth.OptionalPaths) == 0 {
		return fmt.Errorf("auth.optionalPaths must list at least one entry when auth.allowAnonymous is true")
	}
	keys := make(map[string]bool, len(cfg.Auth.Operators))
	for i, op := range cfg.Auth.Operators {
		key := strings.TrimSpace(op.APIKey)
		if key == "" || strings.TrimSpace(op.Secret) == "" {
			return fmt.Errorf("auth.operators[%d]: apiKey and secret required", i)
		}
		if keys[key] {
			return fmt.Errorf("auth.operators[%d]: duplicate apiKey %q", i, key)
		}
		keys[key] = true
		if _, err := crypto.ParseAddress(op.Address); err != nil {
			return fmt.Errorf("auth.operators[%d].address: %w", i, err)
		}
	}
	seen := make(map[string]bool, len(cfg.RateLimits))
	for i, limit := range cfg.RateLimits {
		id := strings.TrimSpace(limit.ID)
		if id == "" {
			return fmt.Errorf("rateLimits[%d].id cannot be empty", i)
		}
		if seen[id] {
			return fmt.Errorf("rateLimits[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if limit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rateLimits[%d].requestsPerMinute must be positive", i)
		}
	}
	if (strings.TrimSpace(cfg.Security.TLSCertFile) == "") != (strings.TrimSpace(cfg.Security.TLSKeyFile) == "") {
		return fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must be set together")
	}
	return nil
}

// RateLimit returns the limit with id, if configured.
func (cfg Config) RateLimit(id string) (RateLimitConfig, bool) {
	for _, limit := range cfg.RateLimits {
		if limit.ID == id {
			return limit, true
		}
	}
	return RateLimitConfig{}, false
}
