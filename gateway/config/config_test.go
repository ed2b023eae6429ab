package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadWithoutFileRequiresSecret(t *testing.T) {
	t.Setenv(EnvHMACSecret, "")
	if _, err := Load(""); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadSecretFromEnvironment(t *testing.T) {
	t.Setenv(EnvHMACSecret, "from-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.HMACSecret != "from-env" {
		t.Fatalf("expected secret from environment, got %q", cfg.Auth.HMACSecret)
	}

	path := writeConfig(t, "auth:\n  hmacSecret: from-file\n")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.HMACSecret != "from-env" {
		t.Fatalf("expected environment to override the file, got %q", cfg.Auth.HMACSecret)
	}
}

func TestLoadDefaultsAuthEnabled(t *testing.T) {
	path := writeConfig(t, "auth:\n  hmacSecret: s3cret\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatalf("expected auth.enabled to default to true")
	}
	if cfg.Auth.AllowAnonymous {
		t.Fatalf("expected auth.allowAnonymous to default to false")
	}
	if cfg.Auth.ClockSkew != 2*time.Minute {
		t.Fatalf("unexpected clock skew %s", cfg.Auth.ClockSkew)
	}
	if _, ok := cfg.RateLimit("write"); !ok {
		t.Fatalf("expected default write limit")
	}
	if cfg.Stream.Buffer != 64 {
		t.Fatalf("unexpected stream buffer %d", cfg.Stream.Buffer)
	}
}

func TestLoadAllowsExplicitAuthDisabled(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: false\nsecurity:\n  tlsCertFile: /etc/gw/cert.pem\n  tlsKeyFile: /etc/gw/key.pem\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.Enabled {
		t.Fatalf("expected auth to stay disabled")
	}
	if !cfg.Security.TLSEnabled() {
		t.Fatalf("expected TLS to be enabled")
	}
}

func TestLoadParsesLimitsAndStream(t *testing.T) {
	path := writeConfig(t, `listen: ":9090"
requestTimeout: 3s
rateLimits:
  - id: write
    requestsPerMinute: 30
    burst: 5
auth:
  enabled: true
  hmacSecret: s3cret
  issuer: remitlend
  audience: gateway
  allowAnonymous: true
  optionalPaths: [" /v1/pool ", "/healthz"]
  operators:
    - apiKey: oracle-1
      secret: op-secret
      address: "0x00000000000000000000000000000000000000aa"
cors:
  allowedOrigins: ["https://app.remitlend.local"]
stream:
  buffer: 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":9090" || cfg.RequestTimeout != 3*time.Second {
		t.Fatalf("unexpected server settings: %+v", cfg)
	}
	limit, ok := cfg.RateLimit("write")
	if !ok || limit.RequestsPerMinute != 30 || limit.Burst != 5 {
		t.Fatalf("unexpected write limit: %+v", limit)
	}
	if _, ok := cfg.RateLimit("read"); ok {
		t.Fatalf("file limits should replace the defaults")
	}
	if cfg.Auth.OptionalPaths[0] != "/v1/pool" {
		t.Fatalf("optional path not trimmed: %q", cfg.Auth.OptionalPaths[0])
	}
	if len(cfg.Auth.Operators) != 1 || cfg.Auth.NonceTTL != 10*time.Minute {
		t.Fatalf("unexpected operator keys: %+v", cfg.Auth)
	}
	op := cfg.Auth.Operators[0]
	if op.APIKey != "oracle-1" || op.Secret != "op-secret" || op.Address != "0x00000000000000000000000000000000000000aa" {
		t.Fatalf("unexpected operator: %+v", op)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://app.remitlend.local" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CORS)
	}
	if cfg.Stream.Buffer != 8 || cfg.Stream.WriteTimeout != 5*time.Second {
		t.Fatalf("unexpected stream settings: %+v", cfg.Stream)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"anonymous without paths": "auth:\n  hmacSecret: s\n  allowAnonymous: true\n",
		"relative optional path":  "auth:\n  hmacSecret: s\n  allowAnonymous: true\n  optionalPaths: [\"v1\"]\n",
		"duplicate limit":         "auth:\n  enabled: false\nrateLimits:\n  - id: a\n    requestsPerMinute: 1\n  - id: a\n    requestsPerMinute: 1\n",
		"zero rate":               "auth:\n  enabled: false\nrateLimits:\n  - id: a\n",
		"half tls":                "auth:\n  enabled: false\nsecurity:\n  tlsCertFile: cert.pem\n",
		"unknown field":           "auth:\n  enabled: false\nservices: []\n",
		"operator without secret": "auth:\n  enabled: false\n  operators:\n    - apiKey: oracle\n      address: rmt1x\n",
		"operator bad address":    "auth:\n  enabled: false\n  operators:\n    - apiKey: oracle\n      secret: s\n      address: nope\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}
