package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"remitlend/core"
	"remitlend/crypto"
	"remitlend/gateway/auth"
	gwconfig "remitlend/gateway/config"
	"remitlend/gateway/middleware"
	"remitlend/gateway/routes"
	"remitlend/indexer"
)

// nonceDir holds the operator nonce ledger under the data directory.
const nonceDir = "gateway-nonces"

type gatewayDeps struct {
	cfgPath       string
	env           string
	dataDir       string
	allowInsecure bool
	protocol      *core.Protocol
	index         *indexer.Indexer
	logger        *slog.Logger
}

type gateway struct {
	server   *http.Server
	listener net.Listener
	tls      *tls.Config
	nonces   *auth.NonceLedger
	logger   *slog.Logger
}

func newGateway(ctx context.Context, deps gatewayDeps) (*gateway, error) {
	logger := deps.logger
	cfg, err := gwconfig.Load(deps.cfgPath)
	if errors.Is(err, gwconfig.ErrMissingSecret) && strings.TrimSpace(deps.cfgPath) == "" && deps.allowInsecure && isDevEnv(deps.env) {
		logger.Warn("gateway authentication disabled; callers are taken from the " + middleware.HeaderDevCaller + " header")
		cfg = gwconfig.Default()
		cfg.Auth.Enabled = false
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}

	nonces, err := auth.OpenNonceLedger(filepath.Join(deps.dataDir, nonceDir))
	if err != nil {
		return nil, err
	}
	creds := make([]auth.Credential, 0, len(cfg.Auth.Operators))
	for _, op := range cfg.Auth.Operators {
		addr, err := crypto.ParseAddress(op.Address)
		if err != nil {
			nonces.Close()
			return nil, fmt.Errorf("operator %s: %w", op.APIKey, err)
		}
		creds = append(creds, auth.Credential{APIKey: op.APIKey, Secret: op.Secret, Address: addr})
	}
	operators := auth.NewAuthenticator(creds, auth.Options{
		Skew:        cfg.Auth.ClockSkew,
		NonceTTL:    cfg.Auth.NonceTTL,
		Persistence: nonces,
	})
	if err := operators.HydrateNonces(ctx); err != nil {
		nonces.Close()
		return nil, err
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, entry := range cfg.RateLimits {
		limits[entry.ID] = middleware.RateLimit{RequestsPerMinute: entry.RequestsPerMinute, Burst: entry.Burst}
	}

	routeCfg := routes.Config{
		Protocol: deps.protocol,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        cfg.Auth.Enabled,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			OptionalPaths:  cfg.Auth.OptionalPaths,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
			ClockSkew:      cfg.Auth.ClockSkew,
		}, operators, logger),
		RateLimiter: middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: cfg.Observability.ServiceName,
			LogRequests: cfg.Observability.LogRequests,
			Metrics:     cfg.Observability.Metrics,
			Tracing:     cfg.Observability.Tracing,
		}, logger),
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", auth.HeaderAPIKey, auth.HeaderTimestamp, auth.HeaderNonce, auth.HeaderSignature},
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		Stream: routes.StreamConfig{
			Buffer:         cfg.Stream.Buffer,
			WriteTimeout:   cfg.Stream.WriteTimeout,
			OriginPatterns: cfg.CORS.AllowedOrigins,
		},
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}
	// A nil *Indexer must not become a non-nil interface.
	if deps.index != nil {
		routeCfg.Index = deps.index
	}
	handler, err := routes.New(routeCfg)
	if err != nil {
		nonces.Close()
		return nil, fmt.Errorf("configure routes: %w", err)
	}

	tlsConfig, err := buildTLSConfig(cfg.Security)
	if err != nil {
		nonces.Close()
		return nil, err
	}
	if tlsConfig == nil {
		if !deps.allowInsecure {
			nonces.Close()
			return nil, errors.New("gateway TLS certificate and key are required; set security.tlsCertFile/tlsKeyFile or start with --allow-insecure in dev")
		}
		if !isDevEnv(deps.env) && !isLoopbackAddress(cfg.ListenAddress) {
			nonces.Close()
			return nil, errors.New("plaintext gateway is restricted to loopback listeners or the local environment")
		}
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		nonces.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &gateway{
		server: &http.Server{
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			TLSConfig:    tlsConfig,
		},
		listener: listener,
		tls:      tlsConfig,
		nonces:   nonces,
		logger:   logger,
	}, nil
}

func (g *gateway) serve() error {
	scheme := "http"
	listener := g.listener
	if g.tls != nil {
		scheme = "https"
		listener = tls.NewListener(listener, g.tls)
	}
	g.logger.Info("gateway listening", slog.String("url", scheme+"://"+g.listener.Addr().String()))
	if err := g.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve gateway: %w", err)
	}
	return nil
}

func (g *gateway) shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func (g *gateway) close() {
	if err := g.nonces.Close(); err != nil {
		g.logger.Warn("close nonce ledger", slog.Any("error", err))
	}
}

func buildTLSConfig(sec gwconfig.SecurityConfig) (*tls.Config, error) {
	if !sec.TLSEnabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(sec.TLSCertFile, sec.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "local", "dev":
		return true
	}
	return false
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
