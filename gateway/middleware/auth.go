package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"remitlend/crypto"
	"remitlend/gateway/auth"
)

// HeaderDevCaller names the caller when authentication is disabled. It is
// ignored otherwise.
const HeaderDevCaller = "X-Remitlend-Caller"

type AuthConfig struct {
	Enabled        bool
	HMACSecret     string
	Issuer         string
	Audience       string
	OptionalPaths  []string
	AllowAnonymous bool
	ClockSkew      time.Duration
}

// CallerKind tells how a caller proved its identity.
type CallerKind string

const (
	CallerUser     CallerKind = "user"
	CallerOperator CallerKind = "operator"
	CallerDev      CallerKind = "dev"
)

// Caller is the authenticated identity attached to a request.
type Caller struct {
	Address crypto.Address
	Kind    CallerKind
}

type contextKey string

const contextKeyCaller contextKey = "gateway.caller"

// WithCaller attaches caller to ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// CallerFromContext returns the caller attached by Authenticator.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(Caller)
	return caller, ok
}

// Claims are the bearer token claims. The subject is the caller's address.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a bearer token for subject valid for ttl.
func IssueToken(secret, issuer, audience string, subject crypto.Address, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("token secret required")
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

// Authenticator resolves the caller of every request. Operator services sign
// requests with an API key; users present a bearer token.
type Authenticator struct {
	cfg       AuthConfig
	logger    *slog.Logger
	secret    []byte
	operators *auth.Authenticator
}

func NewAuthenticator(cfg AuthConfig, operators *auth.Authenticator, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:       cfg,
		logger:    logger,
		secret:    []byte(strings.TrimSpace(cfg.HMACSecret)),
		operators: operators,
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.Signed(r) {
			a.serveOperator(w, r, next)
			return
		}
		if !a.cfg.Enabled {
			if raw := strings.TrimSpace(r.Header.Get(HeaderDevCaller)); raw != "" {
				addr, err := crypto.ParseAddress(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid caller header")
					return
				}
				r = r.WithContext(WithCaller(r.Context(), Caller{Address: addr, Kind: CallerDev}))
			}
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			if a.cfg.AllowAnonymous && a.isOptional(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		addr, err := a.parseToken(token)
		if err != nil {
			a.logger.Warn("bearer token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), Caller{Address: addr, Kind: CallerUser})))
	})
}

func (a *Authenticator) serveOperator(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if !a.operators.Enabled() {
		writeError(w, http.StatusUnauthorized, "operator signatures not accepted")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(auth.MaxBodyForSignature)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	_ = r.Body.Close()
	principal, err := a.operators.Authenticate(r, body)
	if err != nil {
		a.logger.Warn("operator signature rejected",
			slog.String("path", r.URL.Path),
			slog.String("api_key", r.Header.Get(auth.HeaderAPIKey)),
			slog.Any("error", err))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	ctx := WithCaller(r.Context(), Caller{Address: principal.Address, Kind: CallerOperator})
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (a *Authenticator) isOptional(path string) bool {
	for _, prefix := range a.cfg.OptionalPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *Authenticator) parseToken(raw string) (crypto.Address, error) {
	if len(a.secret) == 0 {
		return crypto.Address{}, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return crypto.Address{}, err
	}
	if !token.Valid {
		return crypto.Address{}, errors.New("token invalid")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return crypto.Address{}, errors.New("token subject missing")
	}
	return crypto.ParseAddress(claims.Subject)
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
