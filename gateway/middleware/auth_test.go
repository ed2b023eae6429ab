package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"remitlend/crypto"
	"remitlend/gateway/auth"
)

var (
	testUser     = crypto.BytesToAddress([]byte{0xaa, 0x01})
	testOperator = crypto.BytesToAddress([]byte{0xbb, 0x02})
)

const testSecret = "gateway-secret"

func captureCaller(t *testing.T, got *Caller, body *[]byte) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller, ok := CallerFromContext(r.Context()); ok {
			*got = caller
		}
		if body != nil {
			data, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			*body = data
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerTokenResolvesCaller(t *testing.T) {
	now := time.Now()
	token, err := IssueToken(testSecret, "remitlend", "gateway", testUser, time.Hour, now)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	authn := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "remitlend", Audience: "gateway"}, nil, nil)

	var caller Caller
	req := httptest.NewRequest(http.MethodPost, "/v1/pool/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	authn.Middleware(captureCaller(t, &caller, nil)).ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if caller.Address != testUser || caller.Kind != CallerUser {
		t.Fatalf("unexpected caller %+v", caller)
	}
}

func TestBearerTokenRejections(t *testing.T) {
	now := time.Now()
	wrongAudience, _ := IssueToken(testSecret, "remitlend", "other", testUser, time.Hour, now)
	expired, _ := IssueToken(testSecret, "remitlend", "gateway", testUser, time.Minute, now.Add(-time.Hour))
	forged, _ := IssueToken("not-the-secret", "remitlend", "gateway", testUser, time.Hour, now)

	authn := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "remitlend", Audience: "gateway"}, nil, nil)
	cases := map[string]string{
		"missing":  "",
		"audience": "Bearer " + wrongAudience,
		"expired":  "Bearer " + expired,
		"forged":   "Bearer " + forged,
		"scheme":   "Basic abc",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			var caller Caller
			req := httptest.NewRequest(http.MethodPost, "/v1/loans", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res := httptest.NewRecorder()
			authn.Middleware(captureCaller(t, &caller, nil)).ServeHTTP(res, req)
			if res.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", res.Code)
			}
		})
	}
}

func TestAnonymousOptionalPaths(t *testing.T) {
	authn := NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		AllowAnonymous: true,
		OptionalPaths:  []string{"/healthz", "/v1/pool"},
	}, nil, nil)
	var caller Caller
	res := httptest.NewRecorder()
	authn.Middleware(captureCaller(t, &caller, nil)).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/pool", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected optional path to pass anonymously, got %d", res.Code)
	}
	if !caller.Address.IsZero() {
		t.Fatalf("anonymous request should carry no caller, got %+v", caller)
	}
}

func TestOperatorSignatureResolvesCaller(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	operators := auth.NewAuthenticator([]auth.Credential{{APIKey: "oracle-1", Secret: "s3cret", Address: testOperator}},
		auth.Options{Now: func() time.Time { return now }})
	authn := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, operators, nil)

	payload := []byte(`{"user":"x","amount":"500"}`)
	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/oracle/remittances", bytes.NewReader(payload))
		auth.SignRequest(req, "oracle-1", "s3cret", "n-1", now, payload)
		return req
	}

	var caller Caller
	var seen []byte
	res := httptest.NewRecorder()
	authn.Middleware(captureCaller(t, &caller, &seen)).ServeHTTP(res, newReq())
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if caller.Address != testOperator || caller.Kind != CallerOperator {
		t.Fatalf("unexpected caller %+v", caller)
	}
	if !bytes.Equal(seen, payload) {
		t.Fatalf("handler saw body %q", seen)
	}

	res = httptest.NewRecorder()
	authn.Middleware(captureCaller(t, &caller, nil)).ServeHTTP(res, newReq())
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected, got %d", res.Code)
	}
}

func TestDevCallerHeaderOnlyWhenAuthDisabled(t *testing.T) {
	var caller Caller
	req := httptest.NewRequest(http.MethodPost, "/v1/pool/deposit", nil)
	req.Header.Set(HeaderDevCaller, testUser.String())
	res := httptest.NewRecorder()
	NewAuthenticator(AuthConfig{Enabled: false}, nil, nil).Middleware(captureCaller(t, &caller, nil)).ServeHTTP(res, req)
	if res.Code != http.StatusOK || caller.Address != testUser || caller.Kind != CallerDev {
		t.Fatalf("expected dev caller, got %d %+v", res.Code, caller)
	}

	caller = Caller{}
	res = httptest.NewRecorder()
	NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil, nil).Middleware(captureCaller(t, &caller, nil)).ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("dev header must not authenticate when auth is enabled, got %d", res.Code)
	}
}
