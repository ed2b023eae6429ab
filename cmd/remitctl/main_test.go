package main

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"remitlend/crypto"
	"remitlend/gateway/auth"
	gwconfig "remitlend/gateway/config"
)

func TestKeygenThenAddress(t *testing.T) {
	t.Setenv(defaultPassEnv, "correct horse")
	path := filepath.Join(t.TempDir(), "admin.keystore")

	var out bytes.Buffer
	if err := runKeygen([]string{"--out", path}, &out); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if err := runKeygen([]string{"--out", path}, &out); err == nil {
		t.Fatalf("expected keygen to refuse overwriting")
	}

	var addrOut bytes.Buffer
	if err := runAddress([]string{"--keystore", path}, &addrOut); err != nil {
		t.Fatalf("address: %v", err)
	}
	addr := strings.TrimSpace(addrOut.String())
	if !strings.Contains(out.String(), addr) {
		t.Fatalf("keygen output %q does not mention %s", out.String(), addr)
	}
	key, err := crypto.LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if key.PubKey().Address().String() != addr {
		t.Fatalf("keystore address mismatch")
	}
}

func TestTokenUsesGatewaySecret(t *testing.T) {
	t.Setenv(gwconfig.EnvHMACSecret, "gw-secret")
	subject := crypto.BytesToAddress([]byte("borrower"))

	var out bytes.Buffer
	if err := runToken([]string{"--subject", subject.String(), "--ttl", "5m"}, &out); err != nil {
		t.Fatalf("token: %v", err)
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("gw-secret"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != subject.String() {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
}

func TestSignProducesVerifiableHeaders(t *testing.T) {
	t.Setenv("REMITLEND_OPERATOR_SECRET", "op-secret")
	body := `{"loanId":1,"tokenId":1}`

	var out bytes.Buffer
	if err := runSign([]string{"--api-key", "oracle-1", "--path", "/v1/oracle/missed-payments", "--body", body}, &out); err != nil {
		t.Fatalf("sign: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, "http://gateway/v1/oracle/missed-payments", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("malformed header line %q", line)
		}
		req.Header.Set(name, value)
	}
	operator := crypto.BytesToAddress([]byte("operator"))
	authn := auth.NewAuthenticator([]auth.Credential{{APIKey: "oracle-1", Secret: "op-secret", Address: operator}}, auth.Options{Now: time.Now})
	principal, err := authn.Authenticate(req, []byte(body))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.Address != operator {
		t.Fatalf("unexpected principal %s", principal.Address)
	}
}
