package auth

import (
	"container/list"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"remitlend/crypto"
)

const (
	// HeaderAPIKey identifies the operator credential.
	HeaderAPIKey = "X-Api-Key"
	// HeaderTimestamp is the unix timestamp (seconds) the request was signed at.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce makes every signed request unique.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex HMAC-SHA256 of the canonical request.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature bounds the body hashed into a signature.
	MaxBodyForSignature int = 1 << 20

	maxAllowedTimestampSkew = 2 * time.Minute
	maxNonceWindow          = 10 * time.Minute
	defaultNonceCapacity    = 4096
	maxNonceCapacity        = 65536
	pruneInterval           = time.Minute
)

var (
	ErrMissingCredentials = errors.New("missing signature headers")
	ErrUnknownKey         = errors.New("unknown API key")
	ErrBadSignature       = errors.New("invalid signature")
	ErrStaleTimestamp     = errors.New("timestamp outside allowed skew")
	ErrReplay             = errors.New("nonce already used")
)

// Credential binds an operator API key to its shared secret and the protocol
// address it acts as.
type Credential struct {
	APIKey  string
	Secret  string
	Address crypto.Address
}

// Principal is an authenticated operator.
type Principal struct {
	APIKey  string
	Address crypto.Address
}

// NonceRecord is one observed (key, timestamp, nonce) triple.
type NonceRecord struct {
	APIKey     string
	Timestamp  string
	Nonce      string
	ObservedAt time.Time
}

// NoncePersistence keeps observed nonces across restarts so a signed request
// cannot be replayed against a fresh process.
type NoncePersistence interface {
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error)
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// Options tunes an Authenticator. Zero values pick the maxima.
type Options struct {
	Skew          time.Duration
	NonceTTL      time.Duration
	NonceCapacity int
	Now           func() time.Time
	Persistence   NoncePersistence
}

// Authenticator verifies operator request signatures. Operator calls move
// funds (remittance reports, missed payment reports), so every signature is
// single use.
type Authenticator struct {
	creds       map[string]Credential
	skew        time.Duration
	nonceTTL    time.Duration
	capacity    int
	now         func() time.Time
	persistence NoncePersistence

	mu         sync.Mutex
	nonces     map[string]*nonceStore
	lastPruned time.Time
}

// NewAuthenticator builds an Authenticator over creds.
func NewAuthenticator(creds []Credential, opts Options) *Authenticator {
	byKey := make(map[string]Credential, len(creds))
	for _, c := range creds {
		c.APIKey = strings.TrimSpace(c.APIKey)
		c.Secret = strings.TrimSpace(c.Secret)
		if c.APIKey == "" || c.Secret == "" {
			continue
		}
		byKey[c.APIKey] = c
	}
	a := &Authenticator{
		creds:       byKey,
		skew:        clampDuration(opts.Skew, maxAllowedTimestampSkew),
		nonceTTL:    clampDuration(opts.NonceTTL, maxNonceWindow),
		capacity:    opts.NonceCapacity,
		now:         opts.Now,
		persistence: opts.Persistence,
		nonces:      make(map[string]*nonceStore),
	}
	if a.capacity <= 0 {
		a.capacity = defaultNonceCapacity
	}
	if a.capacity > maxNonceCapacity {
		a.capacity = maxNonceCapacity
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

func clampDuration(v, max time.Duration) time.Duration {
	if v <= 0 || v > max {
		return max
	}
	return v
}

// Enabled reports whether any credential is configured.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.creds) > 0 }

// Signed reports whether r carries operator signature headers.
func Signed(r *http.Request) bool {
	return strings.TrimSpace(r.Header.Get(HeaderAPIKey)) != ""
}

// Authenticate checks the signature of r over body and burns its nonce.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxBodyForSignature)
	}
	apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	tsHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	sigHeader := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if apiKey == "" || tsHeader == "" || nonce == "" || sigHeader == "" {
		return nil, ErrMissingCredentials
	}
	cred, ok := a.creds[apiKey]
	if !ok {
		return nil, ErrUnknownKey
	}
	secs, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.now().UTC()
	drift := now.Sub(time.Unix(secs, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > a.skew {
		return nil, ErrStaleTimestamp
	}
	provided, err := hex.DecodeString(sigHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	expected := ComputeSignature(cred.Secret, tsHeader, nonce, r.Method, CanonicalRequestPath(r), body)
	if !hmac.Equal(provided, expected) {
		return nil, ErrBadSignature
	}
	replay, err := a.burnNonce(r.Context(), NonceRecord{APIKey: apiKey, Timestamp: tsHeader, Nonce: nonce, ObservedAt: now})
	if err != nil {
		return nil, err
	}
	if replay {
		return nil, ErrReplay
	}
	return &Principal{APIKey: apiKey, Address: cred.Address}, nil
}

// HydrateNonces loads nonces persisted within the replay window.
func (a *Authenticator) HydrateNonces(ctx context.Context) error {
	if a == nil || a.persistence == nil {
		return nil
	}
	now := a.now().UTC()
	records, err := a.persistence.RecentNonces(ctx, now.Add(-a.nonceTTL))
	if err != nil {
		return fmt.Errorf("load persisted nonces: %w", err)
	}
	for _, rec := range records {
		a.store(rec.APIKey).seen(rec.Timestamp+"|"+rec.Nonce, rec.ObservedAt)
	}
	return nil
}

func (a *Authenticator) burnNonce(ctx context.Context, rec NonceRecord) (bool, error) {
	if a.store(rec.APIKey).seen(rec.Timestamp+"|"+rec.Nonce, rec.ObservedAt) {
		return true, nil
	}
	if a.persistence == nil {
		return false, nil
	}
	if err := a.prune(ctx, rec.ObservedAt); err != nil {
		return false, err
	}
	existed, err := a.persistence.EnsureNonce(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("persist nonce: %w", err)
	}
	return existed, nil
}

func (a *Authenticator) prune(ctx context.Context, now time.Time) error {
	a.mu.Lock()
	due := a.lastPruned.IsZero() || now.Sub(a.lastPruned) >= pruneInterval
	if due {
		a.lastPruned = now
	}
	a.mu.Unlock()
	if !due {
		return nil
	}
	if err := a.persistence.PruneNonces(ctx, now.Add(-a.nonceTTL)); err != nil {
		return fmt.Errorf("prune nonces: %w", err)
	}
	return nil
}

func (a *Authenticator) store(apiKey string) *nonceStore {
	a.mu.Lock()
	defer a.mu.Unlock()
	cache, ok := a.nonces[apiKey]
	if !ok {
		cache = newNonceStore(a.nonceTTL, a.capacity)
		a.nonces[apiKey] = cache
	}
	return cache
}

// CanonicalRequestPath is the path plus sorted query used for signing.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		parts := strings.Split(r.URL.RawQuery, "&")
		sort.Strings(parts)
		path += "?" + strings.Join(parts, "&")
	}
	return path
}

// ComputeSignature returns the HMAC-SHA256 over timestamp, nonce, method,
// path and body joined by newlines.
func ComputeSignature(secret, timestamp, nonce, method, path string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join([]string{timestamp, nonce, strings.ToUpper(method), path, string(body)}, "\n")))
	return mac.Sum(nil)
}

// SignRequest sets the signature headers on r. Operator clients and tests use
// it.
func SignRequest(r *http.Request, apiKey, secret, nonce string, at time.Time, body []byte) {
	ts := strconv.FormatInt(at.Unix(), 10)
	r.Header.Set(HeaderAPIKey, apiKey)
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, hex.EncodeToString(ComputeSignature(secret, ts, nonce, r.Method, CanonicalRequestPath(r), body)))
}

// nonceStore holds nonces seen within ttl in arrival order, evicting the
// oldest once capacity is reached.
type nonceStore struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type nonceEntry struct {
	key string
	at  time.Time
}

func newNonceStore(ttl time.Duration, capacity int) *nonceStore {
	return &nonceStore{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// seen records key and reports whether it was already present.
func (n *nonceStore) seen(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expire(now.Add(-n.ttl))
	if _, ok := n.entries[key]; ok {
		return true
	}
	for n.order.Len() >= n.capacity {
		front := n.order.Front()
		n.order.Remove(front)
		delete(n.entries, front.Value.(nonceEntry).key)
	}
	n.entries[key] = n.order.PushBack(nonceEntry{key: key, at: now})
	return false
}

func (n *nonceStore) expire(cutoff time.Time) {
	for front := n.order.Front(); front != nil; front = n.order.Front() {
		if !front.Value.(nonceEntry).at.Before(cutoff) {
			return
		}
		n.order.Remove(front)
		delete(n.entries, front.Value.(nonceEntry).key)
	}
}
