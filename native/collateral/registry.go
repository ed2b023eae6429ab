package collateral

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/holiman/uint256"

	"remitlend/core/events"
	"remitlend/crypto"
	nativecommon "remitlend/native/common"
)

var (
	errNilState = errors.New("collateral registry: state not configured")

	ErrAlreadyInitialized = nativecommon.Reject("already_initialized", "collateral registry: already initialized")
	ErrNotInitialized     = nativecommon.Reject("not_initialized", "collateral registry: not initialized")
	ErrUnauthorized       = nativecommon.Reject("unauthorized", "collateral registry: caller not authorized")
	ErrTokenNotFound      = nativecommon.Reject("collateral_not_found", "collateral registry: token not found")
	ErrAlreadyStaked      = nativecommon.Reject("collateral_staked", "collateral registry: token already staked")
	ErrInactive           = nativecommon.Reject("collateral_inactive", "collateral registry: token inactive")
	ErrBound              = nativecommon.Reject("collateral_bound", "collateral registry: token bound to another loan")
	ErrInvalidOwner       = nativecommon.Reject("invalid_owner", "collateral registry: invalid owner")
	ErrInvalidScore       = nativecommon.Reject("invalid_score", "collateral registry: reliability score above 100")
)

var (
	configKey   = []byte("collateral/config")
	counterKey  = []byte("collateral/counter")
	tokenPrefix = []byte("collateral/token/")
	ownerPrefix = []byte("collateral/owner/")
)

func tokenKey(id uint64) []byte {
	key := append([]byte(nil), tokenPrefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

func ownerKey(owner crypto.Address) []byte {
	return append(append([]byte(nil), ownerPrefix...), owner[:]...)
}

func encodeID(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
}

// Registry tracks remittance collateral tokens: who owns them, whether they
// are staked against a loan and the remittance metadata they carry.
type Registry struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() time.Time
}

// NewRegistry returns a registry using the wall clock and a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}, nowFn: time.Now}
}

// SetState wires the registry to the external persistence layer.
func (r *Registry) SetState(state engineState) { r.state = state }

// SetEmitter configures the event sink. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the clock used for timestamps.
func (r *Registry) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.nowFn = now
}

func (r *Registry) now() uint64 {
	return uint64(r.nowFn().Unix())
}

// Initialize stores the authorised component addresses. The caller becomes
// admin and re-initialisation is rejected once an admin is set.
func (r *Registry) Initialize(caller crypto.Address, cfg Config) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if caller.IsZero() {
		return ErrUnauthorized
	}
	var existing Config
	ok, err := r.state.KVGet(configKey, &existing)
	if err != nil {
		return err
	}
	if ok && !existing.Admin.IsZero() {
		return ErrAlreadyInitialized
	}
	cfg.Admin = caller
	return r.state.KVPut(configKey, &cfg)
}

// Config returns the stored configuration.
func (r *Registry) Config() (*Config, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	var cfg Config
	ok, err := r.state.KVGet(configKey, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok || cfg.Admin.IsZero() {
		return nil, ErrNotInitialized
	}
	return &cfg, nil
}

// Mint creates a new collateral token for req.Owner. Only the configured
// minter may mint.
func (r *Registry) Mint(caller crypto.Address, req MintRequest) (uint64, error) {
	cfg, err := r.Config()
	if err != nil {
		return 0, err
	}
	if caller != cfg.Minter {
		return 0, ErrUnauthorized
	}
	if req.Owner.IsZero() {
		return 0, ErrInvalidOwner
	}
	if req.ReliabilityScore > 100 {
		return 0, ErrInvalidScore
	}
	var counter uint64
	if _, err := r.state.KVGet(counterKey, &counter); err != nil {
		return 0, err
	}
	id := counter + 1
	token := &Token{
		ID:               id,
		Owner:            req.Owner,
		ReliabilityScore: req.ReliabilityScore,
		HistoryMonths:    req.HistoryMonths,
		Active:           true,
		MintedAt:         r.now(),
	}
	token.UpdatedAt = token.MintedAt
	if req.MonthlyAmount != nil {
		token.MonthlyAmount = *req.MonthlyAmount
	}
	if req.TotalSent != nil {
		token.TotalSent = *req.TotalSent
	}
	if err := r.state.KVPut(counterKey, id); err != nil {
		return 0, err
	}
	if err := r.putToken(token); err != nil {
		return 0, err
	}
	if err := r.state.KVAppend(ownerKey(req.Owner), encodeID(id)); err != nil {
		return 0, err
	}
	r.emitter.Emit(newMintedEvent(token))
	return id, nil
}

// Token returns the full token record.
func (r *Registry) Token(id uint64) (*Token, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	var token Token
	ok, err := r.state.KVGet(tokenKey(id), &token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

// GetRemittance returns the remittance view of a token.
func (r *Registry) GetRemittance(id uint64) (*Remittance, error) {
	token, err := r.Token(id)
	if err != nil {
		return nil, err
	}
	return token.remittance(), nil
}

// Stake locks a token against loanID. Only the loan manager may stake.
func (r *Registry) Stake(caller crypto.Address, id, loanID uint64) error {
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	if caller != cfg.LoanManager {
		return ErrUnauthorized
	}
	token, err := r.Token(id)
	if err != nil {
		return err
	}
	if !token.Active {
		return ErrInactive
	}
	if token.Staked {
		return ErrAlreadyStaked
	}
	if token.LoanID != 0 && token.LoanID != loanID {
		return ErrBound
	}
	token.Staked = true
	token.LoanID = loanID
	if err := r.putToken(token); err != nil {
		return err
	}
	r.emitter.Emit(newStakeEvent(EventTypeStaked, token.ID, loanID))
	return nil
}

// Unstake releases a token staked for loanID. A token staked for another
// loan is left alone. The oracle's unstake keeps the token bound to loanID so
// it cannot back a second loan or change hands; the binding ends when the loan
// manager unstakes it on payoff.
func (r *Registry) Unstake(caller crypto.Address, id, loanID uint64) error {
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	if caller != cfg.LoanManager && caller != cfg.Oracle {
		return ErrUnauthorized
	}
	token, err := r.Token(id)
	if err != nil {
		return err
	}
	if token.LoanID != loanID {
		return nil
	}
	wasStaked := token.Staked
	token.Staked = false
	if caller == cfg.LoanManager {
		token.LoanID = 0
	}
	if err := r.putToken(token); err != nil {
		return err
	}
	if wasStaked {
		r.emitter.Emit(newStakeEvent(EventTypeUnstaked, token.ID, loanID))
	}
	if token.LoanID == 0 {
		r.emitter.Emit(newStakeEvent(EventTypeReleased, token.ID, loanID))
	}
	return nil
}

// UpdateRemittance records a reported remittance. total_sent accumulates the
// reported amount. Only the oracle may report.
func (r *Registry) UpdateRemittance(caller crypto.Address, id uint64, monthly, sent *uint256.Int, score uint64) error {
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	if caller != cfg.Oracle {
		return ErrUnauthorized
	}
	if score > 100 {
		return ErrInvalidScore
	}
	token, err := r.Token(id)
	if err != nil {
		return err
	}
	if monthly != nil {
		token.MonthlyAmount = *monthly
	}
	if sent != nil {
		total, err := nativecommon.CheckedAdd(&token.TotalSent, sent)
		if err != nil {
			return err
		}
		token.TotalSent = *total
	}
	token.ReliabilityScore = score
	token.UpdatedAt = r.now()
	if err := r.putToken(token); err != nil {
		return err
	}
	r.emitter.Emit(newRemittanceUpdatedEvent(token))
	return nil
}

// Transfer hands a token that backs no loan to a new owner.
func (r *Registry) Transfer(caller, to crypto.Address, id uint64) error {
	if _, err := r.Config(); err != nil {
		return err
	}
	token, err := r.Token(id)
	if err != nil {
		return err
	}
	if caller != token.Owner {
		return ErrUnauthorized
	}
	if to.IsZero() {
		return ErrInvalidOwner
	}
	if token.Staked {
		return ErrAlreadyStaked
	}
	if token.LoanID != 0 {
		return ErrBound
	}
	if to == caller {
		return nil
	}
	if err := r.removeOwned(caller, id); err != nil {
		return err
	}
	token.Owner = to
	if err := r.putToken(token); err != nil {
		return err
	}
	if err := r.state.KVAppend(ownerKey(to), encodeID(id)); err != nil {
		return err
	}
	r.emitter.Emit(newTransferEvent(id, caller, to))
	return nil
}

// TokensOf lists the token ids held by owner in mint order.
func (r *Registry) TokensOf(owner crypto.Address) ([]uint64, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	raw, err := r.state.KVGetList(ownerKey(owner))
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, nativecommon.Invariant("collateral owner index: malformed entry")
		}
		ids = append(ids, binary.BigEndian.Uint64(entry))
	}
	return ids, nil
}

func (r *Registry) removeOwned(owner crypto.Address, id uint64) error {
	raw, err := r.state.KVGetList(ownerKey(owner))
	if err != nil {
		return err
	}
	kept := make([][]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) == 8 && binary.BigEndian.Uint64(entry) == id {
			continue
		}
		kept = append(kept, entry)
	}
	return r.state.KVPut(ownerKey(owner), kept)
}

func (r *Registry) putToken(token *Token) error {
	return r.state.KVPut(tokenKey(token.ID), token)
}
