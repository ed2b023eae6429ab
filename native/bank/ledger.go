package bank

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"

	"remitlend/core/events"
	"remitlend/crypto"
	nativecommon "remitlend/native/common"
)

var (
	errNilState = errors.New("bank: state not configured")

	ErrAlreadyInitialized    = nativecommon.Reject("already_initialized", "bank: already initialized")
	ErrNotInitialized        = nativecommon.Reject("not_initialized", "bank: not initialized")
	ErrUnauthorized          = nativecommon.Reject("unauthorized", "bank: caller not authorized")
	ErrInvalidAmount         = nativecommon.Reject("invalid_amount", "bank: invalid amount")
	ErrInvalidRecipient      = nativecommon.Reject("invalid_recipient", "bank: invalid recipient")
	ErrInsufficientBalance   = nativecommon.Reject("insufficient_balance", "bank: insufficient balance")
	ErrInsufficientAllowance = nativecommon.Reject("insufficient_allowance", "bank: insufficient allowance")
	ErrInvalidSymbol         = nativecommon.Reject("invalid_symbol", "bank: invalid symbol")
)

var (
	metaKey         = []byte("bank/meta")
	balancePrefix   = []byte("bank/balance/")
	allowancePrefix = []byte("bank/allowance/")
)

func balanceKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), balancePrefix...), addr[:]...)
}

func allowanceKey(owner, spender crypto.Address) []byte {
	key := append(append([]byte(nil), allowancePrefix...), owner[:]...)
	key = append(key, '/')
	return append(key, spender[:]...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Metadata describes the liquidity asset.
type Metadata struct {
	Admin       crypto.Address
	Symbol      string
	Decimals    uint8
	TotalSupply uint256.Int
}

// Ledger is the fungible asset used for liquidity and repayments. Every
// failing call returns before any write, so a failure never moves funds.
type Ledger struct {
	state   engineState
	emitter events.Emitter
}

// NewLedger creates a ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state engineState) { l.state = state }

// SetEmitter configures the event sink. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Initialize records the asset metadata and makes caller the minting admin.
func (l *Ledger) Initialize(caller crypto.Address, symbol string, decimals uint8) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if caller.IsZero() {
		return ErrUnauthorized
	}
	meta, err := l.metadata()
	if err != nil {
		return err
	}
	if meta != nil && !meta.Admin.IsZero() {
		return ErrAlreadyInitialized
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return ErrInvalidSymbol
	}
	return l.state.KVPut(metaKey, &Metadata{Admin: caller, Symbol: normalized, Decimals: decimals})
}

// Metadata returns the asset metadata.
func (l *Ledger) Metadata() (*Metadata, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	meta, err := l.metadata()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrNotInitialized
	}
	return meta, nil
}

func (l *Ledger) metadata() (*Metadata, error) {
	var meta Metadata
	ok, err := l.state.KVGet(metaKey, &meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

// Mint creates new units for to. Only the asset admin may mint.
func (l *Ledger) Mint(caller, to crypto.Address, amount *uint256.Int) error {
	meta, err := l.Metadata()
	if err != nil {
		return err
	}
	if caller != meta.Admin {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if to.IsZero() {
		return ErrInvalidRecipient
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	newBalance, err := nativecommon.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	supply, err := nativecommon.CheckedAdd(&meta.TotalSupply, amount)
	if err != nil {
		return err
	}
	meta.TotalSupply = *supply
	if err := l.state.KVPut(metaKey, meta); err != nil {
		return err
	}
	if err := l.putBalance(to, newBalance); err != nil {
		return err
	}
	l.emitter.Emit(newMintEvent(to, amount))
	return nil
}

// Transfer moves amount from caller to to.
func (l *Ledger) Transfer(caller, to crypto.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return l.move(caller, to, amount)
}

// Approve sets the amount spender may pull from caller through TransferFrom.
func (l *Ledger) Approve(caller, spender crypto.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if spender.IsZero() {
		return ErrInvalidRecipient
	}
	if amount == nil {
		amount = nativecommon.Zero()
	}
	if err := l.state.KVPut(allowanceKey(caller, spender), amount); err != nil {
		return err
	}
	l.emitter.Emit(newApprovalEvent(caller, spender, amount))
	return nil
}

// TransferFrom pulls amount from from to to using the allowance from granted
// to caller.
func (l *Ledger) TransferFrom(caller, from, to crypto.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	allowance, err := l.Allowance(from, caller)
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}
	balance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	remaining := new(uint256.Int).Sub(allowance, amount)
	if err := l.state.KVPut(allowanceKey(from, caller), remaining); err != nil {
		return err
	}
	return l.move(from, to, amount)
}

func (l *Ledger) move(from, to crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if to.IsZero() {
		return ErrInvalidRecipient
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return ErrInsufficientBalance
	}
	if from == to {
		l.emitter.Emit(newTransferEvent(from, to, amount))
		return nil
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	credited, err := nativecommon.CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	debited := new(uint256.Int).Sub(fromBalance, amount)
	if err := l.putBalance(from, debited); err != nil {
		return err
	}
	if err := l.putBalance(to, credited); err != nil {
		return err
	}
	l.emitter.Emit(newTransferEvent(from, to, amount))
	return nil
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr crypto.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	var balance uint256.Int
	if _, err := l.state.KVGet(balanceKey(addr), &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// Allowance returns how much spender may still pull from owner.
func (l *Ledger) Allowance(owner, spender crypto.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	var allowance uint256.Int
	if _, err := l.state.KVGet(allowanceKey(owner, spender), &allowance); err != nil {
		return nil, err
	}
	return &allowance, nil
}

func (l *Ledger) putBalance(addr crypto.Address, amount *uint256.Int) error {
	return l.state.KVPut(balanceKey(addr), amount)
}

// TotalSupply returns the number of units minted so far.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	meta, err := l.Metadata()
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(&meta.TotalSupply), nil
}
