package lending

import (
	"errors"
	"time"

	"github.com/holiman/uint256"

	"remitlend/core/events"
	"remitlend/crypto"
	nativecommon "remitlend/native/common"
)

var (
	errNilState = errors.New("lending engine: state not configured")
	errNilAsset = errors.New("lending engine: asset not configured")

	ErrAlreadyInitialized    = nativecommon.Reject("already_initialized", "lending engine: already initialized")
	ErrNotInitialized        = nativecommon.Reject("not_initialized", "lending engine: pool not initialized")
	ErrUnauthorized          = nativecommon.Reject("unauthorized", "lending engine: caller not authorized")
	ErrInvalidAmount         = nativecommon.Reject("invalid_amount", "lending engine: amount must be positive")
	ErrInsufficientDeposit   = nativecommon.Reject("insufficient_deposit", "lending engine: amount exceeds deposit")
	ErrInsufficientLiquidity = nativecommon.Reject("insufficient_liquidity", "lending engine: insufficient pool liquidity")
	ErrInvalidUtilization    = nativecommon.Reject("invalid_utilization", "lending engine: utilization cap above 100%")
)

// DefaultMaxUtilizationBps is used when Initialize receives a zero cap.
const DefaultMaxUtilizationBps = 9_000

const moduleName = "pool"

type engineState interface {
	GetPoolConfig() (*PoolConfig, error)
	PutPoolConfig(cfg *PoolConfig) error
	GetPool() (*PoolState, error)
	PutPool(pool *PoolState) error
	GetLender(addr crypto.Address) (*LenderPosition, error)
	PutLender(pos *LenderPosition) error
	Lenders() ([]crypto.Address, error)
}

// Asset is the fungible asset the pool holds in custody.
type Asset interface {
	Transfer(caller, to crypto.Address, amount *uint256.Int) error
	TransferFrom(caller, from, to crypto.Address, amount *uint256.Int) error
}

// Engine is the liquidity pool: it owns pooled funds accounting, lender
// positions and the lazy interest accumulator.
type Engine struct {
	state   engineState
	address crypto.Address
	asset   Asset
	emitter events.Emitter
	pauses  nativecommon.PauseView
	guard   nativecommon.ReentrancyGuard
	nowFn   func() time.Time
}

// NewEngine constructs a pool whose custody account is address.
func NewEngine(address crypto.Address) *Engine {
	return &Engine{
		address: address,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
	}
}

// Address returns the pool custody address.
func (e *Engine) Address() crypto.Address { return e.address }

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAsset configures the asset moved on deposit, withdraw and borrow.
func (e *Engine) SetAsset(asset Asset) { e.asset = asset }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event sink. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for deposit timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// Initialize records the pool configuration. The caller becomes admin.
func (e *Engine) Initialize(caller, loanManager, asset crypto.Address, maxUtilizationBps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller.IsZero() || loanManager.IsZero() {
		return ErrUnauthorized
	}
	existing, err := e.state.GetPoolConfig()
	if err != nil {
		return err
	}
	if existing != nil && !existing.Admin.IsZero() {
		return ErrAlreadyInitialized
	}
	if maxUtilizationBps == 0 {
		maxUtilizationBps = DefaultMaxUtilizationBps
	}
	if maxUtilizationBps > nativecommon.BasisPoints {
		return ErrInvalidUtilization
	}
	cfg := &PoolConfig{
		Admin:             caller,
		LoanManager:       loanManager,
		Asset:             asset,
		MaxUtilizationBps: maxUtilizationBps,
	}
	if err := e.state.PutPoolConfig(cfg); err != nil {
		return err
	}
	return e.state.PutPool(&PoolState{})
}

// Params returns the pool configuration.
func (e *Engine) Params() (*PoolConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.state.GetPoolConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil || cfg.Admin.IsZero() {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func (e *Engine) enter() (func(), *PoolConfig, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if e.asset == nil {
		return nil, nil, errNilAsset
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := e.Params()
	if err != nil {
		release()
		return nil, nil, err
	}
	return release, cfg, nil
}

// Deposit pulls amount from the lender into the pool. The lender must have
// approved the pool address on the asset.
func (e *Engine) Deposit(lender crypto.Address, amount *uint256.Int) error {
	release, _, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	pos, err := e.ensureLender(lender)
	if err != nil {
		return err
	}
	pending, err := settle(pos, &pool.AccInterestPerShare)
	if err != nil {
		return err
	}
	deposit, err := nativecommon.CheckedAdd(&pos.DepositAmount, amount)
	if err != nil {
		return err
	}
	total, err := nativecommon.CheckedAdd(&pool.TotalLiquidity, amount)
	if err != nil {
		return err
	}

	pos.EarnedInterest = *pending
	pos.LastAccInterestPerShare = pool.AccInterestPerShare
	pos.DepositAmount = *deposit
	pos.DepositTimestamp = uint64(e.nowFn().Unix())
	if pool.TotalLiquidity.IsZero() {
		pos.SharePercentage = nativecommon.BasisPoints
	} else {
		pos.SharePercentage = sharePercentage(deposit, total)
	}
	pool.TotalLiquidity = *total

	if err := e.state.PutLender(pos); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	if err := e.asset.TransferFrom(e.address, lender, e.address, amount); err != nil {
		return err
	}
	e.emitter.Emit(newDepositedEvent(lender, amount, pos))
	return nil
}

// Withdraw returns amount of the lender's deposit together with all settled
// interest. It returns the interest paid.
func (e *Engine) Withdraw(lender crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	release, _, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensureLender(lender)
	if err != nil {
		return nil, err
	}
	if amount.Gt(&pos.DepositAmount) {
		return nil, ErrInsufficientDeposit
	}
	if amount.Gt(e.availableLiquidity(pool)) {
		return nil, ErrInsufficientLiquidity
	}
	pending, err := settle(pos, &pool.AccInterestPerShare)
	if err != nil {
		return nil, err
	}
	payout, err := nativecommon.CheckedAdd(amount, pending)
	if err != nil {
		return nil, err
	}
	deposit, err := nativecommon.CheckedSub(&pos.DepositAmount, amount, "lender deposit")
	if err != nil {
		return nil, err
	}
	total, err := nativecommon.CheckedSub(&pool.TotalLiquidity, amount, "total liquidity")
	if err != nil {
		return nil, err
	}

	pos.EarnedInterest.Clear()
	pos.LastAccInterestPerShare = pool.AccInterestPerShare
	pos.DepositAmount = *deposit
	pos.SharePercentage = sharePercentage(deposit, total)
	pool.TotalLiquidity = *total

	if err := e.state.PutLender(pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	if err := e.asset.Transfer(e.address, lender, payout); err != nil {
		return nil, err
	}
	e.emitter.Emit(newWithdrawnEvent(lender, amount, pending, pos))
	return pending, nil
}

// UpdateInterest settles the lender's accrued interest into EarnedInterest
// without moving funds. Calling it twice with no repay in between changes
// nothing the second time.
func (e *Engine) UpdateInterest(lender crypto.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if _, err := e.Params(); err != nil {
		return nil, err
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensureLender(lender)
	if err != nil {
		return nil, err
	}
	pending, err := settle(pos, &pool.AccInterestPerShare)
	if err != nil {
		return nil, err
	}
	if pending.Eq(&pos.EarnedInterest) && pos.LastAccInterestPerShare.Eq(&pool.AccInterestPerShare) {
		return pending, nil
	}
	pos.EarnedInterest = *pending
	pos.LastAccInterestPerShare = pool.AccInterestPerShare
	if err := e.state.PutLender(pos); err != nil {
		return nil, err
	}
	return pending, nil
}

// Borrow disburses amount to borrower. Only the loan manager may borrow, and
// running out of liquidity here is an invariant violation: the loan manager
// must not approve what the pool cannot fund.
func (e *Engine) Borrow(caller crypto.Address, loanID uint64, amount *uint256.Int, borrower crypto.Address) error {
	release, cfg, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != cfg.LoanManager {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	borrowed, err := nativecommon.CheckedAdd(&pool.TotalBorrowed, amount)
	if err != nil {
		return err
	}
	if borrowed.Gt(&pool.TotalLiquidity) {
		return nativecommon.Invariant("lending engine: borrow of %s exceeds liquidity %s (borrowed %s)",
			amount.Dec(), pool.TotalLiquidity.Dec(), pool.TotalBorrowed.Dec())
	}
	pool.TotalBorrowed = *borrowed
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	if err := e.asset.Transfer(e.address, borrower, amount); err != nil {
		return err
	}
	e.emitter.Emit(newBorrowedEvent(loanID, borrower, amount))
	return nil
}

// Repay books a repayment whose funds were already delivered to the pool
// address. Interest feeds the accumulator pro rata over current liquidity.
func (e *Engine) Repay(caller crypto.Address, loanID uint64, principal, interest *uint256.Int) error {
	release, cfg, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != cfg.LoanManager {
		return ErrUnauthorized
	}
	if principal == nil {
		principal = nativecommon.Zero()
	}
	if interest == nil {
		interest = nativecommon.Zero()
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	borrowed, err := nativecommon.CheckedSub(&pool.TotalBorrowed, principal, "total borrowed")
	if err != nil {
		return err
	}
	earned, err := nativecommon.CheckedAdd(&pool.TotalInterestEarned, interest)
	if err != nil {
		return err
	}
	pool.TotalBorrowed = *borrowed
	pool.TotalInterestEarned = *earned
	if !pool.TotalLiquidity.IsZero() && !interest.IsZero() {
		inc, err := accumulatorIncrement(interest, &pool.TotalLiquidity)
		if err != nil {
			return err
		}
		acc, err := nativecommon.CheckedAdd(&pool.AccInterestPerShare, inc)
		if err != nil {
			return err
		}
		pool.AccInterestPerShare = *acc
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(newRepaidEvent(loanID, principal, interest, &pool.AccInterestPerShare))
	return nil
}

// Pool returns a copy of the global pool state.
func (e *Engine) Pool() (*PoolState, error) {
	return e.ensurePool()
}

// AvailableLiquidity is total liquidity minus what is lent out.
func (e *Engine) AvailableLiquidity() (*uint256.Int, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return e.availableLiquidity(pool), nil
}

// Utilization returns borrowed/liquidity in basis points.
func (e *Engine) Utilization() (uint64, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return 0, err
	}
	return utilization(&pool.TotalBorrowed, &pool.TotalLiquidity), nil
}

// Lender returns the lender's raw position. Unknown lenders have a zero
// position.
func (e *Engine) Lender(addr crypto.Address) (*LenderPosition, error) {
	return e.ensureLender(addr)
}

// PendingInterest returns what the lender would receive from a settlement
// right now, without writing anything.
func (e *Engine) PendingInterest(addr crypto.Address) (*uint256.Int, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensureLender(addr)
	if err != nil {
		return nil, err
	}
	return settle(pos, &pool.AccInterestPerShare)
}

// Lenders lists every address that ever deposited.
func (e *Engine) Lenders() ([]crypto.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.Lenders()
}

func (e *Engine) ensurePool() (*PoolState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrNotInitialized
	}
	return pool.Clone(), nil
}

func (e *Engine) ensureLender(addr crypto.Address) (*LenderPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetLender(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return &LenderPosition{Address: addr}, nil
	}
	return pos.Clone(), nil
}

func (e *Engine) availableLiquidity(pool *PoolState) *uint256.Int {
	return nativecommon.SaturatingSub(&pool.TotalLiquidity, &pool.TotalBorrowed)
}
