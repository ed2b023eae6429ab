package loans

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/holiman/uint256"

	"remitlend/core/events"
	"remitlend/crypto"
	"remitlend/native/collateral"
	nativecommon "remitlend/native/common"
)

var (
	errNilState      = errors.New("loan manager: state not configured")
	errNotWired      = errors.New("loan manager: collaborators not configured")
	errMalformedList = errors.New("loan manager: malformed borrower index")

	ErrAlreadyInitialized = nativecommon.Reject("already_initialized", "loan manager: already initialized")
	ErrNotInitialized     = nativecommon.Reject("not_initialized", "loan manager: not initialized")
	ErrUnauthorized       = nativecommon.Reject("unauthorized", "loan manager: caller not authorized")
	ErrInvalidAmount      = nativecommon.Reject("invalid_amount", "loan manager: amount must be positive")
	ErrLoanNotFound       = nativecommon.Reject("loan_not_found", "loan manager: loan not found")
	ErrLoanNotPending     = nativecommon.Reject("loan_not_pending", "loan manager: loan not pending")
	ErrLoanNotActive      = nativecommon.Reject("loan_not_active", "loan manager: loan not active")
	ErrNotBorrower        = nativecommon.Reject("not_borrower", "loan manager: only the borrower can pay")
	ErrNotCollateralOwner = nativecommon.Reject("not_collateral_owner", "loan manager: collateral does not belong to borrower")
	ErrCollateralInactive = nativecommon.Reject("collateral_inactive", "loan manager: collateral inactive")
	ErrCollateralStaked   = nativecommon.Reject("collateral_staked", "loan manager: collateral already staked")
	ErrCollateralBound    = nativecommon.Reject("collateral_bound", "loan manager: collateral bound to another loan")
)

// DefaultThreshold is the number of missed payments that defaults a loan.
const DefaultThreshold = 2

const moduleName = "loans"

var (
	configKey      = []byte("loans/config")
	counterKey     = []byte("loans/counter")
	loanPrefix     = []byte("loans/loan/")
	borrowerPrefix = []byte("loans/borrower/")
)

func loanKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), loanPrefix...), id)
}

func borrowerKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), borrowerPrefix...), addr[:]...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
}

// Asset pulls repayments from payers.
type Asset interface {
	TransferFrom(caller, from, to crypto.Address, amount *uint256.Int) error
}

// Pool funds loans and books repayments.
type Pool interface {
	Address() crypto.Address
	Borrow(caller crypto.Address, loanID uint64, amount *uint256.Int, borrower crypto.Address) error
	Repay(caller crypto.Address, loanID uint64, principal, interest *uint256.Int) error
}

// Collateral is the registry holding the remittance tokens loans are drawn
// against.
type Collateral interface {
	GetRemittance(id uint64) (*collateral.Remittance, error)
	Stake(caller crypto.Address, id, loanID uint64) error
	Unstake(caller crypto.Address, id, loanID uint64) error
}

// Monitor enrols approved loans for remittance driven repayment.
type Monitor interface {
	StartMonitoringLoan(caller crypto.Address, loanID uint64) error
}

// Engine is the loan manager. It owns the loan book and the rate and
// amortisation policy, and calls out to the pool, the collateral registry and
// the asset using its own address as caller.
type Engine struct {
	state      engineState
	address    crypto.Address
	asset      Asset
	pool       Pool
	collateral Collateral
	monitor    Monitor
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	guard      nativecommon.ReentrancyGuard
	nowFn      func() time.Time
}

// NewEngine constructs a loan manager identified by address.
func NewEngine(address crypto.Address) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}, nowFn: time.Now}
}

// Address returns the identity the engine presents to its collaborators.
func (e *Engine) Address() crypto.Address { return e.address }

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollaborators wires the components the engine calls into. monitor may be
// nil, in which case approved loans are not enrolled automatically.
func (e *Engine) SetCollaborators(asset Asset, pool Pool, registry Collateral, monitor Monitor) {
	e.asset = asset
	e.pool = pool
	e.collateral = registry
	e.monitor = monitor
}

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

// SetNowFunc overrides the clock used for schedule timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 { return uint64(e.nowFn().Unix()) }

// Initialize makes caller the admin and records the oracle allowed to drive
// auto-repayment and missed payment hooks.
func (e *Engine) Initialize(caller, oracle crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller.IsZero() || oracle.IsZero() {
		return ErrUnauthorized
	}
	var existing Config
	ok, err := e.state.KVGet(configKey, &existing)
	if err != nil {
		return err
	}
	if ok && !existing.Admin.IsZero() {
		return ErrAlreadyInitialized
	}
	return e.state.KVPut(configKey, &Config{Admin: caller, Oracle: oracle})
}

// Config returns the stored configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var cfg Config
	ok, err := e.state.KVGet(configKey, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok || cfg.Admin.IsZero() {
		return nil, ErrNotInitialized
	}
	return &cfg, nil
}

func (e *Engine) enter() (func(), *Config, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if e.asset == nil || e.pool == nil || e.collateral == nil {
		return nil, nil, errNotWired
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		release()
		return nil, nil, err
	}
	return release, cfg, nil
}

// RequestLoan opens a Pending loan against collateral owned by caller.
func (e *Engine) RequestLoan(caller crypto.Address, collateralID uint64, amount *uint256.Int, durationMonths uint64) (uint64, error) {
	release, _, err := e.enter()
	if err != nil {
		return 0, err
	}
	defer release()
	if amount == nil || amount.IsZero() {
		return 0, ErrInvalidAmount
	}
	rem, err := e.collateral.GetRemittance(collateralID)
	if err != nil {
		return 0, err
	}
	if err := checkCollateral(rem, caller, 0); err != nil {
		return 0, err
	}
	rate := InterestRateForScore(rem.ReliabilityScore)
	monthly, err := MonthlyPayment(amount, rate, durationMonths)
	if err != nil {
		return 0, err
	}

	var counter uint64
	if _, err := e.state.KVGet(counterKey, &counter); err != nil {
		return 0, err
	}
	now := e.now()
	loan := &Loan{
		ID:             counter + 1,
		Borrower:       caller,
		CollateralID:   collateralID,
		Amount:         *amount,
		Outstanding:    *amount,
		InterestRate:   rate,
		DurationMonths: durationMonths,
		MonthlyPayment: *monthly,
		StartTimestamp: now,
		NextPaymentDue: addInterval(now),
		Status:         LoanStatusPending,
	}
	if err := e.state.KVPut(counterKey, loan.ID); err != nil {
		return 0, err
	}
	if err := e.putLoan(loan); err != nil {
		return 0, err
	}
	if err := e.state.KVAppend(borrowerKey(caller), binary.BigEndian.AppendUint64(nil, loan.ID)); err != nil {
		return 0, err
	}
	e.emitter.Emit(newRequestedEvent(loan))
	return loan.ID, nil
}

// checkCollateral verifies that rem can back loanID for borrower. A token
// still bound to another loan is refused even once its stake is released.
func checkCollateral(rem *collateral.Remittance, borrower crypto.Address, loanID uint64) error {
	if rem.Owner != borrower {
		return ErrNotCollateralOwner
	}
	if !rem.Active {
		return ErrCollateralInactive
	}
	if rem.Staked {
		return ErrCollateralStaked
	}
	if rem.LoanID != 0 && rem.LoanID != loanID {
		return ErrCollateralBound
	}
	return nil
}

// ApproveLoan activates a Pending loan: the collateral is staked, the pool
// disburses the principal to the borrower and the loan is enrolled for
// monitoring. Any failing step aborts the whole approval.
func (e *Engine) ApproveLoan(caller crypto.Address, loanID uint64) error {
	release, cfg, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != cfg.Admin {
		return ErrUnauthorized
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Status != LoanStatusPending {
		return ErrLoanNotPending
	}
	rem, err := e.collateral.GetRemittance(loan.CollateralID)
	if err != nil {
		return err
	}
	if err := checkCollateral(rem, loan.Borrower, loan.ID); err != nil {
		return err
	}

	loan.Status = LoanStatusActive
	if err := e.putLoan(loan); err != nil {
		return err
	}
	if err := e.collateral.Stake(e.address, loan.CollateralID, loan.ID); err != nil {
		return err
	}
	if err := e.pool.Borrow(e.address, loan.ID, &loan.Amount, loan.Borrower); err != nil {
		return err
	}
	if e.monitor != nil {
		if err := e.monitor.StartMonitoringLoan(e.address, loan.ID); err != nil {
			return err
		}
	}
	e.emitter.Emit(newApprovedEvent(loan))
	return nil
}

// MakePayment applies a payment from the borrower. The borrower must have
// approved the loan manager on the asset.
func (e *Engine) MakePayment(caller crypto.Address, loanID uint64, amount *uint256.Int) (*Payment, error) {
	release, _, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanStatusActive {
		return nil, ErrLoanNotActive
	}
	if caller != loan.Borrower {
		return nil, ErrNotBorrower
	}
	return e.processPayment(loan, caller, amount)
}

// ProcessAutoRepayment applies a reported remittance, capped at the scheduled
// monthly payment, on behalf of the borrower. It returns the part of the
// remittance that was not applied; that part is never pulled.
func (e *Engine) ProcessAutoRepayment(caller crypto.Address, loanID uint64, remittance *uint256.Int) (*Payment, *uint256.Int, error) {
	release, cfg, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	defer release()
	if caller != cfg.Oracle {
		return nil, nil, ErrUnauthorized
	}
	if remittance == nil || remittance.IsZero() {
		return nil, nil, ErrInvalidAmount
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, nil, err
	}
	if loan.Status != LoanStatusActive {
		return nil, nil, ErrLoanNotActive
	}
	applied := new(uint256.Int).Set(remittance)
	if applied.Gt(&loan.MonthlyPayment) {
		applied.Set(&loan.MonthlyPayment)
	}
	payment, err := e.processPayment(loan, loan.Borrower, applied)
	if err != nil {
		return nil, nil, err
	}
	leftover := new(uint256.Int).Sub(remittance, payment.Paid)
	return payment, leftover, nil
}

// MarkPaymentMissed records a missed payment. The second miss defaults the
// loan.
func (e *Engine) MarkPaymentMissed(caller crypto.Address, loanID uint64) (*Loan, error) {
	release, cfg, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if caller != cfg.Oracle {
		return nil, ErrUnauthorized
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanStatusActive {
		return nil, ErrLoanNotActive
	}
	loan.PaymentsMissed++
	if loan.PaymentsMissed >= DefaultThreshold {
		loan.Status = LoanStatusDefaulted
	}
	if err := e.putLoan(loan); err != nil {
		return nil, err
	}
	e.emitter.Emit(newPaymentMissedEvent(loan))
	if loan.Status == LoanStatusDefaulted {
		e.emitter.Emit(newStatusEvent(EventTypeDefaulted, loan))
	}
	return loan.Clone(), nil
}

// processPayment splits amount into interest and principal, finalises the
// loan record and only then moves funds: the charged amount goes from payer
// to the pool, the pool books the split, and a payoff releases the
// collateral.
func (e *Engine) processPayment(loan *Loan, payer crypto.Address, amount *uint256.Int) (*Payment, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if loan.Status != LoanStatusActive {
		return nil, ErrLoanNotActive
	}
	interest, principal, due, payoff, err := splitPayment(&loan.Outstanding, loan.InterestRate, amount)
	if err != nil {
		return nil, err
	}
	outstanding, err := nativecommon.CheckedSub(&loan.Outstanding, principal, "outstanding balance")
	if err != nil {
		return nil, err
	}
	repaid, err := nativecommon.CheckedAdd(&loan.TotalRepaid, due)
	if err != nil {
		return nil, err
	}
	loan.Outstanding = *outstanding
	loan.TotalRepaid = *repaid
	loan.PaymentsMade++
	loan.NextPaymentDue = addInterval(loan.NextPaymentDue)
	if payoff {
		loan.Outstanding.Clear()
		loan.Status = LoanStatusRepaid
	}
	if err := e.putLoan(loan); err != nil {
		return nil, err
	}

	if err := e.asset.TransferFrom(e.address, payer, e.pool.Address(), due); err != nil {
		return nil, err
	}
	if err := e.pool.Repay(e.address, loan.ID, principal, interest); err != nil {
		return nil, err
	}
	if payoff {
		if err := e.collateral.Unstake(e.address, loan.CollateralID, loan.ID); err != nil {
			return nil, err
		}
	}

	payment := &Payment{
		LoanID:      loan.ID,
		Payer:       payer,
		Requested:   new(uint256.Int).Set(amount),
		Paid:        due,
		Interest:    interest,
		Principal:   principal,
		Outstanding: new(uint256.Int).Set(&loan.Outstanding),
		Status:      loan.Status,
	}
	e.emitter.Emit(newPaymentEvent(payment))
	if payoff {
		e.emitter.Emit(newStatusEvent(EventTypeRepaid, loan))
	}
	return payment, nil
}

// Loan returns a loan by id.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadLoan(id)
}

// LoanCount returns the highest loan id assigned so far.
func (e *Engine) LoanCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var counter uint64
	if _, err := e.state.KVGet(counterKey, &counter); err != nil {
		return 0, err
	}
	return counter, nil
}

// LoansOf lists the loan ids requested by borrower in request order.
func (e *Engine) LoansOf(borrower crypto.Address) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	raw, err := e.state.KVGetList(borrowerKey(borrower))
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, errMalformedList
		}
		ids = append(ids, binary.BigEndian.Uint64(entry))
	}
	return ids, nil
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	var loan Loan
	ok, err := e.state.KVGet(loanKey(id), &loan)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return &loan, nil
}

func (e *Engine) putLoan(loan *Loan) error {
	return e.state.KVPut(loanKey(loan.ID), loan)
}

func addInterval(ts uint64) uint64 {
	next := ts + PaymentInterval
	if next < ts {
		return ^uint64(0)
	}
	return next
}
