package oracle

import (
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"remitlend/core/events"
	"remitlend/crypto"
	"remitlend/native/collateral"
	nativecommon "remitlend/native/common"
	"remitlend/native/loans"
)

var (
	errNilState = errors.New("oracle verifier: state not configured")
	errNotWired = errors.New("oracle verifier: collaborators not configured")

	ErrAlreadyInitialized  = nativecommon.Reject("already_initialized", "oracle verifier: already initialized")
	ErrNotInitialized      = nativecommon.Reject("not_initialized", "oracle verifier: not initialized")
	ErrUnauthorized        = nativecommon.Reject("unauthorized", "oracle verifier: caller not authorized")
	ErrInvalidRequest      = nativecommon.Reject("invalid_request", "oracle verifier: provider and account id required")
	ErrVerificationPending = nativecommon.Reject("verification_pending", "oracle verifier: verification already pending")
	ErrRequestNotFound     = nativecommon.Reject("verification_not_found", "oracle verifier: no verification request")
	ErrAlreadyProcessed    = nativecommon.Reject("already_processed", "oracle verifier: verification already processed")
	ErrInvalidHistory      = nativecommon.Reject("invalid_history", "oracle verifier: paid count exceeds total count")
	ErrInvalidAmount       = nativecommon.Reject("invalid_amount", "oracle verifier: amount must be positive")
	ErrAlreadyMonitored    = nativecommon.Reject("already_monitored", "oracle verifier: loan already monitored")
	ErrNotMonitored        = nativecommon.Reject("loan_not_monitored", "oracle verifier: loan not monitored")
	ErrLoanNotActive       = nativecommon.Reject("loan_not_active", "oracle verifier: loan not active")
	ErrCollateralMismatch  = nativecommon.Reject("collateral_mismatch", "oracle verifier: collateral does not back loan")
	ErrBorrowerMismatch    = nativecommon.Reject("borrower_mismatch", "oracle verifier: user is not the borrower")
	ErrInvalidOperator     = nativecommon.Reject("invalid_operator", "oracle verifier: invalid operator address")
)

// ReportedReliabilityScore is written to the collateral on every remittance
// report.
const ReportedReliabilityScore = 90

const moduleName = "oracle"

var (
	configKey       = []byte("oracle/config")
	operatorsKey    = []byte("oracle/operators")
	operatorPrefix  = []byte("oracle/operator/")
	requestPrefix   = []byte("oracle/request/")
	monitoredPrefix = []byte("oracle/monitored/")
)

func operatorKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), operatorPrefix...), addr[:]...)
}

func requestKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), requestPrefix...), addr[:]...)
}

func monitoredKey(loanID uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), monitoredPrefix...), loanID)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
}

// Collateral is the registry the gateway mints into and reports against.
type Collateral interface {
	Mint(caller crypto.Address, req collateral.MintRequest) (uint64, error)
	UpdateRemittance(caller crypto.Address, id uint64, monthly, sent *uint256.Int, score uint64) error
	Unstake(caller crypto.Address, id, loanID uint64) error
}

// LoanManager receives the gateway's repayment and missed payment hooks.
type LoanManager interface {
	Loan(id uint64) (*loans.Loan, error)
	ProcessAutoRepayment(caller crypto.Address, loanID uint64, remittance *uint256.Int) (*loans.Payment, *uint256.Int, error)
	MarkPaymentMissed(caller crypto.Address, loanID uint64) (*loans.Loan, error)
}

// Engine is the verification gateway: the only component that turns
// operator attestations into protocol facts.
type Engine struct {
	state      engineState
	address    crypto.Address
	collateral Collateral
	loans      LoanManager
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	guard      nativecommon.ReentrancyGuard
	nowFn      func() time.Time
}

// NewEngine constructs a gateway identified by address.
func NewEngine(address crypto.Address) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}, nowFn: time.Now}
}

// Address returns the identity the gateway presents to its collaborators.
func (e *Engine) Address() crypto.Address { return e.address }

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollaborators wires the registry and the loan manager.
func (e *Engine) SetCollaborators(registry Collateral, manager LoanManager) {
	e.collateral = registry
	e.loans = manager
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

// SetNowFunc overrides the clock used for request timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 { return uint64(e.nowFn().Unix()) }

// Initialize makes caller the admin, records the loan manager allowed to
// enrol loans and seeds the operator allow-list.
func (e *Engine) Initialize(caller, loanManager crypto.Address, operators []crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller.IsZero() || loanManager.IsZero() {
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
	if err := e.state.KVPut(configKey, &Config{Admin: caller, LoanManager: loanManager}); err != nil {
		return err
	}
	for _, op := range operators {
		if err := e.setOperator(op, true); err != nil {
			return err
		}
	}
	return nil
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
	if e.collateral == nil || e.loans == nil {
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

// enterOperator is enter plus the operator check. The admin always counts as
// an operator.
func (e *Engine) enterOperator(caller crypto.Address) (func(), *Config, error) {
	release, cfg, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	if caller == cfg.Admin {
		return release, cfg, nil
	}
	ok, err := e.IsOperator(caller)
	if err != nil {
		release()
		return nil, nil, err
	}
	if !ok {
		release()
		return nil, nil, ErrUnauthorized
	}
	return release, cfg, nil
}

// AddOperator adds op to the allow-list. Admin only.
func (e *Engine) AddOperator(caller, op crypto.Address) error {
	release, cfg, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != cfg.Admin {
		return ErrUnauthorized
	}
	if err := e.setOperator(op, true); err != nil {
		return err
	}
	e.emitter.Emit(newOperatorEvent(EventTypeOperatorAdded, op))
	return nil
}

// RemoveOperator drops op from the allow-list. Admin only.
func (e *Engine) RemoveOperator(caller, op crypto.Address) error {
	release, cfg, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != cfg.Admin {
		return ErrUnauthorized
	}
	if err := e.setOperator(op, false); err != nil {
		return err
	}
	e.emitter.Emit(newOperatorEvent(EventTypeOperatorRemoved, op))
	return nil
}

func (e *Engine) setOperator(op crypto.Address, enabled bool) error {
	if op.IsZero() {
		return ErrInvalidOperator
	}
	if err := e.state.KVPut(operatorKey(op), enabled); err != nil {
		return err
	}
	if enabled {
		return e.state.KVAppend(operatorsKey, op[:])
	}
	return nil
}

// IsOperator reports whether addr is on the allow-list.
func (e *Engine) IsOperator(addr crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	var enabled bool
	if _, err := e.state.KVGet(operatorKey(addr), &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// Operators lists the enabled operators in the order they were first added.
func (e *Engine) Operators() ([]crypto.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	raw, err := e.state.KVGetList(operatorsKey)
	if err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		addr := crypto.BytesToAddress(entry)
		ok, err := e.IsOperator(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, addr)
		}
	}
	return out, nil
}

// RequestVerification opens a Pending request for caller. A Pending request
// cannot be replaced; a Verified or Failed one can.
func (e *Engine) RequestVerification(caller crypto.Address, provider, accountID string) error {
	release, _, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	provider = strings.TrimSpace(provider)
	accountID = strings.TrimSpace(accountID)
	if caller.IsZero() || provider == "" || accountID == "" {
		return ErrInvalidRequest
	}
	existing, err := e.loadRequest(caller)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == VerificationPending {
		return ErrVerificationPending
	}
	req := &VerificationRequest{
		User:             caller,
		Provider:         provider,
		AccountID:        accountID,
		RequestTimestamp: e.now(),
		Status:           VerificationPending,
	}
	if err := e.state.KVPut(requestKey(caller), req); err != nil {
		return err
	}
	e.emitter.Emit(newVerificationRequestedEvent(req))
	return nil
}

// SubmitVerification completes a Pending request: it scores the attested
// history and mints a collateral token carrying it.
func (e *Engine) SubmitVerification(caller, user crypto.Address, att Attestation) (uint64, error) {
	release, _, err := e.enterOperator(caller)
	if err != nil {
		return 0, err
	}
	defer release()
	req, err := e.loadRequest(user)
	if err != nil {
		return 0, err
	}
	if req == nil {
		return 0, ErrRequestNotFound
	}
	if req.Status != VerificationPending {
		return 0, ErrAlreadyProcessed
	}
	if att.PaidCount > att.TotalCount {
		return 0, ErrInvalidHistory
	}
	score := ReliabilityScore(att.PaidCount, att.TotalCount)

	req.Status = VerificationVerified
	req.ReliabilityScore = score
	if err := e.state.KVPut(requestKey(user), req); err != nil {
		return 0, err
	}
	tokenID, err := e.collateral.Mint(e.address, collateral.MintRequest{
		Owner:            user,
		MonthlyAmount:    att.MonthlyAmount,
		ReliabilityScore: score,
		HistoryMonths:    att.HistoryMonths,
		TotalSent:        att.TotalSent,
	})
	if err != nil {
		return 0, err
	}
	req.TokenID = tokenID
	if err := e.state.KVPut(requestKey(user), req); err != nil {
		return 0, err
	}
	e.emitter.Emit(newVerificationCompletedEvent(req))
	return tokenID, nil
}

// RejectVerification fails a Pending request.
func (e *Engine) RejectVerification(caller, user crypto.Address, reason string) error {
	release, _, err := e.enterOperator(caller)
	if err != nil {
		return err
	}
	defer release()
	req, err := e.loadRequest(user)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}
	if req.Status != VerificationPending {
		return ErrAlreadyProcessed
	}
	req.Status = VerificationFailed
	req.Reason = strings.TrimSpace(reason)
	if err := e.state.KVPut(requestKey(user), req); err != nil {
		return err
	}
	e.emitter.Emit(newVerificationFailedEvent(req))
	return nil
}

// Verification returns the user's request, or ErrRequestNotFound.
func (e *Engine) Verification(user crypto.Address) (*VerificationRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, err := e.loadRequest(user)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// StartMonitoringLoan enrols a loan for remittance driven repayment. Only the
// loan manager may enrol.
func (e *Engine) StartMonitoringLoan(caller crypto.Address, loanID uint64) error {
	release, cfg, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != cfg.LoanManager {
		return ErrUnauthorized
	}
	existing, err := e.loadMonitoring(loanID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyMonitored
	}
	mon := &Monitoring{LoanID: loanID, StartedAt: e.now()}
	if err := e.state.KVPut(monitoredKey(loanID), mon); err != nil {
		return err
	}
	e.emitter.Emit(newMonitoringStartedEvent(loanID))
	return nil
}

// IsMonitored reports whether the loan accepts remittance reports.
func (e *Engine) IsMonitored(loanID uint64) (bool, error) {
	mon, err := e.Monitoring(loanID)
	if err != nil {
		return false, err
	}
	return mon != nil, nil
}

// Monitoring returns the monitoring record of a loan or nil.
func (e *Engine) Monitoring(loanID uint64) (*Monitoring, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadMonitoring(loanID)
}

// ReportRemittance records a remittance against the user's collateral and
// applies it to the loan. The part of the remittance above the scheduled
// payment is returned and tallied as unapplied.
func (e *Engine) ReportRemittance(caller, user crypto.Address, tokenID uint64, amount *uint256.Int, loanID uint64) (*RemittanceReport, error) {
	release, _, err := e.enterOperator(caller)
	if err != nil {
		return nil, err
	}
	defer release()
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	mon, err := e.loadMonitoring(loanID)
	if err != nil {
		return nil, err
	}
	if mon == nil {
		return nil, ErrNotMonitored
	}
	loan, err := e.activeLoan(loanID, tokenID)
	if err != nil {
		return nil, err
	}
	if loan.Borrower != user {
		return nil, ErrBorrowerMismatch
	}

	if err := e.collateral.UpdateRemittance(e.address, tokenID, amount, amount, ReportedReliabilityScore); err != nil {
		return nil, err
	}
	payment, leftover, err := e.loans.ProcessAutoRepayment(e.address, loanID, amount)
	if err != nil {
		return nil, err
	}
	unapplied, err := nativecommon.CheckedAdd(&mon.UnappliedRemittance, leftover)
	if err != nil {
		return nil, err
	}
	mon.UnappliedRemittance = *unapplied
	mon.Reports++
	if err := e.state.KVPut(monitoredKey(loanID), mon); err != nil {
		return nil, err
	}
	report := &RemittanceReport{
		LoanID:   loanID,
		TokenID:  tokenID,
		Amount:   new(uint256.Int).Set(amount),
		Applied:  payment.Paid,
		Leftover: leftover,
	}
	e.emitter.Emit(newRemittanceReportedEvent(user, report))
	return report, nil
}

// ReportMissedPayment releases the loan's collateral and records the miss
// with the loan manager.
func (e *Engine) ReportMissedPayment(caller crypto.Address, loanID, tokenID uint64) (*loans.Loan, error) {
	release, _, err := e.enterOperator(caller)
	if err != nil {
		return nil, err
	}
	defer release()
	if _, err := e.activeLoan(loanID, tokenID); err != nil {
		return nil, err
	}
	if err := e.collateral.Unstake(e.address, tokenID, loanID); err != nil {
		return nil, err
	}
	loan, err := e.loans.MarkPaymentMissed(e.address, loanID)
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(newMissedPaymentReportedEvent(loanID, tokenID, loan.PaymentsMissed))
	return loan, nil
}

func (e *Engine) activeLoan(loanID, tokenID uint64) (*loans.Loan, error) {
	loan, err := e.loans.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != loans.LoanStatusActive {
		return nil, ErrLoanNotActive
	}
	if loan.CollateralID != tokenID {
		return nil, ErrCollateralMismatch
	}
	return loan, nil
}

func (e *Engine) loadRequest(user crypto.Address) (*VerificationRequest, error) {
	var req VerificationRequest
	ok, err := e.state.KVGet(requestKey(user), &req)
	if err != nil || !ok {
		return nil, err
	}
	return &req, nil
}

func (e *Engine) loadMonitoring(loanID uint64) (*Monitoring, error) {
	var mon Monitoring
	ok, err := e.state.KVGet(monitoredKey(loanID), &mon)
	if err != nil || !ok {
		return nil, err
	}
	return &mon, nil
}

// ReliabilityScore is paid*100/total, or 100 for a user with no history.
func ReliabilityScore(paid, total uint64) uint64 {
	if total == 0 {
		return 100
	}
	return paid * 100 / total
}
