package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"remitlend/core/events"
	"remitlend/core/state"
	"remitlend/core/types"
	"remitlend/crypto"
	"remitlend/native/bank"
	"remitlend/native/collateral"
	nativecommon "remitlend/native/common"
	"remitlend/native/lending"
	"remitlend/native/loans"
	"remitlend/native/oracle"
	"remitlend/observability"
	telemetry "remitlend/observability/otel"
	"remitlend/storage"
)

var (
	// ErrNotInitialized is returned by admin operations before genesis.
	ErrNotInitialized = nativecommon.Reject("not_initialized", "protocol: not initialized")
	// ErrAlreadyInitialized rejects a second genesis.
	ErrAlreadyInitialized = nativecommon.Reject("already_initialized", "protocol: already initialized")
)

// Option customises a Protocol.
type Option func(*Protocol)

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps and due dates.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		if now != nil {
			p.now = now
		}
	}
}

// WithBus publishes receipts to an existing bus instead of a private one.
func WithBus(bus *events.Bus) Option {
	return func(p *Protocol) {
		if bus != nil {
			p.bus = bus
		}
	}
}

// Protocol composes the asset ledger, the collateral registry, the liquidity
// pool, the loan manager and the verification gateway over one state manager.
// Calls are serialised: each runs to completion, then commits atomically or
// leaves no trace.
type Protocol struct {
	mu sync.Mutex

	state      *state.Manager
	asset      *bank.Ledger
	collateral *collateral.Registry
	pool       *lending.Engine
	loans      *loans.Engine
	oracle     *oracle.Engine

	bus     *events.Bus
	logger  *slog.Logger
	metrics *observability.ProtocolMetrics
	tracer  trace.Tracer
	now     func() time.Time

	sequence uint64
}

// New wires the components over db and restores the committed sequence.
func New(db storage.Database, opts ...Option) (*Protocol, error) {
	if db == nil {
		return nil, errors.New("protocol: database required")
	}
	p := &Protocol{
		state:      state.NewManager(db),
		asset:      bank.NewLedger(),
		collateral: collateral.NewRegistry(),
		pool:       lending.NewEngine(PoolAddress),
		loans:      loans.NewEngine(LoanManagerAddress),
		oracle:     oracle.NewEngine(OracleAddress),
		bus:        events.NewBus(),
		logger:     slog.Default(),
		metrics:    observability.Protocol(),
		tracer:     telemetry.Tracer("remitlend/core"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	pauses := pauseStore{p: p}

	p.asset.SetState(p.state)
	p.asset.SetEmitter(p.state)

	p.collateral.SetState(p.state)
	p.collateral.SetEmitter(p.state)
	p.collateral.SetNowFunc(p.now)

	p.pool.SetState(p.state.PoolLedger())
	p.pool.SetAsset(p.asset)
	p.pool.SetPauses(pauses)
	p.pool.SetEmitter(p.state)
	p.pool.SetNowFunc(p.now)

	p.loans.SetState(p.state)
	p.loans.SetCollaborators(p.asset, p.pool, p.collateral, p.oracle)
	p.loans.SetPauses(pauses)
	p.loans.SetEmitter(p.state)
	p.loans.SetNowFunc(p.now)

	p.oracle.SetState(p.state)
	p.oracle.SetCollaborators(p.collateral, p.loans)
	p.oracle.SetPauses(pauses)
	p.oracle.SetEmitter(p.state)
	p.oracle.SetNowFunc(p.now)

	if _, err := p.state.KVGet(sequenceKey, &p.sequence); err != nil {
		return nil, fmt.Errorf("protocol: load sequence: %w", err)
	}
	return p, nil
}

// Bus returns the bus receipts are published on.
func (p *Protocol) Bus() *events.Bus { return p.bus }

// Sequence returns the number of committed calls.
func (p *Protocol) Sequence() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sequence
}

// Initialize runs genesis. caller becomes admin of every component.
func (p *Protocol) Initialize(ctx context.Context, caller crypto.Address, g Genesis) (*Receipt, error) {
	if err := g.Validate(); err != nil {
		return nil, nativecommon.Reject("invalid_genesis", err.Error())
	}
	return p.execute(ctx, "initialize", caller, func() error {
		if _, err := p.admin(); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, ErrNotInitialized) {
			return err
		}
		if err := p.state.KVPut(adminKey, caller); err != nil {
			return err
		}
		if err := p.asset.Initialize(caller, g.AssetSymbol, g.AssetDecimals); err != nil {
			return err
		}
		for _, alloc := range g.Allocations {
			if err := p.asset.Mint(caller, alloc.Address, alloc.Amount); err != nil {
				return err
			}
		}
		if err := p.collateral.Initialize(caller, collateral.Config{
			Admin:       caller,
			Minter:      OracleAddress,
			LoanManager: LoanManagerAddress,
			Oracle:      OracleAddress,
		}); err != nil {
			return err
		}
		if err := p.pool.Initialize(caller, LoanManagerAddress, AssetAddress, g.MaxUtilizationBps); err != nil {
			return err
		}
		if err := p.loans.Initialize(caller, OracleAddress); err != nil {
			return err
		}
		if err := p.oracle.Initialize(caller, LoanManagerAddress, g.Operators); err != nil {
			return err
		}
		p.state.Emit(newInitializedEvent(caller, g))
		return nil
	})
}

// execute runs fn as one atomic call. On failure every pending write and
// event is discarded; on success they are committed, sealed into a receipt
// and published.
func (p *Protocol) execute(ctx context.Context, operation string, caller crypto.Address, fn func() error) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, span := p.tracer.Start(ctx, "protocol."+operation, trace.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("caller", caller.String()),
	))
	defer span.End()

	start := time.Now()
	err := p.run(fn)
	if err != nil {
		p.state.Discard()
		reason := nativecommon.Reason(err)
		p.metrics.ObserveCall(operation, reason, time.Since(start))
		span.SetAttributes(attribute.String("reason", reason))
		if nativecommon.IsRejection(err) {
			span.SetStatus(codes.Error, reason)
			p.logger.Info("call rejected", "operation", operation, "caller", caller.String(), "reason", reason, "error", err)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.logger.Error("call failed", "operation", operation, "caller", caller.String(), "error", err)
		}
		return nil, err
	}

	seq := p.sequence + 1
	if err := p.state.KVPut(sequenceKey, seq); err != nil {
		p.state.Discard()
		return nil, fmt.Errorf("protocol: store sequence: %w", err)
	}
	committed, err := p.state.Commit()
	if err != nil {
		p.state.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("commit failed", "operation", operation, "error", err)
		return nil, err
	}
	p.sequence = seq

	receipt := &Receipt{
		Sequence:  seq,
		Operation: operation,
		Caller:    caller,
		Timestamp: uint64(p.now().Unix()),
		Events:    committed,
	}
	hash, err := receipt.ComputeHash()
	if err != nil {
		// State is already durable; the receipt is still published unsealed.
		p.logger.Error("hash receipt", "sequence", seq, "error", err)
	}
	receipt.Hash = hash

	p.metrics.ObserveCall(operation, "", time.Since(start))
	p.observe(committed)
	span.SetAttributes(attribute.Int64("sequence", int64(seq)), attribute.Int("events", len(committed)))
	p.logger.Debug("call committed", "operation", operation, "sequence", seq, "events", len(committed), "hash", receipt.Hash.Hex())

	dropped := p.bus.Dropped()
	p.bus.Emit(receipt)
	if delta := p.bus.Dropped() - dropped; delta > 0 {
		observability.Events().RecordDropped(delta)
		p.logger.Warn("receipt dropped by slow subscriber", "sequence", seq, "subscribers", delta)
	}
	return receipt, nil
}

// run converts a panic escaping the engines into an invariant violation so
// the call is discarded instead of taking the process down.
func (p *Protocol) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = nativecommon.Invariant("panic: %v", r)
		}
	}()
	return fn()
}

func (p *Protocol) observe(committed []*types.Event) {
	eventMetrics := observability.Events()
	poolTouched := false
	for _, evt := range committed {
		eventMetrics.RecordPublished(evt.Type)
		switch evt.Type {
		case loans.EventTypeRequested:
			p.metrics.RecordLoanTransition(loans.LoanStatusPending.String())
		case loans.EventTypeApproved:
			p.metrics.RecordLoanTransition(loans.LoanStatusActive.String())
		case loans.EventTypeRepaid:
			p.metrics.RecordLoanTransition(loans.LoanStatusRepaid.String())
		case loans.EventTypeDefaulted:
			p.metrics.RecordLoanTransition(loans.LoanStatusDefaulted.String())
		case lending.EventTypeDeposited, lending.EventTypeWithdrawn, lending.EventTypeBorrowed, lending.EventTypeRepaid:
			poolTouched = true
		}
	}
	if !poolTouched {
		return
	}
	pool, err := p.pool.Pool()
	if err != nil {
		p.logger.Warn("read pool for metrics", "error", err)
		return
	}
	util, err := p.pool.Utilization()
	if err != nil {
		p.logger.Warn("read utilization for metrics", "error", err)
		return
	}
	p.metrics.RecordPool(pool.TotalLiquidity.ToBig(), pool.TotalBorrowed.ToBig(), pool.TotalInterestEarned.ToBig(), util)
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
