package core

import (
	"context"

	"github.com/holiman/uint256"

	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/lending"
	"remitlend/native/loans"
	"remitlend/native/oracle"
)

// Asset ledger.

// MintAsset credits to with amount. Only the admin may mint.
func (p *Protocol) MintAsset(ctx context.Context, caller, to crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return p.execute(ctx, "asset_mint", caller, func() error {
		return p.asset.Mint(caller, to, amountOrZero(amount))
	})
}

// Transfer moves asset balance from caller to to.
func (p *Protocol) Transfer(ctx context.Context, caller, to crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return p.execute(ctx, "asset_transfer", caller, func() error {
		return p.asset.Transfer(caller, to, amountOrZero(amount))
	})
}

// Approve sets the allowance spender may pull from caller. Lenders approve
// PoolAddress and borrowers approve LoanManagerAddress.
func (p *Protocol) Approve(ctx context.Context, caller, spender crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return p.execute(ctx, "asset_approve", caller, func() error {
		return p.asset.Approve(caller, spender, amountOrZero(amount))
	})
}

// Liquidity pool.

// Deposit adds amount of caller's asset to the pool.
func (p *Protocol) Deposit(ctx context.Context, caller crypto.Address, amount *uint256.Int) (*Receipt, error) {
	return p.execute(ctx, "deposit", caller, func() error {
		return p.pool.Deposit(caller, amountOrZero(amount))
	})
}

// Withdraw returns amount of principal plus all pending interest to caller.
// The interest paid out is returned alongside the receipt.
func (p *Protocol) Withdraw(ctx context.Context, caller crypto.Address, amount *uint256.Int) (*uint256.Int, *Receipt, error) {
	var interest *uint256.Int
	receipt, err := p.execute(ctx, "withdraw", caller, func() error {
		var err error
		interest, err = p.pool.Withdraw(caller, amountOrZero(amount))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return interest, receipt, nil
}

// UpdateInterest settles lender's accrued interest into its position.
func (p *Protocol) UpdateInterest(ctx context.Context, caller, lender crypto.Address) (*uint256.Int, *Receipt, error) {
	var earned *uint256.Int
	receipt, err := p.execute(ctx, "update_interest", caller, func() error {
		var err error
		earned, err = p.pool.UpdateInterest(lender)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return earned, receipt, nil
}

// Loan manager.

// RequestLoan opens a Pending loan drawn against collateralID.
func (p *Protocol) RequestLoan(ctx context.Context, caller crypto.Address, collateralID uint64, amount *uint256.Int, durationMonths uint64) (uint64, *Receipt, error) {
	var id uint64
	receipt, err := p.execute(ctx, "request_loan", caller, func() error {
		var err error
		id, err = p.loans.RequestLoan(caller, collateralID, amountOrZero(amount), durationMonths)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return id, receipt, nil
}

// ApproveLoan activates a Pending loan: stakes the collateral, disburses from
// the pool and enrols the loan for monitoring.
func (p *Protocol) ApproveLoan(ctx context.Context, caller crypto.Address, loanID uint64) (*Receipt, error) {
	return p.execute(ctx, "approve_loan", caller, func() error {
		return p.loans.ApproveLoan(caller, loanID)
	})
}

// MakePayment pulls amount from the borrower and applies it to the loan.
func (p *Protocol) MakePayment(ctx context.Context, caller crypto.Address, loanID uint64, amount *uint256.Int) (*loans.Payment, *Receipt, error) {
	var payment *loans.Payment
	receipt, err := p.execute(ctx, "make_payment", caller, func() error {
		var err error
		payment, err = p.loans.MakePayment(caller, loanID, amountOrZero(amount))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return payment, receipt, nil
}

// Verification gateway.

// AddOperator allow-lists op. Admin only.
func (p *Protocol) AddOperator(ctx context.Context, caller, op crypto.Address) (*Receipt, error) {
	return p.execute(ctx, "add_operator", caller, func() error {
		return p.oracle.AddOperator(caller, op)
	})
}

// RemoveOperator revokes op. Admin only.
func (p *Protocol) RemoveOperator(ctx context.Context, caller, op crypto.Address) (*Receipt, error) {
	return p.execute(ctx, "remove_operator", caller, func() error {
		return p.oracle.RemoveOperator(caller, op)
	})
}

// RequestVerification records caller's request to verify a remittance
// account.
func (p *Protocol) RequestVerification(ctx context.Context, caller crypto.Address, provider, accountID string) (*Receipt, error) {
	return p.execute(ctx, "request_verification", caller, func() error {
		return p.oracle.RequestVerification(caller, provider, accountID)
	})
}

// SubmitVerification completes user's pending request and mints collateral.
func (p *Protocol) SubmitVerification(ctx context.Context, caller, user crypto.Address, att oracle.Attestation) (uint64, *Receipt, error) {
	var tokenID uint64
	receipt, err := p.execute(ctx, "submit_verification", caller, func() error {
		var err error
		tokenID, err = p.oracle.SubmitVerification(caller, user, att)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return tokenID, receipt, nil
}

// RejectVerification fails user's pending request.
func (p *Protocol) RejectVerification(ctx context.Context, caller, user crypto.Address, reason string) (*Receipt, error) {
	return p.execute(ctx, "reject_verification", caller, func() error {
		return p.oracle.RejectVerification(caller, user, reason)
	})
}

// ReportRemittance applies an observed remittance to a monitored loan.
func (p *Protocol) ReportRemittance(ctx context.Context, caller, user crypto.Address, tokenID uint64, amount *uint256.Int, loanID uint64) (*oracle.RemittanceReport, *Receipt, error) {
	var report *oracle.RemittanceReport
	receipt, err := p.execute(ctx, "report_remittance", caller, func() error {
		var err error
		report, err = p.oracle.ReportRemittance(caller, user, tokenID, amountOrZero(amount), loanID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return report, receipt, nil
}

// ReportMissedPayment records a missed installment on a monitored loan.
func (p *Protocol) ReportMissedPayment(ctx context.Context, caller crypto.Address, loanID, tokenID uint64) (*loans.Loan, *Receipt, error) {
	var loan *loans.Loan
	receipt, err := p.execute(ctx, "report_missed_payment", caller, func() error {
		var err error
		loan, err = p.oracle.ReportMissedPayment(caller, loanID, tokenID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return loan, receipt, nil
}

// Collateral.

// TransferCollateral hands an unstaked token to another owner.
func (p *Protocol) TransferCollateral(ctx context.Context, caller, to crypto.Address, tokenID uint64) (*Receipt, error) {
	return p.execute(ctx, "collateral_transfer", caller, func() error {
		return p.collateral.Transfer(caller, to, tokenID)
	})
}

// Queries. They read committed state only.

// Balance returns addr's asset balance.
func (p *Protocol) Balance(addr crypto.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asset.BalanceOf(addr)
}

// Allowance returns what spender may still pull from owner.
func (p *Protocol) Allowance(owner, spender crypto.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asset.Allowance(owner, spender)
}

// PoolStats returns the pool totals and current utilization in bps.
func (p *Protocol) PoolStats() (*lending.PoolState, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, err := p.pool.Pool()
	if err != nil {
		return nil, 0, err
	}
	util, err := p.pool.Utilization()
	if err != nil {
		return nil, 0, err
	}
	return pool, util, nil
}

// AvailableLiquidity returns liquidity not currently lent out.
func (p *Protocol) AvailableLiquidity() (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool.AvailableLiquidity()
}

// Lender returns addr's position with pending interest settled into
// EarnedInterest for display.
func (p *Protocol) Lender(addr crypto.Address) (*lending.LenderPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, err := p.pool.Lender(addr)
	if err != nil {
		return nil, err
	}
	pending, err := p.pool.PendingInterest(addr)
	if err != nil {
		return nil, err
	}
	pos.EarnedInterest = *pending
	return pos, nil
}

// Lenders lists every address that ever deposited.
func (p *Protocol) Lenders() ([]crypto.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool.Lenders()
}

// Loan returns a loan by id.
func (p *Protocol) Loan(id uint64) (*loans.Loan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loans.Loan(id)
}

// LoanCount returns the number of loans ever requested.
func (p *Protocol) LoanCount() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loans.LoanCount()
}

// LoansOf returns the ids of borrower's loans.
func (p *Protocol) LoansOf(borrower crypto.Address) ([]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loans.LoansOf(borrower)
}

// Collateral returns a remittance token by id.
func (p *Protocol) Collateral(id uint64) (*collateral.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collateral.Token(id)
}

// CollateralOf returns the token ids owned by owner.
func (p *Protocol) CollateralOf(owner crypto.Address) ([]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collateral.TokensOf(owner)
}

// Verification returns user's verification request.
func (p *Protocol) Verification(user crypto.Address) (*oracle.VerificationRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.Verification(user)
}

// Monitoring returns the monitoring record of loanID.
func (p *Protocol) Monitoring(loanID uint64) (*oracle.Monitoring, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.Monitoring(loanID)
}

// Operators lists the allow-listed gateway operators.
func (p *Protocol) Operators() ([]crypto.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oracle.Operators()
}
