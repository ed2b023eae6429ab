package collateral

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"remitlend/core/state"
	"remitlend/crypto"
	"remitlend/storage"
)

func testAddress(suffix byte) crypto.Address {
	var addr crypto.Address
	addr[len(addr)-1] = suffix
	return addr
}

var (
	admin       = testAddress(0xA0)
	minter      = testAddress(0xA1)
	loanManager = testAddress(0xA2)
	oracle      = testAddress(0xA3)
	borrower    = testAddress(0x01)
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.SetState(state.NewManager(storage.NewMemDB()))
	reg.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	cfg := Config{Minter: minter, LoanManager: loanManager, Oracle: oracle}
	if err := reg.Initialize(admin, cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return reg
}

func mintToken(t *testing.T, reg *Registry, owner crypto.Address, score uint64) uint64 {
	t.Helper()
	id, err := reg.Mint(minter, MintRequest{
		Owner:            owner,
		MonthlyAmount:    uint256.NewInt(500),
		ReliabilityScore: score,
		HistoryMonths:    12,
		TotalSent:        uint256.NewInt(6000),
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return id
}

func TestInitializeRejectsSecondCall(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Initialize(admin, Config{}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestMintAssignsSequentialIDs(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.Mint(borrower, MintRequest{Owner: borrower}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	first := mintToken(t, reg, borrower, 95)
	second := mintToken(t, reg, borrower, 80)
	if first != 1 || second != 2 {
		t.Fatalf("unexpected ids %d %d", first, second)
	}
	rem, err := reg.GetRemittance(first)
	if err != nil {
		t.Fatalf("get remittance: %v", err)
	}
	if rem.Owner != borrower || rem.ReliabilityScore != 95 || !rem.Active || rem.MonthlyAmount.Uint64() != 500 {
		t.Fatalf("unexpected remittance %+v", rem)
	}
	ids, err := reg.TokensOf(borrower)
	if err != nil {
		t.Fatalf("tokens of: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected owner index %v", ids)
	}
}

func TestStakeLifecycle(t *testing.T) {
	reg := newTestRegistry(t)
	id := mintToken(t, reg, borrower, 90)
	if err := reg.Stake(oracle, id, 7); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := reg.Stake(loanManager, id, 7); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := reg.Stake(loanManager, id, 8); !errors.Is(err, ErrAlreadyStaked) {
		t.Fatalf("expected ErrAlreadyStaked, got %v", err)
	}
	if err := reg.Transfer(borrower, testAddress(0x02), id); !errors.Is(err, ErrAlreadyStaked) {
		t.Fatalf("expected staked token transfer to fail, got %v", err)
	}
	if err := reg.Unstake(borrower, id, 7); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := reg.Unstake(loanManager, id, 8); err != nil {
		t.Fatalf("unstake for another loan: %v", err)
	}
	if token, _ := reg.Token(id); !token.Staked || token.LoanID != 7 {
		t.Fatalf("unstake for another loan released the token: %+v", token)
	}
	if err := reg.Unstake(loanManager, id, 7); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if err := reg.Unstake(loanManager, id, 7); err != nil {
		t.Fatalf("second unstake should be a no-op: %v", err)
	}
	token, err := reg.Token(id)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token.Staked || token.LoanID != 0 {
		t.Fatalf("token still staked: %+v", token)
	}
}

func TestOracleUnstakeKeepsLoanBinding(t *testing.T) {
	reg := newTestRegistry(t)
	id := mintToken(t, reg, borrower, 90)
	if err := reg.Stake(loanManager, id, 7); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := reg.Unstake(oracle, id, 7); err != nil {
		t.Fatalf("oracle unstake: %v", err)
	}
	rem, err := reg.GetRemittance(id)
	if err != nil {
		t.Fatalf("remittance: %v", err)
	}
	if rem.Staked || rem.LoanID != 7 {
		t.Fatalf("expected unstaked token bound to loan 7, got %+v", rem)
	}
	if err := reg.Stake(loanManager, id, 8); !errors.Is(err, ErrBound) {
		t.Fatalf("expected ErrBound staking for another loan, got %v", err)
	}
	if err := reg.Transfer(borrower, testAddress(0x02), id); !errors.Is(err, ErrBound) {
		t.Fatalf("expected ErrBound on transfer, got %v", err)
	}
	if err := reg.Stake(loanManager, id, 7); err != nil {
		t.Fatalf("restake for the bound loan: %v", err)
	}
	if err := reg.Unstake(loanManager, id, 7); err != nil {
		t.Fatalf("payoff unstake: %v", err)
	}
	if err := reg.Transfer(borrower, testAddress(0x02), id); err != nil {
		t.Fatalf("transfer after release: %v", err)
	}
}

func TestUpdateRemittanceAccumulates(t *testing.T) {
	reg := newTestRegistry(t)
	id := mintToken(t, reg, borrower, 60)
	if err := reg.UpdateRemittance(loanManager, id, uint256.NewInt(1), uint256.NewInt(1), 90); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := reg.UpdateRemittance(oracle, id, uint256.NewInt(700), uint256.NewInt(700), 90); err != nil {
		t.Fatalf("update: %v", err)
	}
	token, _ := reg.Token(id)
	if token.TotalSent.Uint64() != 6700 || token.MonthlyAmount.Uint64() != 700 || token.ReliabilityScore != 90 {
		t.Fatalf("unexpected token after update %+v", token)
	}
}

func TestTransferMovesOwnerIndex(t *testing.T) {
	reg := newTestRegistry(t)
	id := mintToken(t, reg, borrower, 60)
	other := testAddress(0x02)
	if err := reg.Transfer(other, other, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := reg.Transfer(borrower, other, id); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	ids, _ := reg.TokensOf(borrower)
	if len(ids) != 0 {
		t.Fatalf("expected empty index for previous owner, got %v", ids)
	}
	ids, _ = reg.TokensOf(other)
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected index for new owner %v", ids)
	}
}
