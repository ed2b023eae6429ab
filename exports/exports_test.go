package exports

import (
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"remitlend/crypto"
	"remitlend/native/lending"
	"remitlend/native/loans"
)

type fakeLedger struct {
	loans   []*loans.Loan
	lenders map[crypto.Address]*lending.LenderPosition
	order   []crypto.Address
}

func (f *fakeLedger) LoanCount() (uint64, error) { return uint64(len(f.loans)), nil }

func (f *fakeLedger) Loan(id uint64) (*loans.Loan, error) { return f.loans[id-1], nil }

func (f *fakeLedger) Lenders() ([]crypto.Address, error) { return f.order, nil }

func (f *fakeLedger) Lender(addr crypto.Address) (*lending.LenderPosition, error) {
	return f.lenders[addr], nil
}

func newFakeLedger() *fakeLedger {
	borrower := crypto.BytesToAddress([]byte{0x01})
	lender := crypto.BytesToAddress([]byte{0x02})
	loan := &loans.Loan{
		ID:             1,
		Borrower:       borrower,
		CollateralID:   3,
		InterestRate:   1500,
		DurationMonths: 10,
		Status:         loans.LoanStatusActive,
		PaymentsMade:   1,
	}
	loan.Amount.SetUint64(1000)
	loan.Outstanding.SetUint64(900)
	loan.MonthlyPayment.SetUint64(115)
	pos := &lending.LenderPosition{Address: lender, SharePercentage: 10_000}
	pos.DepositAmount.SetUint64(50_000)
	pos.EarnedInterest = *uint256.NewInt(28)
	return &fakeLedger{
		loans:   []*loans.Loan{loan},
		lenders: map[crypto.Address]*lending.LenderPosition{lender: pos},
		order:   []crypto.Address{lender},
	}
}

func readRows[T any](t *testing.T, path string) []T {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(T), 1)
	if err != nil {
		t.Fatalf("parquet reader: %v", err)
	}
	defer pr.ReadStop()
	rows := make([]T, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read rows: %v", err)
	}
	return rows
}

func TestWriteAllRoundTrips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	nLoans, nLenders, err := WriteAll(dir, newFakeLedger())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if nLoans != 1 || nLenders != 1 {
		t.Fatalf("unexpected counts %d/%d", nLoans, nLenders)
	}

	loanRows := readRows[loanRow](t, filepath.Join(dir, LoansFile))
	if len(loanRows) != 1 {
		t.Fatalf("expected one loan row, got %d", len(loanRows))
	}
	got := loanRows[0]
	if got.ID != 1 || got.Outstanding != "900" || got.MonthlyPayment != "115" || got.Status != "active" || got.InterestBps != 1500 {
		t.Fatalf("unexpected loan row %+v", got)
	}

	lenderRows := readRows[lenderRow](t, filepath.Join(dir, LendersFile))
	if len(lenderRows) != 1 || lenderRows[0].Deposit != "50000" || lenderRows[0].EarnedInterest != "28" {
		t.Fatalf("unexpected lender rows %+v", lenderRows)
	}
}

func TestWriteLoansEmptyBook(t *testing.T) {
	n, err := WriteLoans(filepath.Join(t.TempDir(), LoansFile), &fakeLedger{})
	if err != nil || n != 0 {
		t.Fatalf("empty export: n=%d err=%v", n, err)
	}
}
