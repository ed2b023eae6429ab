// Package exports writes the loan book and lender positions to parquet for
// offline reporting.
package exports

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"remitlend/crypto"
	"remitlend/native/lending"
	"remitlend/native/loans"
)

// Ledger is the read side of the protocol the exports need.
type Ledger interface {
	LoanCount() (uint64, error)
	Loan(id uint64) (*loans.Loan, error)
	Lenders() ([]crypto.Address, error)
	Lender(addr crypto.Address) (*lending.LenderPosition, error)
}

// Amounts are written as decimal strings since they exceed 64 bits.
type loanRow struct {
	ID             int64  `parquet:"name=id, type=INT64"`
	Borrower       string `parquet:"name=borrower, type=UTF8, encoding=PLAIN_DICTIONARY"`
	CollateralID   int64  `parquet:"name=collateral_id, type=INT64"`
	Amount         string `parquet:"name=amount, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Outstanding    string `parquet:"name=outstanding, type=UTF8, encoding=PLAIN_DICTIONARY"`
	TotalRepaid    string `parquet:"name=total_repaid, type=UTF8, encoding=PLAIN_DICTIONARY"`
	InterestBps    int64  `parquet:"name=interest_rate_bps, type=INT64"`
	DurationMonths int64  `parquet:"name=duration_months, type=INT64"`
	MonthlyPayment string `parquet:"name=monthly_payment, type=UTF8, encoding=PLAIN_DICTIONARY"`
	StartedAt      int64  `parquet:"name=start_timestamp, type=INT64"`
	NextPaymentDue int64  `parquet:"name=next_payment_due, type=INT64"`
	Status         string `parquet:"name=status, type=UTF8, encoding=PLAIN_DICTIONARY"`
	PaymentsMade   int64  `parquet:"name=payments_made, type=INT64"`
	PaymentsMissed int64  `parquet:"name=payments_missed, type=INT64"`
}

type lenderRow struct {
	Address          string `parquet:"name=address, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Deposit          string `parquet:"name=deposit, type=UTF8, encoding=PLAIN_DICTIONARY"`
	DepositTimestamp int64  `parquet:"name=deposit_timestamp, type=INT64"`
	EarnedInterest   string `parquet:"name=earned_interest, type=UTF8, encoding=PLAIN_DICTIONARY"`
	ShareBps         int64  `parquet:"name=share_bps, type=INT64"`
}

// LoansFile and LendersFile are the file names WriteAll produces.
const (
	LoansFile   = "loans.parquet"
	LendersFile = "lenders.parquet"
)

// WriteAll writes both exports into dir and returns the row counts.
func WriteAll(dir string, ledger Ledger) (int, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("exports: create dir: %w", err)
	}
	nLoans, err := WriteLoans(filepath.Join(dir, LoansFile), ledger)
	if err != nil {
		return 0, 0, err
	}
	nLenders, err := WriteLenders(filepath.Join(dir, LendersFile), ledger)
	if err != nil {
		return nLoans, 0, err
	}
	return nLoans, nLenders, nil
}

// WriteLoans writes every loan ever requested.
func WriteLoans(path string, ledger Ledger) (int, error) {
	count, err := ledger.LoanCount()
	if err != nil {
		return 0, fmt.Errorf("exports: loan count: %w", err)
	}
	rows := make([]interface{}, 0, count)
	for id := uint64(1); id <= count; id++ {
		loan, err := ledger.Loan(id)
		if err != nil {
			return 0, fmt.Errorf("exports: loan %d: %w", id, err)
		}
		rows = append(rows, &loanRow{
			ID:             int64(loan.ID),
			Borrower:       loan.Borrower.String(),
			CollateralID:   int64(loan.CollateralID),
			Amount:         loan.Amount.Dec(),
			Outstanding:    loan.Outstanding.Dec(),
			TotalRepaid:    loan.TotalRepaid.Dec(),
			InterestBps:    int64(loan.InterestRate),
			DurationMonths: int64(loan.DurationMonths),
			MonthlyPayment: loan.MonthlyPayment.Dec(),
			StartedAt:      int64(loan.StartTimestamp),
			NextPaymentDue: int64(loan.NextPaymentDue),
			Status:         loan.Status.String(),
			PaymentsMade:   int64(loan.PaymentsMade),
			PaymentsMissed: int64(loan.PaymentsMissed),
		})
	}
	return len(rows), writeParquet(path, new(loanRow), rows)
}

// WriteLenders writes the position of every lender that ever deposited.
// EarnedInterest includes interest not yet settled.
func WriteLenders(path string, ledger Ledger) (int, error) {
	lenders, err := ledger.Lenders()
	if err != nil {
		return 0, fmt.Errorf("exports: lenders: %w", err)
	}
	rows := make([]interface{}, 0, len(lenders))
	for _, addr := range lenders {
		pos, err := ledger.Lender(addr)
		if err != nil {
			return 0, fmt.Errorf("exports: lender %s: %w", addr, err)
		}
		if pos == nil {
			continue
		}
		rows = append(rows, &lenderRow{
			Address:          addr.String(),
			Deposit:          pos.DepositAmount.Dec(),
			DepositTimestamp: int64(pos.DepositTimestamp),
			EarnedInterest:   pos.EarnedInterest.Dec(),
			ShareBps:         int64(pos.SharePercentage),
		})
	}
	return len(rows), writeParquet(path, new(lenderRow), rows)
}

func writeParquet(path string, schema interface{}, rows []interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(file), schema, 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	return nil
}
