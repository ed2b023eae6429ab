package lending

import (
	"strconv"

	"github.com/holiman/uint256"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	EventTypeDeposited = "pool.deposited"
	EventTypeWithdrawn = "pool.withdrawn"
	EventTypeBorrowed  = "pool.borrowed"
	EventTypeRepaid    = "pool.repaid"
)

func newDepositedEvent(lender crypto.Address, amount *uint256.Int, pos *LenderPosition) *types.Event {
	evt := types.NewEvent(EventTypeDeposited)
	evt.Attributes["lender"] = lender.String()
	evt.Attributes["amount"] = amount.Dec()
	evt.Attributes["deposit"] = pos.DepositAmount.Dec()
	evt.Attributes["shareBps"] = strconv.FormatUint(pos.SharePercentage, 10)
	return evt
}

func newWithdrawnEvent(lender crypto.Address, amount, interest *uint256.Int, pos *LenderPosition) *types.Event {
	evt := types.NewEvent(EventTypeWithdrawn)
	evt.Attributes["lender"] = lender.String()
	evt.Attributes["amount"] = amount.Dec()
	evt.Attributes["interest"] = interest.Dec()
	evt.Attributes["deposit"] = pos.DepositAmount.Dec()
	return evt
}

func newBorrowedEvent(loanID uint64, borrower crypto.Address, amount *uint256.Int) *types.Event {
	evt := types.NewEvent(EventTypeBorrowed)
	evt.Attributes["loanId"] = strconv.FormatUint(loanID, 10)
	evt.Attributes["borrower"] = borrower.String()
	evt.Attributes["amount"] = amount.Dec()
	return evt
}

func newRepaidEvent(loanID uint64, principal, interest, acc *uint256.Int) *types.Event {
	evt := types.NewEvent(EventTypeRepaid)
	evt.Attributes["loanId"] = strconv.FormatUint(loanID, 10)
	evt.Attributes["principal"] = principal.Dec()
	evt.Attributes["interest"] = interest.Dec()
	evt.Attributes["accInterestPerShare"] = acc.Dec()
	return evt
}
