package bank

import (
	"github.com/holiman/uint256"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	EventTypeTransfer = "bank.transfer"
	EventTypeApproval = "bank.approval"
	EventTypeMint     = "bank.mint"
)

func newTransferEvent(from, to crypto.Address, amount *uint256.Int) *types.Event {
	evt := types.NewEvent(EventTypeTransfer)
	evt.Attributes["from"] = from.String()
	evt.Attributes["to"] = to.String()
	evt.Attributes["amount"] = amount.Dec()
	return evt
}

func newApprovalEvent(owner, spender crypto.Address, amount *uint256.Int) *types.Event {
	evt := types.NewEvent(EventTypeApproval)
	evt.Attributes["owner"] = owner.String()
	evt.Attributes["spender"] = spender.String()
	evt.Attributes["amount"] = amount.Dec()
	return evt
}

func newMintEvent(to crypto.Address, amount *uint256.Int) *types.Event {
	evt := types.NewEvent(EventTypeMint)
	evt.Attributes["to"] = to.String()
	evt.Attributes["amount"] = amount.Dec()
	return evt
}
