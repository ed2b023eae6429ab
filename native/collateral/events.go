package collateral

import (
	"strconv"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	EventTypeMinted            = "collateral.minted"
	EventTypeStaked            = "collateral.staked"
	EventTypeUnstaked          = "collateral.unstaked"
	EventTypeReleased          = "collateral.released"
	EventTypeRemittanceUpdated = "collateral.remittanceUpdated"
	EventTypeTransferred       = "collateral.transferred"
)

func newMintedEvent(token *Token) *types.Event {
	evt := types.NewEvent(EventTypeMinted)
	evt.Attributes["tokenId"] = strconv.FormatUint(token.ID, 10)
	evt.Attributes["owner"] = token.Owner.String()
	evt.Attributes["reliabilityScore"] = strconv.FormatUint(token.ReliabilityScore, 10)
	evt.Attributes["monthlyAmount"] = token.MonthlyAmount.Dec()
	return evt
}

func newStakeEvent(eventType string, tokenID, loanID uint64) *types.Event {
	evt := types.NewEvent(eventType)
	evt.Attributes["tokenId"] = strconv.FormatUint(tokenID, 10)
	evt.Attributes["loanId"] = strconv.FormatUint(loanID, 10)
	return evt
}

func newRemittanceUpdatedEvent(token *Token) *types.Event {
	evt := types.NewEvent(EventTypeRemittanceUpdated)
	evt.Attributes["tokenId"] = strconv.FormatUint(token.ID, 10)
	evt.Attributes["monthlyAmount"] = token.MonthlyAmount.Dec()
	evt.Attributes["totalSent"] = token.TotalSent.Dec()
	evt.Attributes["reliabilityScore"] = strconv.FormatUint(token.ReliabilityScore, 10)
	return evt
}

func newTransferEvent(tokenID uint64, from, to crypto.Address) *types.Event {
	evt := types.NewEvent(EventTypeTransferred)
	evt.Attributes["tokenId"] = strconv.FormatUint(tokenID, 10)
	evt.Attributes["from"] = from.String()
	evt.Attributes["to"] = to.String()
	return evt
}
