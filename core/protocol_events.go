package core

import (
	"strconv"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	EventTypeInitialized = "protocol.initialized"
	EventTypePaused      = "protocol.paused"
)

func newInitializedEvent(admin crypto.Address, g Genesis) *types.Event {
	evt := types.NewEvent(EventTypeInitialized)
	evt.Attributes["admin"] = admin.String()
	evt.Attributes["asset"] = g.AssetSymbol
	evt.Attributes["decimals"] = strconv.FormatUint(uint64(g.AssetDecimals), 10)
	evt.Attributes["maxUtilizationBps"] = strconv.FormatUint(g.MaxUtilizationBps, 10)
	evt.Attributes["operators"] = strconv.Itoa(len(g.Operators))
	return evt
}

func newPauseEvent(module string, paused bool) *types.Event {
	evt := types.NewEvent(EventTypePaused)
	evt.Attributes["module"] = module
	evt.Attributes["paused"] = strconv.FormatBool(paused)
	return evt
}
