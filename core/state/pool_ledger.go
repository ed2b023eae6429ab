package state

import (
	"fmt"

	"remitlend/crypto"
	"remitlend/native/lending"
)

// PoolLedger persists the liquidity pool records on behalf of the lending
// engine.
type PoolLedger struct {
	manager *Manager
}

// PoolLedger returns a pool ledger helper bound to the manager.
func (m *Manager) PoolLedger() *PoolLedger {
	if m == nil {
		return nil
	}
	return &PoolLedger{manager: m}
}

func (l *PoolLedger) ready() error {
	if l == nil || l.manager == nil {
		return fmt.Errorf("pool: ledger unavailable")
	}
	return nil
}

// GetPoolConfig returns nil when the pool was never initialised.
func (l *PoolLedger) GetPoolConfig() (*lending.PoolConfig, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	var cfg lending.PoolConfig
	ok, err := l.manager.KVGet(poolConfigKeyBytes, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

func (l *PoolLedger) PutPoolConfig(cfg *lending.PoolConfig) error {
	if err := l.ready(); err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("pool: config required")
	}
	return l.manager.KVPut(poolConfigKeyBytes, cfg)
}

// GetPool returns nil when the pool was never initialised.
func (l *PoolLedger) GetPool() (*lending.PoolState, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	var pool lending.PoolState
	ok, err := l.manager.KVGet(poolStateKeyBytes, &pool)
	if err != nil || !ok {
		return nil, err
	}
	return &pool, nil
}

func (l *PoolLedger) PutPool(pool *lending.PoolState) error {
	if err := l.ready(); err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("pool: state required")
	}
	return l.manager.KVPut(poolStateKeyBytes, pool)
}

// GetLender returns nil for an address that never deposited.
func (l *PoolLedger) GetLender(addr crypto.Address) (*lending.LenderPosition, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	var pos lending.LenderPosition
	ok, err := l.manager.KVGet(poolLenderKey(addr[:]), &pos)
	if err != nil || !ok {
		return nil, err
	}
	return &pos, nil
}

// PutLender stores the position and records the lender in the lender index.
// Positions are never deleted.
func (l *PoolLedger) PutLender(pos *lending.LenderPosition) error {
	if err := l.ready(); err != nil {
		return err
	}
	if pos == nil {
		return fmt.Errorf("pool: position required")
	}
	if err := l.manager.KVPut(poolLenderKey(pos.Address[:]), pos); err != nil {
		return err
	}
	return l.manager.KVAppend(poolLendersKey, pos.Address[:])
}

// Lenders lists lender addresses in first-deposit order.
func (l *PoolLedger) Lenders() ([]crypto.Address, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	raw, err := l.manager.KVGetList(poolLendersKey)
	if err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != len(crypto.Address{}) {
			return nil, fmt.Errorf("pool: malformed lender index entry")
		}
		out = append(out, crypto.BytesToAddress(entry))
	}
	return out, nil
}
