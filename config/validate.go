package config

import (
	"fmt"
	"strings"

	"remitlend/crypto"
	nativecommon "remitlend/native/common"
)

// Validate checks the fields Load cannot default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Admin) == "" {
		return fmt.Errorf("Admin or AdminKeystorePath required")
	}
	if _, err := crypto.ParseAddress(c.Admin); err != nil {
		return fmt.Errorf("Admin: %w", err)
	}
	seen := make(map[crypto.Address]bool, len(c.Operators))
	for i, raw := range c.Operators {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("Operators[%d]: %w", i, err)
		}
		if seen[addr] {
			return fmt.Errorf("Operators[%d]: duplicate operator %s", i, addr)
		}
		seen[addr] = true
	}
	if c.Asset.MaxUtilizationBps > nativecommon.BasisPoints {
		return fmt.Errorf("asset.MaxUtilizationBps: %d exceeds %d", c.Asset.MaxUtilizationBps, nativecommon.BasisPoints)
	}
	for i, alloc := range c.Allocations {
		if _, err := crypto.ParseAddress(alloc.Address); err != nil {
			return fmt.Errorf("allocations[%d].Address: %w", i, err)
		}
		if _, err := nativecommon.ParseAmount(alloc.Amount); err != nil {
			return fmt.Errorf("allocations[%d].Amount: %w", i, err)
		}
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	return nil
}
