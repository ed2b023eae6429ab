package core

import (
	"context"
	"fmt"
	"strings"

	"remitlend/crypto"
	nativecommon "remitlend/native/common"
)

var (
	adminKey       = []byte("protocol/admin")
	sequenceKey    = []byte("protocol/sequence")
	pausedPrefix   = "protocol/paused/"
	pausableModule = map[string]bool{"pool": true, "loans": true, "oracle": true}
)

// ErrUnknownModule rejects pause toggles for modules that cannot be paused.
var ErrUnknownModule = nativecommon.Reject("unknown_module", "protocol: module cannot be paused")

// ErrUnauthorized rejects admin operations from any other caller.
var ErrUnauthorized = nativecommon.Reject("unauthorized", "protocol: caller not authorized")

func pausedKey(module string) []byte {
	return []byte(pausedPrefix + module)
}

// pauseStore reads pause flags through the state manager so a toggle becomes
// visible to the engines in the same call that writes it.
type pauseStore struct {
	p *Protocol
}

func (s pauseStore) IsPaused(module string) bool {
	var paused bool
	ok, err := s.p.state.KVGet(pausedKey(module), &paused)
	if err != nil {
		s.p.logger.Error("read pause flag", "module", module, "error", err)
		return true
	}
	return ok && paused
}

// SetPaused toggles the pause flag of the pool, loans or oracle module.
func (p *Protocol) SetPaused(ctx context.Context, caller crypto.Address, module string, paused bool) (*Receipt, error) {
	module = strings.ToLower(strings.TrimSpace(module))
	return p.execute(ctx, "set_paused", caller, func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		if !pausableModule[module] {
			return ErrUnknownModule
		}
		if err := p.state.KVPut(pausedKey(module), paused); err != nil {
			return err
		}
		evt := newPauseEvent(module, paused)
		p.state.Emit(evt)
		return nil
	})
}

// IsPaused reports the committed pause flag for module.
func (p *Protocol) IsPaused(module string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pauseStore{p: p}.IsPaused(strings.ToLower(strings.TrimSpace(module)))
}

// Admin returns the address that initialised the protocol.
func (p *Protocol) Admin() (crypto.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admin()
}

func (p *Protocol) admin() (crypto.Address, error) {
	var admin crypto.Address
	ok, err := p.state.KVGet(adminKey, &admin)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok {
		return crypto.Address{}, ErrNotInitialized
	}
	return admin, nil
}

func (p *Protocol) requireAdmin(caller crypto.Address) error {
	admin, err := p.admin()
	if err != nil {
		return err
	}
	if caller != admin {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}
