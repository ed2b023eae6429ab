package common

import "errors"

var ErrModulePaused = Reject("module_paused", "module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ErrReentrantCall rejects a call that re-enters a component whose previous
// entry point has not returned yet.
var ErrReentrantCall = Reject("reentrant_call", "reentrant call rejected")

var errGuardNotHeld = errors.New("reentrancy guard released while not held")

// ReentrancyGuard is the per-component "call in progress" flag. Execution is
// single threaded, so a plain bool is enough.
type ReentrancyGuard struct {
	entered bool
}

// Enter marks the component busy. The returned release func must be deferred
// by the caller.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g.entered {
		return nil, ErrReentrantCall
	}
	g.entered = true
	return func() {
		if !g.entered {
			panic(errGuardNotHeld)
		}
		g.entered = false
	}, nil
}

// Entered reports whether a call is in progress.
func (g *ReentrancyGuard) Entered() bool { return g.entered }
