package common

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatformPaused is returned by Guard when the platform-wide pause flag
	// is set.
	ErrPlatformPaused = errors.New("platform paused")
	// ErrReentrancyDetected is returned when a guarded record is entered twice
	// within one logical operation.
	ErrReentrancyDetected = errors.New("reentrancy detected")
)

// Module names accepted by Guard.
const (
	ModuleMarket = "market"
	ModuleBurn   = "burn"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrPlatformPaused, module)
	}
	return nil
}

// ReentrancyGuard is a persisted re-entry flag. It must be entered before any
// call to an external collaborator and exited after the last one returns.
type ReentrancyGuard struct {
	Entered bool
}

// Enter acquires the guard.
func (g *ReentrancyGuard) Enter() error {
	if g.Entered {
		return ErrReentrancyDetected
	}
	g.Entered = true
	return nil
}

// Exit releases the guard.
func (g *ReentrancyGuard) Exit() {
	g.Entered = false
}

// Journal is the snapshot surface of the state manager.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Atomic runs fn and reverts every journaled write it made when it fails, so
// a rejected operation leaves state exactly as it found it.
func Atomic(j Journal, fn func() error) error {
	if j == nil {
		return fn()
	}
	snap := j.Snapshot()
	if err := fn(); err != nil {
		j.RevertToSnapshot(snap)
		return err
	}
	return nil
}
