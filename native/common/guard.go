package common

import (
	"fmt"

	cerrors "charge2earn/core/errors"
)

// ErrModulePaused is returned for every instruction of a paused module.
var ErrModulePaused = cerrors.ErrModulePaused

// PauseView reports which modules an operator has halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects work for module while it is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// StaticPauses is a fixed pause set, typically loaded from configuration.
type StaticPauses map[string]bool

func (s StaticPauses) IsPaused(module string) bool { return s[module] }
