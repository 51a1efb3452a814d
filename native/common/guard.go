// Package common holds checks shared by the native vault modules.
package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module is halted.
type PauseView interface {
	IsPaused(module string) bool
}

// ModuleKey builds the pause key for an instance of kind, e.g. "ssov/eth-monthly".
func ModuleKey(kind, instance string) string {
	kind = strings.TrimSpace(kind)
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return kind
	}
	return kind + "/" + instance
}

// Guard fails with ErrModulePaused while module is paused. A nil view or an
// empty module never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
