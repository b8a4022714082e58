// Package passes holds the built-in passes: generator elaboration, the
// per-module usage map and an instance-graph summary.
package passes

import (
	"fmt"

	"github.com/roach88/hwir/internal/pass"
)

// Builtins returns fresh instances of every built-in pass in registration
// order.
func Builtins() []pass.Pass {
	return []pass.Pass{
		NewCreateInstanceMap(),
		NewRunGenerators(),
		NewPrintInstanceGraph(),
	}
}

// RegisterBuiltins registers every built-in pass with pm.
func RegisterBuiltins(pm *pass.Manager) error {
	for _, p := range Builtins() {
		if err := pm.Register(p); err != nil {
			return fmt.Errorf("register %s: %w", p.ID(), err)
		}
	}
	return nil
}
