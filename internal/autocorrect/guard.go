// Package autocorrect implements the correction workflow: a code action
// provider that turns spell-checker diagnostics into quick fixes, and the
// command that applies a fix to the document and persists it as an
// autocorrect rule.
package autocorrect

import "sync/atomic"

// Guard is the re-entrancy flag around nested code-action resolution. The
// provider queries the action registry for the spell checker's own fixes;
// that query re-enters the provider itself, which must then answer empty
// immediately or recurse forever.
type Guard struct {
	held atomic.Bool
}

// TryAcquire sets the flag and reports whether it was previously clear.
func (g *Guard) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release clears the flag. Callers release via defer so the flag never
// leaks set when the nested resolution fails.
func (g *Guard) Release() {
	g.held.Store(false)
}

// Held reports whether a nested resolution is in flight.
func (g *Guard) Held() bool {
	return g.held.Load()
}
