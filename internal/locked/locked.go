// Package locked provides a mutex-guarded cell for values that must never
// be touched by two goroutines at once.
package locked

import (
	"errors"
	"sync"
)

// ErrPoisoned is returned when a previous holder panicked while holding the
// cell. The value may be in a half-mutated state, so access is refused.
var ErrPoisoned = errors.New("locked: cell poisoned by a previous panic")

// Cell wraps a value behind a mutex. All access goes through With, which
// guarantees the lock is released on every exit path.
//
// Acquisition is not reentrant: calling With from inside With deadlocks.
type Cell[T any] struct {
	mu       sync.Mutex
	poisoned bool
	val      T
}

// New creates a cell owning v.
func New[T any](v T) *Cell[T] {
	return &Cell[T]{val: v}
}

// With locks the cell and runs fn with exclusive access to the value.
// If fn panics the cell is marked poisoned and the panic is re-raised;
// every later With returns ErrPoisoned.
func (c *Cell[T]) With(fn func(*T) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned {
		return ErrPoisoned
	}

	completed := false
	defer func() {
		if !completed {
			c.poisoned = true
		}
	}()

	err := fn(&c.val)
	completed = true
	return err
}
