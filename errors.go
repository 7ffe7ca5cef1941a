package jsbind

import (
	"errors"

	"github.com/yejune/jsbind/internal/engine"
	"github.com/yejune/jsbind/internal/locked"
)

var (
	// ErrInvalidState reports reading a promise outcome before it exists.
	ErrInvalidState = errors.New("result is not ready")
	// ErrInvalidArgument reports a call argument that cannot cross the
	// boundary, such as a channel or a function.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotADirectory reports a directory operation on a non-directory.
	ErrNotADirectory = errors.New("not a directory")
	// ErrValueNotFound reports a global lookup that found nothing.
	ErrValueNotFound = engine.ErrValueNotFound
	// ErrPoisoned reports a context whose lock holder panicked; the
	// context is permanently unusable.
	ErrPoisoned = locked.ErrPoisoned
)

// RuntimeError is a script-level failure reported by the engine.
type RuntimeError = engine.RuntimeError
