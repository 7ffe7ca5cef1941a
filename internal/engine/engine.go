// Package engine abstracts the embedded JavaScript engine. The concrete
// backend is selected at build time: V8 by default, QuickJS behind the
// use_quickjs tag, and a pure Go QuickJS port behind use_moderncjs.
package engine

import (
	"errors"
	"time"
)

// EngineType identifies the JavaScript engine backing a build.
type EngineType string

const (
	EngineV8        EngineType = "v8"
	EngineQuickJS   EngineType = "quickjs"
	EngineModerncJS EngineType = "moderncjs"
)

// defaultEngineType is set by init() in the build-specific files
var defaultEngineType EngineType

// DefaultEngineType returns the engine type for this build.
func DefaultEngineType() EngineType {
	return defaultEngineType
}

// Options configures a new engine instance.
type Options struct {
	// Timeout bounds each evaluation; zero means unbounded.
	Timeout time.Duration
	// MaxHeapSize limits the engine heap in bytes; zero means engine default.
	MaxHeapSize uint64
}

// PollOptions controls a single Advance call.
type PollOptions struct {
	// WaitForInspector blocks until a debugger attaches. None of the bound
	// engines expose an inspector session, so it is accepted and ignored.
	WaitForInspector bool
	// PumpMessageLoop also pumps the platform message loop where the
	// backend has one.
	PumpMessageLoop bool
}

// Pending is an in-flight asynchronous call. Poll inspects the underlying
// promise exactly once and never drives the event loop; use Advance for
// that. Once done is true the returned value and error are final.
type Pending interface {
	Poll() (value any, done bool, err error)
}

// Engine is the interface every backend implements. Values cross the
// boundary as JSON-compatible Go values: nil, bool, float64, string,
// []any and map[string]any. Implementations are not safe for concurrent
// use; callers serialize access.
type Engine interface {
	// Eval runs a script and returns its completion value.
	Eval(src string) (any, error)
	// Call invokes a function synchronously. An empty receiver means a
	// global function; otherwise the function is a property of the named
	// global object. A returned promise is resolved within the timeout.
	Call(receiver, fn string, args []any) (any, error)
	// CallAsync invokes a function and returns the call as a Pending
	// without waiting for any returned promise to settle.
	CallAsync(receiver, fn string, args []any) (Pending, error)
	// GetValue reads a global. Undefined globals yield ErrValueNotFound.
	GetValue(name string) (any, error)
	// LoadScript evaluates a script for its side effects, attributing
	// errors to the given origin name.
	LoadScript(origin, src string) error
	// Advance performs one increment of background work. It reports
	// whether more work is known to be queued.
	Advance(opts PollOptions) (bool, error)
	// Reset discards all global state, keeping the engine usable.
	Reset() error
	// Close permanently destroys the engine.
	Close() error
}

// ErrValueNotFound reports a global lookup that found nothing. Distinct
// from a RuntimeError: the engine ran fine, the name just is not there.
var ErrValueNotFound = errors.New("value not found")

// RuntimeError is a script-level failure: a throw, a syntax error, a
// timeout or a heap overrun surfaced by the engine.
type RuntimeError struct {
	Message    string
	StackTrace string
}

func (e *RuntimeError) Error() string {
	if e.StackTrace != "" {
		return e.Message + "\n" + e.StackTrace
	}
	return e.Message
}
