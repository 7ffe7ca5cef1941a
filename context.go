package jsbind

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yejune/jsbind/internal/cache"
	"github.com/yejune/jsbind/internal/engine"
	"github.com/yejune/jsbind/internal/locked"
)

// Context owns one JavaScript engine instance. Every operation takes the
// context's cell for its full duration, so concurrent callers are safe
// but fully serialized. A panic while holding the cell poisons the
// context; later operations fail with ErrPoisoned.
type Context struct {
	cell      *locked.Cell[engineState]
	logger    *slog.Logger
	config    *Config
	cache     cache.Cache
	hotReload *HotReload
}

// engineState is everything the cell protects.
type engineState struct {
	eng     engine.Engine
	workDir string
}

// AdvanceOptions controls one event-loop increment.
type AdvanceOptions struct {
	// WaitForInspector blocks until a debugger attaches. The bound
	// engines expose no inspector session, so it is accepted and ignored.
	WaitForInspector bool
	// PumpMessageLoop also pumps the platform message loop where the
	// engine has one.
	PumpMessageLoop bool
}

// New creates a new jsbind Context instance
func New(config Config) (*Context, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Validate config first to set defaults
	if err := config.Validate(); err != nil {
		logger.Error("Failed to validate config", "error", err)
		return nil, err
	}

	// Initialize cache based on config
	cacheInstance, err := cache.NewCache(config.CacheConfig)
	if err != nil {
		logger.Error("Failed to initialize cache", "error", err)
		return nil, err
	}

	eng, err := engine.New(engine.Options{
		Timeout:     config.Timeout,
		MaxHeapSize: config.MaxHeapSize,
	})
	if err != nil {
		logger.Error("Failed to initialize JS engine", "error", err)
		return nil, err
	}

	ctx := &Context{
		cell:   locked.New(engineState{eng: eng, workDir: config.WorkDir}),
		logger: logger,
		config: &config,
		cache:  cacheInstance,
	}
	logger.Debug("Initialized JS engine",
		"engine", engine.DefaultEngineType(),
		"timeout", config.Timeout,
		"work_dir", config.WorkDir)

	// Initialize dev tools (module watcher, hot reload) - no-op in prod builds
	if err := ctx.initDevTools(); err != nil {
		return nil, err
	}

	return ctx, nil
}

// Eval runs a script and returns its completion value.
func (c *Context) Eval(src string) (any, error) {
	var out any
	err := c.cell.With(func(st *engineState) error {
		v, err := st.eng.Eval(src)
		out = v
		return err
	})
	return out, err
}

// Call invokes a global function synchronously. If the function returns a
// promise it is resolved within the execution timeout.
func (c *Context) Call(name string, args ...any) (any, error) {
	return c.call("", name, args)
}

// CallModule invokes an exported function of a loaded module.
func (c *Context) CallModule(h *ModuleHandle, name string, args ...any) (any, error) {
	return c.call(h.globalName, name, args)
}

func (c *Context) call(receiver, name string, args []any) (any, error) {
	if err := validateArgs(args); err != nil {
		return nil, err
	}
	var out any
	err := c.cell.With(func(st *engineState) error {
		v, err := st.eng.Call(receiver, name, args)
		out = v
		return err
	})
	return out, err
}

// CallAsync invokes a global function and returns the in-flight call as a
// Promise without waiting for it to settle.
func (c *Context) CallAsync(name string, args ...any) (*Promise, error) {
	return c.callAsync("", name, args)
}

// CallModuleAsync invokes an exported function of a loaded module and
// returns the in-flight call as a Promise.
func (c *Context) CallModuleAsync(h *ModuleHandle, name string, args ...any) (*Promise, error) {
	return c.callAsync(h.globalName, name, args)
}

func (c *Context) callAsync(receiver, name string, args []any) (*Promise, error) {
	if err := validateArgs(args); err != nil {
		return nil, err
	}
	var op engine.Pending
	err := c.cell.With(func(st *engineState) error {
		p, err := st.eng.CallAsync(receiver, name, args)
		op = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return newPromise(op), nil
}

// GetValue reads a global. A missing or undefined global yields
// ErrValueNotFound, distinct from a script failure.
func (c *Context) GetValue(name string) (any, error) {
	var out any
	err := c.cell.With(func(st *engineState) error {
		v, err := st.eng.GetValue(name)
		out = v
		return err
	})
	return out, err
}

// Advance performs one increment of the engine's background work and
// reports whether more work is known to be queued. Pending promises only
// make progress through Advance; Step alone never drives them.
func (c *Context) Advance(opts *AdvanceOptions) (bool, error) {
	po := engine.PollOptions{}
	if opts != nil {
		po.WaitForInspector = opts.WaitForInspector
		po.PumpMessageLoop = opts.PumpMessageLoop
		if opts.WaitForInspector {
			c.logger.Debug("Inspector sessions are not supported, ignoring WaitForInspector")
		}
	}
	var more bool
	err := c.cell.With(func(st *engineState) error {
		m, err := st.eng.Advance(po)
		more = m
		return err
	})
	return more, err
}

// Timeout returns the per-evaluation budget.
func (c *Context) Timeout() time.Duration {
	return c.config.Timeout
}

// WorkDir returns the directory anchoring module resolution.
func (c *Context) WorkDir() string {
	var dir string
	_ = c.cell.With(func(st *engineState) error {
		dir = st.workDir
		return nil
	})
	return dir
}

// SetWorkDir changes the directory anchoring module resolution.
func (c *Context) SetWorkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("setting work dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, ErrNotADirectory)
	}
	return c.cell.With(func(st *engineState) error {
		st.workDir = dir
		return nil
	})
}

// Close permanently destroys the context and its engine. Promises still
// pending against this context are abandoned.
func (c *Context) Close() error {
	c.stopHotReload()
	return c.cell.With(func(st *engineState) error {
		return st.eng.Close()
	})
}

// reset discards all engine global state so the context can be pooled.
func (c *Context) reset() error {
	return c.cell.With(func(st *engineState) error {
		return st.eng.Reset()
	})
}

// destroy tears the engine down without the dev-tool bookkeeping.
func (c *Context) destroy() {
	_ = c.cell.With(func(st *engineState) error {
		return st.eng.Close()
	})
}

// validateArgs rejects arguments that cannot cross the boundary.
func validateArgs(args []any) error {
	for i, arg := range args {
		if _, err := json.Marshal(arg); err != nil {
			return fmt.Errorf("argument %d is not serializable: %w", i, ErrInvalidArgument)
		}
	}
	return nil
}
