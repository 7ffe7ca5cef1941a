//go:build !use_quickjs && !use_moderncjs

package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	v8 "github.com/tommie/v8go"
)

func init() {
	defaultEngineType = EngineV8
}

// New creates the default engine for this build
func New(opts Options) (Engine, error) {
	return newV8Engine(opts)
}

// v8Engine wraps a V8 isolate and context
type v8Engine struct {
	iso  *v8.Isolate
	vctx *v8.Context
	opts Options
}

func newV8Engine(opts Options) (*v8Engine, error) {
	iso := v8.NewIsolate()
	vctx := v8.NewContext(iso)
	return &v8Engine{
		iso:  iso,
		vctx: vctx,
		opts: opts,
	}, nil
}

// run executes fn under the watchdog. TerminateExecution is the one
// thread-safe V8 call, so the timer only touches that.
func (e *v8Engine) run(fn func() (*v8.Value, error)) (*v8.Value, error) {
	var timedOut atomic.Bool
	if e.opts.Timeout > 0 {
		watchdog := time.AfterFunc(e.opts.Timeout, func() {
			timedOut.Store(true)
			e.iso.TerminateExecution()
		})
		defer watchdog.Stop()
	}

	val, err := fn()
	if timedOut.Load() {
		return nil, &RuntimeError{Message: fmt.Sprintf("execution timed out (limit: %v)", e.opts.Timeout)}
	}
	if err != nil {
		return nil, translateV8Error(err)
	}
	if err := e.checkHeap(); err != nil {
		return nil, err
	}
	return val, nil
}

// checkHeap enforces the configured heap ceiling after each evaluation.
func (e *v8Engine) checkHeap() error {
	if e.opts.MaxHeapSize == 0 {
		return nil
	}
	stats := e.iso.GetHeapStatistics()
	if stats.TotalHeapSize > e.opts.MaxHeapSize {
		return &RuntimeError{Message: fmt.Sprintf("heap size %d exceeds limit %d", stats.TotalHeapSize, e.opts.MaxHeapSize)}
	}
	return nil
}

func translateV8Error(err error) error {
	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		return err
	}
	var jsErr *v8.JSError
	if errors.As(err, &jsErr) {
		return &RuntimeError{Message: jsErr.Message, StackTrace: jsErr.StackTrace}
	}
	return &RuntimeError{Message: err.Error()}
}

func (e *v8Engine) Eval(src string) (any, error) {
	val, err := e.run(func() (*v8.Value, error) {
		return e.vctx.RunScript(src, "eval.js")
	})
	if err != nil {
		return nil, err
	}
	return v8ToGo(val)
}

func (e *v8Engine) Call(receiver, fn string, args []any) (any, error) {
	timeout := e.opts.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	deadline := time.Now().Add(timeout)
	val, err := e.run(func() (*v8.Value, error) {
		recv, f, err := e.lookupFunction(receiver, fn)
		if err != nil {
			return nil, err
		}
		jsArgs, err := e.goToV8Args(args)
		if err != nil {
			return nil, err
		}
		out, err := f.Call(recv, jsArgs...)
		if err != nil {
			return nil, err
		}
		return e.resolvePromise(out, deadline)
	})
	if err != nil {
		return nil, err
	}
	return v8ToGo(val)
}

func (e *v8Engine) CallAsync(receiver, fn string, args []any) (Pending, error) {
	val, err := e.run(func() (*v8.Value, error) {
		recv, f, err := e.lookupFunction(receiver, fn)
		if err != nil {
			return nil, err
		}
		jsArgs, err := e.goToV8Args(args)
		if err != nil {
			return nil, err
		}
		return f.Call(recv, jsArgs...)
	})
	if err != nil {
		return nil, err
	}
	return &v8Pending{val: val}, nil
}

// v8Pending is one in-flight call. Poll never pumps microtasks; the
// promise only makes progress through Advance.
type v8Pending struct {
	val *v8.Value
}

func (p *v8Pending) Poll() (any, bool, error) {
	if p.val == nil {
		return nil, true, nil
	}
	if !p.val.IsPromise() {
		v, err := v8ToGo(p.val)
		return v, true, err
	}
	prom, err := p.val.AsPromise()
	if err != nil {
		return nil, false, translateV8Error(err)
	}
	switch prom.State() {
	case v8.Fulfilled:
		v, err := v8ToGo(prom.Result())
		return v, true, err
	case v8.Rejected:
		return nil, true, &RuntimeError{Message: prom.Result().DetailString()}
	default:
		return nil, false, nil
	}
}

func (e *v8Engine) GetValue(name string) (any, error) {
	val, err := e.vctx.Global().Get(name)
	if err != nil {
		return nil, translateV8Error(err)
	}
	if val.IsUndefined() {
		return nil, fmt.Errorf("%q: %w", name, ErrValueNotFound)
	}
	return v8ToGo(val)
}

func (e *v8Engine) LoadScript(origin, src string) error {
	_, err := e.run(func() (*v8.Value, error) {
		return e.vctx.RunScript(src, origin)
	})
	return err
}

func (e *v8Engine) Advance(opts PollOptions) (bool, error) {
	// One microtask checkpoint settles everything V8 has queued; there is
	// no separate platform message loop exposed, so PumpMessageLoop adds
	// nothing here.
	e.vctx.PerformMicrotaskCheckpoint()
	return false, nil
}

// Reset recreates the context from the isolate, dropping all global state
func (e *v8Engine) Reset() error {
	if e.vctx != nil {
		e.vctx.Close()
	}
	e.vctx = v8.NewContext(e.iso)
	return nil
}

func (e *v8Engine) Close() error {
	if e.vctx != nil {
		e.vctx.Close()
		e.vctx = nil
	}
	if e.iso != nil {
		e.iso.Dispose()
		e.iso = nil
	}
	return nil
}

// lookupFunction resolves fn on the global object, or on the named global
// when receiver is non-empty.
func (e *v8Engine) lookupFunction(receiver, fn string) (*v8.Object, *v8.Function, error) {
	recv := e.vctx.Global()
	if receiver != "" {
		val, err := e.vctx.Global().Get(receiver)
		if err != nil {
			return nil, nil, err
		}
		if val.IsUndefined() || val.IsNull() {
			return nil, nil, &RuntimeError{Message: fmt.Sprintf("%s is not defined", receiver)}
		}
		recv, err = val.AsObject()
		if err != nil {
			return nil, nil, err
		}
	}
	fnVal, err := recv.Get(fn)
	if err != nil {
		return nil, nil, err
	}
	if fnVal.IsUndefined() {
		return nil, nil, &RuntimeError{Message: fmt.Sprintf("%s is not a function", fn)}
	}
	f, err := fnVal.AsFunction()
	if err != nil {
		return nil, nil, &RuntimeError{Message: fmt.Sprintf("%s is not a function", fn)}
	}
	return recv, f, nil
}

// resolvePromise pumps V8's microtask queue until a returned promise
// settles, bounded by the deadline.
func (e *v8Engine) resolvePromise(val *v8.Value, deadline time.Time) (*v8.Value, error) {
	for {
		if !val.IsPromise() {
			return val, nil
		}
		prom, err := val.AsPromise()
		if err != nil {
			return nil, err
		}
		switch prom.State() {
		case v8.Fulfilled:
			return prom.Result(), nil
		case v8.Rejected:
			return nil, &RuntimeError{Message: prom.Result().DetailString()}
		case v8.Pending:
			e.vctx.PerformMicrotaskCheckpoint()
			if time.Now().After(deadline) {
				return nil, &RuntimeError{Message: "timed out waiting for promise to resolve"}
			}
			runtime.Gosched()
		}
	}
}

// goToV8Args converts call arguments through their JSON form.
func (e *v8Engine) goToV8Args(args []any) ([]v8.Valuer, error) {
	out := make([]v8.Valuer, 0, len(args))
	for _, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encoding argument: %w", err)
		}
		val, err := v8.JSONParse(e.vctx, string(data))
		if err != nil {
			return nil, translateV8Error(err)
		}
		out = append(out, val)
	}
	return out, nil
}

// v8ToGo converts an engine value to its Go representation via JSON.
func v8ToGo(val *v8.Value) (any, error) {
	if val == nil || val.IsNullOrUndefined() {
		return nil, nil
	}
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, &RuntimeError{Message: fmt.Sprintf("value is not serializable: %v", err)}
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &RuntimeError{Message: fmt.Sprintf("value is not serializable: %v", err)}
	}
	return out, nil
}
