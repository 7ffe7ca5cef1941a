//go:build use_quickjs

package engine

import (
	"encoding/json"
	"fmt"

	"github.com/buke/quickjs-go"
)

func init() {
	defaultEngineType = EngineQuickJS
}

// New creates the default engine for this build
func New(opts Options) (Engine, error) {
	return newQuickJSEngine(opts)
}

// quickJSEngine wraps QuickJS. Values move across the boundary in JSON
// form, assembled and picked apart on the JS side so that only the small
// verified surface of the bindings is needed.
type quickJSEngine struct {
	runtime *quickjs.Runtime
	qctx    *quickjs.Context
	opts    Options
	nextID  uint64
}

func newQuickJSEngine(opts Options) (*quickJSEngine, error) {
	var rtOpts []quickjs.Option
	if opts.MaxHeapSize > 0 {
		rtOpts = append(rtOpts, quickjs.WithMemoryLimit(opts.MaxHeapSize))
	}
	if opts.Timeout > 0 {
		secs := uint64(opts.Timeout.Seconds())
		if secs == 0 {
			secs = 1
		}
		rtOpts = append(rtOpts, quickjs.WithExecuteTimeout(secs))
	}
	rt := quickjs.NewRuntime(rtOpts...)
	ctx := rt.NewContext()
	return &quickJSEngine{
		runtime: rt,
		qctx:    ctx,
		opts:    opts,
	}, nil
}

// evalRaw evaluates a script for its side effects.
func (q *quickJSEngine) evalRaw(src string) error {
	res := q.qctx.Eval(src)
	defer res.Free()
	if res.IsException() {
		return &RuntimeError{Message: res.Error().Error()}
	}
	return nil
}

// evalEnvelope evaluates an expression and returns its value through a
// JSON envelope, with undefined reported separately.
func (q *quickJSEngine) evalEnvelope(expr string) (any, bool, error) {
	script := `JSON.stringify((() => { const __v = (` + expr + `); return __v === undefined ? {u:1} : {v:__v}; })())`
	res := q.qctx.Eval(script)
	defer res.Free()
	if res.IsException() {
		return nil, false, &RuntimeError{Message: res.Error().Error()}
	}
	var env struct {
		U int `json:"u"`
		V any `json:"v"`
	}
	if err := json.Unmarshal([]byte(res.String()), &env); err != nil {
		return nil, false, &RuntimeError{Message: fmt.Sprintf("value is not serializable: %v", err)}
	}
	return env.V, env.U == 1, nil
}

func (q *quickJSEngine) Eval(src string) (any, error) {
	// Indirect eval runs in global scope and yields the completion value.
	v, _, err := q.evalEnvelope(`(0, eval)(` + jsString(src) + `)`)
	return v, err
}

// callExpr builds the invocation expression. Indexing keeps the receiver
// bound as `this`.
func (q *quickJSEngine) callExpr(receiver, fn string, args []any) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding arguments: %w", err)
	}
	recv := "globalThis"
	if receiver != "" {
		recv = "globalThis[" + jsString(receiver) + "]"
	}
	return recv + "[" + jsString(fn) + "](...JSON.parse(" + jsString(string(argsJSON)) + "))", nil
}

func (q *quickJSEngine) Call(receiver, fn string, args []any) (any, error) {
	call, err := q.callExpr(receiver, fn, args)
	if err != nil {
		return nil, err
	}
	setup := `globalThis.__qjs_call = { done: false };
Promise.resolve(` + call + `).then(
	v => { const c = globalThis.__qjs_call; c.done = true; c.value = v; },
	e => { const c = globalThis.__qjs_call; c.done = true; c.failed = true; c.reason = String(e && e.stack || e); });`
	if err := q.evalRaw(setup); err != nil {
		return nil, err
	}
	// Drain the job queue so the promise chain settles.
	q.qctx.Loop()
	v, _, err := q.evalEnvelope(`(() => {
		const c = globalThis.__qjs_call;
		delete globalThis.__qjs_call;
		if (!c.done) throw new Error("promise did not settle");
		if (c.failed) throw new Error(c.reason);
		return c.value;
	})()`)
	return v, err
}

func (q *quickJSEngine) CallAsync(receiver, fn string, args []any) (Pending, error) {
	call, err := q.callExpr(receiver, fn, args)
	if err != nil {
		return nil, err
	}
	q.nextID++
	slot := fmt.Sprintf("__qjs_p%d", q.nextID)
	setup := `globalThis.` + slot + ` = { done: false };
Promise.resolve(` + call + `).then(
	v => { const c = globalThis.` + slot + `; c.done = true; c.value = v; },
	e => { const c = globalThis.` + slot + `; c.done = true; c.failed = true; c.reason = String(e && e.stack || e); });`
	if err := q.evalRaw(setup); err != nil {
		return nil, err
	}
	return &quickJSPending{engine: q, slot: slot}, nil
}

// quickJSPending reads the capture slot for one async call.
type quickJSPending struct {
	engine *quickJSEngine
	slot   string
}

func (p *quickJSPending) Poll() (any, bool, error) {
	v, _, err := p.engine.evalEnvelope(`(() => {
		const c = globalThis.` + p.slot + `;
		if (!c.done) return { done: false };
		delete globalThis.` + p.slot + `;
		return { done: true, failed: !!c.failed, reason: c.reason, value: c.value };
	})()`)
	if err != nil {
		return nil, false, err
	}
	state, ok := v.(map[string]any)
	if !ok {
		return nil, false, &RuntimeError{Message: "async call state lost"}
	}
	if done, _ := state["done"].(bool); !done {
		return nil, false, nil
	}
	if failed, _ := state["failed"].(bool); failed {
		reason, _ := state["reason"].(string)
		return nil, true, &RuntimeError{Message: reason}
	}
	return state["value"], true, nil
}

func (q *quickJSEngine) GetValue(name string) (any, error) {
	v, undef, err := q.evalEnvelope("globalThis[" + jsString(name) + "]")
	if err != nil {
		return nil, err
	}
	if undef {
		return nil, fmt.Errorf("%q: %w", name, ErrValueNotFound)
	}
	return v, nil
}

func (q *quickJSEngine) LoadScript(origin, src string) error {
	return q.evalRaw(src)
}

func (q *quickJSEngine) Advance(opts PollOptions) (bool, error) {
	// Loop runs queued jobs until the queue is empty.
	q.qctx.Loop()
	return false, nil
}

// Reset prepares the engine for reuse
// QuickJS contexts can accumulate state, so we recreate the context
func (q *quickJSEngine) Reset() error {
	if q.qctx != nil {
		q.qctx.Close()
	}
	q.qctx = q.runtime.NewContext()
	return nil
}

func (q *quickJSEngine) Close() error {
	if q.qctx != nil {
		q.qctx.Close()
		q.qctx = nil
	}
	if q.runtime != nil {
		q.runtime.Close()
		q.runtime = nil
	}
	return nil
}

// jsString renders s as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
