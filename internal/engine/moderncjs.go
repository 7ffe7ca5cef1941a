//go:build use_moderncjs

package engine

import (
	"encoding/json"
	"fmt"

	"modernc.org/quickjs"
)

func init() {
	defaultEngineType = EngineModerncJS
}

// New creates the default engine for this build
func New(opts Options) (Engine, error) {
	return newModerncJSEngine(opts)
}

// moderncJSEngine wraps modernc.org/quickjs, the pure Go QuickJS port.
// Eval returns native Go values, so the JSON envelope only carries the
// undefined flag and object shapes.
type moderncJSEngine struct {
	vm     *quickjs.VM
	opts   Options
	nextID uint64
}

func newModerncJSEngine(opts Options) (*moderncJSEngine, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating quickjs vm: %w", err)
	}
	if opts.MaxHeapSize > 0 {
		vm.SetMemoryLimit(uintptr(opts.MaxHeapSize))
	}
	return &moderncJSEngine{vm: vm, opts: opts}, nil
}

func (m *moderncJSEngine) evalRaw(src string) error {
	if _, err := m.vm.Eval(src, quickjs.EvalGlobal); err != nil {
		return &RuntimeError{Message: err.Error()}
	}
	return nil
}

// evalEnvelope evaluates an expression, returning its JSON-decoded value
// and whether it was undefined.
func (m *moderncJSEngine) evalEnvelope(expr string) (any, bool, error) {
	script := `JSON.stringify((() => { const __v = (` + expr + `); return __v === undefined ? {u:1} : {v:__v}; })())`
	res, err := m.vm.Eval(script, quickjs.EvalGlobal)
	if err != nil {
		return nil, false, &RuntimeError{Message: err.Error()}
	}
	s, ok := res.(string)
	if !ok {
		return nil, false, &RuntimeError{Message: fmt.Sprintf("value is not serializable: %T", res)}
	}
	var env struct {
		U int `json:"u"`
		V any `json:"v"`
	}
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, false, &RuntimeError{Message: fmt.Sprintf("value is not serializable: %v", err)}
	}
	return env.V, env.U == 1, nil
}

func (m *moderncJSEngine) Eval(src string) (any, error) {
	v, _, err := m.evalEnvelope(`(0, eval)(` + mjsString(src) + `)`)
	return v, err
}

func (m *moderncJSEngine) callExpr(receiver, fn string, args []any) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding arguments: %w", err)
	}
	recv := "globalThis"
	if receiver != "" {
		recv = "globalThis[" + mjsString(receiver) + "]"
	}
	return recv + "[" + mjsString(fn) + "](...JSON.parse(" + mjsString(string(argsJSON)) + "))", nil
}

func (m *moderncJSEngine) Call(receiver, fn string, args []any) (any, error) {
	call, err := m.callExpr(receiver, fn, args)
	if err != nil {
		return nil, err
	}
	setup := `globalThis.__mjs_call = { done: false };
Promise.resolve(` + call + `).then(
	v => { const c = globalThis.__mjs_call; c.done = true; c.value = v; },
	e => { const c = globalThis.__mjs_call; c.done = true; c.failed = true; c.reason = String(e && e.stack || e); });`
	if err := m.evalRaw(setup); err != nil {
		return nil, err
	}
	v, _, err := m.evalEnvelope(`(() => {
		const c = globalThis.__mjs_call;
		delete globalThis.__mjs_call;
		if (!c.done) throw new Error("promise did not settle");
		if (c.failed) throw new Error(c.reason);
		return c.value;
	})()`)
	return v, err
}

func (m *moderncJSEngine) CallAsync(receiver, fn string, args []any) (Pending, error) {
	call, err := m.callExpr(receiver, fn, args)
	if err != nil {
		return nil, err
	}
	m.nextID++
	slot := fmt.Sprintf("__mjs_p%d", m.nextID)
	setup := `globalThis.` + slot + ` = { done: false };
Promise.resolve(` + call + `).then(
	v => { const c = globalThis.` + slot + `; c.done = true; c.value = v; },
	e => { const c = globalThis.` + slot + `; c.done = true; c.failed = true; c.reason = String(e && e.stack || e); });`
	if err := m.evalRaw(setup); err != nil {
		return nil, err
	}
	return &moderncJSPending{engine: m, slot: slot}, nil
}

type moderncJSPending struct {
	engine *moderncJSEngine
	slot   string
}

func (p *moderncJSPending) Poll() (any, bool, error) {
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

func (m *moderncJSEngine) GetValue(name string) (any, error) {
	v, undef, err := m.evalEnvelope("globalThis[" + mjsString(name) + "]")
	if err != nil {
		return nil, err
	}
	if undef {
		return nil, fmt.Errorf("%q: %w", name, ErrValueNotFound)
	}
	return v, nil
}

func (m *moderncJSEngine) LoadScript(origin, src string) error {
	return m.evalRaw(src)
}

func (m *moderncJSEngine) Advance(opts PollOptions) (bool, error) {
	// Each Eval runs pending jobs; an empty statement is enough to turn
	// the queue over.
	return false, m.evalRaw("void 0;")
}

// Reset prepares the engine for reuse
// Pure Go implementation - just close and create a new VM
func (m *moderncJSEngine) Reset() error {
	if m.vm != nil {
		m.vm.Close()
	}
	vm, err := quickjs.NewVM()
	if err != nil {
		return fmt.Errorf("creating quickjs vm: %w", err)
	}
	if m.opts.MaxHeapSize > 0 {
		vm.SetMemoryLimit(uintptr(m.opts.MaxHeapSize))
	}
	m.vm = vm
	return nil
}

func (m *moderncJSEngine) Close() error {
	if m.vm != nil {
		m.vm.Close()
		m.vm = nil
	}
	return nil
}

func mjsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
