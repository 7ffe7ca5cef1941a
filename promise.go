package jsbind

import (
	"context"
	"runtime"

	"github.com/yejune/jsbind/internal/engine"
	"github.com/yejune/jsbind/internal/locked"
)

// Promise is one in-flight asynchronous call. It moves from pending to
// done exactly once; the outcome is latched on the first completing Step
// and never changes afterwards.
//
// A Promise does not drive the engine. Call Step to poll, Advance on the
// context to make progress, or Wait to do both in a loop.
type Promise struct {
	cell *locked.Cell[promiseState]
}

type promiseState struct {
	op      engine.Pending
	done    bool
	value   any
	failure error
}

func newPromise(op engine.Pending) *Promise {
	return &Promise{cell: locked.New(promiseState{op: op})}
}

// IsDone reports whether the outcome is latched. It never has side
// effects.
func (p *Promise) IsDone() bool {
	var done bool
	_ = p.cell.With(func(st *promiseState) error {
		done = st.done
		return nil
	})
	return done
}

// Step polls the underlying call exactly once. It returns false while the
// call is still pending and true once the outcome is latched, whether by
// this call or an earlier one. Stepping a done promise is a no-op.
func (p *Promise) Step(jc *Context) (bool, error) {
	var done bool
	err := p.cell.With(func(st *promiseState) error {
		if st.done {
			done = true
			return nil
		}
		return jc.cell.With(func(*engineState) error {
			value, settled, pollErr := st.op.Poll()
			if !settled {
				// A poll error without settlement is an engine failure,
				// not an outcome; nothing is latched.
				return pollErr
			}
			st.done = true
			st.value = value
			st.failure = pollErr
			st.op = nil
			done = true
			return nil
		})
	})
	return done, err
}

// Result returns the latched success value. A latched failure comes back
// as the error; an unfinished promise yields ErrInvalidState.
func (p *Promise) Result() (any, error) {
	var value any
	err := p.cell.With(func(st *promiseState) error {
		if !st.done {
			return ErrInvalidState
		}
		if st.failure != nil {
			return st.failure
		}
		value = st.value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Err returns the latched failure, nil if the promise succeeded, and
// ErrInvalidState if it has not finished.
func (p *Promise) Err() error {
	var failure error
	err := p.cell.With(func(st *promiseState) error {
		if !st.done {
			return ErrInvalidState
		}
		failure = st.failure
		return nil
	})
	if err != nil {
		return err
	}
	return failure
}

// Wait drives the context until the promise settles or ctx is cancelled,
// alternating Step with Advance. It returns the promise's outcome.
func (p *Promise) Wait(ctx context.Context, jc *Context) (any, error) {
	for {
		done, err := p.Step(jc)
		if err != nil {
			return nil, err
		}
		if done {
			return p.Result()
		}
		if _, err := jc.Advance(nil); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		runtime.Gosched()
	}
}
