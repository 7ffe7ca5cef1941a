package jsbind

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yejune/jsbind/internal/engine"
	"github.com/yejune/jsbind/internal/locked"
)

// fakePending settles after a fixed number of polls.
type fakePending struct {
	polls       int
	settleAfter int
	value       any
	failure     error
}

func (f *fakePending) Poll() (any, bool, error) {
	f.polls++
	if f.polls >= f.settleAfter {
		return f.value, true, f.failure
	}
	return nil, false, nil
}

// bareContext builds a context around a nil engine; enough for stepping
// promises whose pending op never touches the engine.
func bareContext() *Context {
	return &Context{
		cell:   locked.New(engineState{}),
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		config: &Config{},
	}
}

func TestPromiseBeforeCompletion(t *testing.T) {
	p := newPromise(&fakePending{settleAfter: 100})

	assert.False(t, p.IsDone())

	_, err := p.Result()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, p.Err(), ErrInvalidState)
}

func TestPromiseStepLatchesOnce(t *testing.T) {
	fake := &fakePending{settleAfter: 3, value: "done"}
	p := newPromise(fake)
	jc := bareContext()

	done, err := p.Step(jc)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = p.Step(jc)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = p.Step(jc)
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, p.IsDone())

	v, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.NoError(t, p.Err())

	// Stepping a done promise returns true and never polls again.
	pollsAtDone := fake.polls
	done, err = p.Step(jc)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, pollsAtDone, fake.polls)

	// The outcome stays latched.
	v, err = p.Result()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestPromiseFailureLatched(t *testing.T) {
	failure := &RuntimeError{Message: "boom"}
	p := newPromise(&fakePending{settleAfter: 1, failure: failure})
	jc := bareContext()

	done, err := p.Step(jc)
	require.NoError(t, err)
	require.True(t, done)

	_, err = p.Result()
	assert.ErrorIs(t, err, error(failure))
	assert.ErrorIs(t, p.Err(), error(failure))
}

func TestPromiseWaitDrives(t *testing.T) {
	p := newPromise(&fakePending{settleAfter: 5, value: float64(7)})
	jc := newEngineContext(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := p.Wait(ctx, jc)
	require.NoError(t, err)
	assert.Equal(t, float64(7), v)
}

func TestPromiseWaitCancelled(t *testing.T) {
	// Never settles.
	p := newPromise(&fakePending{settleAfter: 1 << 30})
	jc := newEngineContext(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx, jc)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Ensure the fake satisfies the interface the engine hands out.
var _ engine.Pending = (*fakePending)(nil)
