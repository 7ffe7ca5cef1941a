package locked

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithExclusiveAccess(t *testing.T) {
	cell := New(0)

	// Many goroutines incrementing without their own synchronization.
	// The final count is only correct if access is fully serialized.
	var wg sync.WaitGroup
	const n = 100
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cell.With(func(v *int) error {
				*v++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err := cell.With(func(v *int) error {
		assert.Equal(t, n, *v)
		return nil
	})
	require.NoError(t, err)
}

func TestWithReturnsCallbackError(t *testing.T) {
	cell := New("value")
	wantErr := errors.New("boom")

	err := cell.With(func(v *string) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// A plain error does not poison the cell.
	err = cell.With(func(v *string) error {
		assert.Equal(t, "value", *v)
		return nil
	})
	assert.NoError(t, err)
}

func TestPanicPoisonsCell(t *testing.T) {
	cell := New(42)

	require.Panics(t, func() {
		_ = cell.With(func(v *int) error {
			panic("holder died")
		})
	})

	err := cell.With(func(v *int) error {
		t.Fatal("callback must not run on a poisoned cell")
		return nil
	})
	assert.ErrorIs(t, err, ErrPoisoned)

	// Poisoning is permanent.
	err = cell.With(func(v *int) error { return nil })
	assert.ErrorIs(t, err, ErrPoisoned)
}
