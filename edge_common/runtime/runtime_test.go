package runtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// pkg/errors v0.8.1 predates Unwrap support, so stdlib errors.Is/As can't
// see through errors.Wrapf chains here; assertions below compare against
// errors.Cause instead, matching how the rest of this codebase unwraps
// pkg/errors-wrapped causes.

func TestCachedNativeRuntimeLoadsArtefactOnce(t *testing.T) {
	assert := require.New(t)

	var loads int32
	loader := func(layerIndex int) (Artefact, error) {
		atomic.AddInt32(&loads, 1)
		return layerIndex, nil
	}
	eval := func(artefact Artefact, _ int, input Tensor) (Tensor, error) {
		out := make(Tensor, len(input))
		copy(out, input)
		return out, nil
	}
	rt := NewCachedNativeRuntime(loader, eval, nil)

	_, _, err := rt.Evaluate(0, Tensor{1, 2})
	assert.NoError(err)
	_, _, err = rt.Evaluate(0, Tensor{3, 4})
	assert.NoError(err)

	assert.EqualValues(1, atomic.LoadInt32(&loads))
}

func TestCachedNativeRuntimeCachesPerLayerIndependently(t *testing.T) {
	assert := require.New(t)

	var loads int32
	loader := func(layerIndex int) (Artefact, error) {
		atomic.AddInt32(&loads, 1)
		return layerIndex, nil
	}
	eval := func(artefact Artefact, _ int, input Tensor) (Tensor, error) {
		return input, nil
	}
	rt := NewCachedNativeRuntime(loader, eval, nil)

	_, _, err := rt.Evaluate(0, Tensor{1})
	assert.NoError(err)
	_, _, err = rt.Evaluate(1, Tensor{2})
	assert.NoError(err)

	assert.EqualValues(2, atomic.LoadInt32(&loads))
}

func TestCachedNativeRuntimeReturnsOutputAndElapsed(t *testing.T) {
	assert := require.New(t)

	loader := func(layerIndex int) (Artefact, error) { return nil, nil }
	eval := func(_ Artefact, _ int, input Tensor) (Tensor, error) {
		time.Sleep(5 * time.Millisecond)
		out := make(Tensor, len(input))
		for i, v := range input {
			out[i] = v * 2
		}
		return out, nil
	}
	rt := NewCachedNativeRuntime(loader, eval, nil)

	out, elapsed, err := rt.Evaluate(0, Tensor{1, 2, 3})
	assert.NoError(err)
	assert.Equal(Tensor{2, 4, 6}, out)
	assert.GreaterOrEqual(elapsed, 5*time.Millisecond)
}

func TestCachedNativeRuntimeMissingArtefactIsSticky(t *testing.T) {
	assert := require.New(t)

	var loads int32
	loader := func(layerIndex int) (Artefact, error) {
		atomic.AddInt32(&loads, 1)
		return nil, errors.New("load failed")
	}
	eval := func(_ Artefact, _ int, input Tensor) (Tensor, error) { return input, nil }
	rt := NewCachedNativeRuntime(loader, eval, nil)

	_, _, err := rt.Evaluate(0, Tensor{1})
	assert.Error(err)
	assert.Equal(ErrMissingArtefact, errors.Cause(err))

	_, _, err = rt.Evaluate(0, Tensor{1})
	assert.Error(err)
	assert.Equal(ErrMissingArtefact, errors.Cause(err))
	// sync.Once guarantees the loader runs exactly once even on repeated
	// failing calls.
	assert.EqualValues(1, atomic.LoadInt32(&loads))
}

func TestCachedNativeRuntimeRejectsShapeMismatch(t *testing.T) {
	assert := require.New(t)

	loader := func(layerIndex int) (Artefact, error) { return nil, nil }
	eval := func(_ Artefact, _ int, input Tensor) (Tensor, error) { return input, nil }
	rt := NewCachedNativeRuntime(loader, eval, map[int]int{0: 3})

	_, _, err := rt.Evaluate(0, Tensor{1, 2})
	assert.Error(err)
	assert.Equal(ErrShapeMismatch, errors.Cause(err))
}

func TestCachedNativeRuntimeAllowsUndeclaredLayerShape(t *testing.T) {
	assert := require.New(t)

	loader := func(layerIndex int) (Artefact, error) { return nil, nil }
	eval := func(_ Artefact, _ int, input Tensor) (Tensor, error) { return input, nil }
	rt := NewCachedNativeRuntime(loader, eval, map[int]int{0: 3})

	out, _, err := rt.Evaluate(1, Tensor{1, 2})
	assert.NoError(err)
	assert.Equal(Tensor{1, 2}, out)
}

func TestCachedNativeRuntimePropagatesEvaluationError(t *testing.T) {
	assert := require.New(t)

	loader := func(layerIndex int) (Artefact, error) { return nil, nil }
	evalErr := errors.New("evaluation exploded")
	eval := func(_ Artefact, _ int, input Tensor) (Tensor, error) { return nil, evalErr }
	rt := NewCachedNativeRuntime(loader, eval, nil)

	_, _, err := rt.Evaluate(0, Tensor{1})
	assert.Error(err)
	assert.Equal(evalErr, errors.Cause(err))
}

func TestMockRuntimeDefaultsToIdentity(t *testing.T) {
	assert := require.New(t)

	rt := NewMockRuntime()
	out, delay, err := rt.Evaluate(0, Tensor{1, 2, 3})
	assert.NoError(err)
	assert.Equal(Tensor{1, 2, 3}, out)
	assert.Equal(time.Duration(0), delay)
}

func TestMockRuntimeAppliesConfiguredDelay(t *testing.T) {
	assert := require.New(t)

	rt := NewMockRuntime()
	rt.Delay[0] = 5 * time.Millisecond

	start := time.Now()
	_, delay, err := rt.Evaluate(0, Tensor{1})
	assert.NoError(err)
	assert.Equal(5*time.Millisecond, delay)
	assert.GreaterOrEqual(time.Since(start), 5*time.Millisecond)
}

func TestMockRuntimeFailOnReturnsConfiguredError(t *testing.T) {
	assert := require.New(t)

	rt := NewMockRuntime()
	wantErr := errors.New("layer boom")
	rt.FailOn[1] = wantErr

	_, _, err := rt.Evaluate(1, Tensor{1})
	assert.Equal(wantErr, err)
}

func TestMockRuntimeTracksCallCounts(t *testing.T) {
	assert := require.New(t)

	rt := NewMockRuntime()
	_, _, err := rt.Evaluate(0, Tensor{1})
	assert.NoError(err)
	_, _, err = rt.Evaluate(0, Tensor{2})
	assert.NoError(err)
	_, _, err = rt.Evaluate(1, Tensor{3})
	assert.NoError(err)

	assert.Equal(2, rt.Calls[0])
	assert.Equal(1, rt.Calls[1])
}

func TestMockRuntimeCustomFnOverridesIdentity(t *testing.T) {
	assert := require.New(t)

	rt := NewMockRuntime()
	rt.Fn = func(_ int, input Tensor) (Tensor, error) {
		out := make(Tensor, len(input))
		for i, v := range input {
			out[i] = v + 1
		}
		return out, nil
	}

	out, _, err := rt.Evaluate(0, Tensor{1, 2})
	assert.NoError(err)
	assert.Equal(Tensor{2, 3}, out)
}
