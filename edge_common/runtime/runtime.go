// Package runtime abstracts "something that turns (layer_index, tensor)
// into tensor" so the suffix executor never depends on a particular
// numeric framework. Two concrete variants are provided:
// CachedNativeRuntime, which wraps an externally-supplied artefact loader
// (the out-of-scope NN runtime collaborator) and caches the loaded
// artefact per layer; and MockRuntime, used exclusively by tests.
package runtime

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Tensor is an opaque activation buffer threaded between layers.
type Tensor []float32

// Artefact is whatever a loaded single-layer compute object is. The
// runtime package never inspects it; Evaluator does.
type Artefact interface{}

// ArtefactLoader loads the compiled artefact for one layer. This is the
// seam into the external, out-of-scope NN runtime.
type ArtefactLoader func(layerIndex int) (Artefact, error)

// Evaluator runs one loaded artefact against an input tensor.
type Evaluator func(artefact Artefact, layerIndex int, input Tensor) (Tensor, error)

// Runtime evaluates a single layer given its input tensor and reports the
// wall-clock time spent, excluding any artificially injected delay.
type Runtime interface {
	Evaluate(layerIndex int, input Tensor) (output Tensor, wallTime time.Duration, err error)
}

// ErrMissingArtefact is returned when a layer's compiled artefact cannot
// be loaded. It fails the inference in progress, not the process. The
// failed load is cached, so every later Evaluate of that layer returns
// the same error without calling the loader again.
var ErrMissingArtefact = errors.New("runtime: layer artefact missing")

// ErrShapeMismatch is returned when the input tensor's length doesn't
// match what the layer declares it expects.
var ErrShapeMismatch = errors.New("runtime: input tensor shape mismatch")

// CachedNativeRuntime amortises artefact load cost: each layer's artefact
// is loaded at most once, with first-touch serialised per layer via
// sync.Once so concurrent suffix runs never double-load.
type CachedNativeRuntime struct {
	load   ArtefactLoader
	eval   Evaluator
	expect map[int]int // layerIndex -> expected input length, optional

	mu    sync.Mutex
	once  map[int]*sync.Once
	cache map[int]Artefact
	errs  map[int]error
}

// NewCachedNativeRuntime builds a runtime around the given loader and
// evaluator. expect, if non-nil, enables input-shape validation.
func NewCachedNativeRuntime(load ArtefactLoader, eval Evaluator, expect map[int]int) *CachedNativeRuntime {
	return &CachedNativeRuntime{
		load:   load,
		eval:   eval,
		expect: expect,
		once:   make(map[int]*sync.Once),
		cache:  make(map[int]Artefact),
		errs:   make(map[int]error),
	}
}

func (r *CachedNativeRuntime) onceFor(layerIndex int) *sync.Once {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.once[layerIndex]
	if !ok {
		o = &sync.Once{}
		r.once[layerIndex] = o
	}
	return o
}

// Evaluate loads (if necessary) and runs layerIndex's artefact.
func (r *CachedNativeRuntime) Evaluate(layerIndex int, input Tensor) (Tensor, time.Duration, error) {
	if r.expect != nil {
		if want, ok := r.expect[layerIndex]; ok && want != len(input) {
			return nil, 0, errors.Wrapf(ErrShapeMismatch, "layer %d expected input length %d, got %d", layerIndex, want, len(input))
		}
	}

	r.onceFor(layerIndex).Do(func() {
		artefact, err := r.load(layerIndex)
		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.errs[layerIndex] = errors.Wrapf(ErrMissingArtefact, "layer %d: %v", layerIndex, err)
			return
		}
		r.cache[layerIndex] = artefact
	})

	r.mu.Lock()
	artefact, loadErr := r.cache[layerIndex], r.errs[layerIndex]
	r.mu.Unlock()
	if loadErr != nil {
		return nil, 0, loadErr
	}

	start := time.Now()
	out, err := r.eval(artefact, layerIndex, input)
	elapsed := time.Since(start)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "layer %d evaluation failed", layerIndex)
	}
	return out, elapsed, nil
}

// MockRuntime is a deterministic test double: it returns Fn's transform
// of the input (identity unless a test replaces Fn) and sleeps for a
// configurable, fixed delay per layer. That delay stands in for the
// layer's compute time and is reported back as the wall time, so
// timing-sensitive tests are reproducible.
type MockRuntime struct {
	mu      sync.Mutex
	Delay   map[int]time.Duration
	Fn      func(layerIndex int, input Tensor) (Tensor, error)
	Calls   map[int]int
	FailOn  map[int]error
}

// NewMockRuntime builds a MockRuntime with an identity transform by
// default (output == input).
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Delay:  make(map[int]time.Duration),
		Calls:  make(map[int]int),
		FailOn: make(map[int]error),
		Fn: func(_ int, input Tensor) (Tensor, error) {
			out := make(Tensor, len(input))
			copy(out, input)
			return out, nil
		},
	}
}

// Evaluate implements Runtime.
func (m *MockRuntime) Evaluate(layerIndex int, input Tensor) (Tensor, time.Duration, error) {
	m.mu.Lock()
	m.Calls[layerIndex]++
	if err, ok := m.FailOn[layerIndex]; ok {
		m.mu.Unlock()
		return nil, 0, err
	}
	delay := m.Delay[layerIndex]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	out, err := m.Fn(layerIndex, input)
	if err != nil {
		return nil, delay, err
	}
	return out, delay, nil
}
