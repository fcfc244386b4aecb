// Package delaysim provides artificial delay injection for test and
// benchmark scenarios: static, gaussian, uniform, and exponential
// distributions over an added time.Duration. It is never enabled by
// default and has no effect on production request handling unless a
// config explicitly turns it on.
//
// Grounded on original_source's DelaySimulator, which injects computation
// and network delay for reproducible benchmarking of the offloading
// decision under controlled conditions.
package delaysim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"edgesplit/edge_common/config"
)

// Simulator draws an artificial delay from a configured distribution.
type Simulator struct {
	spec config.DelaySpec
	rng  *rand.Rand
}

// New builds a Simulator from a DelaySpec. A disabled spec produces a
// Simulator whose Delay always returns 0.
func New(spec config.DelaySpec, seed int64) (*Simulator, error) {
	if spec.Enabled {
		switch spec.Type {
		case config.DelayStatic, config.DelayGaussian, config.DelayUniform, config.DelayExponential:
		default:
			return nil, fmt.Errorf("delaysim: unrecognized delay type %q", spec.Type)
		}
	}
	return &Simulator{spec: spec, rng: rand.New(rand.NewSource(seed))}, nil
}

// Delay returns one sample from the configured distribution, or 0 if the
// simulator is disabled.
func (s *Simulator) Delay() time.Duration {
	if !s.spec.Enabled {
		return 0
	}
	var seconds float64
	switch s.spec.Type {
	case config.DelayStatic:
		seconds = s.spec.Value
	case config.DelayGaussian:
		seconds = s.rng.NormFloat64()*s.spec.StdDev + s.spec.Mean
		if seconds < 0 {
			seconds = 0
		}
	case config.DelayUniform:
		lo, hi := s.spec.Min, s.spec.Max
		if hi < lo {
			lo, hi = hi, lo
		}
		seconds = lo + s.rng.Float64()*(hi-lo)
	case config.DelayExponential:
		lambda := s.spec.Mean
		if lambda <= 0 {
			return 0
		}
		seconds = -math.Log(1-s.rng.Float64()) * lambda
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
