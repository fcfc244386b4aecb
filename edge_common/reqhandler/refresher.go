package reqhandler

import (
	"math/rand"
	"sync"
)

// refresher is the Bernoulli gate from spec section 4.8: when it fires
// during handling of a device result, the handler returns k* = -1
// instead of the optimiser's answer, forcing the next inference fully
// onto the device so C2/C3 get clean, unbiased device-side samples.
type refresher struct {
	mu          sync.Mutex
	enabled     bool
	probability float64
	rng         *rand.Rand
}

func newRefresher(enabled bool, probability float64, seed int64) *refresher {
	return &refresher{
		enabled:     enabled,
		probability: probability,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// fire draws one Bernoulli(probability) sample. A disabled refresher
// never fires regardless of probability.
func (r *refresher) fire() bool {
	if !r.enabled || r.probability <= 0 {
		return false
	}
	if r.probability >= 1 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.probability
}
