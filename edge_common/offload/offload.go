// Package offload implements the offloading optimiser (C4): given
// per-layer device/edge timings, layer sizes, and a link speed (or
// explicit net vector), it returns the split index k that minimises
// predicted end-to-end latency. It is a pure function package: no
// receiver, no shared state, safe to call concurrently and re-run on
// every report.
package offload

import "fmt"

const (
	// bytesPerFloat32 reflects float32 element width.
	bytesPerFloat32 = 4
	// bytesPerKB converts bytes to kibibytes.
	bytesPerKB = 1024
)

// Result is the optimiser's output: the chosen split and the full
// per-k total latency vector it was derived from (exposed for testing
// property 2/3 and for diagnostics).
type Result struct {
	K      int
	Totals []float64 // Totals[k] for k = 0..N
}

// Plan computes k* = argmin_k total[k], where
//   total[k] = sum_{i<k} T_device[i] + net[k] + sum_{j>=k} T_edge[j]
// Ties resolve to the smallest k (prefers offloading). netFromSpeed
// derives net[i] = S[i]*4/1024 / avgSpeed for i < N, net[N] = net[N-1].
func Plan(tDevice, tEdge, sizes []float64, avgSpeed float64) (Result, error) {
	n := len(tDevice)
	if n == 0 {
		return Result{}, fmt.Errorf("offload: N=0 is invalid")
	}
	if len(tEdge) != n || len(sizes) != n {
		return Result{}, fmt.Errorf("offload: mismatched vector lengths (device=%d edge=%d sizes=%d)", n, len(tEdge), len(sizes))
	}
	if avgSpeed <= 0 {
		return Result{}, fmt.Errorf("offload: avg_speed must be positive, got %v", avgSpeed)
	}

	net := make([]float64, n+1)
	for i := 0; i < n; i++ {
		net[i] = sizes[i] * bytesPerFloat32 / bytesPerKB / avgSpeed
	}
	net[n] = net[n-1]

	return PlanWithNet(tDevice, tEdge, net)
}

// PlanWithNet is Plan's lower-level form: the caller supplies net directly
// instead of a scalar link speed. net may have length 1, N, or N+1;
// shorter forms are broadcast: length 1 broadcasts to every index, length
// N is extended with net[N] = net[N-1].
func PlanWithNet(tDevice, tEdge, net []float64) (Result, error) {
	n := len(tDevice)
	if n == 0 {
		return Result{}, fmt.Errorf("offload: N=0 is invalid")
	}
	if len(tEdge) != n {
		return Result{}, fmt.Errorf("offload: mismatched vector lengths (device=%d edge=%d)", n, len(tEdge))
	}

	fullNet, err := broadcastNet(net, n)
	if err != nil {
		return Result{}, err
	}

	prefixDevice := make([]float64, n+1)
	for k := 0; k < n; k++ {
		prefixDevice[k+1] = prefixDevice[k] + tDevice[k]
	}

	suffixEdge := make([]float64, n+1)
	for k := n - 1; k >= 0; k-- {
		suffixEdge[k] = suffixEdge[k+1] + tEdge[k]
	}

	totals := make([]float64, n+1)
	bestK := 0
	bestTotal := 0.0
	for k := 0; k <= n; k++ {
		totals[k] = prefixDevice[k] + fullNet[k] + suffixEdge[k]
		if k == 0 || totals[k] < bestTotal {
			bestTotal = totals[k]
			bestK = k
		}
	}

	return Result{K: bestK, Totals: totals}, nil
}

func broadcastNet(net []float64, n int) ([]float64, error) {
	switch len(net) {
	case 1:
		out := make([]float64, n+1)
		for i := range out {
			out[i] = net[0]
		}
		return out, nil
	case n:
		out := make([]float64, n+1)
		copy(out, net)
		out[n] = net[n-1]
		return out, nil
	case n + 1:
		return net, nil
	default:
		return nil, fmt.Errorf("offload: net vector length %d is not 1, %d, or %d", len(net), n, n+1)
	}
}
