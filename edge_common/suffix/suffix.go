// Package suffix implements the edge-side suffix executor (C5): given a
// split index k and the device's intermediate activation, it runs layers
// k+1..N-1 on the edge runtime, threading outputs to inputs through the
// model's DAG, and is the sole writer of edge-side timings into the
// timing store and variance detector.
//
// Grounded on original_source/src/server/edge/edge_initialization.py's
// Edge.run_inference, generalised from its implicit Keras-layer inbound
// node walk to an explicit layer_id -> tensor map per run.
package suffix

import (
	"fmt"

	"edgesplit/edge_common/metrics"
	"edgesplit/edge_common/model"
	"edgesplit/edge_common/runtime"
	"edgesplit/edge_common/timingstore"
	"edgesplit/edge_common/variance"
)

// Executor runs the edge-side suffix of a model for one inference.
type Executor struct {
	m       *model.Model
	rt      runtime.Runtime
	timings *timingstore.Store
	vdet    *variance.Detector
}

// New builds an Executor bound to a model, a runtime, and the shared
// timing store / variance detector it must report into.
func New(m *model.Model, rt runtime.Runtime, timings *timingstore.Store, vdet *variance.Detector) *Executor {
	return &Executor{m: m, rt: rt, timings: timings, vdet: vdet}
}

// Run executes layers k+1..N-1 given the device's activation. If k == -1
// or k >= N-1, the device already produced the terminal output and the
// activation is returned unchanged (spec's equivalence of -1 and >=N).
func (e *Executor) Run(k int, activation runtime.Tensor) (runtime.Tensor, error) {
	n := e.m.N()
	if k == -1 || k >= n-1 {
		return activation, nil
	}

	// layer -> last_output map, scoped to this one run and discarded on
	// return; needed to feed layers with more than one predecessor.
	outputs := make(map[int]runtime.Tensor, n-k-1)
	outputs[k] = activation

	var last runtime.Tensor
	for i := k + 1; i < n; i++ {
		layer := e.m.Layers[i]
		input, err := gatherInput(layer, outputs, k)
		if err != nil {
			return nil, err
		}

		out, wallTime, err := e.rt.Evaluate(i, input)
		if err != nil {
			return nil, fmt.Errorf("suffix: layer %d: %w", i, err)
		}

		e.timings.UpdateEdge(i, wallTime.Seconds())
		if e.vdet.Add(variance.Edge, i, wallTime.Seconds()) {
			metrics.VarianceFlagsTotal.WithLabelValues("edge").Inc()
		}

		outputs[i] = out
		last = out
	}
	return last, nil
}

// gatherInput builds the single input tensor a layer expects. A layer
// with exactly one inbound id is fed that layer's output. For a layer
// with more than one inbound id, only the first inbound layer's output
// is passed to the runtime; the outputs of the other inbound layers are
// not passed on and no fan-in is performed. For the common linear chain
// (one inbound) this is simply "the previous layer's output".
func gatherInput(layer model.Layer, outputs map[int]runtime.Tensor, splitK int) (runtime.Tensor, error) {
	if len(layer.InboundIDs) == 0 {
		if out, ok := outputs[splitK]; ok {
			return out, nil
		}
		return nil, fmt.Errorf("suffix: layer %d has no inbound layers and no seed activation available", layer.Index)
	}
	first := layer.InboundIDs[0]
	out, ok := outputs[first]
	if !ok {
		return nil, fmt.Errorf("suffix: layer %d requires output of layer %d, which has not been produced", layer.Index, first)
	}
	return out, nil
}
