// Package model describes the immutable layer sequence that a split
// inference is executed against: an ordered DAG of layers, each with zero
// or more inbound predecessors, executed on either the device or the edge.
package model

import "fmt"

// Kind distinguishes how a layer's artefact should be loaded by the layer
// runtime adapter. The orchestrator itself is agnostic to the numeric
// framework; Kind is forwarded to the runtime's ArtefactLoader untouched.
type Kind string

// Layer describes one node in the model DAG. InboundIDs lists the layer
// indices whose output tensors feed this layer's input, in the order the
// runtime expects them. A layer with a single predecessor has exactly one
// entry (always index-1 of itself for the common linear-chain case).
type Layer struct {
	Index      int
	Kind       Kind
	InboundIDs []int
}

// Model is an immutable ordered sequence of N layers, established once at
// edge initialisation. It never shrinks or reorders after construction.
type Model struct {
	Name   string
	Layers []Layer
}

// N returns the number of layers in the model.
func (m *Model) N() int {
	return len(m.Layers)
}

// Inbound returns the predecessor indices for layer i. For the common
// linear chain this is []int{i - 1}, or nil for i == 0.
func (m *Model) Inbound(i int) []int {
	return m.Layers[i].InboundIDs
}

// New builds a linear-chain model of n layers: layer i's sole predecessor
// is layer i-1 (layer 0 has no predecessor). Multi-input layers can be
// constructed directly via the Model literal when the DAG is not a simple
// chain.
func New(name string, n int) (*Model, error) {
	if n <= 0 {
		return nil, fmt.Errorf("model %q: invalid layer count %d", name, n)
	}
	layers := make([]Layer, n)
	for i := 0; i < n; i++ {
		var inbound []int
		if i > 0 {
			inbound = []int{i - 1}
		}
		layers[i] = Layer{Index: i, Kind: "dense", InboundIDs: inbound}
	}
	return &Model{Name: name, Layers: layers}, nil
}

// Validate checks that every inbound reference points at a lower-indexed
// layer (the DAG must be a valid topological order) and that indices are
// contiguous starting at zero.
func (m *Model) Validate() error {
	for i, l := range m.Layers {
		if l.Index != i {
			return fmt.Errorf("model %q: layer at position %d has index %d", m.Name, i, l.Index)
		}
		for _, in := range l.InboundIDs {
			if in < 0 || in >= i {
				return fmt.Errorf("model %q: layer %d has invalid inbound reference %d", m.Name, i, in)
			}
		}
	}
	return nil
}
