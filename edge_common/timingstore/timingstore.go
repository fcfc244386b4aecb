// Package timingstore holds the per-layer EWMA timing vectors for the
// device and edge sides, plus the layer size vector, and persists them
// through an injected afero.Fs so tests never touch the real filesystem.
// It is owned as an explicit value passed into each request scope (Design
// Notes: no module-level/class-level globals).
package timingstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

// Store is the single-writer, multi-reader home for T_device, T_edge and
// S. All mutation methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	alpha   float64
	device  map[int]float64
	edge    map[int]float64
	sizes   map[int]float64

	fs        afero.Fs
	deviceFile string
	edgeFile   string
	sizesFile  string
}

// New builds an empty Store with the given EWMA alpha and persistence
// backend. Use afero.NewOsFs() in production, afero.NewMemMapFs() in tests.
func New(alpha float64, fs afero.Fs, deviceFile, edgeFile, sizesFile string) *Store {
	return &Store{
		alpha:      alpha,
		device:     make(map[int]float64),
		edge:       make(map[int]float64),
		sizes:      make(map[int]float64),
		fs:         fs,
		deviceFile: deviceFile,
		edgeFile:   edgeFile,
		sizesFile:  sizesFile,
	}
}

// UpdateDevice applies the EWMA update T[i] <- alpha*x + (1-alpha)*T[i]
// for the device side, seeding the entry with x if it did not exist yet.
func (s *Store) UpdateDevice(layer int, raw float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device[layer] = ewma(s.device, layer, raw, s.alpha)
}

// UpdateEdge is UpdateDevice's edge-side counterpart.
func (s *Store) UpdateEdge(layer int, raw float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge[layer] = ewma(s.edge, layer, raw, s.alpha)
}

func ewma(m map[int]float64, layer int, raw, alpha float64) float64 {
	cur, ok := m[layer]
	if !ok {
		return raw
	}
	return alpha*raw + (1-alpha)*cur
}

// SetSize records the output activation size in bytes for a layer. Sizes
// are established once at edge initialisation and not expected to change
// afterward, but a later call simply overwrites — there is no durable
// invariant requiring rejection of a second write.
func (s *Store) SetSize(layer int, bytes float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes[layer] = bytes
}

// Snapshot is a coherent, point-in-time copy of the three vectors, sized
// 0..n-1. Missing entries read as zero so callers can detect
// uninitialised layers (invariant: every index must be non-zero after
// initialisation; a zero in a Snapshot signals that initialisation step
// hasn't happened for that layer yet).
type Snapshot struct {
	N      int
	Device []float64
	Edge   []float64
	Sizes  []float64
}

// Snapshot returns a coherent copy of all three vectors for indices
// 0..n-1, suitable for handing to the offloading optimiser.
func (s *Store) Snapshot(n int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{N: n, Device: make([]float64, n), Edge: make([]float64, n), Sizes: make([]float64, n)}
	for i := 0; i < n; i++ {
		snap.Device[i] = s.device[i]
		snap.Edge[i] = s.edge[i]
		snap.Sizes[i] = s.sizes[i]
	}
	return snap
}

type persistedVector map[string]float64

func toPersisted(m map[int]float64) persistedVector {
	out := make(persistedVector, len(m))
	for k, v := range m {
		out[fmt.Sprintf("layer_%d", k)] = v
	}
	return out
}

func fromPersisted(p persistedVector) (map[int]float64, error) {
	out := make(map[int]float64, len(p))
	for k, v := range p {
		var idx int
		if _, err := fmt.Sscanf(k, "layer_%d", &idx); err != nil {
			return nil, fmt.Errorf("timingstore: malformed key %q: %w", k, err)
		}
		out[idx] = v
	}
	return out, nil
}

// Persist writes all three vectors to their configured files. Each write
// goes to a temp file in the same directory followed by a rename, so a
// crash mid-write can never leave a torn file on disk.
func (s *Store) Persist() error {
	s.mu.RLock()
	device := toPersisted(s.device)
	edge := toPersisted(s.edge)
	sizes := toPersisted(s.sizes)
	s.mu.RUnlock()

	if err := writeJSONAtomic(s.fs, s.deviceFile, device); err != nil {
		return fmt.Errorf("timingstore: persisting device times: %w", err)
	}
	if err := writeJSONAtomic(s.fs, s.edgeFile, edge); err != nil {
		return fmt.Errorf("timingstore: persisting edge times: %w", err)
	}
	if err := writeJSONAtomic(s.fs, s.sizesFile, sizes); err != nil {
		return fmt.Errorf("timingstore: persisting layer sizes: %w", err)
	}
	return nil
}

// Load reads all three vectors from their configured files, replacing the
// in-memory state. A missing file is treated as an empty vector rather
// than an error, since a fresh edge process has no history yet.
func (s *Store) Load() error {
	device, err := readJSON(s.fs, s.deviceFile)
	if err != nil {
		return fmt.Errorf("timingstore: loading device times: %w", err)
	}
	edge, err := readJSON(s.fs, s.edgeFile)
	if err != nil {
		return fmt.Errorf("timingstore: loading edge times: %w", err)
	}
	sizes, err := readJSON(s.fs, s.sizesFile)
	if err != nil {
		return fmt.Errorf("timingstore: loading layer sizes: %w", err)
	}

	deviceMap, err := fromPersisted(device)
	if err != nil {
		return err
	}
	edgeMap, err := fromPersisted(edge)
	if err != nil {
		return err
	}
	sizesMap, err := fromPersisted(sizes)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.device = deviceMap
	s.edge = edgeMap
	s.sizes = sizesMap
	s.mu.Unlock()
	return nil
}

func writeJSONAtomic(fs afero.Fs, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return err
	}
	return fs.Rename(tmp, path)
}

func readJSON(fs afero.Fs, path string) (persistedVector, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return persistedVector{}, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var out persistedVector
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
