// Package registry tracks which model a client device was assigned and
// the last split index it was told to use. Records are never destroyed on
// disconnect since the edge has no reliable disconnect signal over the
// request/response transports it serves; a client that never returns
// simply leaves a stale record behind.
//
// Grounded on the single-writer, mutex-guarded map idiom used throughout
// Brightgate-product's daemons (ap.identifierd's per-client maps).
package registry

import (
	"sync"
	"time"
)

// Record is everything the edge remembers about one client.
type Record struct {
	ClientID  string
	ModelName string
	LastSeen  time.Time

	// Reported is false until the client's first device_inference_result,
	// distinguishing "never reported" from a legitimate LastK == -1
	// (local-only) answer.
	Reported bool
	LastK    int
}

// Registry is the single-writer, multi-reader home for client records.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record

	// assign picks the model name for a client seen for the first time.
	// It is supplied by the caller of New (edge.httpd passes a
	// constant-model assigner); New sets no default.
	assign func(clientID string) string
}

// New builds an empty Registry. assign is called exactly once per client,
// the first time it is seen, to pick its model.
func New(assign func(clientID string) string) *Registry {
	return &Registry{
		records: make(map[string]*Record),
		assign:  assign,
	}
}

// AssignModel returns the model name for clientID, assigning one and
// creating the record on first sight.
func (r *Registry) AssignModel(clientID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[clientID]
	if !ok {
		rec = &Record{
			ClientID:  clientID,
			ModelName: r.assign(clientID),
			LastSeen:  time.Now(),
		}
		r.records[clientID] = rec
	}
	return rec.ModelName
}

// Touch updates a client's last-seen time and the split index it was most
// recently told to use. It is a no-op if the client was never assigned a
// model, which should not happen in normal operation but is tolerated
// rather than treated as an error since it cannot corrupt state.
func (r *Registry) Touch(clientID string, k int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[clientID]
	if !ok {
		return
	}
	rec.LastSeen = time.Now()
	rec.LastK = k
	rec.Reported = true
}

// Get returns a copy of the client's record and whether it exists.
func (r *Registry) Get(clientID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[clientID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Count returns the number of distinct clients the registry has ever seen.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// All returns a snapshot copy of every record, for diagnostics and metrics.
func (r *Registry) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}
