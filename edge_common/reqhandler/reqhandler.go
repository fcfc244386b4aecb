// Package reqhandler implements the Request Handler (C6): it composes the
// runtime adapter, timing store, variance detector, offloading optimiser,
// suffix executor, client registry, and local-inference refresher behind
// one struct whose methods map 1:1 to the four wire operations. It never
// touches net/http — that translation is the transport layer's job
// (edge_common/bus/httpbus, edge_common/bus/wsbus).
package reqhandler

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"edgesplit/edge_common/edgeerr"
	"edgesplit/edge_common/metrics"
	"edgesplit/edge_common/model"
	"edgesplit/edge_common/offload"
	"edgesplit/edge_common/registry"
	"edgesplit/edge_common/runtime"
	"edgesplit/edge_common/suffix"
	"edgesplit/edge_common/timingstore"
	"edgesplit/edge_common/variance"
	"edgesplit/edge_common/wire"
	"edgesplit/edge_common/wpool"
)

// InferenceRecord is one completed device-to-edge round trip, appended to
// an in-memory evaluation log (data model §3). The log is append-only;
// nothing ever removes an entry from it.
type InferenceRecord struct {
	TimestampSend   float64
	TimestampRecv   float64
	ClientID        string
	MessageID       string
	K               int
	ActivationBytes int
	DeviceTimes     []float32
}

// RegisterResult is the response to a registration call.
type RegisterResult struct {
	ClientID  string
	ModelName string
}

// Config bundles the handler's static configuration: link-speed fallback,
// refresher gate, and the default split index returned for clients that
// have never reported.
type Config struct {
	DefaultOffloadingLayer int
	RefresherEnabled       bool
	RefresherProbability   float64
	RefresherSeed          int64
	// FallbackSpeedBytesPerSec is used only when a report's observed
	// latency is non-positive and no earlier speed estimate exists for
	// that client.
	FallbackSpeedBytesPerSec float64
}

// Handler is the C6 Request Handler. Construct one per running edge
// process and share it across all transport bindings.
type Handler struct {
	m        *model.Model
	reg      *registry.Registry
	timings  *timingstore.Store
	vdet     *variance.Detector
	executor *suffix.Executor
	refresh  *refresher
	pool     *wpool.Pool

	cfg Config

	clock func() time.Time

	mu       sync.Mutex
	avgSpeed map[string]float64
	log      []InferenceRecord
	frames   map[string][]wire.RGB
}

// New builds a Handler wired to its collaborators. pool dispatches every
// suffix execution (the only potentially compute-bound step), so slow
// inferences never block acceptance of other clients' requests; a
// saturated pool surfaces as wpool.ErrQueueFull from
// DeviceInferenceResult.
func New(m *model.Model, reg *registry.Registry, timings *timingstore.Store, vdet *variance.Detector, executor *suffix.Executor, pool *wpool.Pool, cfg Config) *Handler {
	return &Handler{
		m:        m,
		reg:      reg,
		timings:  timings,
		vdet:     vdet,
		executor: executor,
		pool:     pool,
		refresh:  newRefresher(cfg.RefresherEnabled, cfg.RefresherProbability, cfg.RefresherSeed),
		cfg:      cfg,
		clock:    time.Now,
		avgSpeed: make(map[string]float64),
		frames:   make(map[string][]wire.RGB),
	}
}

// InitializeSizes records the per-layer activation size vector (S), read
// once at edge bootstrap from the model's compiled artefacts.
func (h *Handler) InitializeSizes(sizes []float64) error {
	if len(sizes) != h.m.N() {
		return fmt.Errorf("reqhandler: size vector length %d does not match model layer count %d", len(sizes), h.m.N())
	}
	for i, s := range sizes {
		h.timings.SetSize(i, s)
	}
	return nil
}

// Register implements operation 1: idempotent client registration. An
// empty clientID is auto-assigned a fresh one.
func (h *Handler) Register(clientID string) (RegisterResult, error) {
	if clientID == "" {
		clientID = newClientID()
	}
	modelName := h.reg.AssignModel(clientID)
	metrics.RegisteredClients.Set(float64(h.reg.Count()))
	return RegisterResult{ClientID: clientID, ModelName: modelName}, nil
}

// DeviceInput implements operation 2: decode an RGB565 diagnostic frame
// and retain it for inspection. It never touches the inference hot path.
func (h *Handler) DeviceInput(clientID string, frame []byte, height, width int) error {
	rgb, err := wire.DecodeRGB565Frame(frame, height, width)
	if err != nil {
		metrics.DroppedReportsTotal.WithLabelValues("bad_frame").Inc()
		return edgeerr.BadFormat(err)
	}
	h.mu.Lock()
	h.frames[clientID] = rgb
	h.mu.Unlock()
	return nil
}

// inferenceOutcome is what the pooled suffix-execution job reports back
// to the blocked HTTP goroutine that submitted it.
type inferenceOutcome struct {
	k   int
	err error
}

// DeviceInferenceResult implements operation 3: parse the binary wire
// payload, update the timing store and variance detector for each
// reported device-side layer, dispatch the edge suffix and split
// recomputation to the worker pool, and apply the local-inference
// refresher override to whatever the optimiser returns.
func (h *Handler) DeviceInferenceResult(raw []byte) (int, error) {
	report, err := wire.DecodeReport(raw)
	if err != nil {
		metrics.DroppedReportsTotal.WithLabelValues("bad_wire_format").Inc()
		return 0, edgeerr.BadFormat(err)
	}

	if _, ok := h.reg.Get(report.ClientID); !ok {
		metrics.DroppedReportsTotal.WithLabelValues("unknown_client").Inc()
		return 0, edgeerr.NoSuchClient(report.ClientID)
	}

	recvTime := h.clock()

	for i, t := range report.PerLayerTimes {
		h.timings.UpdateDevice(i, float64(t))
		if h.vdet.Add(variance.Device, i, float64(t)) {
			metrics.VarianceFlagsTotal.WithLabelValues("device").Inc()
		}
	}

	k := normalizeK(int(report.K), h.m.N())

	done := make(chan inferenceOutcome, 1)
	submitErr := h.pool.Submit(func() {
		done <- h.runSuffixAndPlan(report, k, recvTime, len(raw))
	})
	if submitErr != nil {
		metrics.DroppedReportsTotal.WithLabelValues("queue_full").Inc()
		return 0, submitErr
	}

	outcome := <-done
	return outcome.k, outcome.err
}

// runSuffixAndPlan is the pooled job body: it is the sole place that
// blocks on C5 (layer evaluation), so it must never be called from the
// HTTP goroutine directly.
func (h *Handler) runSuffixAndPlan(report *wire.Report, k int, recvTime time.Time, payloadBytes int) inferenceOutcome {
	suffixStart := time.Now()
	_, err := h.executor.Run(k, runtime.Tensor(report.Activation))
	metrics.SuffixExecSeconds.WithLabelValues(h.m.Name).Observe(time.Since(suffixStart).Seconds())
	if err != nil {
		metrics.DroppedReportsTotal.WithLabelValues("runtime_error").Inc()
		return inferenceOutcome{err: edgeerr.Wrap(err, "suffix execution failed")}
	}

	avgSpeed := h.linkSpeed(report.ClientID, report.Timestamp, recvTime, payloadBytes)

	snap := h.timings.Snapshot(h.m.N())
	planStart := time.Now()
	plan, planErr := offload.Plan(snap.Device, snap.Edge, snap.Sizes, avgSpeed)
	metrics.OffloadDecisionSeconds.Observe(time.Since(planStart).Seconds())
	if planErr != nil {
		return inferenceOutcome{err: edgeerr.Wrap(errors.WithStack(planErr), "offloading plan failed")}
	}

	result := plan.K
	if h.refresh.fire() {
		result = -1
	}

	h.reg.Touch(report.ClientID, result)
	h.appendRecord(report, recvTime, payloadBytes)

	return inferenceOutcome{k: result}
}

// OffloadingLayer implements operation 4: a non-blocking read of the last
// computed split for clientID, or the configured default if the client
// has never reported (scenario S6).
func (h *Handler) OffloadingLayer(clientID string) (int, error) {
	rec, ok := h.reg.Get(clientID)
	if !ok || !rec.Reported {
		return h.cfg.DefaultOffloadingLayer, nil
	}
	return rec.LastK, nil
}

// linkSpeed derives avg_speed_bytes_per_sec from one report's observed
// latency, falling back to the client's last known speed (or the
// configured fallback speed, if the client has none yet) when the
// measurement is unusable.
func (h *Handler) linkSpeed(clientID string, sendTimestamp float64, recvTime time.Time, payloadBytes int) float64 {
	observed := recvTime.Sub(time.Unix(0, 0)).Seconds() - sendTimestamp
	h.mu.Lock()
	defer h.mu.Unlock()

	if observed > 0 {
		speed := float64(payloadBytes) / observed
		h.avgSpeed[clientID] = speed
		return speed
	}
	if prev, ok := h.avgSpeed[clientID]; ok {
		return prev
	}
	return h.cfg.FallbackSpeedBytesPerSec
}

func (h *Handler) appendRecord(report *wire.Report, recvTime time.Time, payloadBytes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = append(h.log, InferenceRecord{
		TimestampSend:   report.Timestamp,
		TimestampRecv:   float64(recvTime.UnixNano()) / 1e9,
		ClientID:        report.ClientID,
		MessageID:       report.MessageID,
		K:               int(report.K),
		ActivationBytes: payloadBytes,
		DeviceTimes:     report.PerLayerTimes,
	})
}

// normalizeK passes k == -1 and k >= N-1 through unchanged (the suffix
// executor treats both as the "device produced the terminal output"
// no-op) and maps any k below -1 to -1.
func normalizeK(k, n int) int {
	if k == -1 || k >= n-1 {
		return k
	}
	if k < -1 {
		return -1
	}
	return k
}

func newClientID() string {
	return fmt.Sprintf("c%08x", time.Now().UnixNano()&0xffffffff)
}
