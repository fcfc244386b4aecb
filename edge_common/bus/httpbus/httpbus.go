// Package httpbus is the HTTP binding of edge_common/bus.Bus: four
// routes served behind gorilla/mux, wrapped in negroni's recovery
// middleware and an apache-logformat access log, with a prometheus
// /metrics endpoint alongside them.
//
// Grounded on ap.httpd.go's router/negroni/apachelog bootstrap and
// cl.httpd.go's promhttp.Handler() wiring.
package httpbus

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"

	apachelog "github.com/lestrrat-go/apache-logformat"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/negroni"

	"edgesplit/edge_common/bus"
	"edgesplit/edge_common/edgeerr"
	"edgesplit/edge_common/wpool"
)

// FrameDims is the fixed RGB565 frame geometry device_input decodes
// against. The protocol pins geometry to the assigned model's
// configuration; this binding serves a single deployment's default
// model, matching the teacher's single-site-per-process daemon shape.
type FrameDims struct {
	Height int
	Width  int
}

// Server is the HTTP transport binding. Build one with New and pass its
// Handler to an http.Server (or negroni directly).
type Server struct {
	b       bus.Bus
	dims    FrameDims
	Handler http.Handler
}

// New builds an httpbus.Server wired to b. accessLog is typically
// os.Stderr; reg is the prometheus registry to expose on /metrics.
func New(b bus.Bus, dims FrameDims, reg *prometheus.Registry, accessLog negroniLogTarget) *Server {
	s := &Server{b: b, dims: dims}

	router := mux.NewRouter()
	router.HandleFunc("/registration", s.handleRegistration).Methods(http.MethodPost)
	router.HandleFunc("/device_input", s.handleDeviceInput).Methods(http.MethodPost)
	router.HandleFunc("/device_inference_result", s.handleInferenceResult).Methods(http.MethodPost)
	router.HandleFunc("/offloading_layer", s.handleOffloadingLayer).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(apachelog.CombinedLog.Wrap(router, accessLog))
	s.Handler = n

	return s
}

// negroniLogTarget is whatever apachelog.CombinedLog.Wrap accepts as its
// access-log sink (an io.Writer in practice); named here only so New's
// signature documents intent without importing io just for one name.
type negroniLogTarget = interface {
	Write(p []byte) (n int, err error)
}

type registrationRequest struct {
	ClientID string `json:"client_id"`
}

type registrationResponse struct {
	Message   string `json:"message"`
	ClientID  string `json:"client_id"`
	ModelName string `json:"model_name"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type offloadingLayerResponse struct {
	OffloadingLayerIndex int `json:"offloading_layer_index"`
}

func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		writeOutcome(w, edgeerr.BadFormat(err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeOutcome(w, edgeerr.BadFormat(err))
			return
		}
	}

	clientID, modelName, err := s.b.OnRegister(req.ClientID)
	if err != nil {
		writeOutcome(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationResponse{
		Message:   "registered",
		ClientID:  clientID,
		ModelName: modelName,
	})
}

func (s *Server) handleDeviceInput(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		writeOutcome(w, edgeerr.BadFormat(err))
		return
	}
	if err := s.b.OnInput(clientID, body, s.dims.Height, s.dims.Width); err != nil {
		writeOutcome(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleInferenceResult(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		writeOutcome(w, edgeerr.BadFormat(err))
		return
	}
	k, err := s.b.OnResult(body)
	if err != nil {
		writeOutcome(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message            string `json:"message"`
		OffloadingLayerIdx int    `json:"offloading_layer_index"`
	}{Message: "ok", OffloadingLayerIdx: k})
}

func (s *Server) handleOffloadingLayer(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	k, err := s.b.Reply(clientID)
	if err != nil {
		writeOutcome(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offloadingLayerResponse{OffloadingLayerIndex: k})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOutcome maps an edgeerr.Outcome's Kind to an HTTP status, per
// spec section 7: parse/unknown-client errors are 4xx, everything else
// is 5xx.
func writeOutcome(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, wpool.ErrQueueFull):
		status = http.StatusServiceUnavailable
	default:
		var outcome *edgeerr.Outcome
		if errors.As(err, &outcome) {
			switch outcome.Kind {
			case edgeerr.BadWireFormat, edgeerr.UnknownClient:
				status = http.StatusBadRequest
			case edgeerr.InternalError:
				status = http.StatusInternalServerError
			}
		}
	}
	writeJSON(w, status, messageResponse{Message: err.Error()})
}
