// Package bus defines the transport-agnostic message bus interface (C8):
// the Request Handler's four operations, decoupled from any particular
// wire transport. Concrete bindings live in edge_common/bus/httpbus and
// edge_common/bus/wsbus; both drive the same edge_common/reqhandler.Handler.
//
// Grounded on the Design Notes' "dual mode" guidance: define a
// message-bus interface with {onRegister, onInput, onResult, reply(k*)}
// and implement each transport over it.
package bus

import "errors"

// ErrUnimplementedBinding is returned by a Bus constructor for a
// transport this repository recognizes in configuration but does not
// implement, so startup fails clearly instead of silently falling back
// to another transport.
var ErrUnimplementedBinding = errors.New("bus: transport binding not implemented in this build")

// Bus is the transport-agnostic seam the Request Handler is driven
// through. A concrete binding (httpbus, wsbus) decodes its transport's
// native request shape, calls the matching method, and encodes the
// response back in its own format.
type Bus interface {
	// OnRegister handles a registration request and returns the assigned
	// client_id and model_name.
	OnRegister(clientID string) (assignedClientID, modelName string, err error)

	// OnInput handles a device_input diagnostic frame upload.
	OnInput(clientID string, frame []byte, height, width int) error

	// OnResult handles a device_inference_result binary payload and
	// returns the split index the edge wants the client to use next.
	OnResult(raw []byte) (k int, err error)

	// Reply returns the last computed split index for clientID, without
	// blocking on any new computation.
	Reply(clientID string) (k int, err error)
}

// NewMQTTBus is the seam config.CommMQTT resolves to. No example
// repository in the retrieval pack imports an MQTT client library, so
// this binding is recognised in configuration but not implemented: it
// fails loudly at startup instead of silently falling back to HTTP.
func NewMQTTBus() (Bus, error) {
	return nil, ErrUnimplementedBinding
}
