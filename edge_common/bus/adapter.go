package bus

import "edgesplit/edge_common/reqhandler"

// HandlerBus adapts a *reqhandler.Handler to the Bus interface. It is the
// reference binding exercised directly by tests; httpbus and wsbus wrap a
// Bus (in edge.httpd, a HandlerBus) and own their transport's framing.
type HandlerBus struct {
	h *reqhandler.Handler
}

// NewHandlerBus wraps h as a Bus.
func NewHandlerBus(h *reqhandler.Handler) *HandlerBus {
	return &HandlerBus{h: h}
}

// OnRegister implements Bus.
func (b *HandlerBus) OnRegister(clientID string) (string, string, error) {
	result, err := b.h.Register(clientID)
	if err != nil {
		return "", "", err
	}
	return result.ClientID, result.ModelName, nil
}

// OnInput implements Bus.
func (b *HandlerBus) OnInput(clientID string, frame []byte, height, width int) error {
	return b.h.DeviceInput(clientID, frame, height, width)
}

// OnResult implements Bus.
func (b *HandlerBus) OnResult(raw []byte) (int, error) {
	return b.h.DeviceInferenceResult(raw)
}

// Reply implements Bus.
func (b *HandlerBus) Reply(clientID string) (int, error) {
	return b.h.OffloadingLayer(clientID)
}
