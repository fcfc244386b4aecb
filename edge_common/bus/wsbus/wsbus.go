// Package wsbus is the WebSocket binding of edge_common/bus.Bus, for
// device sessions that prefer one long-lived connection over four
// independent HTTP round trips. One connection serves one client for its
// lifetime; each frame carries one operation.
//
// Text frames carry JSON {"op": "register"|"offloading_layer", ...}.
// Binary frames carry one leading opcode byte (opDeviceInput,
// opInferenceResult) followed by the operation's raw wire payload.
//
// Grounded on niceyeti-tabular/server's gorilla/websocket upgrade-and-pump
// pattern (ping/pong deadlines, write-deadline-guarded sends).
package wsbus

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"edgesplit/edge_common/bus"
)

var errShortFrame = fmt.Errorf("wsbus: binary frame missing opcode byte")

func errUnknownOp(op string) error {
	return fmt.Errorf("wsbus: unrecognized operation %q", op)
}

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1 << 20

	opDeviceInput      = byte(1)
	opInferenceResult  = byte(2)
)

// FrameDims mirrors httpbus.FrameDims: the fixed RGB565 geometry
// device_input frames are decoded against.
type FrameDims struct {
	Height int
	Width  int
}

// Server upgrades HTTP connections to WebSocket and pumps bus operations
// over them.
type Server struct {
	b        bus.Bus
	dims     FrameDims
	upgrader websocket.Upgrader
}

// New builds a wsbus.Server wired to b.
func New(b bus.Bus, dims FrameDims) *Server {
	return &Server{
		b:        b,
		dims:     dims,
		upgrader: websocket.Upgrader{},
	}
}

// ServeHTTP upgrades the connection and serves operations on it until the
// client disconnects or sends a close frame.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	clientID := r.URL.Query().Get("client_id")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.TextMessage:
			if !s.handleText(conn, clientID, data) {
				return
			}
		case websocket.BinaryMessage:
			if !s.handleBinary(conn, clientID, data) {
				return
			}
		case websocket.CloseMessage:
			return
		}
	}
}

type envelope struct {
	Op       string `json:"op"`
	ClientID string `json:"client_id"`
}

func (s *Server) handleText(conn *websocket.Conn, clientID string, data []byte) bool {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return s.sendErr(conn, err)
	}

	switch env.Op {
	case "register":
		assigned, modelName, err := s.b.OnRegister(env.ClientID)
		if err != nil {
			return s.sendErr(conn, err)
		}
		return s.sendJSON(conn, map[string]interface{}{
			"op": "register", "client_id": assigned, "model_name": modelName,
		})
	case "offloading_layer":
		id := env.ClientID
		if id == "" {
			id = clientID
		}
		k, err := s.b.Reply(id)
		if err != nil {
			return s.sendErr(conn, err)
		}
		return s.sendJSON(conn, map[string]interface{}{
			"op": "offloading_layer", "offloading_layer_index": k,
		})
	default:
		return s.sendErr(conn, errUnknownOp(env.Op))
	}
}

func (s *Server) handleBinary(conn *websocket.Conn, clientID string, data []byte) bool {
	if len(data) < 1 {
		return s.sendErr(conn, errShortFrame)
	}
	op, payload := data[0], data[1:]
	switch op {
	case opDeviceInput:
		if err := s.b.OnInput(clientID, payload, s.dims.Height, s.dims.Width); err != nil {
			return s.sendErr(conn, err)
		}
		return s.sendJSON(conn, map[string]interface{}{"op": "device_input", "message": "ok"})
	case opInferenceResult:
		k, err := s.b.OnResult(payload)
		if err != nil {
			return s.sendErr(conn, err)
		}
		return s.sendJSON(conn, map[string]interface{}{
			"op": "device_inference_result", "offloading_layer_index": k,
		})
	default:
		return s.sendErr(conn, errUnknownOp(string(op)))
	}
}

func (s *Server) sendJSON(conn *websocket.Conn, v interface{}) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v) == nil
}

func (s *Server) sendErr(conn *websocket.Conn, err error) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(map[string]interface{}{"op": "error", "message": err.Error()})
	return true
}
