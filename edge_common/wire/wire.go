// Package wire implements the byte-exact binary codecs described in the
// protocol: the device inference-result report and the RGB565 diagnostic
// frame. All multi-byte fields in the device report are little-endian;
// RGB565 frame pixels are big-endian, per the wire contract.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Report is the decoded form of a device_inference_result payload.
type Report struct {
	Timestamp       float64 // IEEE-754 double, seconds since epoch, NTP-adjusted by the device
	ClientID        string  // up to 9 ASCII bytes, NUL-padded on the wire
	MessageID       string  // 4 ASCII bytes
	K               int32   // split index; -1 means local-only
	Activation      []float32
	PerLayerTimes   []float32 // device wall-clock seconds, one per executed layer
}

const (
	offTimestamp  = 0
	sizeTimestamp = 8
	offClientID   = offTimestamp + sizeTimestamp
	sizeClientID  = 9
	offMessageID  = offClientID + sizeClientID
	sizeMessageID = 4
	offK          = offMessageID + sizeMessageID
	sizeK         = 4
	offActSize    = offK + sizeK
	sizeActSize   = 4
	offActivation = offActSize + sizeActSize
)

// ErrShortPayload is returned when body is too small to contain even the
// fixed-size prefix of the report.
var ErrShortPayload = errors.New("wire: payload shorter than fixed header")

// DecodeReport parses the fixed-offset binary layout described in the
// protocol. A length mismatch anywhere is a parse error; no partial
// Report is ever returned on error.
func DecodeReport(body []byte) (*Report, error) {
	if len(body) < offActivation {
		return nil, ErrShortPayload
	}

	ts := math.Float64frombits(binary.LittleEndian.Uint64(body[offTimestamp:]))

	clientRaw := body[offClientID : offClientID+sizeClientID]
	clientID := trimNUL(clientRaw)

	messageID := string(body[offMessageID : offMessageID+sizeMessageID])

	k := int32(binary.LittleEndian.Uint32(body[offK:]))

	actSize := binary.LittleEndian.Uint32(body[offActSize:])
	if uint64(offActivation)+uint64(actSize) > uint64(len(body)) {
		return nil, errors.Errorf("wire: activation_size %d overruns payload of length %d", actSize, len(body))
	}
	if actSize%4 != 0 {
		return nil, errors.Errorf("wire: activation_size %d is not a multiple of 4", actSize)
	}
	activation := decodeFloat32s(body[offActivation : offActivation+actSize])

	offTimesSize := offActivation + int(actSize)
	if len(body) < offTimesSize+4 {
		return nil, ErrShortPayload
	}
	timesSize := int32(binary.LittleEndian.Uint32(body[offTimesSize:]))
	if timesSize < 0 {
		return nil, errors.Errorf("wire: negative times_size %d", timesSize)
	}
	offTimes := offTimesSize + 4
	if uint64(offTimes)+uint64(timesSize) > uint64(len(body)) {
		return nil, errors.Errorf("wire: times_size %d overruns payload of length %d", timesSize, len(body))
	}
	if timesSize%4 != 0 {
		return nil, errors.Errorf("wire: times_size %d is not a multiple of 4", timesSize)
	}
	if offTimes+int(timesSize) != len(body) {
		return nil, errors.Errorf("wire: %d trailing bytes after per_layer_times", len(body)-offTimes-int(timesSize))
	}
	times := decodeFloat32s(body[offTimes : offTimes+int(timesSize)])

	return &Report{
		Timestamp:     ts,
		ClientID:      clientID,
		MessageID:     messageID,
		K:             k,
		Activation:    activation,
		PerLayerTimes: times,
	}, nil
}

// EncodeReport is the inverse of DecodeReport, used by tests and by
// simulated device clients to build wire payloads.
func EncodeReport(r *Report) []byte {
	actBytes := len(r.Activation) * 4
	timesBytes := len(r.PerLayerTimes) * 4
	buf := make([]byte, offActivation+actBytes+4+timesBytes)

	binary.LittleEndian.PutUint64(buf[offTimestamp:], math.Float64bits(r.Timestamp))
	copy(buf[offClientID:offClientID+sizeClientID], padNUL(r.ClientID, sizeClientID))
	copy(buf[offMessageID:offMessageID+sizeMessageID], padNUL(r.MessageID, sizeMessageID))
	binary.LittleEndian.PutUint32(buf[offK:], uint32(r.K))
	binary.LittleEndian.PutUint32(buf[offActSize:], uint32(actBytes))
	encodeFloat32s(buf[offActivation:offActivation+actBytes], r.Activation)

	offTimesSize := offActivation + actBytes
	binary.LittleEndian.PutUint32(buf[offTimesSize:], uint32(timesBytes))
	offTimes := offTimesSize + 4
	encodeFloat32s(buf[offTimes:offTimes+timesBytes], r.PerLayerTimes)

	return buf
}

func decodeFloat32s(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func encodeFloat32s(dst []byte, vals []float32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func padNUL(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

// RGB is an 8-bit-per-channel decoded pixel.
type RGB struct {
	R, G, B uint8
}

// DecodeRGB565Frame unpacks an H*W big-endian uint16 RGB565 frame into
// 8-8-8 RGB. R/B (5 bits) and G (6 bits) are scaled to 0..255 by
// *255/31 and *255/63 respectively, matching the reference client's own
// unpacking.
func DecodeRGB565Frame(data []byte, h, w int) ([]RGB, error) {
	want := h * w * 2
	if len(data) != want {
		return nil, errors.Errorf("wire: RGB565 frame expected %d bytes for %dx%d, got %d", want, h, w, len(data))
	}
	out := make([]RGB, h*w)
	for i := 0; i < h*w; i++ {
		p := binary.BigEndian.Uint16(data[i*2:])
		r := uint8((p >> 11) & 0x1F)
		g := uint8((p >> 5) & 0x3F)
		b := uint8(p & 0x1F)
		out[i] = RGB{
			R: uint8(uint32(r) * 255 / 31),
			G: uint8(uint32(g) * 255 / 63),
			B: uint8(uint32(b) * 255 / 31),
		}
	}
	return out, nil
}
