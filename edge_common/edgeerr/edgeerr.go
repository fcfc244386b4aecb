// Package edgeerr implements the structured error sum-type used at the
// request-handler boundary, plus a zap-loggable error type for everything
// below it. Handler methods return it as a plain error (so errors.As can
// recover it alongside other error values such as wpool.ErrQueueFull),
// and the transport layer alone maps Kind to an HTTP status code.
package edgeerr

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Kind classifies the outcome of handling one request.
type Kind int

const (
	// Ok indicates the request was handled successfully.
	Ok Kind = iota
	// BadWireFormat indicates the payload could not be decoded; no state
	// was mutated. Maps to HTTP 4xx.
	BadWireFormat
	// UnknownClient indicates an operation referenced a client_id that
	// has never registered. Maps to HTTP 4xx.
	UnknownClient
	// InternalError indicates a runtime or transport failure unrelated
	// to the payload itself. Maps to HTTP 5xx.
	InternalError
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case BadWireFormat:
		return "bad_wire_format"
	case UnknownClient:
		return "unknown_client"
	case InternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Outcome pairs a Kind with the underlying cause, if any.
type Outcome struct {
	Kind  Kind
	Cause error
}

// Error satisfies the error interface so an Outcome can be returned and
// checked with errors.As like any other error.
func (o *Outcome) Error() string {
	if o.Cause == nil {
		return o.Kind.String()
	}
	return o.Kind.String() + ": " + o.Cause.Error()
}

// OkOutcome returns the Ok Outcome, for handler methods that completed
// without error.
func OkOutcome() *Outcome {
	return &Outcome{Kind: Ok}
}

// Wrap annotates cause with a message and returns an InternalError Outcome.
func Wrap(cause error, msg string) *Outcome {
	return &Outcome{Kind: InternalError, Cause: errors.Wrap(cause, msg)}
}

// BadFormat returns a BadWireFormat Outcome.
func BadFormat(cause error) *Outcome {
	return &Outcome{Kind: BadWireFormat, Cause: cause}
}

// NoSuchClient returns an UnknownClient Outcome.
func NoSuchClient(clientID string) *Outcome {
	return &Outcome{Kind: UnknownClient, Cause: errors.Errorf("unknown client %q", clientID)}
}

// ZapError is a structured error carrying key-value pairs, loggable
// directly through zap without pre-formatting into a string.
type ZapError struct {
	msg string
	kv  []interface{}
}

// New builds a ZapError with the given message and key-value pairs.
func New(msg string, kv ...interface{}) ZapError {
	return ZapError{msg: msg, kv: kv}
}

// Error satisfies the error interface.
func (ze ZapError) Error() string {
	return ze.msg
}

// MarshalLogObject lets zap encode the error's key-value pairs as
// structured fields instead of a single string.
func (ze ZapError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("msg", ze.msg)
	for i := 0; i < len(ze.kv); {
		if field, ok := ze.kv[i].(zapcore.Field); ok {
			field.AddTo(enc)
			i++
			continue
		}
		if i == len(ze.kv)-1 {
			zap.Any("ignored", ze.kv[i]).AddTo(enc)
			break
		}
		key, val := ze.kv[i], ze.kv[i+1]
		if keyStr, ok := key.(string); ok {
			zap.Any(keyStr, val).AddTo(enc)
		} else {
			zap.Any("invalid_key", key).AddTo(enc)
			zap.Any("invalid_val", val).AddTo(enc)
		}
		i += 2
	}
	return nil
}
