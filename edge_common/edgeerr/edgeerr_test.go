package edgeerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestBadFormatOutcomeKind(t *testing.T) {
	assert := require.New(t)

	o := BadFormat(errors.New("short payload"))
	assert.Equal(BadWireFormat, o.Kind)
	assert.Contains(o.Error(), "short payload")
}

func TestNoSuchClientOutcomeKind(t *testing.T) {
	assert := require.New(t)

	o := NoSuchClient("dev01")
	assert.Equal(UnknownClient, o.Kind)
	assert.Contains(o.Error(), "dev01")
}

func TestWrapOutcomeKind(t *testing.T) {
	assert := require.New(t)

	o := Wrap(errors.New("boom"), "suffix execution failed")
	assert.Equal(InternalError, o.Kind)
	assert.Contains(o.Error(), "suffix execution failed")
	assert.Contains(o.Error(), "boom")
}

func TestOutcomeErrorWithoutCause(t *testing.T) {
	assert := require.New(t)

	o := OkOutcome()
	assert.Equal("ok", o.Error())
}

func TestOutcomeRecoverableWithErrorsAs(t *testing.T) {
	assert := require.New(t)

	var err error = BadFormat(errors.New("bad"))
	var outcome *Outcome
	assert.True(errors.As(err, &outcome))
	assert.Equal(BadWireFormat, outcome.Kind)
}

func TestKindStringUnknown(t *testing.T) {
	assert := require.New(t)

	var k Kind = 99
	assert.Equal("unknown", k.String())
}

func TestZapErrorMarshalLogObject(t *testing.T) {
	assert := require.New(t)

	ze := New("decode failed", "layer", 3)
	assert.Equal("decode failed", ze.Error())

	enc := zapcore.NewMapObjectEncoder()
	assert.NoError(ze.MarshalLogObject(enc))
	assert.Equal("decode failed", enc.Fields["msg"])
	assert.EqualValues(3, enc.Fields["layer"])
}
