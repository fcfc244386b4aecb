package bus

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"edgesplit/edge_common/model"
	"edgesplit/edge_common/registry"
	"edgesplit/edge_common/reqhandler"
	"edgesplit/edge_common/runtime"
	"edgesplit/edge_common/suffix"
	"edgesplit/edge_common/timingstore"
	"edgesplit/edge_common/variance"
	"edgesplit/edge_common/wire"
	"edgesplit/edge_common/wpool"
)

func newTestBus(t *testing.T) *HandlerBus {
	t.Helper()
	m, err := model.New("demo", 3)
	require.NoError(t, err)
	reg := registry.New(func(string) string { return "demo" })
	timings := timingstore.New(0.2, afero.NewMemMapFs(), "d.json", "e.json", "s.json")
	vdet := variance.New(10, 0.15)
	rt := runtime.NewMockRuntime()
	executor := suffix.New(m, rt, timings, vdet)
	pool := wpool.New(2, 8)
	t.Cleanup(pool.Stop)
	h := reqhandler.New(m, reg, timings, vdet, executor, pool, reqhandler.Config{
		DefaultOffloadingLayer:   1,
		FallbackSpeedBytesPerSec: 1e6,
	})
	return NewHandlerBus(h)
}

func TestHandlerBusOnRegisterDelegates(t *testing.T) {
	assert := require.New(t)

	b := newTestBus(t)
	clientID, modelName, err := b.OnRegister("dev01")
	assert.NoError(err)
	assert.Equal("dev01", clientID)
	assert.Equal("demo", modelName)
}

func TestHandlerBusReplyDefaultsForUnknownClient(t *testing.T) {
	assert := require.New(t)

	b := newTestBus(t)
	k, err := b.Reply("ghost")
	assert.NoError(err)
	assert.Equal(1, k)
}

func TestHandlerBusOnResultRoundTripsWithReply(t *testing.T) {
	assert := require.New(t)

	b := newTestBus(t)
	_, _, err := b.OnRegister("dev01")
	assert.NoError(err)

	raw := wire.EncodeReport(&wire.Report{
		ClientID:      "dev01",
		MessageID:     "msg1",
		K:             0,
		Activation:    []float32{1},
		PerLayerTimes: []float32{0.01},
	})
	k, err := b.OnResult(raw)
	assert.NoError(err)

	replay, err := b.Reply("dev01")
	assert.NoError(err)
	assert.Equal(k, replay)
}

func TestHandlerBusOnInputDecodesFrame(t *testing.T) {
	assert := require.New(t)

	b := newTestBus(t)
	frame := make([]byte, 2*2*2)
	err := b.OnInput("dev01", frame, 2, 2)
	assert.NoError(err)
}
