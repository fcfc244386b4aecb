package delaysim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"edgesplit/edge_common/config"
)

func TestDisabledSimulatorAlwaysReturnsZero(t *testing.T) {
	assert := require.New(t)

	s, err := New(config.DelaySpec{Enabled: false, Type: config.DelayStatic, Value: 1}, 1)
	assert.NoError(err)
	assert.Equal(time.Duration(0), s.Delay())
}

func TestStaticDelayReturnsConfiguredValue(t *testing.T) {
	assert := require.New(t)

	s, err := New(config.DelaySpec{Enabled: true, Type: config.DelayStatic, Value: 0.05}, 1)
	assert.NoError(err)
	assert.Equal(50*time.Millisecond, s.Delay())
}

func TestGaussianDelayNeverNegative(t *testing.T) {
	assert := require.New(t)

	s, err := New(config.DelaySpec{Enabled: true, Type: config.DelayGaussian, Mean: -1, StdDev: 0.001}, 2)
	assert.NoError(err)
	for i := 0; i < 50; i++ {
		assert.GreaterOrEqual(s.Delay(), time.Duration(0))
	}
}

func TestUniformDelayWithinBounds(t *testing.T) {
	assert := require.New(t)

	s, err := New(config.DelaySpec{Enabled: true, Type: config.DelayUniform, Min: 0.01, Max: 0.02}, 3)
	assert.NoError(err)
	for i := 0; i < 50; i++ {
		d := s.Delay()
		assert.GreaterOrEqual(d, 10*time.Millisecond)
		assert.LessOrEqual(d, 20*time.Millisecond)
	}
}

func TestUniformDelayToleratesSwappedBounds(t *testing.T) {
	assert := require.New(t)

	s, err := New(config.DelaySpec{Enabled: true, Type: config.DelayUniform, Min: 0.02, Max: 0.01}, 4)
	assert.NoError(err)
	d := s.Delay()
	assert.GreaterOrEqual(d, 10*time.Millisecond)
	assert.LessOrEqual(d, 20*time.Millisecond)
}

func TestExponentialDelayNonNegative(t *testing.T) {
	assert := require.New(t)

	s, err := New(config.DelaySpec{Enabled: true, Type: config.DelayExponential, Mean: 0.01}, 5)
	assert.NoError(err)
	for i := 0; i < 50; i++ {
		assert.GreaterOrEqual(s.Delay(), time.Duration(0))
	}
}

func TestExponentialDelayZeroLambdaReturnsZero(t *testing.T) {
	assert := require.New(t)

	s, err := New(config.DelaySpec{Enabled: true, Type: config.DelayExponential, Mean: 0}, 6)
	assert.NoError(err)
	assert.Equal(time.Duration(0), s.Delay())
}

func TestNewRejectsUnrecognisedTypeWhenEnabled(t *testing.T) {
	assert := require.New(t)

	_, err := New(config.DelaySpec{Enabled: true, Type: "bogus"}, 1)
	assert.Error(err)
}

func TestNewAllowsUnrecognisedTypeWhenDisabled(t *testing.T) {
	assert := require.New(t)

	_, err := New(config.DelaySpec{Enabled: false, Type: "bogus"}, 1)
	assert.NoError(err)
}
