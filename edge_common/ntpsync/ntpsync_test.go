package ntpsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticOffsetNeverChanges(t *testing.T) {
	assert := require.New(t)

	s := StaticOffset(0.25)
	v, err := s.Offset(context.Background())
	assert.NoError(err)
	assert.Equal(0.25, v)
}

func TestRefresherPollsImmediatelyOnRun(t *testing.T) {
	assert := require.New(t)

	r := NewRefresher(StaticOffset(1.5), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	updated := make(chan struct{}, 1)
	go r.Run(ctx, func(offset float64, err error) {
		select {
		case updated <- struct{}{}:
		default:
		}
	})

	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("Run did not perform its initial poll in time")
	}
	cancel()
	assert.Equal(1.5, r.Latest())
}

func TestRefresherLatestDefaultsToZero(t *testing.T) {
	assert := require.New(t)

	r := NewRefresher(StaticOffset(9), time.Hour)
	assert.Equal(0.0, r.Latest())
}

func TestRefresherStopsOnContextCancel(t *testing.T) {
	assert := require.New(t)

	r := NewRefresher(StaticOffset(1), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, nil)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.Equal(1.0, r.Latest())
}

type erroringSource struct{}

func (erroringSource) Offset(context.Context) (float64, error) {
	return 0, errOffset
}

var errOffset = offsetErr("offset unavailable")

type offsetErr string

func (e offsetErr) Error() string { return string(e) }

func TestRefresherIgnoresErroringPollsForLatest(t *testing.T) {
	assert := require.New(t)

	r := NewRefresher(erroringSource{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan error, 1)
	go r.Run(ctx, func(offset float64, err error) {
		select {
		case called <- err:
		default:
		}
	})

	select {
	case err := <-called:
		assert.Error(err)
	case <-time.After(time.Second):
		t.Fatal("onUpdate was not called")
	}
	assert.Equal(0.0, r.Latest())
}
