package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTradeStateHappyPath(t *testing.T) {
	require := require.New(t)
	s := &tradeState{}
	for _, next := range []State{StateLocked, StatePriced, StateValidated, StateCommitted} {
		require.NoError(s.advance(next))
	}
	require.True(s.current.Terminal())
	require.ErrorIs(s.advance(StateLocked), ErrInternal)
}

func TestTradeStateIllegalSkips(t *testing.T) {
	require := require.New(t)
	s := &tradeState{}
	require.Error(s.advance(StatePriced))
	require.Error(s.advance(StateCommitted))
	require.NoError(s.advance(StateRejected))
	require.Error(s.advance(StateLocked))
}

func TestTradeStateRetryResets(t *testing.T) {
	require := require.New(t)
	s := &tradeState{}
	require.NoError(s.advance(StateLocked))
	require.NoError(s.advance(StatePriced))
	s.retry()
	require.Equal(StateReceived, s.current)
	require.NoError(s.advance(StateLocked))

	require.NoError(s.advance(StateRejected))
	s.retry()
	require.Equal(StateRejected, s.current, "terminal states stay put")
	require.Equal("rejected", s.current.String())
}

var errFlaky = errors.New("flaky")

func TestWithRetry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	isFlaky := func(err error) bool { return errors.Is(err, errFlaky) }

	calls := 0
	err := withRetry(ctx, 3, time.Millisecond, isFlaky, func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(err)
	require.Equal(3, calls)

	calls = 0
	err = withRetry(ctx, 2, time.Millisecond, isFlaky, func(context.Context) error {
		calls++
		return errFlaky
	})
	require.ErrorIs(err, errFlaky)
	require.Equal(3, calls)

	calls = 0
	permanent := errors.New("permanent")
	err = withRetry(ctx, 5, time.Millisecond, isFlaky, func(context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(err, permanent)
	require.Equal(1, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = withRetry(cancelled, 5, time.Hour, isFlaky, func(context.Context) error { return errFlaky })
	require.ErrorIs(err, context.Canceled)
}
