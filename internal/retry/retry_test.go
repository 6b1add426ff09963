package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoReturnsNilOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, func(attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoGivesUpAtMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 2}, func(attempt int) error {
		calls++
		return errors.New("boom")
	})
	require.ErrorIs(t, err, ErrGiveUp)
	require.Equal(t, 2, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, Policy{InitialDelay: time.Second}, func(attempt int) error {
		calls++
		return errors.New("boom")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
