package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerFiresAndRetires(t *testing.T) {
	r := New()

	count := 0
	r.Register(time.Millisecond, func(time.Time) time.Duration {
		count++
		if count == 3 {
			return 0
		}
		return time.Millisecond
	})

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, 3, count)
}

func TestRunReturnsWhenEmpty(t *testing.T) {
	r := New()
	require.NoError(t, r.Run(context.Background()))
}

func TestContextCancelStopsRun(t *testing.T) {
	r := New()
	r.Register(time.Millisecond, func(time.Time) time.Duration {
		return time.Millisecond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultipleTimersInterleave(t *testing.T) {
	r := New()

	var fast, slow int
	r.Register(time.Millisecond, func(time.Time) time.Duration {
		fast++
		if fast == 6 {
			return 0
		}
		return time.Millisecond
	})
	r.Register(2*time.Millisecond, func(time.Time) time.Duration {
		slow++
		if slow == 2 {
			return 0
		}
		return 2 * time.Millisecond
	})

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, 6, fast)
	require.Equal(t, 2, slow)
}
