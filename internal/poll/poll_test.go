package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil_ReturnsValueWhenConditionHolds(t *testing.T) {
	calls := 0
	got, err := Until(context.Background(), time.Millisecond, time.Second, func(ctx context.Context) (string, bool, error) {
		calls++
		return "ACCOUNT_LIST", calls == 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ACCOUNT_LIST", got)
	assert.Equal(t, 3, calls)
}

func TestUntil_Timeout(t *testing.T) {
	_, err := Until(context.Background(), 5*time.Millisecond, 30*time.Millisecond, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 30*time.Millisecond, timeoutErr.After)
}

func TestUntil_ProbeErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Until(context.Background(), time.Millisecond, time.Second, func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntil_ParentCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Until(ctx, time.Millisecond, time.Second, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRetry(t *testing.T) {
	t.Run("succeeds on a later attempt", func(t *testing.T) {
		var seen []int
		err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context, attempt int) error {
			seen = append(seen, attempt)
			if attempt < 2 {
				return errors.New("not yet")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, seen)
	})

	t.Run("returns last error once exhausted", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context, attempt int) error {
			calls++
			return errors.New("attempt failed")
		})

		assert.EqualError(t, err, "attempt failed")
		assert.Equal(t, 3, calls)
	})
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
