package anydb

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/require"
)

func TestShouldRetry_transientVsPermanent(t *testing.T) {
	require.False(t, ShouldRetry(nil))
	require.False(t, ShouldRetry(context.Canceled))
	require.False(t, ShouldRetry(syscall.ENOSPC))
	require.False(t, ShouldRetry(syscall.EROFS))
	require.True(t, ShouldRetry(errors.New("transient hiccup")))
}

func TestRetry_succeedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return retry.RetryableError(errors.New("try again"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}
