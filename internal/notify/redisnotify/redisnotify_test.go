package redisnotify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewRejectsNegativeRetries(t *testing.T) {
	_, err := New(Config{URL: "redis://localhost:6379/0", Retries: -1})
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	a, err := New(Config{URL: "redis://localhost:6379/0"})
	require.NoError(t, err)
	require.Equal(t, DefaultChannel, a.config.Channel)
	require.Equal(t, DefaultTimeout, a.config.Timeout)
	require.Equal(t, 0, a.config.Retries) // zero retries is valid: one attempt, no retry
}
