package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDevelopmentMode(t *testing.T) {
	l, err := New("dev")
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Info("hello", "key", "value")
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := NewNop()
	require.NotPanics(t, func() {
		l.With("component", "test").Info("noop", "a", 1)
	})
}

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"password", "supersecret", "name", "alice"})
	require.Equal(t, "password", out[0])
	require.Equal(t, "[REDACTED]", out[1])
	require.Equal(t, "name", out[2])
	require.Equal(t, "alice", out[3])
}
