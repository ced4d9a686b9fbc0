package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, false).Debug("hidden")
	require.Empty(t, buf.String())

	NewLogger(&buf, false).Info("polling", "attempt", 3)
	require.Contains(t, buf.String(), "polling")
	require.Contains(t, buf.String(), "attempt")

	buf.Reset()
	NewLogger(&buf, true).Debug("state", "to", "waiting")
	require.Contains(t, buf.String(), "state")
}

func TestSetupWithoutEndpoint(t *testing.T) {
	tel, err := Setup(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}
