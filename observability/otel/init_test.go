package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "firstdeposit"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracesBuildsProvider(t *testing.T) {
	// The exporter connects lazily, so no collector is needed to construct it.
	shutdown, err := Init(context.Background(), Config{
		ServiceName: "firstdeposit",
		Environment: "test",
		RunID:       "run-1",
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
		Traces:      true,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	_ = shutdown(context.Background())
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization=Bearer abc , x-team = lending,, =skip,novalue")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-team":        "lending",
	}, got)
}
