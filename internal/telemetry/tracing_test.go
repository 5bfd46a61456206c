package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitInstallsPropagator(t *testing.T) {
	shutdown, err := Init(context.Background(), "auditsnap-test", "dev")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, shutdown(context.Background())) })

	fields := otel.GetTextMapPropagator().Fields()
	require.Contains(t, fields, "traceparent")
	require.Contains(t, fields, "baggage")

	_, span := otel.Tracer("test").Start(context.Background(), "check")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}
