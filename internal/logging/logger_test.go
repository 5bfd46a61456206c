package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		logger, err := New(dev)
		require.NoError(t, err)
		require.NotNil(t, logger)
		require.Equal(t, dev, logger.Core().Enabled(zapcore.DebugLevel))
		logger.Info("logger ready")
		_ = logger.Sync()
	}
}

func TestComponent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	Component(zap.New(core), "worker").Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "worker", entries[0].LoggerName)

	require.NotNil(t, Component(nil, "x"))
}
