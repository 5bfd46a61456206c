package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/auditsnap/internal/progress"
)

func TestLogSinkFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	batch := []progress.Event{
		{ReportID: "r1", UserID: "u1", Stage: progress.StageFailed, Host: "example.com", TS: time.Now(), Dur: time.Second, Note: "timeout"},
		{ReportID: "r2", Stage: progress.StageSubmitted, Host: "example.org", TS: time.Now()},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	require.Equal(t, "r1", first["report_id"])
	require.Equal(t, "u1", first["user_id"])
	require.Equal(t, "timeout", first["note"])
	second := entries[1].ContextMap()
	require.NotContains(t, second, "user_id")
	require.NotContains(t, second, "note")
}

func TestNewLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{ReportID: "r"}}))
}
