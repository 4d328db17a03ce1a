package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Info("RETRIEVER", "matched chunks", map[string]interface{}{"ids": []string{"course"}})
	l.Error("ROUTER", "provider failed", map[string]interface{}{"error": "boom"})
	l.Warn("MEMORY", "nil details", nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "matched chunks", entries[0].Message)
	assert.Equal(t, "RETRIEVER", entries[0].ContextMap()["module"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error_ref"])

	assert.Equal(t, map[string]interface{}{}, entries[2].ContextMap()["details"])
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Debug("TEST", "ignored", nil)
	assert.NoError(t, l.Sync())
}
