package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	prev := Logger
	Logger = zap.New(core)
	t.Cleanup(func() { Logger = prev })
	return logs
}

func TestLevelHelpersWriteToGlobalLogger(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Debug("listener closed", zap.String("addr", ":8080"))
	Info("shutting down")
	Warn("using the in-memory store")
	Error("graceful shutdown failed", zap.String("cause", "deadline"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, ":8080", entries[0].ContextMap()["addr"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "graceful shutdown failed", entries[3].Message)
}

func TestDebugIsDroppedAtInfoLevel(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	Debug("listener closed")
	Error("pricing API stopped")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "pricing API stopped", logs.All()[0].Message)
}

func TestNamedCarriesTenantAndActor(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	Named("settings").Info("settings updated", Tenant("shop-1"), Actor("u-7"))

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "settings", e.LoggerName)
	assert.Equal(t, map[string]interface{}{"tenant_id": "shop-1", "actor": "u-7"}, e.ContextMap())
}

func TestInitializeFallsBackToInfoOnBadLevel(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	require.NoError(t, Initialize(Config{Level: "chatty", Format: "console", Output: "stderr"}))
	assert.False(t, Logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Logger.Core().Enabled(zapcore.InfoLevel))
}
