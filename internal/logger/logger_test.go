package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitDefaultsToInfoLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogDir = t.TempDir()
	require.NoError(t, Init(cfg))
	assert.NotNil(t, Get())
	assert.NotNil(t, Sugar())
	assert.True(t, Get().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Get().Core().Enabled(zapcore.DebugLevel))
}

func TestModbusLoggerAdapterChains(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogDir = t.TempDir()
	require.NoError(t, Init(cfg))

	l := ModbusLogger()
	tagged := l.With("transport", "tcp")
	require.NotNil(t, tagged)

	// Adapter methods must not panic with both the console core and the
	// file core in place.
	tagged.Infow("test message", "k", "v")
	tagged.Debugw("test message")
	tagged.Warnw("test message")
	tagged.Errorw("test message")
}
