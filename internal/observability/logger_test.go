package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("default json logger", func(t *testing.T) {
		logger, err := NewLogger("info", "json")
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer func() { _ = logger.Sync() }()

		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("development console logger", func(t *testing.T) {
		logger, err := NewLogger("debug", "console")
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer func() { _ = logger.Sync() }()

		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("level is case insensitive", func(t *testing.T) {
		logger, err := NewLogger("WARN", "json")
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("invalid log level", func(t *testing.T) {
		logger, err := NewLogger("invalid", "json")
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid log format", func(t *testing.T) {
		logger, err := NewLogger("info", "xml")
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log format")
	})

	t.Run("defaults when not set", func(t *testing.T) {
		logger, err := NewLogger("", "")
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	})
}
