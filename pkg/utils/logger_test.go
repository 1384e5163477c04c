package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode enables debug level", func(t *testing.T) {
		logger, err := NewLogger(true)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel))
		_ = logger.Sync()
	})

	t.Run("production mode starts at info", func(t *testing.T) {
		logger, err := NewLogger(false)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(zap.DebugLevel))
		assert.True(t, logger.Core().Enabled(zap.InfoLevel))
		_ = logger.Sync()
	})
}

func TestLoggerOrNop(t *testing.T) {
	assert.NotNil(t, LoggerOrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, LoggerOrNop(l))
}
