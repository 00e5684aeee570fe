package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitSetsLevelByEnv(t *testing.T) {
	require.NoError(t, Init("production"))
	assert.Equal(t, zapcore.InfoLevel, Level())
	assert.False(t, Get().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init("development"))
	assert.Equal(t, zapcore.DebugLevel, Level())
	assert.True(t, Named("test").Core().Enabled(zapcore.DebugLevel))
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init("development"))
	t.Cleanup(func() { _ = SetLevel("debug") })

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zapcore.WarnLevel, Level())
	assert.False(t, Get().Core().Enabled(zapcore.InfoLevel), "existing loggers follow the level")

	require.NoError(t, SetLevel(""))
	assert.Equal(t, zapcore.WarnLevel, Level())

	assert.Error(t, SetLevel("loud"))
}
