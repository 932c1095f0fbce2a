package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_ValidatesConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	require.Error(t, err)
}

func TestNewLogger_Defaults(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	require.NoError(t, logger.Sync())
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithUserID(context.Background(), "alice")
	ctx = WithRequestID(ctx, "req-42")
	tl.Info(ctx, "scan complete", zap.Int("indexed", 3))

	entries := tl.FilterMessage("scan complete").All()
	require.Len(t, entries, 1)

	keys := map[string]bool{}
	for _, f := range entries[0].Context {
		keys[f.Key] = true
	}
	assert.True(t, keys["user.id"])
	assert.True(t, keys["request.id"])
	assert.True(t, keys["indexed"])
}

func TestLogger_With(t *testing.T) {
	tl := NewTestLogger()
	child := tl.With(zap.String("component", "scanner"))
	child.Warn(context.Background(), "listing failed")

	tl.AssertLogged(t, zapcore.WarnLevel, "listing failed")
	entries := tl.FilterMessage("listing failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "scanner", entries[0].Context[0].String)
}
