package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewFromLevelFallsBackToNop(t *testing.T) {
	logger := NewFromLevel("loud", false)
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil).Logger)

	core, logs := observer.New(zapcore.InfoLevel)
	l := &Logger{Logger: zap.New(core)}
	assert.Same(t, l, OrNop(l))

	l.Named("resolver").With(zap.String("run", "r1")).Info("phase changed")
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "resolver", entries[0].LoggerName)
	assert.Equal(t, "r1", entries[0].ContextMap()["run"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
