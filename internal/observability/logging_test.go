package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  LogConfig
		wantErr bool
	}{
		{
			name:    "default config",
			config:  DefaultLogConfig(),
			wantErr: false,
		},
		{
			name: "console format",
			config: LogConfig{
				Level:  "debug",
				Format: "console",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "stderr output",
			config: LogConfig{
				Level:  "info",
				Format: "json",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "invalid level",
			config: LogConfig{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.config)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(DefaultLogConfig())
	require.NoError(t, err)

	child := logger.With(String("component", "test"))
	assert.NotNil(t, child)

	// Both loggers must remain usable.
	logger.Info("parent")
	child.Info("child", Int("count", 1))
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(DefaultLogConfig())
	require.NoError(t, err)

	t.Run("without request id", func(t *testing.T) {
		t.Parallel()

		enriched := logger.WithContext(context.Background())
		assert.Equal(t, logger, enriched)
	})

	t.Run("with request id", func(t *testing.T) {
		t.Parallel()

		ctx := ContextWithRequestID(context.Background(), "req-123")
		enriched := logger.WithContext(ctx)
		assert.NotNil(t, enriched)
		assert.NotEqual(t, logger, enriched)
	})
}

func TestRequestIDFromContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, RequestIDFromContext(context.Background()))

	ctx := ContextWithRequestID(context.Background(), "req-456")
	assert.Equal(t, "req-456", RequestIDFromContext(ctx))
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	require.NotNil(t, logger)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	assert.Equal(t, logger, logger.With(String("k", "v")))
	assert.Equal(t, logger, logger.WithContext(context.Background()))
	assert.NoError(t, logger.Sync())
}

func TestGlobalLogger(t *testing.T) {
	logger, err := NewLogger(DefaultLogConfig())
	require.NoError(t, err)

	SetGlobalLogger(logger)
	assert.Equal(t, logger, GetGlobalLogger())

	SetGlobalLogger(nil)
	assert.Equal(t, NopLogger(), GetGlobalLogger())
}
