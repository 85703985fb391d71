package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valor/internal/config"
)

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		level   string
		enabled slog.Level
		below   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			h := NewLogger(tt.level).Handler()
			assert.True(t, h.Enabled(ctx, tt.enabled))
			assert.False(t, h.Enabled(ctx, tt.below))
		})
	}
}

func TestComponentsClose_ReverseOrderFirstError(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	c := &Components{
		logger: slog.New(slog.DiscardHandler),
		closers: []func() error{
			func() error { order = append(order, "db"); return nil },
			func() error { order = append(order, "redis"); return boom },
			func() error { order = append(order, "queue"); return errors.New("later") },
		},
	}

	err := c.Close()
	require.Error(t, err)
	assert.Equal(t, "later", err.Error())
	assert.Equal(t, []string{"queue", "redis", "db"}, order)

	assert.NoError(t, c.Close(), "second close is a no-op")
}

func TestLoadAWSConfig_EndpointOverride(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg, err := LoadAWSConfig(context.Background(), config.AWSConfig{Region: "eu-west-1", EndpointURL: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	require.NotNil(t, cfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *cfg.BaseEndpoint)

	cfg, err = LoadAWSConfig(context.Background(), config.AWSConfig{Region: "us-east-1"})
	require.NoError(t, err)
	assert.Nil(t, cfg.BaseEndpoint)
}
