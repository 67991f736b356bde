package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	l, closer := Init(Options{Service: "test-worker", Level: "debug", Path: path, MaxSizeMB: 1, MaxBackups: 1})
	l.Info().Str("order_id", "42").Msg("order delivered")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"order_id":"42"`)
	assert.Contains(t, string(raw), `"service":"test-worker"`)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, closer := Init(Options{Service: "test-worker", Level: "loud", Path: filepath.Join(t.TempDir(), "w.log")})
	defer closer.Close()
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestWithContext_AddsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.log")
	_, closer := Init(Options{Service: "test-worker", Path: path})

	ctx := WithContext(context.Background(), map[string]string{"run_id": "run-1"})
	Ctx(ctx).Info().Msg("poll started")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"run_id":"run-1"`)
}
