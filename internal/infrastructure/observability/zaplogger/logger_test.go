package zaplogger_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zaplogger.Wrap(zap.New(core)).With(observability.F("component", "cart_service"))

	log.Warn("stock_write_failed",
		observability.F("error", errors.New("boom")),
		observability.F("cart_id", "c1"),
	)

	entries := logs.FilterMessage("stock_write_failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "cart_service", fields["component"])
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "c1", fields["cart_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestWrap_Nil(t *testing.T) {
	log := zaplogger.Wrap(nil)
	assert.NotPanics(t, func() { log.Info("nothing") })
	assert.Same(t, log, log.With())
}

func TestNew_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := zaplogger.New(path, observability.F("service", "minishop-cart"))
	require.NoError(t, err)
	log.Info("http_server_start", observability.F("addr", ":8080"))
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "http_server_start", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "minishop-cart", entry["service"])
	assert.Equal(t, ":8080", entry["addr"])
	assert.Contains(t, entry, "ts")
}
