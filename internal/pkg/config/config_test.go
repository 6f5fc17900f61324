package config_test

import (
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

var allKeys = []string{
	"SERVICE_NAME", "ENV", "LOG_FILE", "HTTP_ADDR", "API_PREFIX", "MAX_BODY_BYTES",
	"SHUTDOWN_TIMEOUT", "STORE_DRIVER", "MONGO_URI", "MONGO_DATABASE",
	"PRODUCT_SERVICE_URL", "PRODUCT_SERVICE_TIMEOUT", "CART_RESTOCK_ON_REMOVE",
	"DEFAULT_CURRENCY", "TRACE_SAMPLE_RATIO",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "minishop-cart", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, int64(2<<20), cfg.MaxBodyBytes)
	assert.Equal(t, config.StoreMongo, cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.ProductServiceTimeout)
	assert.True(t, cfg.RestockOnRemove)
	assert.Equal(t, currency.USD, cfg.DefaultCurrency)
	assert.InDelta(t, 1.0, cfg.TraceSampleRatio, 1e-9)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_PREFIX", "v1/")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PRODUCT_SERVICE_TIMEOUT", "750ms")
	t.Setenv("CART_RESTOCK_ON_REMOVE", "false")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/v1", cfg.APIPrefix)
	assert.Equal(t, config.StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 750*time.Millisecond, cfg.ProductServiceTimeout)
	assert.False(t, cfg.RestockOnRemove)
	assert.Equal(t, currency.EUR, cfg.DefaultCurrency)
	assert.InDelta(t, 0.25, cfg.TraceSampleRatio, 1e-9)
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "timeout not a duration: error", key: "PRODUCT_SERVICE_TIMEOUT", value: "5", wantErr: "PRODUCT_SERVICE_TIMEOUT"},
		{name: "restock flag not a bool: error", key: "CART_RESTOCK_ON_REMOVE", value: "maybe", wantErr: "CART_RESTOCK_ON_REMOVE"},
		{name: "unknown store driver: error", key: "STORE_DRIVER", value: "postgres", wantErr: "STORE_DRIVER"},
		{name: "unknown currency: error", key: "DEFAULT_CURRENCY", value: "XYZQ", wantErr: "DEFAULT_CURRENCY"},
		{name: "ratio out of range: error", key: "TRACE_SAMPLE_RATIO", value: "1.5", wantErr: "TRACE_SAMPLE_RATIO"},
		{name: "relative product url: error", key: "PRODUCT_SERVICE_URL", value: "/products", wantErr: "PRODUCT_SERVICE_URL"},
		{name: "negative body limit: error", key: "MAX_BODY_BYTES", value: "-1", wantErr: "MAX_BODY_BYTES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
