package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

type StoreDriver string

const (
	StoreMongo  StoreDriver = "mongo"
	StoreMemory StoreDriver = "memory"
)

type Config struct {
	ServiceName string
	Env         string
	LogFile     string

	HTTPAddr        string
	APIPrefix       string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration

	StoreDriver   StoreDriver
	MongoURI      string
	MongoDatabase string

	ProductServiceURL     string
	ProductServiceTimeout time.Duration

	RestockOnRemove  bool
	DefaultCurrency  currency.Unit
	TraceSampleRatio float64
}

// Load reads the configuration from the environment. Unset variables take
// their defaults; set but malformed ones are reported together.
func Load() (Config, error) {
	var e env
	cfg := Config{
		ServiceName: e.str("SERVICE_NAME", "minishop-cart"),
		Env:         e.str("ENV", "dev"),
		LogFile:     e.str("LOG_FILE", ""),

		HTTPAddr:        e.str("HTTP_ADDR", ":8080"),
		APIPrefix:       e.str("API_PREFIX", "/api"),
		MaxBodyBytes:    e.int64("MAX_BODY_BYTES", 2<<20),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		StoreDriver:   StoreDriver(e.str("STORE_DRIVER", string(StoreMongo))),
		MongoURI:      e.str("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: e.str("MONGO_DATABASE", "minishop"),

		ProductServiceURL:     e.str("PRODUCT_SERVICE_URL", "http://localhost:8080/api"),
		ProductServiceTimeout: e.duration("PRODUCT_SERVICE_TIMEOUT", 5*time.Second),

		RestockOnRemove:  e.bool("CART_RESTOCK_ON_REMOVE", true),
		DefaultCurrency:  e.currency("DEFAULT_CURRENCY", currency.USD),
		TraceSampleRatio: e.float("TRACE_SAMPLE_RATIO", 1),
	}
	cfg.APIPrefix = normalizePrefix(cfg.APIPrefix)

	if err := cfg.validate(); err != nil {
		e.errs = append(e.errs, err)
	}
	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(e.errs...))
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", c.StoreDriver))
	}
	if u, err := url.Parse(c.ProductServiceURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("PRODUCT_SERVICE_URL: %q is not an absolute url", c.ProductServiceURL))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("TRACE_SAMPLE_RATIO: %v is outside [0, 1]", c.TraceSampleRatio))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES: must be positive"))
	}
	if c.ProductServiceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PRODUCT_SERVICE_TIMEOUT: must be positive"))
	}
	return errors.Join(errs...)
}

// normalizePrefix turns "api", "/api/" and "/api" into "/api"; "" and "/"
// mean no prefix.
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// env collects parse errors while reading variables.
type env struct{ errs []error }

func (e *env) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *env) int64(key string, def int64) int64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (e *env) bool(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) currency(key string, def currency.Unit) currency.Unit {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	u, err := currency.ParseISO(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return u
}
