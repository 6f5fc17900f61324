package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	appproduct "github.com/Zhima-Mochi/minishop-cart/internal/application/product"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domproduct "github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/mongostore"
	infraobs "github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/productclient"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/pkg/config"
	httppresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type stores struct {
	carts    domcart.Repository
	products domproduct.Repository
	health   func(context.Context) error
	close    func(context.Context) error
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseLogger, err := zaplogger.New(cfg.LogFile,
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger.Zap())

	systemLogger := baseLogger.With(observability.F("component", "system"))

	tp := oteltrace.Install(cfg.TraceSampleRatio)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tel := infraobs.New(infraobs.Options{
		Tracer:  oteltrace.New(cfg.ServiceName),
		Logger:  baseLogger,
		Metrics: prometrics.New(reg, "", ""),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, tel)
	if err != nil {
		return err
	}
	defer func() { _ = st.close(context.Background()) }()

	gateway, err := productclient.New(cfg.ProductServiceURL, cfg.ProductServiceTimeout, nil, tel)
	if err != nil {
		return err
	}
	var ids application.IDGenerator = id.NewObjectIDGenerator()

	// In-memory event bus carrying restock events to the worker
	bus := outbox.NewBus(baseLogger)
	workerpresentation.NewRestockWorker(appcart.NewRestockUseCase(gateway, 0, tel), tel).Register(bus)
	bus.Start(ctx)

	cartService := appcart.NewService(st.carts, gateway, ids, bus, appcart.Options{RestockOnRemove: cfg.RestockOnRemove}, tel)
	productService := appproduct.NewService(st.products, ids, appproduct.Options{DefaultCurrency: cfg.DefaultCurrency}, tel)

	handler := httppresentation.NewHandler(cartService, productService, httppresentation.Options{
		APIPrefix:    cfg.APIPrefix,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:       st.health,
	}, tel)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProductServiceTimeout*3 + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("api_prefix", cfg.APIPrefix),
			observability.F("store", string(cfg.StoreDriver)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.F("error", err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Warn("event_bus_drain_incomplete", observability.F("error", err))
	}
	return nil
}

func openStores(ctx context.Context, cfg config.Config, tel observability.Observability) (stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return stores{
			carts:    memory.NewCartRepository(),
			products: memory.NewProductRepository(),
			close:    func(context.Context) error { return nil },
		}, nil
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := mongostore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase, tel)
		if err != nil {
			return stores{}, fmt.Errorf("connect mongo: %w", err)
		}
		return stores{
			carts:    s.Carts(),
			products: s.Products(),
			health:   s.Ping,
			close:    s.Close,
		}, nil
	}
}
