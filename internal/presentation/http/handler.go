package httppresentation

import (
	"context"
	"net/http"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/gorilla/mux"
)

const (
	componentHTTPHandler = "http_server"
	defaultMaxBodyBytes  = 2 << 20
	healthTimeout        = 2 * time.Second
)

type Options struct {
	// APIPrefix mounts the cart and product routes, e.g. "/api".
	APIPrefix    string
	MaxBodyBytes int64
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Health reports dependency health for GET /health.
	Health func(ctx context.Context) error
}

type Handler struct {
	carts    *cartHandler
	products *productHandler
	opts     Options
	log      observability.Logger
	tel      observability.Observability
}

func NewHandler(carts CartService, products ProductService, opts Options, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	v := newValidator()
	return &Handler{
		carts:    &cartHandler{svc: carts, validate: v, maxBody: opts.MaxBodyBytes},
		products: &productHandler{svc: products, validate: v, maxBody: opts.MaxBodyBytes},
		opts:     opts,
		log:      tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

// Router wires every route behind Trace → request logger → metrics → access log.
func (h *Handler) Router() http.Handler {
	root := mux.NewRouter()
	root.Use(
		withTrace(h.tel.Tracer()),
		ObservabilityMiddleware(h.log),
		withHTTPMetrics(h.tel.Metrics()),
		withAccessLog(h.log),
	)
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed on "+r.URL.Path)
	})

	root.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	if h.opts.Metrics != nil {
		root.Handle("/metrics", h.opts.Metrics).Methods(http.MethodGet)
	}

	api := root
	if h.opts.APIPrefix != "" {
		api = root.PathPrefix(h.opts.APIPrefix).Subrouter()
	}
	h.carts.register(api)
	h.products.register(api)
	return root
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.opts.Health(ctx); err != nil {
			logctx.FromOr(r.Context(), h.log).Warn("health_check_failed", observability.F("error", err))
			writeError(w, r, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
}
