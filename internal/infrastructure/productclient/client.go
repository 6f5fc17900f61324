package productclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/text/currency"
)

const (
	peerProductService = "product-service"
	endpointFetch      = "products.get"
	endpointAdjust     = "products.patch_stock"
	componentClient    = "product_client"
	maxErrorBody       = 4 << 10

	DefaultTimeout = 5 * time.Second
)

// Client reaches the product service over HTTP. Every call is bounded by timeout.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration

	log          observability.Logger
	tracer       observability.Tracer
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

var _ appcart.ProductGateway = (*Client)(nil)

func New(baseURL string, timeout time.Duration, httpClient *http.Client, tel observability.Observability) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("product client: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("product client: base url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if tel == nil {
		tel = observability.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:      u,
		http:         httpClient,
		timeout:      timeout,
		log:          tel.Logger().With(observability.F("component", componentClient)),
		tracer:       tel.Tracer(),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type productBody struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Stock    int             `json:"stock"`
}

type stockPatch struct {
	Stock         int `json:"stock"`
	ExpectedStock int `json:"expectedStock"`
}

func (c *Client) FetchProduct(ctx context.Context, productID string) (appcart.ProductSnapshot, error) {
	var body productBody
	if err := c.do(ctx, http.MethodGet, endpointFetch, productID, nil, &body); err != nil {
		return appcart.ProductSnapshot{}, err
	}
	cur, err := currency.ParseISO(body.Currency)
	if err != nil {
		return appcart.ProductSnapshot{}, fmt.Errorf("%w: product currency %q: %w", application.ErrRemoteUnavailable, body.Currency, err)
	}
	return appcart.ProductSnapshot{
		ID:       body.ID,
		Name:     body.Name,
		Price:    body.Price,
		Currency: cur,
		Stock:    body.Stock,
	}, nil
}

func (c *Client) AdjustStock(ctx context.Context, productID string, newStock, expectedStock int) error {
	return c.do(ctx, http.MethodPatch, endpointAdjust, productID,
		stockPatch{Stock: newStock, ExpectedStock: expectedStock}, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint, productID string, in, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "HTTP "+method+" product",
		attribute.String("peer.service", peerProductService),
		attribute.String("http.method", method),
		attribute.String("product.id", productID),
	)
	start := time.Now()
	outcome, status := "success", 0

	defer func() {
		c.extCounter.Add(1,
			observability.L("peer", peerProductService),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerProductService),
			observability.L("endpoint", endpoint),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			logctx.FromOr(ctx, c.log).Warn("product_service_call_failed",
				observability.F("endpoint", endpoint),
				observability.F("product_id", productID),
				observability.F("http_status", status),
				observability.F("error", err),
			)
		}
		span.End()
	}()

	target := c.baseURL.JoinPath("products", url.PathEscape(productID))
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			outcome = "error"
			return fmt.Errorf("product client: encode: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("product client: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid := logctx.RequestID(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		outcome = "unavailable"
		if ctx.Err() != nil {
			outcome = "timeout"
		}
		return fmt.Errorf("%w: product service: %w", application.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status >= 200 && status < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			outcome = "error"
			return fmt.Errorf("%w: product service: decode envelope: %w", application.ErrRemoteUnavailable, err)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			outcome = "error"
			return fmt.Errorf("%w: product service: decode product: %w", application.ErrRemoteUnavailable, err)
		}
		return nil
	}

	msg := remoteMessage(resp.Body)
	switch status {
	case http.StatusNotFound:
		outcome = "not_found"
		return fmt.Errorf("%w: product %s: %s", application.ErrNotFound, productID, msg)
	case http.StatusConflict:
		outcome = "conflict"
		return fmt.Errorf("%w: product %s stock changed: %s", application.ErrConflict, productID, msg)
	case http.StatusBadRequest:
		outcome = "rejected"
		return fmt.Errorf("%w: product service: %s", application.ErrInvalidArgument, msg)
	default:
		outcome = "error"
		return fmt.Errorf("%w: product service answered %d: %s", application.ErrRemoteUnavailable, status, msg)
	}
}

// remoteMessage extracts the message of an error envelope, or the raw body.
func remoteMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}
