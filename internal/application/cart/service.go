package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	cartService  = "cart-service"
	spanPrefix   = "UC."
	publishPeer  = "outbox"
	publishLimit = 300 * time.Millisecond

	useCaseCreate = "cart.create"
	useCaseGet    = "cart.get"
	useCaseAdd    = "cart.add_item"
	useCaseUpdate = "cart.update_item_quantity"
	useCaseRemove = "cart.remove_item"
	useCaseDelete = "cart.delete"
)

type Options struct {
	// RestockOnRemove publishes restock events when lines leave a cart.
	RestockOnRemove bool
	Now             func() time.Time
}

// Service runs the cart workflow. A cart mutation is stored first and the
// matching stock write second; when the stock write fails the cart mutation
// is undone before the error is returned.
type Service struct {
	carts     domcart.Repository
	products  ProductGateway
	ids       application.IDGenerator
	publisher domoutbox.Publisher
	opts      Options

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	compCounter  observability.Counter
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewService(
	carts domcart.Repository,
	products ProductGateway,
	ids application.IDGenerator,
	publisher domoutbox.Publisher,
	opts Options,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := tel.Metrics()
	return &Service{
		carts:        carts,
		products:     products,
		ids:          ids,
		publisher:    publisher,
		opts:         opts,
		log:          tel.Logger().With(observability.F("service", cartService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		compCounter:  m.Counter(observability.MCompensations),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (s *Service) CreateCart(ctx context.Context) (c *domcart.Cart, err error) {
	ctx, _, done := s.begin(ctx, useCaseCreate, "CreateCart")
	defer func() { done(err) }()

	c = domcart.New(s.ids.NewID(), s.opts.Now())
	if err = s.carts.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: insert: %w", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("cart.id", c.ID))
	return c, nil
}

func (s *Service) GetCart(ctx context.Context, cartID string) (c *domcart.Cart, err error) {
	ctx, _, done := s.begin(ctx, useCaseGet, "GetCart", observability.F("cart_id", cartID))
	defer func() { done(err) }()

	if err = s.validID("cart id", cartID); err != nil {
		return nil, err
	}
	c, err = s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

// AddItem appends one unit of productID and takes that unit out of stock.
func (s *Service) AddItem(ctx context.Context, cartID, productID string) (c *domcart.Cart, err error) {
	ctx, logger, done := s.begin(ctx, useCaseAdd, "AddItem",
		observability.F("cart_id", cartID),
		observability.F("product_id", productID),
	)
	defer func() { done(err) }()

	if err = s.validID("cart id", cartID); err != nil {
		return nil, err
	}
	if err = s.validID("product id", productID); err != nil {
		return nil, err
	}

	current, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, classify(err)
	}
	p, err := s.products.FetchProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("cart: fetch product: %w", err)
	}
	if p.Stock < 1 {
		return nil, fmt.Errorf("%w: product %s is out of stock", application.ErrInsufficientStock, productID)
	}

	snap, err := domcart.NewSnapshot(p.Name, p.Price, p.Currency)
	if err != nil {
		return nil, classify(err)
	}
	item, err := domcart.NewItem(s.ids.NewID(), productID, snap, 1)
	if err != nil {
		return nil, classify(err)
	}
	if err = current.CanAdd(item); err != nil {
		return nil, classify(err)
	}

	c, err = s.carts.PushItem(ctx, cartID, item)
	if err != nil {
		return nil, classify(err)
	}
	trace.SpanFromContext(ctx).AddEvent("cart.item_pushed", trace.WithAttributes(attribute.String("item.id", item.ID)))

	if err = s.products.AdjustStock(ctx, productID, p.Stock-1, p.Stock); err != nil {
		s.compensate(ctx, logger, useCaseAdd, func(ctx context.Context) error {
			_, _, err := s.carts.PullItem(ctx, cartID, item.ID)
			return err
		})
		return nil, fmt.Errorf("cart: reserve stock: %w", err)
	}
	return c, nil
}

// UpdateItemQuantity sets an absolute quantity and moves the difference
// between the cart and the product's stock.
func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (c *domcart.Cart, err error) {
	ctx, logger, done := s.begin(ctx, useCaseUpdate, "UpdateItemQuantity",
		observability.F("cart_id", cartID),
		observability.F("item_id", itemID),
		observability.F("quantity", quantity),
	)
	defer func() { done(err) }()

	if err = s.validID("cart id", cartID); err != nil {
		return nil, err
	}
	if err = s.validID("item id", itemID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: %w", application.ErrInvalidArgument, domcart.ErrInvalidQuantity)
	}

	current, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, classify(err)
	}
	item, ok := current.Item(itemID)
	if !ok {
		return nil, classify(domcart.ErrItemNotFound)
	}
	p, err := s.products.FetchProduct(ctx, item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("cart: fetch product: %w", err)
	}

	delta := quantity - item.Quantity
	if delta > p.Stock {
		return nil, fmt.Errorf("%w: requested %d more of product %s, %d left",
			application.ErrInsufficientStock, delta, item.ProductID, p.Stock)
	}

	// Both writes are guarded so neither replays a quantity another request changed.
	c, err = s.carts.SetItemQuantity(ctx, cartID, itemID, quantity, &item.Quantity)
	if err != nil {
		return nil, classify(err)
	}
	if delta == 0 {
		return c, nil
	}

	if err = s.products.AdjustStock(ctx, item.ProductID, p.Stock-delta, p.Stock); err != nil {
		s.compensate(ctx, logger, useCaseUpdate, func(ctx context.Context) error {
			_, err := s.carts.SetItemQuantity(ctx, cartID, itemID, item.Quantity, &quantity)
			return err
		})
		return nil, fmt.Errorf("cart: adjust stock: %w", err)
	}
	return c, nil
}

func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (c *domcart.Cart, err error) {
	ctx, logger, done := s.begin(ctx, useCaseRemove, "RemoveItem",
		observability.F("cart_id", cartID),
		observability.F("item_id", itemID),
	)
	defer func() { done(err) }()

	if err = s.validID("cart id", cartID); err != nil {
		return nil, err
	}
	if err = s.validID("item id", itemID); err != nil {
		return nil, err
	}

	c, removed, err := s.carts.PullItem(ctx, cartID, itemID)
	if err != nil {
		return nil, classify(err)
	}
	if s.opts.RestockOnRemove {
		s.publish(ctx, logger, domcart.NewItemRemovedEvent(cartID, removed))
	}
	return c, nil
}

func (s *Service) DeleteCart(ctx context.Context, cartID string) (err error) {
	ctx, logger, done := s.begin(ctx, useCaseDelete, "DeleteCart", observability.F("cart_id", cartID))
	defer func() { done(err) }()

	if err = s.validID("cart id", cartID); err != nil {
		return err
	}
	deleted, err := s.carts.Delete(ctx, cartID)
	if err != nil {
		return classify(err)
	}
	if s.opts.RestockOnRemove && len(deleted.Items) > 0 {
		s.publish(ctx, logger, domcart.NewCartDeletedEvent(deleted))
	}
	return nil
}

// begin opens the span and returns the finisher that records metrics and
// the single use_case_done line.
func (s *Service) begin(ctx context.Context, useCase, spanName string, fields ...observability.Field) (context.Context, observability.Logger, func(error)) {
	attrs := []attribute.KeyValue{attribute.String("use_case", useCase)}
	for _, f := range fields {
		if v, ok := f.Value.(string); ok {
			attrs = append(attrs, attribute.String(f.Key, v))
		}
	}
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	start := time.Now()

	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCase))
	ctx = logctx.With(ctx, logger)

	return ctx, logger, func(err error) {
		outcome, status := "success", "OK"
		if err != nil {
			outcome, status = "error", application.StatusText(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		latency := time.Since(start).Seconds()
		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(latency, observability.L("use_case", useCase))

		out := append(slices.Clone(fields),
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", latency),
		)
		out = append(out, observability.TraceFields(ctx)...)
		if err != nil {
			out = append(out, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", out...)
	}
}

// compensate undoes a stored cart mutation after its stock write failed.
// It runs detached from request cancellation.
func (s *Service) compensate(ctx context.Context, logger observability.Logger, useCase string, undo func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, spanPrefix+"Compensate", attribute.String("use_case", useCase))
	defer span.End()

	outcome := "success"
	if err := undo(ctx); err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "COMPENSATION_FAILED")
		logger.Error("stock_compensation_failed", observability.F("error", err))
	} else {
		logger.Warn("stock_compensated")
	}
	s.compCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

// publish hands a restock event to the outbox. The cart change already
// happened, so a failed publish is logged rather than returned.
func (s *Service) publish(ctx context.Context, logger observability.Logger, event domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishLimit)
	defer cancel()

	start := time.Now()
	err := s.publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
		logger.Warn("restock_event_publish_failed",
			observability.F("event", event.EventName()),
			observability.F("error", err),
		)
	}
	s.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
	)
}

func (s *Service) validID(what, id string) error {
	if !s.ids.Valid(id) {
		return fmt.Errorf("%w: %s %q is not a valid id", application.ErrInvalidArgument, what, id)
	}
	return nil
}

// classify lifts domain errors into the application categories.
func classify(err error) error {
	switch {
	case errors.Is(err, domcart.ErrNotFound), errors.Is(err, domcart.ErrItemNotFound):
		return fmt.Errorf("%w: %w", application.ErrNotFound, err)
	case errors.Is(err, domcart.ErrDuplicateProduct), errors.Is(err, domcart.ErrCurrencyMismatch),
		errors.Is(err, domcart.ErrQuantityChanged):
		return fmt.Errorf("%w: %w", application.ErrConflict, err)
	case errors.Is(err, domcart.ErrInvalidQuantity), errors.Is(err, domcart.ErrInvalidPrice):
		return fmt.Errorf("%w: %w", application.ErrInvalidArgument, err)
	default:
		return fmt.Errorf("cart: %w", err)
	}
}
