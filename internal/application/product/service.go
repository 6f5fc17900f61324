package product

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	domproduct "github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/currency"
)

const (
	productService = "product-service"
	spanPrefix     = "UC."

	useCaseCreate = "product.create"
	useCaseGet    = "product.get"
	useCaseList   = "product.list"
	useCaseUpdate = "product.update"
	useCaseDelete = "product.delete"

	// Unguarded patches re-read and retry when a stock write lands in between.
	maxUpdateAttempts = 3
)

type Options struct {
	DefaultCurrency currency.Unit
	Now             func() time.Time
}

// Meta describes one page of a listing.
type Meta struct {
	TotalItems   int64
	ItemCount    int
	ItemsPerPage int
	TotalPages   int
	CurrentPage  int
}

type ListResult struct {
	Items []*domproduct.Product
	Meta  Meta
}

// UpdateCommand patches a product. ExpectedStock, when set, makes the write
// conditional on the stored stock still being that value.
type UpdateCommand struct {
	ID            string
	Patch         domproduct.Patch
	ExpectedStock *int
}

type Service struct {
	products domproduct.Repository
	ids      application.IDGenerator
	opts     Options

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewService(products domproduct.Repository, ids application.IDGenerator, opts Options, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultCurrency == (currency.Unit{}) {
		opts.DefaultCurrency = currency.USD
	}
	return &Service{
		products:     products,
		ids:          ids,
		opts:         opts,
		log:          tel.Logger().With(observability.F("service", productService)),
		tracer:       tel.Tracer(),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (s *Service) Create(ctx context.Context, d domproduct.Draft) (p *domproduct.Product, err error) {
	ctx, done := s.begin(ctx, useCaseCreate, "CreateProduct")
	defer func() { done(err) }()

	if d.Currency == (currency.Unit{}) {
		d.Currency = s.opts.DefaultCurrency
	}
	p, err = domproduct.New(s.ids.NewID(), d, s.opts.Now())
	if err != nil {
		return nil, classify(err)
	}
	if err = s.products.Insert(ctx, p); err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (p *domproduct.Product, err error) {
	ctx, done := s.begin(ctx, useCaseGet, "GetProduct", observability.F("product_id", id))
	defer func() { done(err) }()

	if err = s.validID(id); err != nil {
		return nil, err
	}
	p, err = s.products.Get(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, q domproduct.Query) (_ *ListResult, err error) {
	ctx, done := s.begin(ctx, useCaseList, "ListProducts")
	defer func() { done(err) }()

	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return nil, fmt.Errorf("%w: minPrice is greater than maxPrice", application.ErrInvalidArgument)
	}
	q = q.Normalized()
	page, err := s.products.List(ctx, q)
	if err != nil {
		return nil, classify(err)
	}

	totalPages := int((page.Total + int64(q.Limit) - 1) / int64(q.Limit))
	return &ListResult{
		Items: page.Items,
		Meta: Meta{
			TotalItems:   page.Total,
			ItemCount:    len(page.Items),
			ItemsPerPage: q.Limit,
			TotalPages:   totalPages,
			CurrentPage:  q.Page,
		},
	}, nil
}

func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (p *domproduct.Product, err error) {
	ctx, done := s.begin(ctx, useCaseUpdate, "UpdateProduct", observability.F("product_id", cmd.ID))
	defer func() { done(err) }()

	if err = s.validID(cmd.ID); err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		p, err = s.updateOnce(ctx, cmd)
		if cmd.ExpectedStock != nil || attempt >= maxUpdateAttempts || !errors.Is(err, domproduct.ErrStockConflict) {
			break
		}
	}
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

// updateOnce always writes guarded on the stock it read, so a patch never
// replays a stale stock over a concurrent stock write.
func (s *Service) updateOnce(ctx context.Context, cmd UpdateCommand) (*domproduct.Product, error) {
	p, err := s.products.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	read := p.Stock
	if cmd.ExpectedStock != nil && read != *cmd.ExpectedStock {
		return nil, domproduct.ErrStockConflict
	}
	if err := p.Apply(cmd.Patch, s.opts.Now()); err != nil {
		return nil, err
	}
	if err := s.products.Update(ctx, p, &read); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, done := s.begin(ctx, useCaseDelete, "DeleteProduct", observability.F("product_id", id))
	defer func() { done(err) }()

	if err = s.validID(id); err != nil {
		return err
	}
	if err = s.products.Delete(ctx, id); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Service) begin(ctx context.Context, useCase, spanName string, fields ...observability.Field) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName, attribute.String("use_case", useCase))
	start := time.Now()
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCase))

	return ctx, func(err error) {
		outcome, status := "success", application.StatusText(err)
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		latency := time.Since(start).Seconds()
		s.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
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

func (s *Service) validID(id string) error {
	if !s.ids.Valid(id) {
		return fmt.Errorf("%w: product id %q is not a valid id", application.ErrInvalidArgument, id)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, domproduct.ErrNotFound):
		return fmt.Errorf("%w: %w", application.ErrNotFound, err)
	case errors.Is(err, domproduct.ErrStockConflict):
		return fmt.Errorf("%w: %w", application.ErrConflict, err)
	case errors.Is(err, domproduct.ErrInvalidName),
		errors.Is(err, domproduct.ErrInvalidDescription),
		errors.Is(err, domproduct.ErrInvalidPrice),
		errors.Is(err, domproduct.ErrInvalidStock):
		return fmt.Errorf("%w: %w", application.ErrInvalidArgument, err)
	default:
		return fmt.Errorf("product: %w", err)
	}
}
