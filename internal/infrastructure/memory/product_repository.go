package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
)

type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[string]*domain.Product),
	}
}

func (r *ProductRepository) Insert(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[p.ID]; exists {
		return fmt.Errorf("product repository: duplicate id %q", p.ID)
	}
	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) List(ctx context.Context, q domain.Query) (domain.Page, error) {
	_ = ctx
	q = q.Normalized()

	r.mu.RLock()
	matched := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		if matches(p, q) {
			matched = append(matched, p.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *domain.Product) int {
		c := compareBy(a, b, q.SortBy)
		if q.SortDesc {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		return c
	})

	page := domain.Page{Items: []*domain.Product{}, Total: int64(len(matched))}
	if off := q.Offset(); off < len(matched) {
		page.Items = matched[off:min(off+q.Limit, len(matched))]
	}
	return page, nil
}

func (r *ProductRepository) Update(ctx context.Context, p *domain.Product, expectedStock *int) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.products[p.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if expectedStock != nil && stored.Stock != *expectedStock {
		return domain.ErrStockConflict
	}
	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[id]; !exists {
		return domain.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func matches(p *domain.Product, q domain.Query) bool {
	if q.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Search)) {
		return false
	}
	if q.Category != "" && !slices.Contains(p.Categories, q.Category) {
		return false
	}
	if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
		return false
	}
	if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
		return false
	}
	if q.Active != nil && p.IsActive != *q.Active {
		return false
	}
	return true
}

func compareBy(a, b *domain.Product, field domain.SortField) int {
	switch field {
	case domain.SortName:
		return strings.Compare(a.Name, b.Name)
	case domain.SortPrice:
		return a.Price.Cmp(b.Price)
	case domain.SortStock:
		return cmp.Compare(a.Stock, b.Stock)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
