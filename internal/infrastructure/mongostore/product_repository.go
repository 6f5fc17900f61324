package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

type ProductRepository struct {
	store *Store
	coll  *mongo.Collection
}

var _ product.Repository = (*ProductRepository)(nil)

func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) (err error) {
	defer func() { r.store.record(collectionProducts, "insert", err) }()

	doc, err := mapProductToDocument(p)
	if err != nil {
		return fmt.Errorf("mapProductToDocument: %w", err)
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("products.InsertOne: %w", err)
	}
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (_ *product.Product, err error) {
	defer func() { r.store.record(collectionProducts, "get", err, product.ErrNotFound) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, product.ErrNotFound
	}
	var doc productDocument
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("products.FindOne: %w", err)
	}
	return mapProduct(doc)
}

// List runs the page query and the count concurrently against the same filter.
func (r *ProductRepository) List(ctx context.Context, q product.Query) (_ product.Page, err error) {
	defer func() { r.store.record(collectionProducts, "list", err) }()

	q = q.Normalized()
	filter, err := listFilter(q)
	if err != nil {
		return product.Page{}, err
	}

	order := 1
	if q.SortDesc {
		order = -1
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: string(q.SortBy), Value: order}, {Key: "_id", Value: 1}}).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.Limit))

	var (
		docs  []productDocument
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := r.coll.Find(gctx, filter, findOpts)
		if err != nil {
			return fmt.Errorf("products.Find: %w", err)
		}
		if err := cur.All(gctx, &docs); err != nil {
			return fmt.Errorf("cursor.All: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := r.coll.CountDocuments(gctx, filter)
		if err != nil {
			return fmt.Errorf("products.CountDocuments: %w", err)
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return product.Page{}, err
	}

	items := make([]*product.Product, 0, len(docs))
	for _, d := range docs {
		p, err := mapProduct(d)
		if err != nil {
			return product.Page{}, err
		}
		items = append(items, p)
	}
	return product.Page{Items: items, Total: total}, nil
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product, expectedStock *int) (err error) {
	defer func() {
		r.store.record(collectionProducts, "update", err, product.ErrNotFound, product.ErrStockConflict)
	}()

	doc, err := mapProductToDocument(p)
	if err != nil {
		return fmt.Errorf("mapProductToDocument: %w", err)
	}
	filter := bson.D{{Key: "_id", Value: doc.ID}}
	if expectedStock != nil {
		filter = append(filter, bson.E{Key: "stock", Value: *expectedStock})
	}

	res, err := r.coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("products.ReplaceOne: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if expectedStock == nil {
		return product.ErrNotFound
	}

	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: doc.ID}}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("products.CountDocuments: %w", err)
	}
	if n == 0 {
		return product.ErrNotFound
	}
	return product.ErrStockConflict
}

func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	defer func() { r.store.record(collectionProducts, "delete", err, product.ErrNotFound) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return product.ErrNotFound
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("products.DeleteOne: %w", err)
	}
	if res.DeletedCount == 0 {
		return product.ErrNotFound
	}
	return nil
}

func listFilter(q product.Query) (bson.D, error) {
	filter := bson.D{}
	if q.Search != "" {
		filter = append(filter, bson.E{Key: "name", Value: primitive.Regex{
			Pattern: regexp.QuoteMeta(q.Search),
			Options: "i",
		}})
	}
	if q.Category != "" {
		filter = append(filter, bson.E{Key: "categories", Value: q.Category})
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		price := bson.D{}
		if q.MinPrice != nil {
			v, err := toDecimal128(*q.MinPrice)
			if err != nil {
				return nil, err
			}
			price = append(price, bson.E{Key: "$gte", Value: v})
		}
		if q.MaxPrice != nil {
			v, err := toDecimal128(*q.MaxPrice)
			if err != nil {
				return nil, err
			}
			price = append(price, bson.E{Key: "$lte", Value: v})
		}
		filter = append(filter, bson.E{Key: "price", Value: price})
	}
	if q.Active != nil {
		filter = append(filter, bson.E{Key: "isActive", Value: *q.Active})
	}
	return filter, nil
}
