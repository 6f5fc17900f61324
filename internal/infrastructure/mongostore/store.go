package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collectionCarts    = "carts"
	collectionProducts = "products"
	componentStore     = "mongostore"
)

// Store owns the client and hands out repositories bound to one database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	ops    observability.Counter
	log    observability.Logger
	now    func() time.Time
}

// Connect dials uri, verifies the primary is reachable and ensures indexes.
func Connect(ctx context.Context, uri, database string, tel observability.Observability) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("client.Ping: %w", err)
	}

	s := New(client.Database(database), tel)
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle; Close is then a no-op.
func New(db *mongo.Database, tel observability.Observability) *Store {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Store{
		db:  db,
		ops: tel.Metrics().Counter(observability.MStoreOperations),
		log: tel.Logger().With(observability.F("component", componentStore)),
		now: time.Now,
	}
}

func (s *Store) Carts() *CartRepository {
	return &CartRepository{store: s, coll: s.db.Collection(collectionCarts)}
}

func (s *Store) Products() *ProductRepository {
	return &ProductRepository{store: s, coll: s.db.Collection(collectionProducts)}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collectionProducts).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "categories", Value: 1}}},
		{Keys: bson.D{{Key: "price", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("products.CreateMany indexes: %w", err)
	}
	_, err = s.db.Collection(collectionCarts).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "items.productId", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("carts.CreateOne index: %w", err)
	}
	return nil
}

// stamp returns the current time at the millisecond precision BSON dates keep.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// record counts one store operation; expected misses are not failures.
func (s *Store) record(collection, op string, err error, expected ...error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		for _, e := range expected {
			if errors.Is(err, e) {
				outcome = "miss"
				break
			}
		}
	}
	s.ops.Add(1,
		observability.L("collection", collection),
		observability.L("op", op),
		observability.L("outcome", outcome),
	)
	if outcome == "error" {
		s.log.Warn("store_operation_failed",
			observability.F("collection", collection),
			observability.F("op", op),
			observability.F("error", err),
		)
	}
}
