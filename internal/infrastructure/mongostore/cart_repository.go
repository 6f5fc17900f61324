package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CartRepository stores each cart as one document with embedded items.
// Item mutations are single findOneAndUpdate pipelines that also recompute
// totalPrice, so the stored total never disagrees with the stored lines.
type CartRepository struct {
	store *Store
	coll  *mongo.Collection
}

var _ cart.Repository = (*CartRepository)(nil)

func (r *CartRepository) Insert(ctx context.Context, c *cart.Cart) (err error) {
	defer func() { r.store.record(collectionCarts, "insert", err) }()

	doc, err := mapCartToDocument(c)
	if err != nil {
		return fmt.Errorf("mapCartToDocument: %w", err)
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("carts.InsertOne: %w", err)
	}
	return nil
}

func (r *CartRepository) Get(ctx context.Context, id string) (_ *cart.Cart, err error) {
	defer func() { r.store.record(collectionCarts, "get", err, cart.ErrNotFound) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, cart.ErrNotFound
	}
	var doc cartDocument
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("carts.FindOne: %w", err)
	}
	return mapCart(doc)
}

func (r *CartRepository) PushItem(ctx context.Context, cartID string, item cart.Item) (_ *cart.Cart, err error) {
	defer func() {
		r.store.record(collectionCarts, "push_item", err, cart.ErrNotFound, cart.ErrDuplicateProduct)
	}()

	oid, err := primitive.ObjectIDFromHex(cartID)
	if err != nil {
		return nil, cart.ErrNotFound
	}
	itemDoc, err := mapCartItemToDocument(item)
	if err != nil {
		return nil, fmt.Errorf("mapCartItemToDocument: %w", err)
	}

	filter := bson.D{
		{Key: "_id", Value: oid},
		{Key: "items.productId", Value: bson.D{{Key: "$ne", Value: itemDoc.ProductID}}},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "items", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				"$items",
				bson.A{bson.D{{Key: "$literal", Value: itemDoc}}},
			}}}},
		}}},
		r.totalStage(),
	}

	c, err := r.findOneAndUpdate(ctx, filter, update, options.After)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.explainMiss(ctx, oid, cart.ErrDuplicateProduct)
	}
	return c, err
}

func (r *CartRepository) SetItemQuantity(ctx context.Context, cartID, itemID string, quantity int, expected *int) (_ *cart.Cart, err error) {
	defer func() {
		r.store.record(collectionCarts, "set_item_quantity", err, cart.ErrNotFound, cart.ErrItemNotFound, cart.ErrQuantityChanged)
	}()

	if quantity < 1 {
		return nil, cart.ErrInvalidQuantity
	}
	oid, iid, err := parseCartItemIDs(cartID, itemID)
	if err != nil {
		return nil, err
	}

	filter := bson.D{{Key: "_id", Value: oid}, {Key: "items._id", Value: iid}}
	if expected != nil {
		filter = bson.D{{Key: "_id", Value: oid}, {Key: "items", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "_id", Value: iid},
			{Key: "quantity", Value: *expected},
		}}}}}
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "items", Value: bson.D{{Key: "$map", Value: bson.D{
				{Key: "input", Value: "$items"},
				{Key: "as", Value: "it"},
				{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$$it._id", iid}}},
					bson.D{{Key: "$mergeObjects", Value: bson.A{"$$it", bson.D{{Key: "quantity", Value: quantity}}}}},
					"$$it",
				}}}},
			}}}},
		}}},
		r.totalStage(),
	}

	c, err := r.findOneAndUpdate(ctx, filter, update, options.After)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if expected == nil {
			return nil, r.explainMiss(ctx, oid, cart.ErrItemNotFound)
		}
		return nil, r.explainItemMiss(ctx, oid, iid)
	}
	return c, err
}

func (r *CartRepository) PullItem(ctx context.Context, cartID, itemID string) (_ *cart.Cart, _ cart.Item, err error) {
	defer func() {
		r.store.record(collectionCarts, "pull_item", err, cart.ErrNotFound, cart.ErrItemNotFound)
	}()

	oid, iid, err := parseCartItemIDs(cartID, itemID)
	if err != nil {
		return nil, cart.Item{}, err
	}

	filter := bson.D{{Key: "_id", Value: oid}, {Key: "items._id", Value: iid}}
	now := r.store.stamp()
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "items", Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: "$items"},
				{Key: "as", Value: "it"},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$it._id", iid}}}},
			}}}},
		}}},
		totalStageAt(now),
	}

	// The pre-image tells which line left; the post-image is derived from it
	// with the same timestamp the pipeline wrote.
	before, err := r.findOneAndUpdate(ctx, filter, update, options.Before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, cart.Item{}, r.explainMiss(ctx, oid, cart.ErrItemNotFound)
	}
	if err != nil {
		return nil, cart.Item{}, err
	}
	removed, err := before.RemoveItem(itemID, now)
	if err != nil {
		return nil, cart.Item{}, err
	}
	return before, removed, nil
}

func (r *CartRepository) Delete(ctx context.Context, id string) (_ *cart.Cart, err error) {
	defer func() { r.store.record(collectionCarts, "delete", err, cart.ErrNotFound) }()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, cart.ErrNotFound
	}
	var doc cartDocument
	if err := r.coll.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("carts.FindOneAndDelete: %w", err)
	}
	return mapCart(doc)
}

func (r *CartRepository) findOneAndUpdate(ctx context.Context, filter any, update mongo.Pipeline, rd options.ReturnDocument) (*cart.Cart, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(rd)
	var doc cartDocument
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		return nil, fmt.Errorf("carts.FindOneAndUpdate: %w", err)
	}
	return mapCart(doc)
}

// explainMiss tells a missing cart apart from a filter that rejected the update.
func (r *CartRepository) explainMiss(ctx context.Context, oid primitive.ObjectID, rejected error) error {
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: oid}}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("carts.CountDocuments: %w", err)
	}
	if n == 0 {
		return cart.ErrNotFound
	}
	return rejected
}

// explainItemMiss tells a missing cart or line apart from a quantity guard that failed.
func (r *CartRepository) explainItemMiss(ctx context.Context, oid, iid primitive.ObjectID) error {
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: oid}, {Key: "items._id", Value: iid}}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("carts.CountDocuments: %w", err)
	}
	if n == 0 {
		return r.explainMiss(ctx, oid, cart.ErrItemNotFound)
	}
	return cart.ErrQuantityChanged
}

func (r *CartRepository) totalStage() bson.D {
	return totalStageAt(r.store.stamp())
}

// totalStageAt recomputes totalPrice from the (already updated) items array.
func totalStageAt(now time.Time) bson.D {
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "totalPrice", Value: bson.D{{Key: "$toDecimal", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$map", Value: bson.D{
			{Key: "input", Value: "$items"},
			{Key: "as", Value: "it"},
			{Key: "in", Value: bson.D{{Key: "$multiply", Value: bson.A{"$$it.price", "$$it.quantity"}}}},
		}}}}}}}},
		{Key: "updatedAt", Value: now},
	}}}
}

func parseCartItemIDs(cartID, itemID string) (primitive.ObjectID, primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(cartID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, cart.ErrNotFound
	}
	iid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, cart.ErrItemNotFound
	}
	return oid, iid, nil
}
