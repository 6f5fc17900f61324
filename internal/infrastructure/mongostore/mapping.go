package mongostore

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/currency"
)

type cartDocument struct {
	ID         primitive.ObjectID   `bson:"_id"`
	Items      []cartItemDocument   `bson:"items"`
	TotalPrice primitive.Decimal128 `bson:"totalPrice"`
	CreatedAt  time.Time            `bson:"createdAt"`
	UpdatedAt  time.Time            `bson:"updatedAt"`
}

type cartItemDocument struct {
	ID          primitive.ObjectID   `bson:"_id"`
	ProductID   primitive.ObjectID   `bson:"productId"`
	ProductName string               `bson:"productName"`
	Price       primitive.Decimal128 `bson:"price"`
	Currency    string               `bson:"currency"`
	Quantity    int                  `bson:"quantity"`
}

type productDocument struct {
	ID          primitive.ObjectID   `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description"`
	Image       string               `bson:"image,omitempty"`
	Price       primitive.Decimal128 `bson:"price"`
	Currency    string               `bson:"currency"`
	Stock       int                  `bson:"stock"`
	IsActive    bool                 `bson:"isActive"`
	Categories  []string             `bson:"categories"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("primitive.ParseDecimal128(%s): %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decimal.NewFromString(%s): %w", v, err)
	}
	return d, nil
}

func mapCartItemToDocument(it cart.Item) (cartItemDocument, error) {
	id, err := primitive.ObjectIDFromHex(it.ID)
	if err != nil {
		return cartItemDocument{}, fmt.Errorf("item id: %w", err)
	}
	pid, err := primitive.ObjectIDFromHex(it.ProductID)
	if err != nil {
		return cartItemDocument{}, fmt.Errorf("product id: %w", err)
	}
	price, err := toDecimal128(it.Snapshot.Price())
	if err != nil {
		return cartItemDocument{}, err
	}
	return cartItemDocument{
		ID:          id,
		ProductID:   pid,
		ProductName: it.Snapshot.ProductName(),
		Price:       price,
		Currency:    it.Snapshot.Currency().String(),
		Quantity:    it.Quantity,
	}, nil
}

func mapCartToDocument(c *cart.Cart) (cartDocument, error) {
	id, err := primitive.ObjectIDFromHex(c.ID)
	if err != nil {
		return cartDocument{}, fmt.Errorf("cart id: %w", err)
	}
	total, err := toDecimal128(c.TotalPrice)
	if err != nil {
		return cartDocument{}, err
	}
	items := make([]cartItemDocument, 0, len(c.Items))
	for _, it := range c.Items {
		doc, err := mapCartItemToDocument(it)
		if err != nil {
			return cartDocument{}, err
		}
		items = append(items, doc)
	}
	return cartDocument{
		ID:         id,
		Items:      items,
		TotalPrice: total,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}, nil
}

func mapCartItem(doc cartItemDocument) (cart.Item, error) {
	price, err := fromDecimal128(doc.Price)
	if err != nil {
		return cart.Item{}, fmt.Errorf("mapCartItem: %w", err)
	}
	cur, err := currency.ParseISO(doc.Currency)
	if err != nil {
		return cart.Item{}, fmt.Errorf("mapCartItem: currency.ParseISO(%s): %w", doc.Currency, err)
	}
	snap, err := cart.NewSnapshot(doc.ProductName, price, cur)
	if err != nil {
		return cart.Item{}, fmt.Errorf("mapCartItem: %w", err)
	}
	return cart.Item{
		ID:        doc.ID.Hex(),
		ProductID: doc.ProductID.Hex(),
		Snapshot:  snap,
		Quantity:  doc.Quantity,
	}, nil
}

func mapCart(doc cartDocument) (*cart.Cart, error) {
	total, err := fromDecimal128(doc.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("mapCart: %w", err)
	}
	items := make([]cart.Item, 0, len(doc.Items))
	for _, d := range doc.Items {
		it, err := mapCartItem(d)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return &cart.Cart{
		ID:         doc.ID.Hex(),
		Items:      items,
		TotalPrice: total,
		CreatedAt:  doc.CreatedAt.UTC(),
		UpdatedAt:  doc.UpdatedAt.UTC(),
	}, nil
}

func mapProductToDocument(p *product.Product) (productDocument, error) {
	id, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return productDocument{}, fmt.Errorf("product id: %w", err)
	}
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDocument{}, err
	}
	categories := p.Categories
	if categories == nil {
		categories = []string{}
	}
	return productDocument{
		ID:          id,
		Name:        p.Name,
		Description: p.Description,
		Image:       p.Image,
		Price:       price,
		Currency:    p.Currency.String(),
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		Categories:  categories,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func mapProduct(doc productDocument) (*product.Product, error) {
	price, err := fromDecimal128(doc.Price)
	if err != nil {
		return nil, fmt.Errorf("mapProduct: %w", err)
	}
	cur, err := currency.ParseISO(doc.Currency)
	if err != nil {
		return nil, fmt.Errorf("mapProduct: currency.ParseISO(%s): %w", doc.Currency, err)
	}
	return &product.Product{
		ID:          doc.ID.Hex(),
		Name:        doc.Name,
		Description: doc.Description,
		Image:       doc.Image,
		Price:       price,
		Currency:    cur,
		Stock:       doc.Stock,
		IsActive:    doc.IsActive,
		Categories:  doc.Categories,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}
