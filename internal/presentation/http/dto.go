package httppresentation

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	appproduct "github.com/Zhima-Mochi/minishop-cart/internal/application/product"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domproduct "github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// maxImageBytes bounds the decoded size of a product image.
const maxImageBytes = 1 << 20

var dataImagePattern = regexp.MustCompile(`^data:image/(jpeg|png|gif|bmp);base64,`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("dataimage", validateDataImage)
	return v
}

// validateDataImage accepts a base64 data URL of a supported image type
// whose payload decodes to at most maxImageBytes.
func validateDataImage(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	loc := dataImagePattern.FindStringIndex(s)
	if loc == nil {
		return false
	}
	payload := s[loc[1]:]
	if payload == "" || base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes+2 {
		return false
	}
	n, err := base64.StdEncoding.Decode(make([]byte, base64.StdEncoding.DecodedLen(len(payload))), []byte(payload))
	return err == nil && n <= maxImageBytes
}

// validationError flattens validator errors into one InvalidArgument error.
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %w", application.ErrInvalidArgument, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", application.ErrInvalidArgument, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "dataimage":
		return fe.Field() + " must be a base64 jpeg, png, gif or bmp data URL of at most 1MB"
	case "iso4217":
		return fe.Field() + " must be an ISO 4217 currency code"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// --- carts ---

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=1"`
}

type cartItemResponse struct {
	ID          string  `json:"_id"`
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Quantity    int     `json:"quantity"`
}

type cartResponse struct {
	ID         string             `json:"_id"`
	Items      []cartItemResponse `json:"items"`
	TotalPrice float64            `json:"totalPrice"`
	Currency   string             `json:"currency,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

func toCartResponse(c *domcart.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, cartItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.Snapshot.ProductName(),
			Price:       it.Snapshot.Price().InexactFloat64(),
			Currency:    it.Snapshot.Currency().String(),
			Quantity:    it.Quantity,
		})
	}
	resp := cartResponse{
		ID:         c.ID,
		Items:      items,
		TotalPrice: c.TotalPrice.InexactFloat64(),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if cur, ok := c.Currency(); ok {
		resp.Currency = cur.String()
	}
	return resp
}

// --- products ---

type createProductRequest struct {
	Name        string           `json:"name" validate:"required,max=64"`
	Description string           `json:"description" validate:"max=2048"`
	Image       string           `json:"image" validate:"omitempty,dataimage"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Currency    string           `json:"currency" validate:"omitempty,iso4217"`
	Stock       *int             `json:"stock" validate:"omitempty,min=0"`
	IsActive    *bool            `json:"isActive"`
	Categories  []string         `json:"categories" validate:"omitempty,dive,required,max=64"`
}

func (req createProductRequest) draft() (domproduct.Draft, error) {
	d := domproduct.Draft{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Price:       *req.Price,
		IsActive:    true,
		Categories:  req.Categories,
	}
	if req.Stock != nil {
		d.Stock = *req.Stock
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if req.Currency != "" {
		cur, err := currency.ParseISO(req.Currency)
		if err != nil {
			return domproduct.Draft{}, fmt.Errorf("%w: currency: %w", application.ErrInvalidArgument, err)
		}
		d.Currency = cur
	}
	return d, nil
}

// updateProductRequest is a partial update. ExpectedStock guards a stock
// write against concurrent writers.
type updateProductRequest struct {
	Name          *string          `json:"name" validate:"omitempty,min=1,max=64"`
	Description   *string          `json:"description" validate:"omitempty,max=2048"`
	Image         *string          `json:"image" validate:"omitempty,dataimage"`
	Price         *decimal.Decimal `json:"price"`
	Currency      *string          `json:"currency" validate:"omitempty,iso4217"`
	Stock         *int             `json:"stock" validate:"omitempty,min=0"`
	ExpectedStock *int             `json:"expectedStock" validate:"omitempty,min=0"`
	IsActive      *bool            `json:"isActive"`
	Categories    []string         `json:"categories" validate:"omitempty,dive,required,max=64"`
}

func (req updateProductRequest) command(id string) (appproduct.UpdateCommand, error) {
	patch := domproduct.Patch{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Price:       req.Price,
		Stock:       req.Stock,
		IsActive:    req.IsActive,
		Categories:  req.Categories,
	}
	if req.Currency != nil {
		cur, err := currency.ParseISO(*req.Currency)
		if err != nil {
			return appproduct.UpdateCommand{}, fmt.Errorf("%w: currency: %w", application.ErrInvalidArgument, err)
		}
		patch.Currency = &cur
	}
	if req.ExpectedStock != nil && req.Stock == nil {
		return appproduct.UpdateCommand{}, fmt.Errorf("%w: expectedStock requires stock", application.ErrInvalidArgument)
	}
	return appproduct.UpdateCommand{ID: id, Patch: patch, ExpectedStock: req.ExpectedStock}, nil
}

type productResponse struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image,omitempty"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Stock       int       `json:"stock"`
	IsActive    bool      `json:"isActive"`
	Categories  []string  `json:"categories"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductResponse(p *domproduct.Product) productResponse {
	categories := p.Categories
	if categories == nil {
		categories = []string{}
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Image:       p.Image,
		Price:       p.Price.InexactFloat64(),
		Currency:    p.Currency.String(),
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		Categories:  categories,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type pageMeta struct {
	TotalItems   int64 `json:"totalItems"`
	ItemCount    int   `json:"itemCount"`
	ItemsPerPage int   `json:"itemsPerPage"`
	TotalPages   int   `json:"totalPages"`
	CurrentPage  int   `json:"currentPage"`
}

func toPageMeta(m appproduct.Meta) pageMeta {
	return pageMeta(m)
}

// listQuery holds the raw product listing parameters.
type listQuery struct {
	Page      string `validate:"omitempty,number"`
	Limit     string `validate:"omitempty,number"`
	MinPrice  string `validate:"omitempty,numeric"`
	MaxPrice  string `validate:"omitempty,numeric"`
	Active    string `validate:"omitempty,boolean"`
	SortBy    string `validate:"omitempty,oneof=createdAt name price stock"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

func parseListQuery(v *validator.Validate, values map[string][]string) (domproduct.Query, error) {
	get := func(k string) string {
		if vs := values[k]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}
	raw := listQuery{
		Page:      get("page"),
		Limit:     get("limit"),
		MinPrice:  get("minPrice"),
		MaxPrice:  get("maxPrice"),
		Active:    get("active"),
		SortBy:    get("sortBy"),
		SortOrder: get("sortOrder"),
	}
	if err := v.Struct(raw); err != nil {
		return domproduct.Query{}, validationError(err)
	}

	q := domproduct.Query{
		Search:   get("search"),
		Category: get("category"),
		SortBy:   domproduct.SortField(raw.SortBy),
		SortDesc: raw.SortOrder != "asc",
	}
	var err error
	if q.Page, err = positiveInt("page", raw.Page); err != nil {
		return domproduct.Query{}, err
	}
	if q.Limit, err = positiveInt("limit", raw.Limit); err != nil {
		return domproduct.Query{}, err
	}
	if raw.MinPrice != "" {
		d, err := decimal.NewFromString(raw.MinPrice)
		if err != nil || d.IsNegative() {
			return domproduct.Query{}, fmt.Errorf("%w: minPrice must be a non-negative number", application.ErrInvalidArgument)
		}
		q.MinPrice = &d
	}
	if raw.MaxPrice != "" {
		d, err := decimal.NewFromString(raw.MaxPrice)
		if err != nil || d.IsNegative() {
			return domproduct.Query{}, fmt.Errorf("%w: maxPrice must be a non-negative number", application.ErrInvalidArgument)
		}
		q.MaxPrice = &d
	}
	if raw.Active != "" {
		b, _ := strconv.ParseBool(raw.Active)
		q.Active = &b
	}
	return q, nil
}

// positiveInt parses an optional query parameter that must be at least 1.
// An empty value yields 0 so the query default applies.
func positiveInt(name, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", application.ErrInvalidArgument, name)
	}
	return n, nil
}
