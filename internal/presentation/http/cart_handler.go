package httppresentation

import (
	"context"
	"net/http"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
)

type CartService interface {
	CreateCart(ctx context.Context) (*domcart.Cart, error)
	GetCart(ctx context.Context, cartID string) (*domcart.Cart, error)
	AddItem(ctx context.Context, cartID, productID string) (*domcart.Cart, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (*domcart.Cart, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (*domcart.Cart, error)
	DeleteCart(ctx context.Context, cartID string) error
}

type cartHandler struct {
	svc      CartService
	validate *validator.Validate
	maxBody  int64
}

func (h *cartHandler) register(r *mux.Router) {
	r.HandleFunc("/carts", h.create).Methods(http.MethodPost)
	r.HandleFunc("/carts/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/carts/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/carts/{id}/items", h.addItem).Methods(http.MethodPost)
	r.HandleFunc("/carts/{id}/items/{itemId}", h.updateItem).Methods(http.MethodPatch)
	r.HandleFunc("/carts/{id}/items/{itemId}", h.removeItem).Methods(http.MethodDelete)
}

func (h *cartHandler) create(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.CreateCart(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toCartResponse(c), nil)
}

func (h *cartHandler) get(w http.ResponseWriter, r *http.Request) {
	id := cartID(r)
	c, err := h.svc.GetCart(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toCartResponse(c), nil)
}

func (h *cartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeDomainError(w, r, validationError(err))
		return
	}

	spanFromRequest(r).SetAttributes(attribute.String("product.id", req.ProductID))
	c, err := h.svc.AddItem(r.Context(), cartID(r), req.ProductID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toCartResponse(c), nil)
}

func (h *cartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeDomainError(w, r, validationError(err))
		return
	}

	c, err := h.svc.UpdateItemQuantity(r.Context(), cartID(r), mux.Vars(r)["itemId"], *req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toCartResponse(c), nil)
}

func (h *cartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.RemoveItem(r.Context(), cartID(r), mux.Vars(r)["itemId"]); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *cartHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCart(r.Context(), cartID(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func cartID(r *http.Request) string {
	id := mux.Vars(r)["id"]
	spanFromRequest(r).SetAttributes(attribute.String("cart.id", id))
	return id
}
