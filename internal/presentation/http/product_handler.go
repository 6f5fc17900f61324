package httppresentation

import (
	"context"
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	appproduct "github.com/Zhima-Mochi/minishop-cart/internal/application/product"
	domproduct "github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type ProductService interface {
	Create(ctx context.Context, d domproduct.Draft) (*domproduct.Product, error)
	Get(ctx context.Context, id string) (*domproduct.Product, error)
	List(ctx context.Context, q domproduct.Query) (*appproduct.ListResult, error)
	Update(ctx context.Context, cmd appproduct.UpdateCommand) (*domproduct.Product, error)
	Delete(ctx context.Context, id string) error
}

type productHandler struct {
	svc      ProductService
	validate *validator.Validate
	maxBody  int64
}

func (h *productHandler) register(r *mux.Router) {
	r.HandleFunc("/products", h.create).Methods(http.MethodPost)
	r.HandleFunc("/products", h.list).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.update).Methods(http.MethodPatch)
	r.HandleFunc("/products/{id}", h.delete).Methods(http.MethodDelete)
}

func (h *productHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeDomainError(w, r, validationError(err))
		return
	}
	draft, err := req.draft()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	p, err := h.svc.Create(r.Context(), draft)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toProductResponse(p), nil)
}

func (h *productHandler) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(h.validate, r.URL.Query())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	res, err := h.svc.List(r.Context(), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	items := make([]productResponse, 0, len(res.Items))
	for _, p := range res.Items {
		items = append(items, toProductResponse(p))
	}
	writeData(w, http.StatusOK, items, toPageMeta(res.Meta))
}

func (h *productHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toProductResponse(p), nil)
}

// update answers 409 when an expectedStock guard fails, so stock writers
// can tell a lost race from a bad request.
func (h *productHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeDomainError(w, r, validationError(err))
		return
	}
	cmd, err := req.command(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	p, err := h.svc.Update(r.Context(), cmd)
	switch {
	case errors.Is(err, application.ErrConflict):
		writeStatusError(w, r, http.StatusConflict, err)
		return
	case err != nil:
		writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toProductResponse(p), nil)
}

func (h *productHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
