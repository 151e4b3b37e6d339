package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/hidetrace/backend/internal/auth"
	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// CreateProduct handles POST /products.
// It creates a garment product and links every listed tag to it in one
// all-or-nothing step.
func (s *Server) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	agg, err := s.svc.Products.CreateGarmentAggregate(r.Context(), auth.PrincipalFrom(r.Context()), req.TagCodes, req.spec())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, aggregateToResponse(agg))
}

// ListProducts handles GET /products.
// Callers see only the products they created unless they are admins.
func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	params, err := bindListParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Products.ListProducts(r.Context(), auth.PrincipalFrom(r.Context()),
		derefString(params.Q), domain.NewPaginationParams(params.Page, params.Limit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProductList{
		Data:       productsToResponse(page.Items),
		Pagination: paginationOf(page.PaginationParams, page.Total, page.TotalPages()),
	})
}

// ValidateStamp handles GET /stamps/{key}/eligibility.
// It reports whether the tag behind a stamp or tag code can join a product.
func (s *Server) ValidateStamp(w http.ResponseWriter, r *http.Request) {
	check, err := s.svc.Products.ValidateStamp(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stampCheckToResponse(check))
}

// ExtendProduct handles POST /products/{code}/tags.
func (s *Server) ExtendProduct(w http.ResponseWriter, r *http.Request) {
	var req ExtendProductRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	agg, err := s.svc.Products.ExtendProduct(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "code"), req.TagCodes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregateToResponse(agg))
}
