package handler

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/hidetrace/backend/internal/auth"
	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/service"
)

// ListParams are the query parameters shared by the paged listings,
// GET /transactions and GET /products. Actor applies to transactions only.
type ListParams struct {
	Page  *int    `form:"page,omitempty"`
	Limit *int    `form:"limit,omitempty"`
	Actor *string `form:"actor,omitempty"`
	Q     *string `form:"q,omitempty"`
}

// ListTransactions handles GET /transactions.
// Callers see only their own entries unless they are admins.
func (s *Server) ListTransactions(w http.ResponseWriter, r *http.Request) {
	params, err := bindListParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Ledger.ListTransactions(r.Context(), auth.PrincipalFrom(r.Context()), service.TransactionQuery{
		Actor:  derefString(params.Actor),
		Search: derefString(params.Q),
		Page:   domain.NewPaginationParams(params.Page, params.Limit),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransactionList{
		Data:       entriesToResponse(page.Items),
		Pagination: paginationOf(page.PaginationParams, page.Total, page.TotalPages()),
	})
}

// GetSummary handles GET /summary.
func (s *Server) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Ledger.Summary(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryToResponse(sum))
}

func bindListParams(r *http.Request) (ListParams, error) {
	var params ListParams
	query := r.URL.Query()
	for name, dest := range map[string]any{
		"page":  &params.Page,
		"limit": &params.Limit,
		"actor": &params.Actor,
		"q":     &params.Q,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			return ListParams{}, domain.Reject(domain.ErrInvalidInput, domain.ReasonInvalidValue,
				"invalid query parameter %s: %v", name, err)
		}
	}
	return params, nil
}

// derefString returns the value of s, or "" if s is nil.
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
