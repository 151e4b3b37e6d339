package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetTrace handles GET /trace/{key}.
// The key may be a tag code, a tannery stamp code or a product code. No
// identity is required.
func (s *Server) GetTrace(w http.ResponseWriter, r *http.Request) {
	tr, err := s.svc.Traces.GetTagTrace(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, traceToResponse(tr))
}
