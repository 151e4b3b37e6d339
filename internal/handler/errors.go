package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/multierr"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Code is the error kind, Reason the exact
// cause. Details lists per-tag failures of a rejected batch.
type ErrorDetail struct {
	Code    string        `json:"code"`
	Reason  string        `json:"reason,omitempty"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// kindStatus maps each error kind to exactly one HTTP status.
var kindStatus = []struct {
	kind   error
	code   string
	status int
}{
	{domain.ErrNotFound, "not_found", http.StatusNotFound},
	{domain.ErrConflict, "conflict", http.StatusConflict},
	{domain.ErrPreconditionFailed, "precondition_failed", http.StatusPreconditionFailed},
	{domain.ErrUnauthorized, "forbidden", http.StatusForbidden},
	{domain.ErrInvalidInput, "invalid_input", http.StatusUnprocessableEntity},
}

// writeError renders err. Typed rejections expose their reason and message;
// anything else is a 500 whose cause is logged and never sent.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorDetail{
			Code: "request_too_large", Message: "request body exceeds the size limit",
		}})
		return
	}

	kind := domain.KindOf(err)
	for _, ks := range kindStatus {
		if ks.kind == kind {
			writeJSON(w, ks.status, ErrorResponse{Error: detailOf(ks.code, err)})
			return
		}
	}

	s.log.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", chimiddleware.GetReqID(r.Context()),
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{
		Code: "internal", Message: "internal server error",
	}})
}

func detailOf(code string, err error) ErrorDetail {
	rej, ok := domain.AsRejection(err)
	if !ok {
		return ErrorDetail{Code: code, Message: domain.KindOf(err).Error()}
	}
	d := ErrorDetail{Code: code, Reason: string(rej.Reason), Message: rej.Message}
	if d.Message == "" {
		d.Message = rej.Kind.Error()
	}
	if rej.Reason == domain.ReasonBatchRejected && rej.Cause != nil {
		for _, cause := range multierr.Errors(rej.Cause) {
			d.Details = append(d.Details, detailOf(codeFor(domain.KindOf(cause)), cause))
		}
	}
	return d
}

func codeFor(kind error) string {
	for _, ks := range kindStatus {
		if ks.kind == kind {
			return ks.code
		}
	}
	return "internal"
}

// decodeJSON reads a JSON request body into v. An empty or malformed body
// is InvalidInput; an oversized one surfaces as *http.MaxBytesError.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &tooLarge):
		return err
	case errors.Is(err, io.EOF):
		return domain.Reject(domain.ErrInvalidInput, domain.ReasonMissingField, "request body is required")
	}
	return domain.Reject(domain.ErrInvalidInput, domain.ReasonInvalidValue, "malformed JSON body: %v", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
