package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/hidetrace/backend/internal/auth"
	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// RegisterTag handles POST /tags.
// It mints one tag from the slaughter confirmation named in the body.
func (s *Server) RegisterTag(w http.ResponseWriter, r *http.Request) {
	var req RegisterTagRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tag, err := s.svc.Registry.RegisterTag(r.Context(), auth.PrincipalFrom(r.Context()), req.ConfirmationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tagToResponse(tag))
}

// RegisterBatch handles POST /confirmations/{confirmationID}/tags.
// It mints one tag per legacy tag row of the confirmation.
func (s *Server) RegisterBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "confirmationID"), 10, 64)
	if err != nil {
		s.writeError(w, r, domain.Reject(domain.ErrInvalidInput, domain.ReasonInvalidValue,
			"confirmation id %q is not a number", chi.URLParam(r, "confirmationID")))
		return
	}
	tags, err := s.svc.Registry.RegisterBatch(r.Context(), auth.PrincipalFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tagsToResponse(tags))
}

// RecordPrint handles POST /tags/{code}/prints.
func (s *Server) RecordPrint(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	n, err := s.svc.Registry.RecordPrint(r.Context(), auth.PrincipalFrom(r.Context()), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PrintCount{Code: domain.NormalizeKey(code), PrintCount: n})
}

// RecordArrival handles POST /tags/{key}/arrivals.
func (s *Server) RecordArrival(w http.ResponseWriter, r *http.Request) {
	s.recordStageEvent(w, r, s.svc.Recorder.RecordArrival)
}

// RecordDispatch handles POST /tags/{key}/dispatches.
func (s *Server) RecordDispatch(w http.ResponseWriter, r *http.Request) {
	s.recordStageEvent(w, r, s.svc.Recorder.RecordDispatch)
}

type stageEventFunc func(ctx context.Context, p domain.Principal, stage domain.Stage, key string, fields domain.StageFields) (domain.Tag, error)

func (s *Server) recordStageEvent(w http.ResponseWriter, r *http.Request, record stageEventFunc) {
	var req StageEventRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	p := auth.PrincipalFrom(r.Context())
	stage, err := stageOf(p, req.Stage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tag, err := record(r.Context(), p, stage, chi.URLParam(r, "key"), req.fields())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tagToResponse(tag))
}

// stageOf picks the stage an event is recorded at. An explicit stage wins;
// otherwise the caller's own role decides.
func stageOf(p domain.Principal, label string) (domain.Stage, error) {
	if label != "" {
		return domain.ParseStage(label)
	}
	if stage, ok := domain.StageForRole(p.Role); ok {
		return stage, nil
	}
	if p.IsAdmin() {
		return 0, domain.Reject(domain.ErrInvalidInput, domain.ReasonMissingField, "stage is required for admin callers")
	}
	return 0, domain.Reject(domain.ErrUnauthorized, domain.ReasonRoleMismatch, "role %q cannot record custody events", p.Role)
}
