package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/natalia/scriptforge/internal/types"
)

// contentTypeFrom defaults an absent content type to news; the fetch stage
// corrects it when the source says otherwise.
func contentTypeFrom(v string) types.ContentType {
	if v == "" {
		return types.ContentTypeNews
	}
	return types.ContentType(v)
}

var validate = validator.New()

type triggerRequest struct {
	SourceRef   string `json:"source_ref" validate:"required"`
	ContentType string `json:"content_type" validate:"omitempty,oneof=news reel"`
}

type revisionRequest struct {
	Feedback       string   `json:"feedback" validate:"required,min=3"`
	TargetSceneIDs []string `json:"target_scene_ids" validate:"omitempty,dive,required"`
}

type rejectRequest struct {
	ReasonCategory string `json:"reason_category" validate:"required"`
	ReasonText     string `json:"reason_text"`
}

type credentialRequest struct {
	Secret string `json:"secret" validate:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, &ErrValidation{Field: "body", Message: "invalid JSON"})
		return false
	}
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		field := "body"
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			field = fieldErrs[0].Field()
		}
		s.writeError(w, &ErrValidation{Field: field, Message: err.Error()})
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	var req triggerRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	item, err := s.service.Trigger(r.Context(), ownerID, req.SourceRef, contentTypeFrom(req.ContentType))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, item)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	items, err := s.service.ListItems(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	item, err := s.service.GetItem(r.Context(), ownerID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	progress, err := s.service.GetProgress(r.Context(), ownerID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleRetryItem(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	item, err := s.service.Retry(r.Context(), ownerID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, item)
}

func (s *Server) handleResetItem(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.Reset(r.Context(), ownerID, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelItem(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.Cancel(r.Context(), ownerID, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	scripts, err := s.service.ListScripts(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	script, err := s.service.GetScript(r.Context(), ownerID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, script)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	versions, err := s.service.VersionHistory(r.Context(), ownerID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleCurrentVersion(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	version, err := s.service.CurrentVersion(r.Context(), ownerID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleSubmitRevision(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req revisionRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := s.service.SubmitRevision(r.Context(), ownerID, id, req.Feedback, req.TargetSceneIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, item)
}

func (s *Server) handleApproveScript(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.Approve(r.Context(), ownerID, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRejectScript(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.service.RejectScript(r.Context(), ownerID, id, req.ReasonCategory, req.ReasonText); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	provider := r.PathValue("provider")
	if provider == "" {
		s.writeError(w, &ErrValidation{Field: "provider", Message: "is required"})
		return
	}
	var req credentialRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.creds.Put(r.Context(), ownerID, provider, req.Secret); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}
