// internal/api/session_handlers.go
package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/common/metrics"
	"permit-intake/internal/models"
	"permit-intake/internal/permit"
	"permit-intake/internal/store"
)

type createSessionRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// handleCreateSession starts a new intake session, optionally associated
// with the caller's phone number.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.errorOut.Write(w, err)
		return
	}

	phone := req.PhoneNumber
	if phone != "" {
		normalized, err := permit.ValidateField("ownerPhone", phone)
		if err != nil {
			s.errorOut.Write(w, errors.NewFieldValidationError("phoneNumber", err))
			return
		}
		phone = normalized
	}

	session, err := s.sessions.CreateSession(r.Context(), phone)
	if err != nil {
		s.errorOut.Write(w, errors.NewSessionCreateFailedError(err))
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.errorOut.Write(w, errors.NewSessionNotFoundError(id))
			return
		}
		s.errorOut.Write(w, errors.NewQueryFailedError("get session", err))
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

type updateFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// handleUpdateSessionField is the manual-edit path from the mobile live
// view: validate one field, persist it, and fan the normalized value out to
// every subscriber so both sides converge on the same state.
func (s *Server) handleUpdateSessionField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateFieldRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.errorOut.Write(w, err)
		return
	}

	normalized, err := permit.ValidateField(req.Field, req.Value)
	if err != nil {
		s.errorOut.Write(w, errors.NewFieldValidationError(req.Field, err))
		return
	}

	if err := s.sessions.UpdateSessionField(r.Context(), id, req.Field, normalized); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.errorOut.Write(w, errors.NewSessionNotFoundError(id))
			return
		}
		s.errorOut.Write(w, errors.NewSessionUpdateFailedError(err))
		return
	}

	s.publisher.Publish(r.Context(), id, models.NewFieldUpdate(req.Field, normalized, models.EventSourceManual))

	s.writeJSON(w, http.StatusOK, map[string]string{
		"field": req.Field,
		"value": normalized,
	})
}

// handleCompleteSession finalizes a session from the mobile live view with
// the full payload. The resulting application is tagged voice_mobile to
// distinguish mobile-confirmed submissions from pure voice ones.
func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.sessions.GetSession(r.Context(), id); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.errorOut.Write(w, errors.NewSessionNotFoundError(id))
			return
		}
		s.errorOut.Write(w, errors.NewQueryFailedError("get session", err))
		return
	}

	var payload map[string]interface{}
	if err := s.decodeJSON(r, &payload); err != nil {
		s.errorOut.Write(w, err)
		return
	}

	normalized, fieldErrors, err := permit.ValidateApplication(payload)
	if err != nil {
		s.errorOut.Write(w, errors.NewInternalError(err))
		return
	}
	if len(fieldErrors) > 0 {
		s.errorOut.Write(w, errors.NewValidationFailedError(fieldErrors))
		return
	}

	raw, _ := json.Marshal(payload)
	app, err := s.applications.CreateApplication(r.Context(), store.CreateApplicationParams{
		Fields:            normalized,
		SubmissionChannel: models.ChannelVoiceMobile,
		SessionID:         id,
		RawData:           raw,
	})
	if err != nil {
		s.errorOut.Write(w, errors.NewApplicationCreateFailedError(err))
		return
	}

	s.publisher.Publish(r.Context(), id, models.NewSessionComplete(app.TrackingID))
	if _, err := s.sessions.UpdateSessionStatus(r.Context(), id, models.SessionStatusCompleted); err != nil {
		s.logger.Error("failed to mark session completed", map[string]interface{}{
			"sessionId": id,
			"error":     err.Error(),
		})
	}

	metrics.ApplicationsCreated.WithLabelValues(string(models.ChannelVoiceMobile)).Inc()
	s.notifier.SendConfirmationEmail(r.Context(), app)

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"trackingId":  app.TrackingID,
		"application": app,
	})
}
