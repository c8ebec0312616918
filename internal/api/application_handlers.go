// internal/api/application_handlers.go
package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/common/metrics"
	"permit-intake/internal/models"
	"permit-intake/internal/permit"
	"permit-intake/internal/store"
)

// handleCreateApplication is the web form submission path.
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	s.createFromPayload(w, r, models.ChannelWeb, nil)
}

// handleExternalSubmit accepts submissions from partner systems. The extra
// provenance fields ride along in the raw payload snapshot; they are not
// application fields and are never validated as such.
func (s *Server) handleExternalSubmit(w http.ResponseWriter, r *http.Request) {
	s.createFromPayload(w, r, models.ChannelExternalAPI, []string{"externalId", "sourceSystem", "submissionNotes"})
}

func (s *Server) createFromPayload(w http.ResponseWriter, r *http.Request, channel models.SubmissionChannel, passthrough []string) {
	var payload map[string]interface{}
	if err := s.decodeJSON(r, &payload); err != nil {
		s.errorOut.Write(w, err)
		return
	}

	// Provenance extras are stripped before validation so the schema's
	// field set stays exactly the nine application fields.
	fields := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		fields[k] = v
	}
	for _, k := range passthrough {
		delete(fields, k)
	}

	normalized, fieldErrors, err := permit.ValidateApplication(fields)
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
		SubmissionChannel: channel,
		RawData:           raw,
	})
	if err != nil {
		s.errorOut.Write(w, errors.NewApplicationCreateFailedError(err))
		return
	}

	metrics.ApplicationsCreated.WithLabelValues(string(channel)).Inc()
	s.notifier.SendConfirmationEmail(r.Context(), app)

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"trackingId":  app.TrackingID,
		"application": app,
	})
}

// handleListApplications serves the admin list with substring filtering on
// establishment name, exact channel match, and offset pagination.
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := store.ApplicationFilters{
		EstablishmentName: q.Get("establishmentName"),
		SubmissionChannel: q.Get("submissionChannel"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorOut.Write(w, errors.NewBadRequestError("limit must be a non-negative integer"))
			return
		}
		filters.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorOut.Write(w, errors.NewBadRequestError("offset must be a non-negative integer"))
			return
		}
		filters.Offset = n
	}

	apps, total, err := s.applications.GetAllApplications(r.Context(), filters)
	if err != nil {
		s.errorOut.Write(w, errors.NewQueryFailedError("list applications", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"applications": apps,
		"total":        total,
	})
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, err := s.applications.GetApplication(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.errorOut.Write(w, errors.NewApplicationNotFoundError(id))
			return
		}
		s.errorOut.Write(w, errors.NewQueryFailedError("get application", err))
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

// handleTrackingLookup is the public status check by tracking id.
func (s *Server) handleTrackingLookup(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingId")
	app, err := s.applications.GetApplicationByTrackingID(r.Context(), trackingID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.errorOut.Write(w, errors.NewApplicationNotFoundError(trackingID))
			return
		}
		s.errorOut.Write(w, errors.NewQueryFailedError("tracking lookup", err))
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}
