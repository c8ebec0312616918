// internal/api/voice_handlers.go
package api

import (
	"encoding/xml"
	stderrors "errors"
	"net/http"
	"strings"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/models"
	"permit-intake/internal/permit"
	"permit-intake/internal/store"
)

type voiceStartRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// handleVoiceStart creates a session for a phone applicant and texts them
// the live view link before they call in.
func (s *Server) handleVoiceStart(w http.ResponseWriter, r *http.Request) {
	var req voiceStartRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.errorOut.Write(w, err)
		return
	}

	phone, err := permit.ValidateField("ownerPhone", req.PhoneNumber)
	if err != nil {
		s.errorOut.Write(w, errors.NewFieldValidationError("phoneNumber", err))
		return
	}

	session, err := s.sessions.CreateSession(r.Context(), phone)
	if err != nil {
		s.errorOut.Write(w, errors.NewSessionCreateFailedError(err))
		return
	}

	if err := s.notifier.SendSessionLink(r.Context(), phone, session.ID); err != nil {
		s.errorOut.Write(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, session)
}

// TwiML response types for the incoming-call webhook.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect *twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// handleVoiceIncoming answers the telephony provider's call webhook. It
// resolves the caller's most recent session by phone number, or creates a
// fresh one, and returns TwiML directing the media stream to the voice
// gateway with the session id as a stream parameter.
func (s *Server) handleVoiceIncoming(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.errorOut.Write(w, errors.NewBadRequestError("invalid form body"))
		return
	}
	from := normalizeCallerNumber(r.PostFormValue("From"))

	var session *models.Session
	if from != "" {
		found, err := s.sessions.GetSessionByPhone(r.Context(), from)
		switch {
		case err == nil:
			session = found
		case !stderrors.Is(err, store.ErrNotFound):
			s.errorOut.Write(w, errors.NewQueryFailedError("session by phone", err))
			return
		}
	}
	if session == nil {
		created, err := s.sessions.CreateSession(r.Context(), from)
		if err != nil {
			s.errorOut.Write(w, errors.NewSessionCreateFailedError(err))
			return
		}
		session = created
	}

	resp := twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: s.cfg.VoiceGateway.StreamURL,
				Parameters: []twimlParameter{
					{Name: "sessionId", Value: session.ID},
					{Name: "from", Value: from},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode twiml", map[string]interface{}{"error": err.Error()})
	}
}

// normalizeCallerNumber reduces an E.164 caller id to the 10-digit form the
// session store keys on. Non-US numbers pass through as bare digits.
func normalizeCallerNumber(from string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, from)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}
