// internal/api/relay_handlers.go
package api

import (
	stderrors "errors"
	"net/http"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/store"
)

type relayTokenRequest struct {
	SessionID string `json:"sessionId"`
}

// handleRelayToken mints a subscribe-only token scoped to one session's
// channel. The session must exist; tokens are never issued speculatively.
func (s *Server) handleRelayToken(w http.ResponseWriter, r *http.Request) {
	var req relayTokenRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.errorOut.Write(w, err)
		return
	}
	if req.SessionID == "" {
		s.errorOut.Write(w, errors.NewBadRequestError("sessionId is required"))
		return
	}

	if _, err := s.sessions.GetSession(r.Context(), req.SessionID); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.errorOut.Write(w, errors.NewSessionNotFoundError(req.SessionID))
			return
		}
		s.errorOut.Write(w, errors.NewQueryFailedError("get session", err))
		return
	}

	token, claims, err := s.tokens.Issue(req.SessionID)
	if err != nil {
		s.errorOut.Write(w, errors.NewInternalError(err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"channel":   claims.Channel,
		"expiresAt": claims.ExpiresAt,
	})
}
