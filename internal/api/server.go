// Package api is the HTTP surface: session lifecycle, application intake and
// admin views, relay token issuance plus the subscriber bridge, and the
// telephony webhooks.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"permit-intake/internal/common/config"
	"permit-intake/internal/common/errors"
	"permit-intake/internal/common/logger"
	"permit-intake/internal/notify"
	"permit-intake/internal/relay"
	"permit-intake/internal/store"
)

type Server struct {
	sessions     *store.SessionStore
	applications *store.ApplicationStore
	publisher    *relay.Publisher
	tokens       *relay.TokenIssuer
	bridge       *relay.Bridge
	notifier     *notify.Notifier
	cfg          *config.Config
	logger       logger.Logger
	errorOut     *errors.HTTPHandler
}

func NewServer(
	sessions *store.SessionStore,
	applications *store.ApplicationStore,
	publisher *relay.Publisher,
	tokens *relay.TokenIssuer,
	bridge *relay.Bridge,
	notifier *notify.Notifier,
	cfg *config.Config,
	log logger.Logger,
) *Server {
	return &Server{
		sessions:     sessions,
		applications: applications,
		publisher:    publisher,
		tokens:       tokens,
		bridge:       bridge,
		notifier:     notifier,
		cfg:          cfg,
		logger:       log,
		errorOut:     errors.NewHTTPHandler(log),
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.requestMetrics)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.handleCreateSession)
		r.Get("/session/{id}", s.handleGetSession)
		r.Post("/session/{id}/update", s.handleUpdateSessionField)
		r.Post("/session/{id}/complete", s.handleCompleteSession)

		r.Post("/applications", s.handleCreateApplication)
		r.Post("/applications/submit", s.handleExternalSubmit)
		r.Get("/applications/tracking/{trackingId}", s.handleTrackingLookup)
		r.Group(func(r chi.Router) {
			r.Use(s.requirePagePassword)
			r.Get("/applications", s.handleListApplications)
			r.Get("/applications/{id}", s.handleGetApplication)
		})

		r.Post("/relay/token", s.handleRelayToken)
		r.Get("/relay/subscribe", s.bridge.ServeHTTP)

		r.Post("/voice/start", s.handleVoiceStart)
		r.Post("/voice/incoming", s.handleVoiceIncoming)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// decodeJSON reads a JSON request body into dst, rejecting malformed input.
func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewBadRequestError("invalid JSON body")
	}
	return nil
}
