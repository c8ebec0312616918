// Package voice binds inbound telephony streams to intake sessions and
// exposes exactly two tools to the conversational agent: update a field and
// submit the application. Tool effects flow to the session store and the
// relay publisher; all speech handling stays inside the agent.
package voice

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/common/logger"
	"permit-intake/internal/common/metrics"
	"permit-intake/internal/common/observability"
	"permit-intake/internal/models"
	"permit-intake/internal/permit"
	"permit-intake/internal/store"
	"permit-intake/internal/voice/realtime"
)

// CallState is the per-call state machine. Binding happens exactly once per
// call, guarded against duplicate stream-start frames.
type CallState string

const (
	StateAwaitingStreamStart CallState = "awaiting_stream_start"
	StateSessionBound        CallState = "session_bound"
	StateActive              CallState = "active"
	StateCompleted           CallState = "completed"
	StateDisconnected        CallState = "disconnected"
)

// SessionStore is the session persistence the orchestrator needs.
type SessionStore interface {
	CreateSession(ctx context.Context, phoneNumber string) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) (*models.Session, error)
	UpdateSessionField(ctx context.Context, id, field, value string) error
}

// ApplicationStore creates the finalized record on submission.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, params store.CreateApplicationParams) (*models.Application, error)
}

// EventPublisher fans events out to the session's relay channel.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID string, event models.RelayEvent)
}

// AgentSession is one live conversational agent connection.
type AgentSession interface {
	Configure(tools []realtime.ToolDefinition) error
	AppendAudio(payload string) error
	Listen(ctx context.Context) error
	Close() error
}

// AgentDialer opens an agent session. Injectable for tests.
type AgentDialer func(ctx context.Context, cfg realtime.Config, handlers realtime.Handlers) (AgentSession, error)

const defaultInstructions = "You are a friendly assistant helping a caller apply for a food permit. " +
	"Collect these fields one at a time: establishment name, street address, establishment phone, " +
	"establishment email, owner name, owner phone, owner email, establishment type " +
	"(Restaurant, Food Truck, Catering, Bakery, Cafe, Bar, Food Cart, or Other), and planned opening date. " +
	"Call update_field after the caller confirms each value. When every field is recorded and the caller " +
	"confirms, call submit_application and read the tracking id back to the caller."

// Dependencies wires an Orchestrator.
type Dependencies struct {
	Sessions      SessionStore
	Applications  ApplicationStore
	Publisher     EventPublisher
	Registry      *Registry
	AgentConfig   realtime.Config
	DialAgent     AgentDialer // nil means dial the real agent
	Logger        logger.Logger
	Observability *observability.Observability
}

// Orchestrator owns the media-stream endpoint and the active-call registry.
type Orchestrator struct {
	sessions     SessionStore
	applications ApplicationStore
	publisher    EventPublisher
	registry     *Registry
	agentConfig  realtime.Config
	dialAgent    AgentDialer
	logger       logger.Logger
	obs          *observability.Observability
	upgrader     websocket.Upgrader
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	cfg := deps.AgentConfig
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}
	dial := deps.DialAgent
	if dial == nil {
		dial = func(ctx context.Context, cfg realtime.Config, handlers realtime.Handlers) (AgentSession, error) {
			return realtime.Dial(ctx, cfg, handlers, deps.Logger)
		}
	}
	return &Orchestrator{
		sessions:     deps.Sessions,
		applications: deps.Applications,
		publisher:    deps.Publisher,
		registry:     deps.Registry,
		agentConfig:  cfg,
		dialAgent:    dial,
		logger:       deps.Logger,
		obs:          deps.Observability,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleStream upgrades the telephony WebSocket and runs one call to
// completion or disconnect.
func (o *Orchestrator) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	call := o.newCall(conn)
	defer call.teardown()

	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				o.logger.Warn("media stream read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		if err := call.handleMessage(r.Context(), msg); err != nil {
			if !stderrors.Is(err, errStreamStopped) {
				o.logger.Error("call aborted", map[string]interface{}{
					"sessionId": call.sessionID,
					"error":     err.Error(),
				})
			}
			return
		}
	}
}

var errStreamStopped = stderrors.New("stream stopped")

// transport is what a call writes outbound frames to.
type transport interface {
	WriteJSON(v interface{}) error
}

type call struct {
	o         *Orchestrator
	transport transport
	writeMu   sync.Mutex
	sessionID string
	streamSID string
	agent     AgentSession
	agentStop context.CancelFunc
	boundAt   time.Time

	// stateMu guards state and released: tool calls mutate them on the
	// agent's listen goroutine while the transport goroutine reads them in
	// handleMessage and teardown.
	stateMu  sync.Mutex
	state    CallState
	released bool
}

func (o *Orchestrator) newCall(t transport) *call {
	return &call{o: o, transport: t, state: StateAwaitingStreamStart}
}

func (c *call) currentState() CallState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *call) setState(state CallState) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

// release evicts the registry entry and decrements the active-call gauge
// exactly once, whichever of submission or teardown gets there first.
func (c *call) release() {
	c.stateMu.Lock()
	alreadyReleased := c.released
	c.released = true
	c.stateMu.Unlock()
	if alreadyReleased {
		return
	}
	c.o.registry.Remove(c.sessionID)
	metrics.VoiceCallsActive.Dec()
}

func (c *call) handleMessage(ctx context.Context, msg StreamMessage) error {
	switch msg.Event {
	case StreamEventConnected:
		return nil
	case StreamEventStart:
		if c.currentState() != StateAwaitingStreamStart {
			// Duplicate start signal; binding is one-shot per call.
			c.o.logger.Warn("duplicate stream start ignored", map[string]interface{}{
				"sessionId": c.sessionID,
			})
			return nil
		}
		if msg.Start == nil {
			return fmt.Errorf("start frame missing control payload")
		}
		return c.bind(ctx, msg.Start)
	case StreamEventMedia:
		if c.agent != nil && msg.Media != nil {
			if err := c.agent.AppendAudio(msg.Media.Payload); err != nil {
				return fmt.Errorf("failed to forward caller audio: %w", err)
			}
		}
		return nil
	case StreamEventStop:
		return errStreamStopped
	default:
		return nil
	}
}

// bind resolves or lazily creates the session, registers the call, and
// brings the agent up with the two intake tools.
func (c *call) bind(ctx context.Context, start *StreamStart) error {
	c.streamSID = start.StreamSID

	session, err := c.resolveSession(ctx, start)
	if err != nil {
		return err
	}
	c.sessionID = session.ID

	if _, err := c.o.registry.Bind(session.ID, start.StreamSID); err != nil {
		return err
	}
	c.setState(StateSessionBound)
	c.boundAt = time.Now()
	metrics.VoiceCallsActive.Inc()

	agent, err := c.o.dialAgent(ctx, c.o.agentConfig, realtime.Handlers{
		OnAudio:    c.sendAudio,
		OnToolCall: c.handleToolCall,
	})
	if err != nil {
		c.o.publisher.Publish(ctx, c.sessionID, models.NewSessionError("voice agent unavailable"))
		return errors.NewAgentConnectionFailedError(err)
	}
	if err := agent.Configure(intakeTools()); err != nil {
		agent.Close()
		c.o.publisher.Publish(ctx, c.sessionID, models.NewSessionError("voice agent unavailable"))
		return errors.NewAgentConnectionFailedError(err)
	}
	c.agent = agent

	listenCtx, cancel := context.WithCancel(context.Background())
	c.agentStop = cancel
	go func() {
		if err := agent.Listen(listenCtx); err != nil && !stderrors.Is(err, context.Canceled) {
			c.o.logger.Error("agent session ended with error", map[string]interface{}{
				"sessionId": c.sessionID,
				"error":     err.Error(),
			})
		}
	}()

	c.o.logger.Info("call bound to session", map[string]interface{}{
		"sessionId": session.ID,
		"streamSid": start.StreamSID,
	})
	return nil
}

func (c *call) resolveSession(ctx context.Context, start *StreamStart) (*models.Session, error) {
	if id := start.CustomParameters["sessionId"]; id != "" {
		session, err := c.o.sessions.GetSession(ctx, id)
		if err == nil {
			return session, nil
		}
		if !stderrors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve session: %w", err)
		}
		// Stale id; fall through and create a fresh session.
	}
	session, err := c.o.sessions.CreateSession(ctx, start.CustomParameters["from"])
	if err != nil {
		return nil, fmt.Errorf("failed to create session for call: %w", err)
	}
	return session, nil
}

// sendAudio forwards one agent-audio frame to the caller.
func (c *call) sendAudio(payload string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.transport.WriteJSON(NewOutboundMedia(c.streamSID, payload)); err != nil {
		c.o.logger.Warn("failed to write agent audio", map[string]interface{}{
			"sessionId": c.sessionID,
			"error":     err.Error(),
		})
	}
}

func (c *call) handleToolCall(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	c.stateMu.Lock()
	if c.state == StateSessionBound {
		c.state = StateActive
	}
	c.stateMu.Unlock()
	switch name {
	case "update_field":
		return c.toolUpdateField(ctx, args)
	case "submit_application":
		return c.toolSubmitApplication(ctx)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

// toolUpdateField validates and persists one collected field, then fans it
// out. Validation failures go back to the agent as text so it can re-ask;
// they never abort the call.
func (c *call) toolUpdateField(ctx context.Context, args map[string]interface{}) (string, error) {
	field, _ := args["field"].(string)
	value, _ := args["value"].(string)

	normalized, err := permit.ValidateField(field, value)
	if err != nil {
		metrics.VoiceToolCalls.WithLabelValues("update_field", "rejected").Inc()
		return err.Error(), nil
	}

	if err := c.o.sessions.UpdateSessionField(ctx, c.sessionID, field, normalized); err != nil {
		metrics.VoiceToolCalls.WithLabelValues("update_field", "error").Inc()
		return "", err
	}
	c.o.registry.SetField(c.sessionID, field, normalized)
	c.o.publisher.Publish(ctx, c.sessionID, models.NewFieldUpdate(field, normalized, ""))

	metrics.VoiceToolCalls.WithLabelValues("update_field", "ok").Inc()
	return fmt.Sprintf("Recorded %s: %s", field, normalized), nil
}

// toolSubmitApplication finalizes the application. The tracking id is
// generated by the application store, never by the agent, and is read back
// to the caller from the created record.
func (c *call) toolSubmitApplication(ctx context.Context) (string, error) {
	formData := c.o.registry.FormData(c.sessionID)
	payload := make(map[string]interface{}, len(formData))
	for k, v := range formData {
		payload[k] = v
	}

	normalized, fieldErrors, err := permit.ValidateApplication(payload)
	if err != nil {
		return "", err
	}
	if len(fieldErrors) > 0 {
		metrics.VoiceToolCalls.WithLabelValues("submit_application", "incomplete").Inc()
		missing := make([]string, 0, len(fieldErrors))
		for field := range fieldErrors {
			missing = append(missing, field)
		}
		return fmt.Sprintf("The application cannot be submitted yet, these fields need attention: %s",
			strings.Join(missing, ", ")), nil
	}

	raw, err := json.Marshal(formData)
	if err != nil {
		return "", err
	}
	app, err := c.o.applications.CreateApplication(ctx, store.CreateApplicationParams{
		Fields:            normalized,
		SubmissionChannel: models.ChannelVoice,
		SessionID:         c.sessionID,
		RawData:           raw,
	})
	if err != nil {
		metrics.VoiceToolCalls.WithLabelValues("submit_application", "error").Inc()
		c.o.publisher.Publish(ctx, c.sessionID, models.NewSessionError("failed to submit application"))
		return "", err
	}

	c.o.publisher.Publish(ctx, c.sessionID, models.NewSessionComplete(app.TrackingID))
	if _, err := c.o.sessions.UpdateSessionStatus(ctx, c.sessionID, models.SessionStatusCompleted); err != nil {
		c.o.logger.Error("failed to mark session completed", map[string]interface{}{
			"sessionId": c.sessionID,
			"error":     err.Error(),
		})
	}

	c.setState(StateCompleted)
	c.release()
	metrics.VoiceToolCalls.WithLabelValues("submit_application", "ok").Inc()
	metrics.ApplicationsCreated.WithLabelValues(string(models.ChannelVoice)).Inc()

	return fmt.Sprintf("Application submitted. The tracking id is %s.", app.TrackingID), nil
}

// teardown releases per-call resources. A call that disconnects without
// submitting leaves no partial application; its session is marked
// abandoned so the mobile view and admin list can tell it ended.
func (c *call) teardown() {
	if c.agentStop != nil {
		c.agentStop()
	}
	if c.agent != nil {
		_ = c.agent.Close()
	}

	outcome := "completed"
	if state := c.currentState(); c.sessionID != "" && state != StateCompleted && state != StateAwaitingStreamStart {
		outcome = "disconnected"
		c.release()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.o.sessions.UpdateSessionStatus(ctx, c.sessionID, models.SessionStatusAbandoned); err != nil {
			c.o.logger.Error("failed to mark session abandoned", map[string]interface{}{
				"sessionId": c.sessionID,
				"error":     err.Error(),
			})
		}
		c.setState(StateDisconnected)
	}

	if c.o.obs != nil && !c.boundAt.IsZero() {
		ctx := context.Background()
		c.o.obs.RecordCall(ctx, outcome)
		c.o.obs.RecordCallDuration(ctx, time.Since(c.boundAt), outcome)
	}
}

// intakeTools declares the two callable actions exposed to the agent.
func intakeTools() []realtime.ToolDefinition {
	return []realtime.ToolDefinition{
		{
			Type:        "function",
			Name:        "update_field",
			Description: "Record one confirmed application field value.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"field": map[string]interface{}{
						"type": "string",
						"enum": permit.RequiredFields,
					},
					"value": map[string]interface{}{"type": "string"},
				},
				"required": []string{"field", "value"},
			},
		},
		{
			Type:        "function",
			Name:        "submit_application",
			Description: "Submit the completed application once every field is recorded and confirmed.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
