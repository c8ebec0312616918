// internal/voice/orchestrator_test.go
package voice

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/common/logger"
	"permit-intake/internal/common/metrics"
	"permit-intake/internal/models"
	"permit-intake/internal/permit"
	"permit-intake/internal/store"
	"permit-intake/internal/voice/realtime"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	created  []string
	fields   map[string]map[string]string
	statuses map[string]models.SessionStatus
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions: make(map[string]*models.Session),
		fields:   make(map[string]map[string]string),
		statuses: make(map[string]models.SessionStatus),
	}
}

func (f *fakeSessions) add(id string) *models.Session {
	session := &models.Session{
		ID:          id,
		Status:      models.SessionStatusActive,
		ChannelName: models.ChannelName(id),
		FormData:    map[string]string{},
	}
	f.sessions[id] = session
	return session
}

func (f *fakeSessions) CreateSession(ctx context.Context, phoneNumber string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "created-" + phoneNumber
	f.created = append(f.created, id)
	session := &models.Session{
		ID:          id,
		PhoneNumber: phoneNumber,
		Status:      models.SessionStatusActive,
		ChannelName: models.ChannelName(id),
		FormData:    map[string]string{},
	}
	f.sessions[id] = session
	return session, nil
}

func (f *fakeSessions) GetSession(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return session, nil
}

func (f *fakeSessions) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	f.statuses[id] = status
	session.Status = status
	return session, nil
}

func (f *fakeSessions) UpdateSessionField(ctx context.Context, id, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return store.ErrNotFound
	}
	if f.fields[id] == nil {
		f.fields[id] = map[string]string{}
	}
	f.fields[id][field] = value
	return nil
}

type fakeApplications struct {
	mu      sync.Mutex
	created []store.CreateApplicationParams
	err     error
}

func (f *fakeApplications) CreateApplication(ctx context.Context, params store.CreateApplicationParams) (*models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	return &models.Application{
		ID:                "app-1",
		TrackingID:        "APP-20270615-AB12",
		SubmissionChannel: params.SubmissionChannel,
		SessionID:         params.SessionID,
	}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.RelayEvent
}

func (f *fakePublisher) Publish(ctx context.Context, sessionID string, event models.RelayEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) byType(typ models.EventType) []models.RelayEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RelayEvent
	for _, e := range f.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fakeAgent struct {
	mu         sync.Mutex
	tools      []realtime.ToolDefinition
	audio      []string
	closed     bool
	configured bool
}

func (f *fakeAgent) Configure(tools []realtime.ToolDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = tools
	f.configured = true
	return nil
}

func (f *fakeAgent) AppendAudio(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, payload)
	return nil
}

func (f *fakeAgent) Listen(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAgent) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeTransport struct {
	mu       sync.Mutex
	messages []interface{}
}

func (f *fakeTransport) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, v)
	return nil
}

type fixture struct {
	orchestrator *Orchestrator
	sessions     *fakeSessions
	applications *fakeApplications
	publisher    *fakePublisher
	agent        *fakeAgent
	transport    *fakeTransport
	registry     *Registry
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		sessions:     newFakeSessions(),
		applications: &fakeApplications{},
		publisher:    &fakePublisher{},
		agent:        &fakeAgent{},
		transport:    &fakeTransport{},
		registry:     NewRegistry(time.Minute),
	}
	f.orchestrator = NewOrchestrator(Dependencies{
		Sessions:     f.sessions,
		Applications: f.applications,
		Publisher:    f.publisher,
		Registry:     f.registry,
		DialAgent: func(ctx context.Context, cfg realtime.Config, handlers realtime.Handlers) (AgentSession, error) {
			return f.agent, nil
		},
		Logger: logger.NewTestLogger(t),
	})
	return f
}

func startMessage(sessionID string) StreamMessage {
	params := map[string]string{"from": "5551234567"}
	if sessionID != "" {
		params["sessionId"] = sessionID
	}
	return StreamMessage{
		Event: StreamEventStart,
		Start: &StreamStart{
			StreamSID:        "stream-1",
			CallSID:          "call-1",
			CustomParameters: params,
		},
	}
}

func TestCall_BindResolvesExistingSession(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()

	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	assert.Equal(t, StateSessionBound, call.state)
	assert.Equal(t, "sess-1", call.sessionID)
	assert.Empty(t, f.sessions.created)
	assert.True(t, f.agent.configured)
	_, bound := f.registry.Get("sess-1")
	assert.True(t, bound)
}

func TestCall_BindCreatesSessionLazily(t *testing.T) {
	f := newFixture(t)

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()

	// No sessionId parameter on the stream start.
	require.NoError(t, call.handleMessage(context.Background(), startMessage("")))

	require.Len(t, f.sessions.created, 1)
	assert.Equal(t, f.sessions.created[0], call.sessionID)
}

func TestCall_StaleSessionIDFallsBackToCreate(t *testing.T) {
	f := newFixture(t)

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()

	require.NoError(t, call.handleMessage(context.Background(), startMessage("long-gone")))
	require.Len(t, f.sessions.created, 1)
}

func TestCall_DuplicateStartIgnored(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()

	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	assert.Equal(t, "sess-1", call.sessionID)
	assert.Equal(t, 1, f.registry.Len())
}

func TestCall_AgentDialFailurePublishesError(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")
	f.orchestrator.dialAgent = func(ctx context.Context, cfg realtime.Config, handlers realtime.Handlers) (AgentSession, error) {
		return nil, stderrors.New("upstream down")
	}

	call := f.orchestrator.newCall(f.transport)
	err := call.handleMessage(context.Background(), startMessage("sess-1"))
	require.Error(t, err)

	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeAgentConnectionFailed, stdErr.Code)

	errEvents := f.publisher.byType(models.EventSessionError)
	require.Len(t, errEvents, 1)

	call.teardown()
	assert.Equal(t, models.SessionStatusAbandoned, f.sessions.statuses["sess-1"])
}

func TestCall_MediaForwardedToAgent(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	msg := StreamMessage{Event: StreamEventMedia, Media: &StreamMedia{Track: "inbound", Payload: "b64audio"}}
	require.NoError(t, call.handleMessage(context.Background(), msg))

	assert.Equal(t, []string{"b64audio"}, f.agent.audio)
}

func TestCall_UpdateFieldPersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	reply, err := call.handleToolCall(context.Background(), "update_field", map[string]interface{}{
		"field": "ownerPhone",
		"value": "(555) 987-6543",
	})
	require.NoError(t, err)
	assert.Equal(t, "Recorded ownerPhone: 5559876543", reply)
	assert.Equal(t, StateActive, call.state)

	// Durable write, working copy, and fan-out all carry the normalized value.
	assert.Equal(t, "5559876543", f.sessions.fields["sess-1"]["ownerPhone"])
	assert.Equal(t, "5559876543", f.registry.FormData("sess-1")["ownerPhone"])

	updates := f.publisher.byType(models.EventFieldUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "ownerPhone", updates[0].Field)
	assert.Equal(t, "5559876543", updates[0].Value)
	assert.Empty(t, updates[0].Source)
}

func TestCall_UpdateFieldRejectionGoesBackToAgent(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	reply, err := call.handleToolCall(context.Background(), "update_field", map[string]interface{}{
		"field": "ownerPhone",
		"value": "123",
	})
	require.NoError(t, err)
	assert.Contains(t, reply, "exactly 10 digits")

	// Rejected values are never persisted or broadcast.
	assert.Empty(t, f.sessions.fields["sess-1"])
	assert.Empty(t, f.publisher.byType(models.EventFieldUpdate))
}

func TestCall_SubmitIncompleteListsMissingFields(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	f.registry.SetField("sess-1", "ownerName", "Sam Baker")

	reply, err := call.handleToolCall(context.Background(), "submit_application", nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "cannot be submitted yet")
	assert.Contains(t, reply, "establishmentEmail")
	assert.Empty(t, f.applications.created)
}

func completeApplicationValues() map[string]string {
	future := time.Now().UTC().AddDate(0, 1, 0).Format("2006-01-02")
	return map[string]string{
		"establishmentName":  "The Rolling Scone",
		"streetAddress":      "123 Main St",
		"establishmentPhone": "5551234567",
		"establishmentEmail": "info@rollingscone.com",
		"ownerName":          "Sam Baker",
		"ownerPhone":         "5559876543",
		"ownerEmail":         "sam@rollingscone.com",
		"establishmentType":  "Bakery",
		"plannedOpeningDate": future,
	}
}

func TestCall_SubmitCreatesApplication(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	for field, value := range completeApplicationValues() {
		f.registry.SetField("sess-1", field, value)
	}

	reply, err := call.handleToolCall(context.Background(), "submit_application", nil)
	require.NoError(t, err)
	// The tracking id read to the caller is the store's, never invented.
	assert.Contains(t, reply, "APP-20270615-AB12")
	assert.Equal(t, StateCompleted, call.state)

	require.Len(t, f.applications.created, 1)
	created := f.applications.created[0]
	assert.Equal(t, models.ChannelVoice, created.SubmissionChannel)
	assert.Equal(t, "sess-1", created.SessionID)

	completes := f.publisher.byType(models.EventSessionComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, "APP-20270615-AB12", completes[0].TrackingID)

	assert.Equal(t, models.SessionStatusCompleted, f.sessions.statuses["sess-1"])
	assert.Equal(t, 0, f.registry.Len())

	// Teardown after a completed call must not flip the session to abandoned.
	call.teardown()
	assert.Equal(t, models.SessionStatusCompleted, f.sessions.statuses["sess-1"])
}

func TestCall_SubmitRacingHangupReleasesOnce(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))
	for field, value := range completeApplicationValues() {
		f.registry.SetField("sess-1", field, value)
	}

	before := testutil.ToFloat64(metrics.VoiceCallsActive)

	// Submission runs on the agent's listen goroutine while the transport
	// goroutine tears the call down after a hangup.
	submitErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := call.handleToolCall(context.Background(), "submit_application", nil)
		submitErr <- err
	}()
	go func() {
		defer wg.Done()
		call.teardown()
	}()
	wg.Wait()
	require.NoError(t, <-submitErr)

	// The registry entry and the active-call gauge are released exactly once,
	// whichever side got there first.
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, before-1, testutil.ToFloat64(metrics.VoiceCallsActive))
}

func TestCall_DisconnectMarksSessionAbandoned(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))
	f.registry.SetField("sess-1", "ownerName", "Sam Baker")

	call.teardown()

	assert.Equal(t, models.SessionStatusAbandoned, f.sessions.statuses["sess-1"])
	assert.Equal(t, 0, f.registry.Len())
	assert.True(t, f.agent.closed)
	// No partial application left behind.
	assert.Empty(t, f.applications.created)
}

func TestCall_StopEndsTheLoop(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	err := call.handleMessage(context.Background(), StreamMessage{Event: StreamEventStop})
	assert.ErrorIs(t, err, errStreamStopped)
}

func TestCall_UnknownToolErrors(t *testing.T) {
	f := newFixture(t)
	f.sessions.add("sess-1")

	call := f.orchestrator.newCall(f.transport)
	defer call.teardown()
	require.NoError(t, call.handleMessage(context.Background(), startMessage("sess-1")))

	_, err := call.handleToolCall(context.Background(), "delete_everything", nil)
	assert.Error(t, err)
}

func TestIntakeTools_FieldEnumMatchesRequiredFields(t *testing.T) {
	tools := intakeTools()
	require.Len(t, tools, 2)

	params := tools[0].Parameters["properties"].(map[string]interface{})
	fieldSchema := params["field"].(map[string]interface{})
	assert.Equal(t, permit.RequiredFields, fieldSchema["enum"])
}
