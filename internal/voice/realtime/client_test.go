// internal/voice/realtime/client_test.go
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit-intake/internal/common/logger"
)

// fakeAgentServer stands in for the realtime endpoint: it records every
// client message and lets the test push server events down.
type fakeAgentServer struct {
	mu       sync.Mutex
	received []map[string]interface{}
	headers  http.Header
	query    string
	conn     *websocket.Conn
	ready    chan struct{}
	upgrader websocket.Upgrader
}

func newFakeAgentServer() *fakeAgentServer {
	return &fakeAgentServer{ready: make(chan struct{})}
}

func (s *fakeAgentServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.headers = r.Header.Clone()
	s.query = r.URL.RawQuery
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.ready)

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()
	}
}

func (s *fakeAgentServer) send(t *testing.T, event map[string]interface{}) {
	t.Helper()
	select {
	case <-s.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NoError(t, s.conn.WriteJSON(event))
}

func (s *fakeAgentServer) messagesOfType(typ string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]interface{}
	for _, msg := range s.received {
		if msg["type"] == typ {
			out = append(out, msg)
		}
	}
	return out
}

func (s *fakeAgentServer) waitForMessage(t *testing.T, typ string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := s.messagesOfType(typ); len(msgs) > 0 {
			return msgs[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s message arrived", typ)
	return nil
}

func dialFake(t *testing.T, server *fakeAgentServer, handlers Handlers) *Client {
	t.Helper()
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	client, err := Dial(context.Background(), Config{
		APIKey:   "test-key",
		Model:    "test-model",
		Voice:    "alloy",
		Endpoint: "ws" + strings.TrimPrefix(httpServer.URL, "http"),
	}, handlers, logger.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDial_SendsAuthAndModel(t *testing.T) {
	server := newFakeAgentServer()
	dialFake(t, server, Handlers{})

	<-server.ready
	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, "Bearer test-key", server.headers.Get("Authorization"))
	assert.Equal(t, "realtime=v1", server.headers.Get("OpenAI-Beta"))
	assert.Equal(t, "model=test-model", server.query)
}

func TestConfigure_SendsSessionUpdate(t *testing.T) {
	server := newFakeAgentServer()
	client := dialFake(t, server, Handlers{})

	tools := []ToolDefinition{{Type: "function", Name: "update_field"}}
	require.NoError(t, client.Configure(tools))

	msg := server.waitForMessage(t, "session.update")
	session := msg["session"].(map[string]interface{})
	assert.Equal(t, "g711_ulaw", session["input_audio_format"])
	assert.Equal(t, "g711_ulaw", session["output_audio_format"])
	assert.Equal(t, "auto", session["tool_choice"])

	sentTools := session["tools"].([]interface{})
	require.Len(t, sentTools, 1)
	assert.Equal(t, "update_field", sentTools[0].(map[string]interface{})["name"])
}

func TestAppendAudio(t *testing.T) {
	server := newFakeAgentServer()
	client := dialFake(t, server, Handlers{})

	require.NoError(t, client.AppendAudio("b64frame"))

	msg := server.waitForMessage(t, "input_audio_buffer.append")
	assert.Equal(t, "b64frame", msg["audio"])
}

func TestListen_DispatchesAudioDeltas(t *testing.T) {
	server := newFakeAgentServer()

	audio := make(chan string, 1)
	client := dialFake(t, server, Handlers{
		OnAudio: func(payload string) { audio <- payload },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Listen(ctx)

	server.send(t, map[string]interface{}{
		"type":  "response.audio.delta",
		"delta": "b64out",
	})

	select {
	case payload := <-audio:
		assert.Equal(t, "b64out", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("audio delta never reached the handler")
	}
}

func TestListen_ToolCallRoundTrip(t *testing.T) {
	server := newFakeAgentServer()

	client := dialFake(t, server, Handlers{
		OnToolCall: func(ctx context.Context, name string, args map[string]interface{}) (string, error) {
			assert.Equal(t, "update_field", name)
			assert.Equal(t, "ownerName", args["field"])
			return "Recorded ownerName: Sam Baker", nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Listen(ctx)

	args, _ := json.Marshal(map[string]string{"field": "ownerName", "value": "Sam Baker"})
	server.send(t, map[string]interface{}{
		"type":      "response.function_call_arguments.done",
		"name":      "update_field",
		"call_id":   "call-7",
		"arguments": string(args),
	})

	// The tool output goes back as a function_call_output item followed by a
	// response.create nudge.
	output := server.waitForMessage(t, "conversation.item.create")
	item := output["item"].(map[string]interface{})
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call-7", item["call_id"])
	assert.Equal(t, "Recorded ownerName: Sam Baker", item["output"])

	server.waitForMessage(t, "response.create")
}

func TestListen_AgentErrorEndsSession(t *testing.T) {
	server := newFakeAgentServer()
	client := dialFake(t, server, Handlers{})

	done := make(chan error, 1)
	go func() { done <- client.Listen(context.Background()) }()

	server.send(t, map[string]interface{}{
		"type":  "error",
		"error": map[string]interface{}{"type": "server_error", "message": "boom"},
	})

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return on agent error")
	}
}

func TestDial_FailsAgainstNonWebSocketEndpoint(t *testing.T) {
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer httpServer.Close()

	_, err := Dial(context.Background(), Config{
		Endpoint: "ws" + strings.TrimPrefix(httpServer.URL, "http"),
	}, Handlers{}, logger.NewNoOpLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent dial failed")
}
