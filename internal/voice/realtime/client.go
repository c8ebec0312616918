// Package realtime is a thin WebSocket client for the speech-to-speech
// conversational agent. It configures a session with tool definitions,
// forwards caller audio in, and surfaces agent audio and tool calls out
// through callbacks. There is no reconnect logic: a connection error tears
// the call down.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"permit-intake/internal/common/logger"
)

// DefaultEndpoint is the agent's WebSocket endpoint. Overridable for tests.
const DefaultEndpoint = "wss://api.openai.com/v1/realtime"

// Config selects the agent model and voice and carries the API key.
type Config struct {
	APIKey       string
	Model        string
	Voice        string
	Instructions string
	Endpoint     string // defaults to DefaultEndpoint
}

// ToolDefinition describes one callable tool exposed to the agent.
type ToolDefinition struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Handlers receive agent output. OnAudio gets base64 G.711 mu-law frames;
// OnToolCall runs a tool and returns the output string handed back to the
// agent. A ToolCall error aborts the session.
type Handlers struct {
	OnAudio    func(payload string)
	OnToolCall func(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Client is one live agent session over a WebSocket.
type Client struct {
	conn     *websocket.Conn
	cfg      Config
	handlers Handlers
	logger   logger.Logger
	writeMu  sync.Mutex
}

// Dial opens the agent WebSocket. The session is not usable until
// Configure has been called.
func Dial(ctx context.Context, cfg Config, handlers Handlers, log logger.Logger) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx,
		endpoint+"?model="+url.QueryEscape(cfg.Model), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("agent dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("agent dial failed: %w", err)
	}

	return &Client{conn: conn, cfg: cfg, handlers: handlers, logger: log}, nil
}

// Configure installs the session parameters and tool definitions. Audio in
// and out stay in G.711 mu-law so telephony frames pass through untouched.
func (c *Client) Configure(tools []ToolDefinition) error {
	return c.writeJSON(map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"modalities":          []string{"text", "audio"},
			"instructions":        c.cfg.Instructions,
			"voice":               c.cfg.Voice,
			"input_audio_format":  "g711_ulaw",
			"output_audio_format": "g711_ulaw",
			"turn_detection":      map[string]interface{}{"type": "server_vad"},
			"tools":               tools,
			"tool_choice":         "auto",
		},
	})
}

// AppendAudio forwards one base64 caller-audio frame to the agent.
func (c *Client) AppendAudio(payload string) error {
	return c.writeJSON(map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	})
}

// serverEvent is the subset of agent events the bridge cares about.
type serverEvent struct {
	Type      string `json:"type"`
	Delta     string `json:"delta,omitempty"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Error     *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Listen consumes agent events until the connection closes or ctx is
// canceled, dispatching audio deltas and tool calls to the handlers.
func (c *Client) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("agent read failed: %w", err)
		}

		var event serverEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.logger.Warn("unparseable agent event", map[string]interface{}{"error": err.Error()})
			continue
		}

		switch event.Type {
		case "response.audio.delta":
			if c.handlers.OnAudio != nil {
				c.handlers.OnAudio(event.Delta)
			}
		case "response.function_call_arguments.done":
			if err := c.dispatchToolCall(ctx, event); err != nil {
				return err
			}
		case "error":
			if event.Error != nil {
				return fmt.Errorf("agent error: %s", event.Error.Message)
			}
			return fmt.Errorf("agent error")
		}
	}
}

func (c *Client) dispatchToolCall(ctx context.Context, event serverEvent) error {
	if c.handlers.OnToolCall == nil {
		return nil
	}

	args := map[string]interface{}{}
	if event.Arguments != "" {
		if err := json.Unmarshal([]byte(event.Arguments), &args); err != nil {
			c.logger.Warn("unparseable tool arguments", map[string]interface{}{
				"tool":  event.Name,
				"error": err.Error(),
			})
		}
	}

	output, err := c.handlers.OnToolCall(ctx, event.Name, args)
	if err != nil {
		return fmt.Errorf("tool %s failed: %w", event.Name, err)
	}

	if err := c.writeJSON(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": event.CallID,
			"output":  output,
		},
	}); err != nil {
		return err
	}
	// Ask the agent to continue the conversation with the tool output.
	return c.writeJSON(map[string]interface{}{"type": "response.create"})
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}
