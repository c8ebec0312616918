// internal/voice/stream.go
package voice

// Telephony media-stream protocol messages. The provider sends JSON frames
// over the WebSocket; audio payloads are base64 G.711 mu-law and are
// relayed opaquely (codec handling is out of scope).

const (
	StreamEventConnected = "connected"
	StreamEventStart     = "start"
	StreamEventMedia     = "media"
	StreamEventMark      = "mark"
	StreamEventStop      = "stop"
	StreamEventClear     = "clear"
)

// StreamMessage is one inbound or outbound media-stream frame.
type StreamMessage struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid,omitempty"`
	Start     *StreamStart `json:"start,omitempty"`
	Media     *StreamMedia `json:"media,omitempty"`
}

// StreamStart is the control frame that opens a stream. The session id is
// carried as a custom parameter set by the incoming-call webhook.
type StreamStart struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

// StreamMedia carries one audio frame.
type StreamMedia struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

// NewOutboundMedia builds an agent-audio frame addressed to the stream.
func NewOutboundMedia(streamSID, payload string) StreamMessage {
	return StreamMessage{
		Event:     StreamEventMedia,
		StreamSID: streamSID,
		Media:     &StreamMedia{Payload: payload},
	}
}
