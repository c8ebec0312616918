// internal/relay/bridge.go
package relay

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"permit-intake/internal/common/errors"
	"permit-intake/internal/common/logger"
)

// Bridge is the server half of the mobile live view: it validates a scoped
// token, subscribes to the single channel the token grants, and forwards
// relay events to the WebSocket until either side closes. The token is the
// only scoping mechanism; the bridge subscribes to claims.Channel and
// nothing else.
type Bridge struct {
	client   *redis.Client
	issuer   *TokenIssuer
	logger   logger.Logger
	errorOut *errors.HTTPHandler
	upgrader websocket.Upgrader
}

func NewBridge(client *redis.Client, issuer *TokenIssuer, log logger.Logger) *Bridge {
	return &Bridge{
		client:   client,
		issuer:   issuer,
		logger:   log,
		errorOut: errors.NewHTTPHandler(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := b.issuer.Verify(r.URL.Query().Get("token"))
	if err != nil {
		b.errorOut.Write(w, err)
		return
	}
	if b.client == nil {
		b.errorOut.Write(w, errors.NewInternalError(errRelayNotConfigured))
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := b.client.Subscribe(ctx, claims.Channel)
	defer sub.Close()

	// Confirm the subscription before forwarding so a publisher racing the
	// connect cannot slip an event past us.
	if _, err := sub.Receive(ctx); err != nil {
		b.logger.Error("relay subscribe failed", map[string]interface{}{
			"channel": claims.Channel,
			"error":   err.Error(),
		})
		return
	}

	// Drain client frames so we notice the socket closing; subscribers
	// never publish.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deadline := time.Unix(claims.ExpiresAt, 0)
	events := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(deadline)):
			// Token lifetime is the subscription lifetime.
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}

var errRelayNotConfigured = stderrors.New("relay is not configured")
