// Package relay fans session events out to mobile viewers over a
// per-session pub/sub channel. Delivery is best-effort: publish failures
// are logged and never fail the operation that triggered them.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"permit-intake/internal/common/logger"
	"permit-intake/internal/common/metrics"
	"permit-intake/internal/models"
)

// Publisher publishes typed events on a session's relay channel. A nil
// underlying client means the relay is unconfigured; Publish then logs and
// no-ops so callers never treat broadcast failure as fatal.
type Publisher struct {
	client *redis.Client
	logger logger.Logger
}

func NewPublisher(client *redis.Client, log logger.Logger) *Publisher {
	return &Publisher{client: client, logger: log}
}

// Publish delivers one event on the channel derived from sessionID. It
// returns once the provider acknowledges transmission, not delivery to
// subscribers. Fire-and-forget: no acknowledgment is fed back anywhere.
func (p *Publisher) Publish(ctx context.Context, sessionID string, event models.RelayEvent) {
	channel := models.ChannelName(sessionID)

	if p == nil || p.client == nil {
		if p != nil && p.logger != nil {
			p.logger.Warn("relay not configured, dropping event", map[string]interface{}{
				"channel":   channel,
				"eventType": string(event.Type),
			})
		}
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode relay event", map[string]interface{}{
			"channel":   channel,
			"eventType": string(event.Type),
			"error":     err.Error(),
		})
		metrics.RelayPublishFailures.Inc()
		return
	}

	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		p.logger.Error("relay publish failed", map[string]interface{}{
			"channel":   channel,
			"eventType": string(event.Type),
			"error":     err.Error(),
		})
		metrics.RelayPublishFailures.Inc()
		return
	}

	metrics.RelayEventsPublished.WithLabelValues(string(event.Type)).Inc()
}
