package signaling

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog/log"
	backoff "gopkg.in/cenkalti/backoff.v1"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

// Listener maintains the per-user push-channel subscription. It reconnects
// with a fixed backoff on transport errors and hands every well-formed
// event to the handler; data-level errors are logged and dropped.
type Listener struct {
	client *sse.Client
	userID string
}

func NewListener(baseURL, userID string) *Listener {
	endpoint := fmt.Sprintf(
		"%s/events?userId=%s",
		trimBase(baseURL), url.QueryEscape(userID),
	)

	client := sse.NewClient(endpoint)
	client.ReconnectStrategy = backoff.NewConstantBackOff(time.Second)

	return &Listener{client: client, userID: userID}
}

// Start blocks until ctx is cancelled. Run it on its own goroutine.
func (l *Listener) Start(ctx context.Context, handler func(models.PushEvent)) error {
	log.Info().Str("user", l.userID).Msg("Connecting to the signaling push channel...")

	return l.client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if len(msg.Data) == 0 {
			return
		}
		event, err := ParsePushEvent(msg.Data)
		if err != nil {
			log.Warn().Err(err).Msg("Dropped an unrecognized push event.")
			return
		}
		handler(event)
	})
}

func trimBase(baseURL string) string {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return baseURL
}
