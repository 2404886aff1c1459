package signaling

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

// pushEnvelope is the duck-typed wire shape of the push channel. It is
// converted into one of the closed models.PushEvent variants here and
// nowhere else.
type pushEnvelope struct {
	Type       string           `json:"type" validate:"required"`
	Room       string           `json:"room" validate:"required"`
	From       *models.UserInfo `json:"from,omitempty"`
	FromUserID models.FlexID    `json:"fromUserId,omitempty"`
	By         *models.UserInfo `json:"by,omitempty"`
}

// ParsePushEvent validates one push-channel payload and returns its typed
// variant. Unrecognized shapes come back as errors for the caller to log
// and drop; they must never crash the listener.
func ParsePushEvent(raw []byte) (models.PushEvent, error) {
	var env pushEnvelope
	if err := jsoniter.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unable to decode push event: %v", err)
	}
	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("malformed push event: %v", err)
	}

	switch env.Type {
	case models.PushTypeIncomingCall:
		// Build the best-possible caller identity from what the payload has.
		var from models.UserInfo
		if env.From != nil {
			from = *env.From
		}
		if len(from.ID) == 0 {
			from.ID = env.FromUserID.String()
		}
		if len(from.ID) == 0 {
			return nil, fmt.Errorf("incoming_call event carries no caller identity")
		}
		return models.IncomingCallEvent{Room: env.Room, From: from}, nil
	case models.PushTypeAccepted:
		return models.CallAcceptedEvent{Room: env.Room}, nil
	case models.PushTypeBusy:
		var by models.UserInfo
		if env.By != nil {
			by = *env.By
		}
		return models.CallBusyEvent{Room: env.Room, By: by}, nil
	case models.PushTypeEndCall:
		return models.CallEndedEvent{Room: env.Room}, nil
	default:
		return nil, fmt.Errorf("unrecognized push event type %q", env.Type)
	}
}
