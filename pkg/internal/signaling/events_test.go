package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

func TestParseIncomingCall(t *testing.T) {
	raw := []byte(`{"type":"incoming_call","room":"call_7_9","from":{"id":"9","name":"Bob"}}`)

	event, err := ParsePushEvent(raw)
	require.NoError(t, err)

	incoming, ok := event.(models.IncomingCallEvent)
	require.True(t, ok)
	assert.Equal(t, "call_7_9", incoming.Room)
	assert.Equal(t, "9", incoming.From.ID)
	assert.Equal(t, "Bob", incoming.From.Name)
}

func TestParseIncomingCallNumericSenderFallback(t *testing.T) {
	raw := []byte(`{"type":"incoming_call","room":"call_7_9","fromUserId":9}`)

	event, err := ParsePushEvent(raw)
	require.NoError(t, err)

	incoming, ok := event.(models.IncomingCallEvent)
	require.True(t, ok)
	assert.Equal(t, "9", incoming.From.ID)
}

func TestParseIncomingCallWithoutCaller(t *testing.T) {
	raw := []byte(`{"type":"incoming_call","room":"call_7_9"}`)

	_, err := ParsePushEvent(raw)
	assert.Error(t, err)
}

func TestParseAccepted(t *testing.T) {
	event, err := ParsePushEvent([]byte(`{"type":"accepted","room":"call_7_9"}`))
	require.NoError(t, err)
	assert.Equal(t, models.CallAcceptedEvent{Room: "call_7_9"}, event)
}

func TestParseBusy(t *testing.T) {
	event, err := ParsePushEvent([]byte(`{"type":"busy","room":"call_7_9","by":{"id":"9","name":"Bob"}}`))
	require.NoError(t, err)

	busy, ok := event.(models.CallBusyEvent)
	require.True(t, ok)
	assert.Equal(t, "9", busy.By.ID)
}

func TestParseEndCall(t *testing.T) {
	event, err := ParsePushEvent([]byte(`{"type":"end_call","room":"call_7_9"}`))
	require.NoError(t, err)
	assert.Equal(t, models.CallEndedEvent{Room: "call_7_9"}, event)
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := ParsePushEvent([]byte(`{"type":"server_reboot","room":"call_7_9"}`))
	assert.Error(t, err)
}

func TestParseRejectsMissingRoom(t *testing.T) {
	_, err := ParsePushEvent([]byte(`{"type":"end_call"}`))
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParsePushEvent([]byte(`not json`))
	assert.Error(t, err)
}
