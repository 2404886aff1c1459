package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

var testUpgrader = websocket.Upgrader{}

// echoChatBackend answers chat:history with a canned ack and repeats every
// other frame back to the sender.
func echoChatBackend(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/socket", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("userId"))

		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			var frame models.SocketFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Ack > 0 {
				reply := models.SocketFrame{
					Event: SocketAckEvent,
					Data:  json.RawMessage(`[{"id":"m1"}]`),
					Ack:   frame.Ack,
				}
				if err := conn.WriteJSON(reply); err != nil {
					return
				}
				continue
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

func dialTestSocket(t *testing.T) *ChatSocket {
	t.Helper()
	server := httptest.NewServer(echoChatBackend(t))
	t.Cleanup(server.Close)

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	socket, err := DialChatSocket(endpoint, "7")
	require.NoError(t, err)
	t.Cleanup(func() { socket.Close() })
	return socket
}

func TestSocketEmitRoundTrip(t *testing.T) {
	socket := dialTestSocket(t)

	received := make(chan json.RawMessage, 1)
	socket.On(models.ChatEventMessage, func(raw json.RawMessage) {
		received <- raw
	})

	require.NoError(t, socket.Emit(models.ChatEventMessage, map[string]any{"content": "hi"}))

	select {
	case raw := <-received:
		var payload map[string]string
		require.NoError(t, jsoniter.Unmarshal(raw, &payload))
		assert.Equal(t, "hi", payload["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("echo frame never arrived")
	}
}

func TestSocketEmitWithAck(t *testing.T) {
	socket := dialTestSocket(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := socket.EmitWithAck(ctx, models.ChatEventHistory, map[string]any{"withUserId": "9"})
	require.NoError(t, err)

	var rows []models.ChatMessage
	require.NoError(t, jsoniter.Unmarshal(raw, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "m1", rows[0].ID)
}

func TestSocketEmitWithAckHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// Swallow frames without ever acking.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	socket, err := DialChatSocket(endpoint, "7")
	require.NoError(t, err)
	t.Cleanup(func() { socket.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = socket.EmitWithAck(ctx, models.ChatEventHistory, map[string]any{"withUserId": "9"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
