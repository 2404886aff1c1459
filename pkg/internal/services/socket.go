package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

// SocketAckEvent is the frame name the backend answers ack-correlated
// requests with.
const SocketAckEvent = "ack"

// ChatTransport is the slice of the chat socket the reconciler needs.
type ChatTransport interface {
	On(event string, handler func(raw json.RawMessage))
	Emit(event string, data any) error
	EmitWithAck(ctx context.Context, event string, data any) (json.RawMessage, error)
}

// ChatSocket is the persistent chat transport connection. Inbound frames
// are dispatched sequentially from a single read loop, so handlers observe
// arrival order.
type ChatSocket struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handlers  map[string][]func(raw json.RawMessage)

	ackMu     sync.Mutex
	acks      map[uint64]chan json.RawMessage
	ackSeq    atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// DialChatSocket connects the per-user chat socket.
func DialChatSocket(endpoint, userID string) (*ChatSocket, error) {
	target := fmt.Sprintf(
		"%s/socket?userId=%s",
		strings.TrimRight(endpoint, "/"), url.QueryEscape(userID),
	)

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to dial chat socket: %v", err)
	}

	s := &ChatSocket{
		conn:     conn,
		handlers: make(map[string][]func(raw json.RawMessage)),
		acks:     make(map[uint64]chan json.RawMessage),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *ChatSocket) On(event string, handler func(raw json.RawMessage)) {
	s.handlerMu.Lock()
	s.handlers[event] = append(s.handlers[event], handler)
	s.handlerMu.Unlock()
}

func (s *ChatSocket) Emit(event string, data any) error {
	raw, err := jsoniter.Marshal(data)
	if err != nil {
		return err
	}
	return s.write(models.SocketFrame{Event: event, Data: raw})
}

// EmitWithAck sends one frame carrying an acknowledgement id and waits for
// the matching ack frame's payload.
func (s *ChatSocket) EmitWithAck(ctx context.Context, event string, data any) (json.RawMessage, error) {
	raw, err := jsoniter.Marshal(data)
	if err != nil {
		return nil, err
	}

	id := s.ackSeq.Add(1)
	reply := make(chan json.RawMessage, 1)
	s.ackMu.Lock()
	s.acks[id] = reply
	s.ackMu.Unlock()
	defer func() {
		s.ackMu.Lock()
		delete(s.acks, id)
		s.ackMu.Unlock()
	}()

	if err := s.write(models.SocketFrame{Event: event, Data: raw, Ack: id}); err != nil {
		return nil, err
	}

	select {
	case payload := <-reply:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, fmt.Errorf("chat socket is closed")
	}
}

func (s *ChatSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return s.conn.Close()
}

func (s *ChatSocket) write(frame models.SocketFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame.Marshal())
}

func (s *ChatSocket) readLoop() {
	defer s.Close()

	for {
		_, packet, err := s.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Chat socket read loop ended.")
			return
		}

		var frame models.SocketFrame
		if err := jsoniter.Unmarshal(packet, &frame); err != nil {
			log.Warn().Err(err).Msg("Dropped an unparsable chat socket frame.")
			continue
		}

		if frame.Event == SocketAckEvent {
			s.ackMu.Lock()
			reply, ok := s.acks[frame.Ack]
			s.ackMu.Unlock()
			if ok {
				reply <- frame.Data
			}
			continue
		}

		s.handlerMu.RLock()
		handlers := make([]func(json.RawMessage), len(s.handlers[frame.Event]))
		copy(handlers, s.handlers[frame.Event])
		s.handlerMu.RUnlock()
		for _, handler := range handlers {
			handler(frame.Data)
		}
	}
}
