package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

// ChatService keeps one conversation's timeline: a single ordered,
// de-duplicated message sequence merged from the history ack, live socket
// events, and local optimistic sends.
type ChatService struct {
	transport ChatTransport
	selfID    string
	cache     *gorm.DB

	mu       sync.Mutex
	otherID  string
	messages []models.ChatMessage
}

// NewChatService wires the reconciler onto transport. A nil cache disables
// local history persistence.
func NewChatService(transport ChatTransport, selfID string, cache *gorm.DB) *ChatService {
	s := &ChatService{
		transport: transport,
		selfID:    selfID,
		cache:     cache,
	}

	// Plain messages and explicit echo acks are handled identically.
	transport.On(models.ChatEventMessage, s.handleIncoming)
	transport.On(models.ChatEventMessageAck, s.handleIncoming)
	return s
}

// OpenConversation joins the room for (self, other), marks the thread
// active, and replaces the timeline with the server-ordered history. The
// sequence is seeded from the local cache first so an offline history shows
// up before the ack lands.
func (s *ChatService) OpenConversation(ctx context.Context, otherID string) error {
	if len(otherID) == 0 || len(s.selfID) == 0 {
		return fmt.Errorf("conversation requires both participants")
	}

	s.mu.Lock()
	previous := s.otherID
	s.otherID = otherID
	s.messages = s.seedFromCache(otherID)
	s.mu.Unlock()

	if len(previous) > 0 && previous != otherID {
		s.notifyLeave(previous)
	}

	if err := s.transport.Emit(models.ChatEventJoin, map[string]any{"otherUserId": otherID}); err != nil {
		return fmt.Errorf("unable to join conversation room: %v", err)
	}
	if err := s.transport.Emit(models.ChatEventActive, map[string]any{"withUserId": otherID}); err != nil {
		log.Warn().Err(err).Msg("Unable to mark the thread active.")
	}

	raw, err := s.transport.EmitWithAck(ctx, models.ChatEventHistory, map[string]any{"withUserId": otherID})
	if err != nil {
		// Keep whatever the cache seeded; live events still append.
		return fmt.Errorf("history request was not acknowledged: %v", err)
	}

	var rows []models.ChatMessage
	if err := jsoniter.Unmarshal(raw, &rows); err != nil {
		return fmt.Errorf("malformed history payload: %v", err)
	}
	for idx := range rows {
		rows[idx].Status = models.MessageStatusSent
	}

	s.mu.Lock()
	if s.otherID != otherID {
		// The user switched away while the ack was in flight.
		s.mu.Unlock()
		return nil
	}
	s.messages = rows
	s.mu.Unlock()

	s.persist(rows...)
	return nil
}

// CloseConversation leaves the current room and clears the timeline.
func (s *ChatService) CloseConversation() {
	s.mu.Lock()
	previous := s.otherID
	s.otherID = ""
	s.messages = nil
	s.mu.Unlock()

	if len(previous) > 0 {
		s.notifyLeave(previous)
	}
}

func (s *ChatService) notifyLeave(otherID string) {
	if err := s.transport.Emit(models.ChatEventInactive, map[string]any{"withUserId": otherID}); err != nil {
		log.Warn().Err(err).Msg("Unable to mark the thread inactive.")
	}
	if err := s.transport.Emit(models.ChatEventLeave, map[string]any{"otherUserId": otherID}); err != nil {
		log.Warn().Err(err).Msg("Unable to leave the conversation room.")
	}
}

// SendMessage appends an optimistic entry and emits the send carrying a
// fresh correlation id. Empty content or a missing counterpart is a no-op.
func (s *ChatService) SendMessage(content string) {
	content = strings.TrimSpace(content)

	s.mu.Lock()
	otherID := s.otherID
	if len(content) == 0 || len(otherID) == 0 {
		s.mu.Unlock()
		return
	}

	clientID := uuid.NewString()
	s.messages = append(s.messages, models.ChatMessage{
		ClientID:   clientID,
		SenderID:   models.FlexID(s.selfID),
		ReceiverID: models.FlexID(otherID),
		Content:    content,
		CreatedAt:  models.FlexTime(time.Now()),
		Status:     models.MessageStatusSending,
	})
	s.mu.Unlock()

	if err := s.transport.Emit(models.ChatEventMessage, map[string]any{
		"to":       otherID,
		"content":  content,
		"clientId": clientID,
	}); err != nil {
		// The optimistic entry stays in sending; there is no retry path.
		log.Warn().Err(err).Msg("Unable to emit a chat message.")
	}
}

// Messages returns a copy of the current timeline.
func (s *ChatService) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// ActiveConversation returns the open counterpart id, if any.
func (s *ChatService) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otherID
}

func (s *ChatService) handleIncoming(raw json.RawMessage) {
	var incoming models.ChatMessage
	if err := jsoniter.Unmarshal(raw, &incoming); err != nil {
		log.Warn().Err(err).Msg("Dropped a malformed chat message.")
		return
	}
	incoming.Status = models.MessageStatusSent

	s.mu.Lock()
	otherID := s.otherID
	// The transport is shared across conversations; only keep messages for
	// the open thread.
	if len(otherID) == 0 || !incoming.Involves(s.selfID, otherID) {
		s.mu.Unlock()
		return
	}

	// Our own echo replaces the optimistic entry in place, keeping the
	// position the sender already saw.
	if len(incoming.ClientID) > 0 {
		if _, idx, ok := lo.FindIndexOf(s.messages, func(m models.ChatMessage) bool {
			return len(m.ClientID) > 0 && m.ClientID == incoming.ClientID
		}); ok {
			s.messages[idx] = incoming
			s.mu.Unlock()
			s.persist(incoming)
			return
		}
	}

	// Duplicate delivery of a persisted row is dropped.
	if len(incoming.ID) > 0 && lo.SomeBy(s.messages, func(m models.ChatMessage) bool {
		return m.ID == incoming.ID
	}) {
		s.mu.Unlock()
		return
	}

	s.messages = append(s.messages, incoming)
	s.mu.Unlock()

	s.persist(incoming)
}

func (s *ChatService) seedFromCache(otherID string) []models.ChatMessage {
	if s.cache == nil {
		return nil
	}

	var records []models.MessageRecord
	if err := s.cache.
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			s.selfID, otherID, otherID, s.selfID).
		Order("sent_at ASC").
		Find(&records).Error; err != nil {
		log.Warn().Err(err).Msg("Unable to seed the timeline from cache.")
		return nil
	}

	return lo.Map(records, func(record models.MessageRecord, _ int) models.ChatMessage {
		return record.ToMessage()
	})
}

func (s *ChatService) persist(rows ...models.ChatMessage) {
	if s.cache == nil {
		return
	}

	for _, row := range rows {
		if len(row.ID) == 0 {
			continue
		}
		record := models.MessageRecord{
			MessageID:  row.ID,
			SenderID:   row.SenderID.String(),
			ReceiverID: row.ReceiverID.String(),
			Content:    row.Content,
			SentAt:     row.CreatedAt.Time(),
		}
		if err := s.cache.
			Where(models.MessageRecord{MessageID: row.ID}).
			FirstOrCreate(&record).Error; err != nil {
			log.Warn().Err(err).Msg("Unable to cache a chat message.")
		}
	}
}
