package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"streamrelay/model"
	"streamrelay/platform"
)

var logger = platform.Logger

// ErrUnavailable is returned when the backing Redis cannot be reached
// (or was never connected). Callers decide whether that is fatal.
var ErrUnavailable = errors.New("message store unavailable")

// MessageStore is the ordered append-only per-conversation message log,
// backed by one Redis list per conversation.
type MessageStore struct {
	rdb *redis.Client
}

func NewMessageStore(rdb *redis.Client) *MessageStore {
	return &MessageStore{rdb: rdb}
}

func newMessageId() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Append assigns an id and timestamp, pushes the message onto the
// conversation's log and returns the stored message. Appends within one
// conversation are read back in push order.
func (s *MessageStore) Append(ctx context.Context, conversationId, role, content, authorId string) (*model.Message, error) {
	if s.rdb == nil {
		return nil, ErrUnavailable
	}

	msg := model.Message{
		ID:       newMessageId(),
		Role:     role,
		Type:     model.MessageTypeText,
		Content:  content,
		Ts:       time.Now().UnixMilli(),
		AuthorId: authorId,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	key := model.ConversationKey(conversationId)
	if err := s.rdb.RPush(ctx, key, data).Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	msg.ConversationId = conversationId
	return &msg, nil
}

// Tail returns up to limit most-recent messages of a conversation,
// oldest first, or the whole log when limit <= 0. Absence of history is
// not an error: unavailability and unknown conversations both yield an
// empty slice.
func (s *MessageStore) Tail(ctx context.Context, conversationId string, limit int64) []model.Message {
	if s.rdb == nil {
		return nil
	}

	key := model.ConversationKey(conversationId)
	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		logger.Warnf("tail %s failed: %s", key, err)
		return nil
	}

	out := make([]model.Message, 0, len(raw))
	for _, entry := range raw {
		var msg model.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			logger.Warnf("skipping undecodable entry in %s: %s", key, err)
			continue
		}
		msg.ConversationId = conversationId
		out = append(out, msg)
	}
	return out
}

// EventPublisher fans appended messages out onto the shared notification
// stream. Publication is fire-and-forget: downstream consumer outages
// must never affect the primary persistence path.
type EventPublisher struct {
	rdb *redis.Client
}

func NewEventPublisher(rdb *redis.Client) *EventPublisher {
	return &EventPublisher{rdb: rdb}
}

// Publish appends one fan-out record for msg. Failures are logged and
// swallowed; there is no synchronous retry.
func (p *EventPublisher) Publish(ctx context.Context, conversationId string, msg *model.Message) {
	if p.rdb == nil {
		logger.Warnf("publish skipped for message %s: redis not connected", msg.ID)
		return
	}

	event := model.NewStreamEvent(conversationId, msg)
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: model.EventStreamKey,
		Values: event.Values(),
	}).Err()
	if err != nil {
		logger.Warnf("publish of message %s to %s failed: %s", msg.ID, model.EventStreamKey, err)
	}
}
