package model

import "strconv"

// StreamEvent is the fan-out record appended to the shared notification
// stream for every stored message. It exists only on the wire; nothing
// in the relay reads it back.
type StreamEvent struct {
	ConversationId string
	MessageId      string
	Role           string
	Type           string
	Content        string
	Ts             int64
	AuthorId       string
}

// NewStreamEvent builds the fan-out record for a just-appended message.
func NewStreamEvent(conversationId string, msg *Message) StreamEvent {
	return StreamEvent{
		ConversationId: conversationId,
		MessageId:      msg.ID,
		Role:           msg.Role,
		Type:           msg.Type,
		Content:        msg.Content,
		Ts:             msg.Ts,
		AuthorId:       msg.AuthorId,
	}
}

// Values renders the event as the flat field map XADD expects.
func (e StreamEvent) Values() map[string]interface{} {
	return map[string]interface{}{
		"conversation_id": e.ConversationId,
		"message_id":      e.MessageId,
		"role":            e.Role,
		"type":            e.Type,
		"content":         e.Content,
		"ts":              strconv.FormatInt(e.Ts, 10),
		"author_id":       e.AuthorId,
	}
}

// StreamEventFromValues parses a raw stream entry back into an event.
// Missing or malformed fields are left zero; consumers treat the record
// as best-effort.
func StreamEventFromValues(values map[string]interface{}) StreamEvent {
	get := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}
	ts, _ := strconv.ParseInt(get("ts"), 10, 64)
	return StreamEvent{
		ConversationId: get("conversation_id"),
		MessageId:      get("message_id"),
		Role:           get("role"),
		Type:           get("type"),
		Content:        get("content"),
		Ts:             ts,
		AuthorId:       get("author_id"),
	}
}
