package model

// Message is one conversational turn as stored in the per-conversation log.
// The JSON field names are the wire format of the Redis list entries and
// must stay stable across producers and consumers.
type Message struct {
	ID             string `json:"id"`
	ConversationId string `json:"conversation_id,omitempty"`
	Role           string `json:"role"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	Ts             int64  `json:"ts"`
	AuthorId       string `json:"author_id,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageTypeText is the only message type the relay produces today.
const MessageTypeText = "text"

// ValidRole reports whether role is one of the three conversational roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ConversationKey is the Redis list key holding a conversation's log.
func ConversationKey(conversationId string) string {
	return "conversation:" + conversationId
}

// EventStreamKey is the shared Redis stream that receives one fan-out
// record per appended message for downstream consumers.
const EventStreamKey = "messages_stream"
