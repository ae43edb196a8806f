package core

import "time"

const MnemoVersion = "0.1.0"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversational turn held by the context buffer.
// Roles beyond the three constants are allowed; agents address each other
// by agent id.
type Message struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Role      string            `json:"role"`
	Timestamp time.Time         `json:"timestamp"`
	UserID    string            `json:"user_id,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsSummary bool              `json:"is_summary,omitempty"`
}

// Turn is the generation-format projection of a Message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Summary condenses a batch of messages. Replaces holds the ids of the
// messages it semantically subsumes; the summary is applicable only while
// at least one of those ids is still in the buffer.
type Summary struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Replaces  []string          `json:"replaces"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AsMessage renders the summary as a synthetic system message for readers
// of the buffer.
func (s Summary) AsMessage() Message {
	return Message{
		ID:        s.ID,
		Content:   s.Content,
		Role:      RoleSystem,
		Timestamp: s.Timestamp,
		Metadata:  s.Metadata,
		IsSummary: true,
	}
}

// Memory is a durable fact tied to a conversation. RelatedTo holds weak
// back-references to other memories; deleting a memory cleans those up at
// the storage layer, it never cascades to the referenced records.
type Memory struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	ConversationID string            `json:"conversation_id"`
	CreatedAt      time.Time         `json:"created_at"`
	Tags           []string          `json:"tags,omitempty"`
	Keywords       []string          `json:"keywords,omitempty"`
	RelatedTo      []string          `json:"related_to,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// MemoryUpdate is a partial update payload. Nil slices leave the stored
// lists untouched; non-nil slices replace them wholesale. Metadata is
// shallow-merged into the stored map.
type MemoryUpdate struct {
	Content   *string
	Tags      []string
	Keywords  []string
	RelatedTo []string
	Metadata  map[string]string
}
