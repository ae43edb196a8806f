package core

import (
	"context"
	"time"
)

// MemorySearchFilter narrows a memory search before ranking. Tags are
// AND-semantics: a memory must carry every requested tag. Limit caps the
// candidate set at the SQL level.
type MemorySearchFilter struct {
	ConversationID string
	Tags           []string
	Limit          int
}

type MemoryRepository interface {
	Add(ctx context.Context, mem Memory) error
	Get(ctx context.Context, id string) (*Memory, error)
	Search(ctx context.Context, filter MemorySearchFilter) ([]Memory, error)
	SearchByKeyword(ctx context.Context, keyword, conversationID string, limit int) ([]Memory, error)
	Update(ctx context.Context, id string, upd MemoryUpdate) (*Memory, error)
	Delete(ctx context.Context, id string) (bool, error)
	// Prune deletes memories created at or before cutoff, optionally scoped
	// to one conversation. Returns the number of deleted rows.
	Prune(ctx context.Context, conversationID string, cutoff time.Time) (int64, error)
	CountByConversation(ctx context.Context, conversationID string) (int, error)
	// DeleteOldest removes the n oldest memories of a conversation.
	DeleteOldest(ctx context.Context, conversationID string, n int) (int64, error)
}
