package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

const defaultMaxCount = 10

var _ core.MemoryWriter = (*Service)(nil)

// Service fronts the memory repository for the agent layer: it validates
// writes, ranks search results and keeps per-conversation volume inside the
// configured cap.
type Service struct {
	cfg  *config.MemoryConfig
	repo core.MemoryRepository
}

func NewService(cfg *config.MemoryConfig, repo core.MemoryRepository) *Service {
	return &Service{
		cfg:  cfg,
		repo: repo,
	}
}

// SearchRequest describes a memory lookup. Tags use AND semantics; Query,
// when present, re-ranks the candidate set by relevance.
type SearchRequest struct {
	Query          string
	ConversationID string
	Tags           []string
	MaxCount       int
}

func (s *Service) Remember(ctx context.Context, mem core.Memory) (core.Memory, error) {
	if strings.TrimSpace(mem.Content) == "" {
		return core.Memory{}, core.NewValidationError("content", "must not be empty")
	}
	if mem.ConversationID == "" {
		return core.Memory{}, core.NewValidationError("conversation_id", "must not be empty")
	}

	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	// Timestamps are persisted as strings; a stray offset would misorder
	// them against the UTC values written everywhere else.
	mem.CreatedAt = mem.CreatedAt.UTC()

	if err := s.repo.Add(ctx, mem); err != nil {
		return core.Memory{}, err
	}

	s.enforceCap(ctx, mem.ConversationID)

	return mem, nil
}

func (s *Service) Get(ctx context.Context, id string) (*core.Memory, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Search(ctx context.Context, req SearchRequest) ([]core.Memory, error) {
	maxCount := req.MaxCount
	if maxCount <= 0 {
		maxCount = defaultMaxCount
	}

	memories, err := s.repo.Search(ctx, core.MemorySearchFilter{
		ConversationID: req.ConversationID,
		Tags:           req.Tags,
		Limit:          maxCount,
	})
	if err != nil {
		return nil, err
	}

	if req.Query != "" {
		Rank(memories, strings.Fields(req.Query), time.Now())
	}

	if len(memories) > maxCount {
		memories = memories[:maxCount]
	}
	return memories, nil
}

func (s *Service) SearchByKeyword(ctx context.Context, keyword, conversationID string, maxCount int) ([]core.Memory, error) {
	if maxCount <= 0 {
		maxCount = defaultMaxCount
	}
	return s.repo.SearchByKeyword(ctx, keyword, conversationID, maxCount)
}

func (s *Service) Update(ctx context.Context, id string, upd core.MemoryUpdate) (*core.Memory, error) {
	return s.repo.Update(ctx, id, upd)
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

// Prune drops memories older than the retention window, optionally scoped
// to one conversation.
func (s *Service) Prune(ctx context.Context, conversationID string) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.MemoryRetention)
	return s.repo.Prune(ctx, conversationID, cutoff)
}

// enforceCap trims the oldest memories of a conversation above the
// configured cap. Failures here are housekeeping, not write failures.
func (s *Service) enforceCap(ctx context.Context, conversationID string) {
	logger := log.FromCtx(ctx)

	count, err := s.repo.CountByConversation(ctx, conversationID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to count memories for cap check")
		return
	}
	if count <= s.cfg.MaxMemoriesPerConversation {
		return
	}

	deleted, err := s.repo.DeleteOldest(ctx, conversationID, count-s.cfg.MaxMemoriesPerConversation)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to trim memories over cap")
		return
	}
	logger.Info().
		Int64("deleted", deleted).
		Str("conversation_id", conversationID).
		Msg("trimmed memories over conversation cap")
}
