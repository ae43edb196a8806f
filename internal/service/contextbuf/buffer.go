package contextbuf

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

// Enqueuer accepts message batches for background summarization.
type Enqueuer interface {
	Enqueue(batch []core.Message)
}

var _ core.ContextWriter = (*ContextBuffer)(nil)

// ContextBuffer holds the bounded rolling window of conversation turns.
// It owns the eviction policy: when the buffer outgrows its limit, the
// oldest applicable summary replaces the messages it subsumes; with no
// applicable summary the oldest messages are trimmed outright.
type ContextBuffer struct {
	mu        sync.Mutex
	cfg       *config.ContextConfig
	gen       core.Generator
	cache     *SummaryCache
	pipeline  Enqueuer
	messages  []core.Message
	summaries []core.Summary

	// triggered latches the summarization threshold so one crossing
	// enqueues exactly one batch. Reset when the count drops back below.
	triggered bool
}

func NewContextBuffer(cfg *config.ContextConfig, gen core.Generator, cache *SummaryCache, pipeline Enqueuer) *ContextBuffer {
	return &ContextBuffer{
		cfg:      cfg,
		gen:      gen,
		cache:    cache,
		pipeline: pipeline,
	}
}

// New wires a buffer, its summary cache and its summarization pipeline
// together. The cache and pipeline are background services; the buffer is
// not.
func New(cfg *config.ContextConfig, gen core.Generator) (*ContextBuffer, *SummaryCache, *Pipeline) {
	cache := NewSummaryCache(cfg.CacheTimeout)
	buffer := &ContextBuffer{cfg: cfg, gen: gen, cache: cache}
	pipeline := NewPipeline(gen, buffer, cfg.MaxSummaryLength)
	buffer.pipeline = pipeline
	return buffer, cache, pipeline
}

// Append validates and stores a message, then runs the summarization
// check and the size check, in that order.
func (b *ContextBuffer) Append(msg core.Message) (core.Message, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return core.Message{}, core.NewValidationError("content", "must not be empty")
	}
	if msg.Role == "" {
		return core.Message{}, core.NewValidationError("role", "must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.messages = append(b.messages, msg)
	b.checkSummarization()
	b.enforceSize()

	return msg, nil
}

// GetAll returns a defensive copy of the buffer.
func (b *ContextBuffer) GetAll() []core.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// Turns projects the buffer into generation format.
func (b *ContextBuffer) Turns() []core.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	turns := make([]core.Turn, 0, len(b.messages))
	for _, msg := range b.messages {
		turns = append(turns, asTurn(msg))
	}
	return turns
}

func (b *ContextBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// GetSummary returns a narrative summary of the current buffer, from cache
// when a fresh entry exists for this exact snapshot. Generation failures
// degrade to a deterministic description; they are never surfaced.
func (b *ContextBuffer) GetSummary(ctx context.Context) string {
	b.mu.Lock()
	snapshot := b.snapshot()
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return ""
	}

	key := SnapshotKey(snapshot)
	if summary, ok := b.cache.Get(key); ok {
		return summary
	}

	turns := buildSummaryTurns(snapshot, b.cfg.MaxSummaryLength)
	summary, err := b.gen.Generate(ctx, turns, core.GenConstraints{
		MaxOutputChars: b.cfg.MaxSummaryLength,
		Temperature:    0.2,
	})
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("summary generation failed, using fallback")
		return fallbackSummary(snapshot)
	}

	b.cache.Put(key, summary)
	return summary
}

// Clear empties the buffer, optionally keeping system messages. Summaries
// and the summary cache always go.
func (b *ContextBuffer) Clear(keepSystem bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if keepSystem {
		kept := b.messages[:0]
		for _, msg := range b.messages {
			if msg.Role == core.RoleSystem {
				kept = append(kept, msg)
			}
		}
		b.messages = kept
	} else {
		b.messages = nil
	}

	b.summaries = nil
	b.cache.Clear()

	if len(b.messages) < b.cfg.SummarizationThreshold {
		b.triggered = false
	}
}

// PublishSummary adds a pipeline-produced summary to the active list.
// Summaries are never mutated or deleted, only ignored once no longer
// applicable.
func (b *ContextBuffer) PublishSummary(summary core.Summary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaries = append(b.summaries, summary)
}

// Summaries returns a defensive copy of the summary list.
func (b *ContextBuffer) Summaries() []core.Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.Summary, len(b.summaries))
	copy(out, b.summaries)
	return out
}

func (b *ContextBuffer) snapshot() []core.Message {
	out := make([]core.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// checkSummarization enqueues the full current buffer as one batch when
// the threshold is crossed from below.
func (b *ContextBuffer) checkSummarization() {
	if len(b.messages) < b.cfg.SummarizationThreshold {
		b.triggered = false
		return
	}
	if b.triggered {
		return
	}

	b.pipeline.Enqueue(b.snapshot())
	b.triggered = true
}

// enforceSize applies at most one eviction step per mutating call. A
// remaining overflow resolves on the next call.
func (b *ContextBuffer) enforceSize() {
	if len(b.messages) <= b.cfg.MaxContextMessages {
		return
	}
	excess := len(b.messages) - b.cfg.MaxContextMessages

	summary, ok := b.oldestApplicableSummary()
	if !ok {
		// Hard trim: no summary covers anything still in the buffer.
		b.messages = append([]core.Message(nil), b.messages[excess:]...)
		return
	}

	// Size-agnostic swap: the summary replaces exactly the messages it
	// subsumes, whether or not that covers the excess.
	replaced := make(map[string]struct{}, len(summary.Replaces))
	for _, id := range summary.Replaces {
		replaced[id] = struct{}{}
	}

	kept := make([]core.Message, 0, len(b.messages))
	kept = append(kept, summary.AsMessage())
	for _, msg := range b.messages {
		if _, ok := replaced[msg.ID]; !ok {
			kept = append(kept, msg)
		}
	}
	b.messages = kept
}

// oldestApplicableSummary finds the oldest summary by timestamp that
// still replaces at least one message present in the buffer.
func (b *ContextBuffer) oldestApplicableSummary() (core.Summary, bool) {
	present := make(map[string]struct{}, len(b.messages))
	for _, msg := range b.messages {
		present[msg.ID] = struct{}{}
	}

	var (
		oldest core.Summary
		found  bool
	)
	for _, summary := range b.summaries {
		applicable := false
		for _, id := range summary.Replaces {
			if _, ok := present[id]; ok {
				applicable = true
				break
			}
		}
		if !applicable {
			continue
		}
		if !found || summary.Timestamp.Before(oldest.Timestamp) {
			oldest = summary
			found = true
		}
	}
	return oldest, found
}

func fallbackSummary(msgs []core.Message) string {
	first := msgs[0].Timestamp
	last := msgs[len(msgs)-1].Timestamp
	return fmt.Sprintf("Conversation with %d messages between %s and %s.",
		len(msgs), first.Format(time.RFC3339), last.Format(time.RFC3339))
}
