package contextbuf

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

const defaultQueueSize = 16

// SummarySink receives summaries produced by the pipeline. ContextBuffer
// implements it.
type SummarySink interface {
	PublishSummary(summary core.Summary)
}

// Pipeline drains queued message batches through the generator one at a
// time. A single consumer goroutine is the single-flight guarantee: two
// drains can never overlap. On a generation failure everything still
// queued is discarded; callers lose narrative continuity, never the raw
// buffer.
type Pipeline struct {
	gen              core.Generator
	sink             SummarySink
	maxSummaryLength int
	queue            chan []core.Message
}

func NewPipeline(gen core.Generator, sink SummarySink, maxSummaryLength int) *Pipeline {
	return &Pipeline{
		gen:              gen,
		sink:             sink,
		maxSummaryLength: maxSummaryLength,
		queue:            make(chan []core.Message, defaultQueueSize),
	}
}

// Enqueue never blocks the caller. When the queue is full the oldest
// pending batch is dropped to make room; summarization is best-effort.
func (p *Pipeline) Enqueue(batch []core.Message) {
	if len(batch) == 0 {
		return
	}
	for {
		select {
		case p.queue <- batch:
			return
		default:
			select {
			case <-p.queue:
			default:
			}
		}
	}
}

func (p *Pipeline) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("starting summarization pipeline")

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-p.queue:
			if err := p.summarize(ctx, batch); err != nil {
				logger.Error().Err(err).Msg("summarization failed, abandoning queued batches")
				p.discardPending()
			}
		}
	}
}

func (p *Pipeline) Shutdown(ctx context.Context) error {
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, batch []core.Message) error {
	turns := buildSummaryTurns(batch, p.maxSummaryLength)

	content, err := p.gen.Generate(ctx, turns, core.GenConstraints{
		MaxOutputChars: p.maxSummaryLength,
		Temperature:    0.2,
	})
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}

	replaces := make([]string, len(batch))
	for i, msg := range batch {
		replaces[i] = msg.ID
	}

	p.sink.PublishSummary(core.Summary{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: time.Now(),
		Replaces:  replaces,
	})

	log.FromCtx(ctx).Debug().Int("replaced", len(replaces)).Msg("published summary")
	return nil
}

func (p *Pipeline) discardPending() {
	for {
		select {
		case <-p.queue:
		default:
			return
		}
	}
}
