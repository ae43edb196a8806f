package contextbuf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedGen blocks inside Generate until the test releases it, so tests can
// control exactly when the worker is busy.
type gatedGen struct {
	started chan struct{}
	release chan error
	out     string
}

func newGatedGen(out string) *gatedGen {
	return &gatedGen{
		started: make(chan struct{}, 32),
		release: make(chan error, 32),
		out:     out,
	}
}

func (g *gatedGen) Generate(ctx context.Context, turns []core.Turn, constraints core.GenConstraints) (string, error) {
	g.started <- struct{}{}
	if err := <-g.release; err != nil {
		return "", err
	}
	return g.out, nil
}

type chanSink chan core.Summary

func (s chanSink) PublishSummary(summary core.Summary) {
	s <- summary
}

func batch(ids ...string) []core.Message {
	out := make([]core.Message, len(ids))
	for i, id := range ids {
		out[i] = core.Message{ID: id, Role: core.RoleUser, Content: "content " + id}
	}
	return out
}

func waitStarted(t *testing.T, g *gatedGen) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("generator was never invoked")
	}
}

func recvSummary(t *testing.T, sink chanSink) core.Summary {
	t.Helper()
	select {
	case s := <-sink:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no summary published")
		return core.Summary{}
	}
}

func TestPipeline_PublishesSummary(t *testing.T) {
	gen := newGatedGen("condensed")
	sink := make(chanSink, 8)
	p := NewPipeline(gen, sink, 200)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	p.Enqueue(batch("a", "b", "c"))
	waitStarted(t, gen)
	gen.release <- nil

	summary := recvSummary(t, sink)
	assert.Equal(t, "condensed", summary.Content)
	assert.Equal(t, []string{"a", "b", "c"}, summary.Replaces)
	assert.NotEmpty(t, summary.ID)
	assert.False(t, summary.Timestamp.IsZero())
}

func TestPipeline_DrainsInFIFOOrder(t *testing.T) {
	gen := newGatedGen("s")
	sink := make(chanSink, 8)
	p := NewPipeline(gen, sink, 200)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	p.Enqueue(batch("first"))
	waitStarted(t, gen)
	p.Enqueue(batch("second"))
	p.Enqueue(batch("third"))

	gen.release <- nil
	waitStarted(t, gen)
	gen.release <- nil
	waitStarted(t, gen)
	gen.release <- nil

	assert.Equal(t, []string{"first"}, recvSummary(t, sink).Replaces)
	assert.Equal(t, []string{"second"}, recvSummary(t, sink).Replaces)
	assert.Equal(t, []string{"third"}, recvSummary(t, sink).Replaces)
}

func TestPipeline_FailureAbandonsQueuedBatches(t *testing.T) {
	gen := newGatedGen("s")
	sink := make(chanSink, 8)
	p := NewPipeline(gen, sink, 200)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	p.Enqueue(batch("failing"))
	waitStarted(t, gen)

	// Queued behind the in-flight batch; both must be discarded on failure.
	p.Enqueue(batch("lost1"))
	p.Enqueue(batch("lost2"))
	gen.release <- errors.New("provider down")

	// Wait until the worker has discarded the backlog before enqueueing
	// the batch that should survive.
	require.Eventually(t, func() bool { return len(p.queue) == 0 },
		2*time.Second, 5*time.Millisecond)

	p.Enqueue(batch("survivor"))
	waitStarted(t, gen)
	gen.release <- nil

	summary := recvSummary(t, sink)
	assert.Equal(t, []string{"survivor"}, summary.Replaces)

	select {
	case extra := <-sink:
		t.Fatalf("unexpected extra summary for %v", extra.Replaces)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPipeline_EnqueueDropsOldestWhenFull(t *testing.T) {
	p := NewPipeline(&fakeGen{}, make(chanSink, 1), 200)

	// No worker running; overfill the queue.
	for i := 0; i < defaultQueueSize+3; i++ {
		p.Enqueue(batch(fmt.Sprintf("b%d", i)))
	}

	require.Len(t, p.queue, defaultQueueSize)
	first := <-p.queue
	assert.Equal(t, "b3", first[0].ID, "oldest batches should have been dropped")
}

func TestPipeline_EnqueueIgnoresEmptyBatch(t *testing.T) {
	p := NewPipeline(&fakeGen{}, make(chanSink, 1), 200)
	p.Enqueue(nil)
	p.Enqueue([]core.Message{})
	assert.Empty(t, p.queue)
}

func TestBuildSummaryTurns(t *testing.T) {
	msgs := batch("a", "b")
	turns := buildSummaryTurns(msgs, 300)

	require.Len(t, turns, 4)
	assert.Equal(t, core.RoleSystem, turns[0].Role)
	assert.Contains(t, turns[0].Content, "300")
	assert.Equal(t, "content a", turns[1].Content)
	assert.Equal(t, "content b", turns[2].Content)
	assert.Equal(t, core.RoleUser, turns[3].Role)
}

func TestBudgetTurns_KeepsNewestWithinBudget(t *testing.T) {
	long := strings.Repeat("alpha beta gamma delta ", 50)
	msgs := []core.Message{
		{ID: "old", Role: core.RoleUser, Content: long},
		{ID: "mid", Role: core.RoleUser, Content: long},
		{ID: "new", Role: core.RoleUser, Content: "short"},
	}

	turns := budgetTurns(msgs, 10)

	require.Len(t, turns, 1, "only the newest message fits a tiny budget")
	assert.Equal(t, "short", turns[0].Content)
}
