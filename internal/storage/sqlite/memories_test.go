package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*MemoryRepo, *sql.DB) {
	t.Helper()

	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "mnemo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewMemoryRepo(db), db
}

func testMemory(id, conversationID string, createdAt time.Time) core.Memory {
	return core.Memory{
		ID:             id,
		Content:        "content of " + id,
		ConversationID: conversationID,
		CreatedAt:      createdAt,
	}
}

func TestMemoryRepo_AddGetRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	base := testMemory("m1", "conv1", now.Add(-time.Hour))
	require.NoError(t, repo.Add(ctx, base))

	mem := core.Memory{
		ID:             "m2",
		Content:        "the blacksmith forged a crown",
		ConversationID: "conv1",
		CreatedAt:      now,
		Tags:           []string{"blacksmith", "crown"},
		Keywords:       []string{"forge"},
		RelatedTo:      []string{"m1"},
		Metadata:       map[string]string{"source": "scene-12"},
	}
	require.NoError(t, repo.Add(ctx, mem))

	got, err := repo.Get(ctx, "m2")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, mem.Content, got.Content)
	assert.Equal(t, mem.ConversationID, got.ConversationID)
	assert.ElementsMatch(t, mem.Tags, got.Tags)
	assert.ElementsMatch(t, mem.Keywords, got.Keywords)
	assert.Equal(t, []string{"m1"}, got.RelatedTo)
	assert.Equal(t, mem.Metadata, got.Metadata)
	assert.WithinDuration(t, mem.CreatedAt, got.CreatedAt, time.Second)
}

func TestMemoryRepo_GetMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	got, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRepo_Search_TagANDSemantics(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	both := testMemory("both", "conv1", now)
	both.Tags = []string{"x", "y"}
	onlyX := testMemory("only-x", "conv1", now)
	onlyX.Tags = []string{"x"}
	onlyY := testMemory("only-y", "conv1", now)
	onlyY.Tags = []string{"y"}
	require.NoError(t, repo.Add(ctx, both))
	require.NoError(t, repo.Add(ctx, onlyX))
	require.NoError(t, repo.Add(ctx, onlyY))

	got, err := repo.Search(ctx, core.MemorySearchFilter{Tags: []string{"x", "y"}})
	require.NoError(t, err)

	require.Len(t, got, 1, "only the memory carrying both tags matches")
	assert.Equal(t, "both", got[0].ID)

	got, err = repo.Search(ctx, core.MemorySearchFilter{Tags: []string{"x", "x"}})
	require.NoError(t, err)

	require.Len(t, got, 2, "a repeated tag counts once")
	for _, mem := range got {
		assert.Contains(t, []string{"both", "only-x"}, mem.ID)
	}
}

func TestMemoryRepo_Search_ConversationFilterAndLimit(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Add(ctx, testMemory("a1", "conv-a", now.Add(-3*time.Minute))))
	require.NoError(t, repo.Add(ctx, testMemory("a2", "conv-a", now.Add(-2*time.Minute))))
	require.NoError(t, repo.Add(ctx, testMemory("a3", "conv-a", now.Add(-time.Minute))))
	require.NoError(t, repo.Add(ctx, testMemory("b1", "conv-b", now)))

	got, err := repo.Search(ctx, core.MemorySearchFilter{ConversationID: "conv-a", Limit: 2})
	require.NoError(t, err)

	require.Len(t, got, 2)
	// Newest first; the limit caps candidates before any ranking upstream.
	assert.Equal(t, "a3", got[0].ID)
	assert.Equal(t, "a2", got[1].ID)
}

func TestMemoryRepo_SearchByKeyword(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	older := testMemory("older", "conv1", now.Add(-time.Hour))
	older.Keywords = []string{"forge"}
	newer := testMemory("newer", "conv1", now)
	newer.Keywords = []string{"forge"}
	partial := testMemory("partial", "conv1", now)
	partial.Keywords = []string{"forgery"}
	other := testMemory("other", "conv2", now)
	other.Keywords = []string{"forge"}
	require.NoError(t, repo.Add(ctx, older))
	require.NoError(t, repo.Add(ctx, newer))
	require.NoError(t, repo.Add(ctx, partial))
	require.NoError(t, repo.Add(ctx, other))

	got, err := repo.SearchByKeyword(ctx, "forge", "conv1", 10)
	require.NoError(t, err)

	require.Len(t, got, 2, "exact keyword match only, scoped to the conversation")
	assert.Equal(t, "newer", got[0].ID, "newest first")
	assert.Equal(t, "older", got[1].ID)
}

func TestMemoryRepo_Update(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mem := testMemory("m1", "conv1", now)
	mem.Tags = []string{"old-tag"}
	mem.Keywords = []string{"old-kw"}
	mem.Metadata = map[string]string{"keep": "yes", "replace": "old"}
	require.NoError(t, repo.Add(ctx, mem))

	newContent := "rewritten"
	got, err := repo.Update(ctx, "m1", core.MemoryUpdate{
		Content:  &newContent,
		Tags:     []string{"new-tag-1", "new-tag-2"},
		Metadata: map[string]string{"replace": "new", "extra": "added"},
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "rewritten", got.Content)
	assert.ElementsMatch(t, []string{"new-tag-1", "new-tag-2"}, got.Tags, "tags replaced wholesale")
	assert.Equal(t, []string{"old-kw"}, got.Keywords, "nil keyword list leaves keywords untouched")
	assert.Equal(t, map[string]string{
		"keep":    "yes",
		"replace": "new",
		"extra":   "added",
	}, got.Metadata, "metadata shallow-merged")
}

func TestMemoryRepo_UpdateMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	got, err := repo.Update(context.Background(), "missing", core.MemoryUpdate{Tags: []string{"t"}})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRepo_DeleteCascades(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	target := testMemory("target", "conv1", now)
	target.Tags = []string{"t1", "t2"}
	target.Keywords = []string{"k1"}
	require.NoError(t, repo.Add(ctx, target))

	referrer := testMemory("referrer", "conv1", now)
	referrer.RelatedTo = []string{"target"}
	require.NoError(t, repo.Add(ctx, referrer))

	deleted, err := repo.Delete(ctx, "target")
	require.NoError(t, err)
	assert.True(t, deleted)

	for _, table := range []string{"memory_tags", "memory_keywords"} {
		var count int
		require.NoError(t, db.QueryRow(
			`SELECT COUNT(*) FROM `+table+` WHERE memory_id = ?`, "target").Scan(&count))
		assert.Zero(t, count, "orphaned %s rows", table)
	}

	// The back-reference from the surviving memory is cleaned up too.
	got, err := repo.Get(ctx, "referrer")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.RelatedTo)

	deleted, err = repo.Delete(ctx, "target")
	require.NoError(t, err)
	assert.False(t, deleted, "second delete finds nothing")
}

func TestMemoryRepo_Prune(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	require.NoError(t, repo.Add(ctx, testMemory("expired-a", "conv-a", cutoff.Add(-time.Hour))))
	require.NoError(t, repo.Add(ctx, testMemory("at-cutoff-a", "conv-a", cutoff)))
	require.NoError(t, repo.Add(ctx, testMemory("fresh-a", "conv-a", cutoff.Add(time.Hour))))
	require.NoError(t, repo.Add(ctx, testMemory("expired-b", "conv-b", cutoff.Add(-time.Hour))))

	deleted, err := repo.Prune(ctx, "conv-a", cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted, "expired and at-cutoff rows go; the cutoff is inclusive")

	fresh, err := repo.Get(ctx, "fresh-a")
	require.NoError(t, err)
	assert.NotNil(t, fresh, "fresh memory survives")

	otherConv, err := repo.Get(ctx, "expired-b")
	require.NoError(t, err)
	assert.NotNil(t, otherConv, "prune never crosses conversations")

	deleted, err = repo.Prune(ctx, "", cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted, "unscoped prune sweeps the remaining conversation")
}

func TestMemoryRepo_CountAndDeleteOldest(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, id := range []string{"oldest", "middle", "newest"} {
		require.NoError(t, repo.Add(ctx,
			testMemory(id, "conv1", now.Add(time.Duration(i)*time.Minute))))
	}

	count, err := repo.CountByConversation(ctx, "conv1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	deleted, err := repo.DeleteOldest(ctx, "conv1", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	got, err := repo.Get(ctx, "newest")
	require.NoError(t, err)
	assert.NotNil(t, got)

	gone, err := repo.Get(ctx, "oldest")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
