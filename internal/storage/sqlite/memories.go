package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

type MemoryRepo struct {
	db *sql.DB
}

var _ core.MemoryRepository = (*MemoryRepo)(nil)

func NewMemoryRepo(db *sql.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

func (r *MemoryRepo) Add(ctx context.Context, mem core.Memory) error {
	metaJSON, err := marshalMetadata(mem.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, content, conversation_id, created_at, metadata) VALUES (?, ?, ?, ?, ?)`,
		mem.ID, mem.Content, mem.ConversationID, mem.CreatedAt, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	if err := insertChildren(ctx, tx, mem.ID, mem.Tags, mem.Keywords, mem.RelatedTo); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (*core.Memory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, content, conversation_id, created_at, metadata FROM memories WHERE id = ?`, id)

	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}

	if err := r.loadChildren(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

func (r *MemoryRepo) Search(ctx context.Context, filter core.MemorySearchFilter) ([]core.Memory, error) {
	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`SELECT m.id, m.content, m.conversation_id, m.created_at, m.metadata FROM memories m`)

	// A repeated tag would make the COUNT(DISTINCT) check unsatisfiable.
	tags := dedupe(filter.Tags)

	if len(tags) > 0 {
		sb.WriteString(` JOIN memory_tags t ON t.memory_id = m.id AND t.tag IN (` + placeholders(len(tags)) + `)`)
		for _, tag := range tags {
			args = append(args, tag)
		}
	}

	if filter.ConversationID != "" {
		sb.WriteString(` WHERE m.conversation_id = ?`)
		args = append(args, filter.ConversationID)
	}

	if len(tags) > 0 {
		// AND semantics: the memory must carry every requested tag.
		sb.WriteString(` GROUP BY m.id HAVING COUNT(DISTINCT t.tag) = ?`)
		args = append(args, len(tags))
	}

	// LIMIT is applied here, before any relevance ranking upstream. Ranking
	// reorders within this candidate set only.
	sb.WriteString(` ORDER BY m.created_at DESC`)
	if filter.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	memories, err := r.queryMemories(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}

	log.FromCtx(ctx).Debug().Int("count", len(memories)).Msg("memory search candidates")
	return memories, nil
}

func (r *MemoryRepo) SearchByKeyword(ctx context.Context, keyword, conversationID string, limit int) ([]core.Memory, error) {
	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`
		SELECT m.id, m.content, m.conversation_id, m.created_at, m.metadata
		FROM memories m
		JOIN memory_keywords k ON k.memory_id = m.id
		WHERE k.keyword = ?`)
	args = append(args, keyword)

	if conversationID != "" {
		sb.WriteString(` AND m.conversation_id = ?`)
		args = append(args, conversationID)
	}

	sb.WriteString(` ORDER BY m.created_at DESC`)
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	memories, err := r.queryMemories(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	return memories, nil
}

func (r *MemoryRepo) Update(ctx context.Context, id string, upd core.MemoryUpdate) (*core.Memory, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var metaJSON string
	err = tx.QueryRowContext(ctx, `SELECT metadata FROM memories WHERE id = ?`, id).Scan(&metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory for update: %w", err)
	}

	if upd.Content != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET content = ? WHERE id = ?`, *upd.Content, id); err != nil {
			return nil, fmt.Errorf("failed to update content: %w", err)
		}
	}

	if upd.Metadata != nil {
		merged, err := mergeMetadata(metaJSON, upd.Metadata)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET metadata = ? WHERE id = ?`, merged, id); err != nil {
			return nil, fmt.Errorf("failed to update metadata: %w", err)
		}
	}

	// Non-nil lists replace the stored set wholesale.
	if upd.Tags != nil {
		if err := replaceChildren(ctx, tx, "memory_tags", "tag", id, upd.Tags); err != nil {
			return nil, err
		}
	}
	if upd.Keywords != nil {
		if err := replaceChildren(ctx, tx, "memory_keywords", "keyword", id, upd.Keywords); err != nil {
			return nil, err
		}
	}
	if upd.RelatedTo != nil {
		if err := replaceChildren(ctx, tx, "memory_relationships", "related_memory_id", id, upd.RelatedTo); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.Get(ctx, id)
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Prune deletes memories created at or before cutoff, optionally scoped
// to a single conversation.
func (r *MemoryRepo) Prune(ctx context.Context, conversationID string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM memories WHERE created_at <= ?`
	args := []any{cutoff}

	if conversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, conversationID)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune failed: %w", err)
	}
	return res.RowsAffected()
}

func (r *MemoryRepo) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return count, nil
}

func (r *MemoryRepo) DeleteOldest(ctx context.Context, conversationID string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM memories WHERE id IN (
			SELECT id FROM memories
			WHERE conversation_id = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		)`, conversationID, n)
	if err != nil {
		return 0, fmt.Errorf("failed to delete oldest memories: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*core.Memory, error) {
	var (
		mem      core.Memory
		metaJSON sql.NullString
	)
	if err := row.Scan(&mem.ID, &mem.Content, &mem.ConversationID, &mem.CreatedAt, &metaJSON); err != nil {
		return nil, err
	}

	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "{}" {
		if err := json.Unmarshal([]byte(metaJSON.String), &mem.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &mem, nil
}

func (r *MemoryRepo) queryMemories(ctx context.Context, query string, args ...any) ([]core.Memory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []core.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, *mem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range memories {
		if err := r.loadChildren(ctx, &memories[i]); err != nil {
			return nil, err
		}
	}
	return memories, nil
}

func (r *MemoryRepo) loadChildren(ctx context.Context, mem *core.Memory) error {
	var err error
	if mem.Tags, err = r.childValues(ctx, "memory_tags", "tag", mem.ID); err != nil {
		return err
	}
	if mem.Keywords, err = r.childValues(ctx, "memory_keywords", "keyword", mem.ID); err != nil {
		return err
	}
	if mem.RelatedTo, err = r.childValues(ctx, "memory_relationships", "related_memory_id", mem.ID); err != nil {
		return err
	}
	return nil
}

func (r *MemoryRepo) childValues(ctx context.Context, table, column, memoryID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE memory_id = ? ORDER BY %s`, column, table, column)
	rows, err := r.db.QueryContext(ctx, query, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func insertChildren(ctx context.Context, tx *sql.Tx, memoryID string, tags, keywords, relatedTo []string) error {
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_tags (memory_id, tag) VALUES (?, ?)`, memoryID, tag); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	for _, kw := range keywords {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_keywords (memory_id, keyword) VALUES (?, ?)`, memoryID, kw); err != nil {
			return fmt.Errorf("failed to insert keyword: %w", err)
		}
	}
	for _, rel := range relatedTo {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_relationships (memory_id, related_memory_id) VALUES (?, ?)`, memoryID, rel); err != nil {
			return fmt.Errorf("failed to insert relationship: %w", err)
		}
	}
	return nil
}

func replaceChildren(ctx context.Context, tx *sql.Tx, table, column, memoryID string, values []string) error {
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE memory_id = ?`, table), memoryID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for _, v := range values {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR IGNORE INTO %s (memory_id, %s) VALUES (?, ?)`, table, column), memoryID, v); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

func marshalMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func mergeMetadata(currentJSON string, updates map[string]string) (string, error) {
	current := make(map[string]string)
	if currentJSON != "" && currentJSON != "{}" {
		if err := json.Unmarshal([]byte(currentJSON), &current); err != nil {
			return "", fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	for k, v := range updates {
		current[k] = v
	}
	return marshalMetadata(current)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
