package contextbuf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

type cacheEntry struct {
	summary    string
	computedAt time.Time
}

// SummaryCache maps a buffer snapshot (identified by its ordered message
// ids) to a previously generated narrative summary. Reads do not delete
// stale entries; a background sweep running at the TTL interval does.
type SummaryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func NewSummaryCache(ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SummaryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// SnapshotKey derives the cache key for the current buffer contents.
func SnapshotKey(messages []core.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.ID))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *SummaryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	// A stale entry the sweeper has not reached yet is still a miss.
	if time.Since(entry.computedAt) >= c.ttl {
		return "", false
	}
	return entry.summary, true
}

func (c *SummaryCache) Put(key, summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		summary:    summary,
		computedAt: time.Now(),
	}
}

func (c *SummaryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *SummaryCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if time.Since(entry.computedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Start runs the background sweep until the context is cancelled. The
// sweep interval equals the TTL.
func (c *SummaryCache) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Dur("ttl", c.ttl).Msg("starting summary cache sweeper")

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := c.sweep(); removed > 0 {
				logger.Debug().Int("removed", removed).Msg("swept stale summary cache entries")
			}
		}
	}
}

func (c *SummaryCache) Shutdown(ctx context.Context) error {
	return nil
}
