package memory

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
)

const recencyWindow = 24 * time.Hour

// Relevance weights. Tags are the strongest signal since they are curated,
// keywords are extracted, and a raw substring hit is the weakest.
const (
	contentWeight = 1.0
	keywordWeight = 2.0
	tagWeight     = 3.0
	recencyBonus  = 0.5
)

// Score computes the relevance of a memory against a set of query terms.
// It never errors; with no terms only the recency bonus can apply.
func Score(mem core.Memory, terms []string, now time.Time) float64 {
	var score float64
	content := strings.ToLower(mem.Content)

	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(content, strings.ToLower(term)) {
			score += contentWeight
		}
		if slices.Contains(mem.Keywords, term) {
			score += keywordWeight
		}
		if slices.Contains(mem.Tags, term) {
			score += tagWeight
		}
	}

	if age := now.Sub(mem.CreatedAt); age < recencyWindow {
		score += recencyBonus
	}

	return score
}

// Rank sorts memories by descending relevance. The sort is stable: ties
// keep their input order, there is no secondary key.
func Rank(memories []core.Memory, terms []string, now time.Time) {
	type scored struct {
		mem   core.Memory
		score float64
	}

	items := make([]scored, len(memories))
	for i, mem := range memories {
		items[i] = scored{mem: mem, score: Score(mem, terms, now)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	for i, item := range items {
		memories[i] = item.mem
	}
}
