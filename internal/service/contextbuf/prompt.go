package contextbuf

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sandevgo/mnemo/internal/core"
)

// promptTokenBudget caps how much conversation is sent to the generator in
// one summarization call. Oldest turns are dropped first when over budget.
const promptTokenBudget = 3000

var (
	tkOnce sync.Once
	tk     *tiktoken.Tiktoken
)

func getTokenizer() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		t, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			panic("failed to load tiktoken: " + err.Error())
		}
		tk = t
	})
	return tk
}

func summaryInstruction(maxChars int) string {
	return fmt.Sprintf(
		"You summarize conversations. Produce a single concise narrative summary of the conversation, at most %d characters. Preserve names, decisions and open threads.",
		maxChars,
	)
}

// buildSummaryTurns renders a message batch as a generation request: a
// system instruction capping output length, the token-budgeted batch, and
// a closing user instruction.
func buildSummaryTurns(msgs []core.Message, maxChars int) []core.Turn {
	turns := make([]core.Turn, 0, len(msgs)+2)
	turns = append(turns, core.Turn{Role: core.RoleSystem, Content: summaryInstruction(maxChars)})
	turns = append(turns, budgetTurns(msgs, promptTokenBudget)...)
	turns = append(turns, core.Turn{Role: core.RoleUser, Content: "Summarize the conversation above."})
	return turns
}

func budgetTurns(msgs []core.Message, budget int) []core.Turn {
	tokenizer := getTokenizer()

	// Walk newest to oldest so the most recent turns survive the budget.
	start := len(msgs)
	total := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		total += len(tokenizer.Encode(msgs[i].Content, nil, nil))
		if total > budget && start < len(msgs) {
			break
		}
		start = i
	}

	turns := make([]core.Turn, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		turns = append(turns, asTurn(msg))
	}
	return turns
}

// asTurn projects a message into generation format. Agent-id roles are not
// part of the chat-completions role set, so they become assistant turns
// with the agent id folded into the content.
func asTurn(msg core.Message) core.Turn {
	switch msg.Role {
	case core.RoleUser, core.RoleAssistant, core.RoleSystem:
		return core.Turn{Role: msg.Role, Content: msg.Content}
	default:
		return core.Turn{
			Role:    core.RoleAssistant,
			Content: fmt.Sprintf("%s: %s", msg.Role, msg.Content),
		}
	}
}
