package voice

import (
	"strings"
	"sync"

	"github.com/cantina-works/cantinaos/pkg/provider/llm"
)

// defaultTokenBudget caps the conversation window when no budget is
// configured.
const defaultTokenBudget = 3000

// tokensPerWord is the cheap token estimator applied to message content.
const tokensPerWord = 1.3

// Memory is the bounded conversation history for one LLM turn stream. It is
// owned exclusively by the LLM service; the mutex guards the emit-side reads
// done by tests and status reporting.
//
// Eviction is FIFO: when the estimated token total exceeds the budget, the
// oldest messages are dropped until the window fits. The system prompt is
// held separately and never evicted.
type Memory struct {
	mu           sync.Mutex
	systemPrompt string
	budget       int
	messages     []llm.Message
}

// NewMemory creates a conversation memory with the given system prompt and
// approximate token budget. A budget of zero or less selects the default.
func NewMemory(systemPrompt string, budget int) *Memory {
	if budget <= 0 {
		budget = defaultTokenBudget
	}
	return &Memory{systemPrompt: systemPrompt, budget: budget}
}

// Append adds a message to the history and evicts oldest-first until the
// estimated total fits the budget. The newest message is never evicted even
// when it alone exceeds the budget.
func (m *Memory) Append(msg llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	for len(m.messages) > 1 && m.estimateLocked() > m.budget {
		m.messages = m.messages[1:]
	}
}

// Reset clears the history. The system prompt is retained.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// Messages returns a copy of the current window in order.
func (m *Memory) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// SystemPrompt returns the fixed system prompt.
func (m *Memory) SystemPrompt() string {
	return m.systemPrompt
}

// Len returns the number of messages in the window.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// EstimateTokens reports the approximate token total of the window.
func (m *Memory) EstimateTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateLocked()
}

func (m *Memory) estimateLocked() int {
	total := 0.0
	for _, msg := range m.messages {
		total += float64(len(strings.Fields(msg.Content))) * tokensPerWord
	}
	return int(total)
}
