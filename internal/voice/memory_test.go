package voice

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cantina-works/cantinaos/pkg/provider/llm"
)

func TestMemory_AppendAndOrder(t *testing.T) {
	m := NewMemory("system", 1000)
	m.Append(llm.Message{Role: "user", Content: "hello"})
	m.Append(llm.Message{Role: "assistant", Content: "hi there"})

	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi there" {
		t.Errorf("order wrong: %+v", msgs)
	}
}

func TestMemory_FIFOEviction(t *testing.T) {
	// Budget of ~13 tokens: each 5-word message estimates to 6 tokens, so
	// the window holds two messages at most.
	m := NewMemory("", 13)
	for i := 0; i < 5; i++ {
		m.Append(llm.Message{Role: "user", Content: fmt.Sprintf("message %d two three four", i)})
	}

	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2 (budget eviction)", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "message 3") {
		t.Errorf("oldest kept message = %q, want message 3 (FIFO eviction)", msgs[0].Content)
	}
	if !strings.Contains(msgs[1].Content, "message 4") {
		t.Errorf("newest message = %q, want message 4", msgs[1].Content)
	}
}

func TestMemory_NewestNeverEvicted(t *testing.T) {
	m := NewMemory("", 1)
	m.Append(llm.Message{Role: "user", Content: strings.Repeat("word ", 100)})
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1 (newest survives even over budget)", m.Len())
	}
}

func TestMemory_Reset(t *testing.T) {
	m := NewMemory("system", 0)
	m.Append(llm.Message{Role: "user", Content: "hello"})
	m.Reset()
	if m.Len() != 0 {
		t.Errorf("len after reset = %d, want 0", m.Len())
	}
	if m.SystemPrompt() != "system" {
		t.Errorf("system prompt lost on reset: %q", m.SystemPrompt())
	}
}

func TestMemory_TokenEstimate(t *testing.T) {
	m := NewMemory("", 0)
	m.Append(llm.Message{Role: "user", Content: "one two three four"}) // 4 words
	got := m.EstimateTokens()
	if got != 5 { // 4 * 1.3 = 5.2, truncated
		t.Errorf("estimate = %d, want 5", got)
	}
}
