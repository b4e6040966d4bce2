package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/provider/llm"
)

// LLMConfig holds the turn settings for the LLM service.
type LLMConfig struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	TokenBudget  int
	SystemPrompt string

	// ResetOnTurn clears conversation memory at the start of every
	// utterance so each turn is fresh. Default true.
	ResetOnTurn bool

	// RequestsPerMinute caps turns in a sliding 60 s window. Zero or less
	// disables the cap.
	RequestsPerMinute int

	// MaxAttempts bounds stream-open retries on transient upstream
	// errors. Zero or less means a single attempt.
	MaxAttempts int
}

// DefaultLLMConfig returns the standard turn settings.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Temperature:       0.8,
		MaxTokens:         512,
		TokenBudget:       defaultTokenBudget,
		SystemPrompt:      defaultSystemPrompt,
		ResetOnTurn:       true,
		RequestsPerMinute: 20,
		MaxAttempts:       3,
	}
}

const defaultSystemPrompt = "You are DJ R3X, the droid DJ at Oga's Cantina. " +
	"Keep replies short, upbeat, and in character. Use the provided tools " +
	"to control music and lights when asked."

// retryBaseDelay is the first backoff step when opening a stream fails.
const retryBaseDelay = 500 * time.Millisecond

// DefaultTools returns the tool schemas offered to the model on every turn.
func DefaultTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "play_music",
			Description: "Play a track from the cantina music library by name or number.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"track": map[string]any{"type": "string"},
				},
				"required": []any{"track"},
			},
		},
		{
			Name:        "stop_music",
			Description: "Stop the currently playing music.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "set_eye_color",
			Description: "Change the DJ's eye lights.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"color":     map[string]any{"type": "string"},
					"pattern":   map[string]any{"type": "string"},
					"intensity": map[string]any{"type": "number"},
				},
				"required": []any{"color"},
			},
		},
	}
}

// LLM runs a reasoning turn for every completed capture: it appends the
// transcript to conversation memory, streams a completion with the tool
// schemas attached, republishes text chunks, parses tool-call fragments into
// validated intents, and hands the final text to speech synthesis.
//
// Turns are serialized on the subscription's dispatch goroutine; a capture
// finishing mid-turn queues behind the running one.
type LLM struct {
	*service.Base

	provider llm.Provider
	cfg      LLMConfig
	memory   *Memory
	limiter  *rateLimiter
	tools    []llm.ToolDefinition
}

// NewLLM creates the reasoning service on top of the given provider.
func NewLLM(b *bus.Bus, log *slog.Logger, provider llm.Provider, cfg LLMConfig) *LLM {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &LLM{
		Base:     service.NewBase("llm", b, log),
		provider: provider,
		cfg:      cfg,
		memory:   NewMemory(cfg.SystemPrompt, cfg.TokenBudget),
		limiter:  newRateLimiter(cfg.RequestsPerMinute),
		tools:    DefaultTools(),
	}
}

// Memory exposes the conversation window, for status and tests.
func (l *LLM) Memory() *Memory {
	return l.memory
}

// Start subscribes to completed capture sessions.
func (l *LLM) Start(ctx context.Context) error {
	return l.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		l.Subscribe(events.VoiceListeningStopped, l.handleStopped)
		l.Subscribe(events.ConversationResetRequested, l.handleReset)
		return nil
	}})
}

// Stop tears down subscriptions via the base.
func (l *LLM) Stop(ctx context.Context) error {
	return l.StopWithHooks(ctx, service.Hooks{})
}

func (l *LLM) handleStopped(ctx context.Context, evt bus.Event) {
	stopped, ok := evt.Payload.(events.VoiceListening)
	if !ok {
		return
	}
	transcript := strings.TrimSpace(stopped.Transcript)
	if transcript == "" {
		l.Log().Debug("empty transcript, no turn opened")
		return
	}

	conversationID := stopped.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	start := time.Now()
	l.runTurn(ctx, conversationID, transcript)
	l.Emit(events.PerformanceMetric, events.MetricSample{
		Base:      events.NewTurnBase(conversationID),
		Operation: "llm_turn",
		Seconds:   time.Since(start).Seconds(),
	})
}

// handleReset drops the conversation window so the next turn starts fresh.
// The mode manager answers the same request with the IDLE transition.
func (l *LLM) handleReset(_ context.Context, _ bus.Event) {
	l.memory.Reset()
	l.Log().Info("conversation memory cleared")
}

func (l *LLM) runTurn(ctx context.Context, conversationID, transcript string) {
	defer func() {
		l.Emit(events.LLMProcessingEnded, events.VoiceStatus{Base: events.NewTurnBase(conversationID)})
		l.Emit(events.VoiceProcessingComplete, events.VoiceStatus{Base: events.NewTurnBase(conversationID)})
	}()

	if !l.limiter.Allow() {
		l.Log().Warn("turn rejected, request rate cap reached", "cap_per_minute", l.cfg.RequestsPerMinute)
		l.failTurn(conversationID, "request rate limit exceeded")
		return
	}

	if l.cfg.ResetOnTurn {
		l.memory.Reset()
	}
	l.memory.Append(llm.Message{Role: "user", Content: transcript})

	stream, err := l.openStream(ctx)
	if err != nil {
		l.Log().Error("completion stream failed", "err", err)
		l.failTurn(conversationID, "completion failed: "+err.Error())
		return
	}

	acc := newToolCallAccumulator(l.tools)
	var full strings.Builder
	var completed []CompletedCall

	for chunk := range stream {
		if chunk.FinishReason == "error" {
			l.Log().Error("completion stream aborted upstream")
			l.failTurn(conversationID, "completion aborted by provider")
			return
		}

		if chunk.Text != "" {
			full.WriteString(chunk.Text)
			l.Emit(events.LLMResponse, events.ModelResponse{
				Base:       events.NewTurnBase(conversationID),
				Text:       chunk.Text,
				IsComplete: false,
			})
		}

		for _, delta := range chunk.ToolCalls {
			call, done, err := acc.Add(delta)
			if err != nil {
				l.Log().Warn("tool call rejected", "err", err)
				continue
			}
			if done {
				completed = append(completed, call)
				l.emitIntent(conversationID, transcript, call)
			}
		}
	}

	// Models sometimes end a call without a parseable terminator; the
	// sweep gives every unfinished accumulation one last chance.
	swept, errs := acc.Sweep()
	for _, err := range errs {
		l.Log().Warn("tool call rejected at end of stream", "err", err)
	}
	for _, call := range swept {
		completed = append(completed, call)
		l.emitIntent(conversationID, transcript, call)
	}

	text := full.String()
	l.memory.Append(llm.Message{Role: "assistant", Content: text})

	l.Emit(events.LLMResponse, events.ModelResponse{
		Base:       events.NewTurnBase(conversationID),
		Text:       text,
		IsComplete: true,
		ToolCalls:  toEventCalls(completed),
	})
	if strings.TrimSpace(text) != "" {
		l.Emit(events.TTSRequest, events.SynthesisRequest{
			Base: events.NewTurnBase(conversationID),
			Text: text,
		})
	}
	l.Log().Info("turn complete", "chars", len(text), "tool_calls", len(completed))
}

// openStream starts the completion, retrying transient failures with
// jittered exponential backoff.
func (l *LLM) openStream(ctx context.Context) (<-chan llm.Chunk, error) {
	req := llm.CompletionRequest{
		Messages:     l.memory.Messages(),
		Tools:        l.tools,
		Temperature:  l.cfg.Temperature,
		MaxTokens:    l.cfg.MaxTokens,
		SystemPrompt: l.memory.SystemPrompt(),
	}

	attempts := l.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := retryBaseDelay << (i - 1)
			delay += time.Duration(rand.Int64N(int64(delay / 2)))
			l.Log().Warn("retrying completion stream", "attempt", i+1, "delay", delay, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		stream, err := l.provider.StreamCompletion(ctx, req)
		if err == nil {
			return stream, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (l *LLM) emitIntent(conversationID, transcript string, call CompletedCall) {
	l.Emit(events.IntentDetected, events.Intent{
		Base:         events.NewTurnBase(conversationID),
		IntentName:   call.Name,
		Parameters:   call.Parameters,
		OriginalText: transcript,
	})
}

func (l *LLM) failTurn(conversationID, message string) {
	l.Emit(events.VoiceError, events.ErrorPayload{
		Base:    events.NewTurnBase(conversationID),
		Service: l.Name(),
		Message: message,
	})
}

func toEventCalls(calls []CompletedCall) []events.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]events.ToolCall, 0, len(calls))
	for _, c := range calls {
		args, _ := json.Marshal(c.Parameters)
		out = append(out, events.ToolCall{ID: c.ID, Name: c.Name, Arguments: string(args)})
	}
	return out
}
