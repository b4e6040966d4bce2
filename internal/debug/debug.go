// Package debug implements the diagnostics service: runtime log level
// control, performance metric aggregation with threshold warnings, and a
// console echo of completed LLM responses.
package debug

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/logging"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
)

// defaultThreshold flags operations slower than this when no per-operation
// threshold is configured.
const defaultThreshold = 5 * time.Second

// Stats is the running aggregate for one operation.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Sum   float64
}

// Mean returns the average duration in seconds.
func (s Stats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Config holds the per-operation slowness thresholds, in seconds.
type Config struct {
	Thresholds map[string]float64
}

// DefaultConfig returns thresholds tuned for the voice pipeline: an LLM turn
// past ten seconds or a synthesis past five is worth a warning.
func DefaultConfig() Config {
	return Config{Thresholds: map[string]float64{
		"llm_turn":      10,
		"tts_synthesis": 5,
	}}
}

// Service is the diagnostics service.
type Service struct {
	*service.Base

	cfg    Config
	levels *logging.Levels

	mu    sync.Mutex
	stats map[string]Stats
}

// New creates the debug service. levels is the shared registry the logging
// handlers consult; it may be nil, disabling level commands.
func New(b *bus.Bus, log *slog.Logger, levels *logging.Levels, cfg Config) *Service {
	return &Service{
		Base:   service.NewBase("debug", b, log),
		cfg:    cfg,
		levels: levels,
		stats:  make(map[string]Stats),
	}
}

// Start subscribes to the diagnostic topics.
func (s *Service) Start(ctx context.Context) error {
	return s.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		s.Subscribe(events.DebugCommand, s.handleCommand)
		s.Subscribe(events.PerformanceMetric, s.handleMetric)
		s.Subscribe(events.LLMResponse, s.handleLLMResponse)
		return nil
	}})
}

// Stop tears down the subscriptions.
func (s *Service) Stop(ctx context.Context) error {
	return s.StopWithHooks(ctx, service.Hooks{})
}

// StatsFor returns the aggregate for one operation.
func (s *Service) StatsFor(operation string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[operation]
	return st, ok
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Service) handleCommand(_ context.Context, evt bus.Event) {
	cmd, ok := evt.Payload.(events.Command)
	if !ok {
		return
	}
	switch cmd.Subcommand {
	case "level":
		s.applyLevel(cmd)
	case "metrics":
		s.respond(cmd, s.summary(), false)
	default:
		s.respond(cmd, fmt.Sprintf("unknown debug subcommand %q (try: level, metrics)", cmd.Subcommand), true)
	}
}

// applyLevel handles "debug level [component] <level>". With one argument
// the default level changes; with two, only the named component.
func (s *Service) applyLevel(cmd events.Command) {
	if s.levels == nil {
		s.respond(cmd, "log level control unavailable", true)
		return
	}
	component, levelName := "all", ""
	switch len(cmd.Args) {
	case 1:
		levelName = cmd.Args[0]
	case 2:
		component, levelName = cmd.Args[0], cmd.Args[1]
	default:
		s.respond(cmd, "usage: debug level [component] <debug|info|warn|error>", true)
		return
	}
	level := logging.ParseLevel(levelName)
	s.levels.SetLevel(component, level)
	s.Log().Info("log level changed", "component", component, "level", level.String())
	s.respond(cmd, fmt.Sprintf("log level for %s set to %s", component, level), false)
}

func (s *Service) handleMetric(_ context.Context, evt bus.Event) {
	m, ok := evt.Payload.(events.MetricSample)
	if !ok {
		return
	}
	s.mu.Lock()
	st := s.stats[m.Operation]
	if st.Count == 0 || m.Seconds < st.Min {
		st.Min = m.Seconds
	}
	if m.Seconds > st.Max {
		st.Max = m.Seconds
	}
	st.Count++
	st.Sum += m.Seconds
	s.stats[m.Operation] = st
	s.mu.Unlock()

	threshold, ok := s.cfg.Thresholds[m.Operation]
	if !ok {
		threshold = defaultThreshold.Seconds()
	}
	if m.Seconds > threshold {
		s.Log().Warn("slow operation",
			"operation", m.Operation,
			"seconds", m.Seconds,
			"threshold", threshold,
		)
	}
}

// handleLLMResponse echoes completed responses so an operator tailing the
// terminal sees what the DJ said without opening the dashboard.
func (s *Service) handleLLMResponse(_ context.Context, evt bus.Event) {
	resp, ok := evt.Payload.(events.ModelResponse)
	if !ok || !resp.IsComplete {
		return
	}
	calls := make([]string, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, tc.Name)
	}
	s.Log().Info("llm response",
		"text", resp.Text,
		"tool_calls", strings.Join(calls, ","),
		"conversation_id", resp.ConversationID,
	)
}

func (s *Service) summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stats) == 0 {
		return "no performance samples recorded"
	}
	ops := make([]string, 0, len(s.stats))
	for op := range s.stats {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	var b strings.Builder
	for _, op := range ops {
		st := s.stats[op]
		fmt.Fprintf(&b, "%s: n=%d min=%.3fs mean=%.3fs max=%.3fs\n", op, st.Count, st.Min, st.Mean(), st.Max)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) respond(cmd events.Command, message string, isErr bool) {
	s.Emit(events.CLIResponse, events.CommandResponse{
		Base:    events.NewTurnBase(cmd.ConversationID),
		Message: message,
		IsError: isErr,
	})
}
