package events

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the wire schema version stamped on every payload.
const SchemaVersion = "1.0"

// Base is the common envelope embedded in every payload. Payloads are
// immutable once published; services must not mutate a payload after
// passing it to the bus.
type Base struct {
	// EventID uniquely identifies this event.
	EventID string `json:"event_id"`

	// Timestamp is the creation time in seconds since the Unix epoch.
	Timestamp float64 `json:"timestamp"`

	// ConversationID groups related events across a voice turn. Empty for
	// events outside any turn.
	ConversationID string `json:"conversation_id,omitempty"`

	// SchemaVersion is the payload schema version string.
	SchemaVersion string `json:"schema_version"`
}

// NewBase returns a Base stamped with a fresh event id and the current time.
func NewBase() Base {
	return Base{
		EventID:       uuid.NewString(),
		Timestamp:     float64(time.Now().UnixNano()) / float64(time.Second),
		SchemaVersion: SchemaVersion,
	}
}

// NewTurnBase returns a Base bound to an existing conversation id.
func NewTurnBase(conversationID string) Base {
	b := NewBase()
	b.ConversationID = conversationID
	return b
}

// ─── System / lifecycle ──────────────────────────────────────────────────────

// SetModeRequest asks the mode manager for a transition.
type SetModeRequest struct {
	Base

	// Mode is the requested system mode name (IDLE, AMBIENT, INTERACTIVE).
	Mode string `json:"mode"`
}

// ModeChange announces a completed mode mutation.
type ModeChange struct {
	Base

	OldMode string `json:"old_mode"`
	NewMode string `json:"new_mode"`
}

// ModeTransition marks the boundaries of a mode transition.
type ModeTransition struct {
	Base

	OldMode string `json:"old_mode"`
	NewMode string `json:"new_mode"`

	// Status is "started", "success", or "failed".
	Status string `json:"status"`

	// Reason describes the failure when Status is "failed".
	Reason string `json:"reason,omitempty"`
}

// ShutdownRequest asks the container for an orderly shutdown.
type ShutdownRequest struct {
	Base

	// Source names the surface that requested shutdown ("cli", "web").
	Source string `json:"source"`
}

// ServiceStatus reports a service lifecycle state change.
type ServiceStatus struct {
	Base

	Service string `json:"service"`
	Status  string `json:"status"`

	// Message carries optional diagnostic detail (e.g. a start failure).
	Message string `json:"message,omitempty"`
}

// ─── Command pipeline ────────────────────────────────────────────────────────

// Command is the normalized command form shared by the terminal and web
// ingress surfaces.
type Command struct {
	Base

	Command    string   `json:"command"`
	Subcommand string   `json:"subcommand,omitempty"`
	Args       []string `json:"args,omitempty"`
	RawInput   string   `json:"raw_input"`

	// SessionID traces a web command back to its originating socket
	// session. No business logic keys on it.
	SessionID string `json:"session_id,omitempty"`
}

// CommandResponse is feedback destined for the terminal surface.
type CommandResponse struct {
	Base

	Message string `json:"message"`
	IsError bool   `json:"is_error,omitempty"`
}

// ─── Voice pipeline ──────────────────────────────────────────────────────────

// VoiceListening marks capture session boundaries.
type VoiceListening struct {
	Base

	// Source names the trigger surface ("cli", "web", "button").
	Source string `json:"source,omitempty"`

	// Transcript is the accumulated final transcript. Set only on
	// VoiceListeningStopped.
	Transcript string `json:"transcript,omitempty"`
}

// AudioChunk carries one captured audio frame. Data is raw PCM matching the
// configured capture format (16 kHz, mono, signed 16-bit little-endian).
type AudioChunk struct {
	Base

	Data       []byte `json:"-"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// VoiceStatus marks voice-turn lifecycle points that carry no other data.
type VoiceStatus struct {
	Base

	Status string `json:"status,omitempty"`
}

// ResetRequest asks for a conversation and mode reset.
type ResetRequest struct {
	Base

	// Source names the surface that requested the reset.
	Source string `json:"source"`
}

// TranscriptionSegment is one STT result, interim or final.
type TranscriptionSegment struct {
	Base

	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ModelResponse carries streaming LLM output. Chunks have IsComplete=false
// and Text set to the increment; the final event has IsComplete=true, Text
// set to the full response, and ToolCalls populated.
type ModelResponse struct {
	Base

	Text       string     `json:"text"`
	IsComplete bool       `json:"is_complete"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a completed LLM tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// SynthesisRequest asks for speech synthesis of the given text.
type SynthesisRequest struct {
	Base

	Text string `json:"text"`
}

// SpeechSynthesis marks speech output lifecycle points and amplitude
// samples.
type SpeechSynthesis struct {
	Base

	// Text is the text being spoken. Set on started events.
	Text string `json:"text,omitempty"`

	// Amplitude is the current output level in [0, 1]. Set on amplitude
	// events.
	Amplitude float64 `json:"amplitude,omitempty"`
}

// ErrorPayload is a structured pipeline failure.
type ErrorPayload struct {
	Base

	Service string `json:"service"`
	Message string `json:"message"`
}

// ─── Music / DJ ──────────────────────────────────────────────────────────────

// MusicRequest is a normalized music control request.
type MusicRequest struct {
	Base

	// Action is one of play, pause, resume, stop, next, queue, volume,
	// list, install.
	Action string `json:"action"`

	// SongQuery resolves a track by 1-based index or fuzzy name match.
	SongQuery string `json:"song_query,omitempty"`

	// Volume is the requested level in [0.0, 1.0] for the volume action.
	Volume float64 `json:"volume,omitempty"`

	// Directory is the source path for the install action.
	Directory string `json:"directory,omitempty"`

	SessionID string `json:"session_id,omitempty"`
}

// MusicPlayback announces playback start/stop for one track.
type MusicPlayback struct {
	Base

	Track           string  `json:"track"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	StartTimestamp  float64 `json:"start_timestamp,omitempty"`
}

// PlaybackProgress is a periodic playback position update.
type PlaybackProgress struct {
	Base

	Track           string  `json:"track"`
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`

	// Progress is position/duration clamped to [0, 1].
	Progress float64 `json:"progress"`
}

// QueueUpdate carries the pending track names after a queue change, in
// play order.
type QueueUpdate struct {
	Base

	Tracks []string `json:"tracks"`
}

// DJRequest is a DJ-mode control request.
type DJRequest struct {
	Base

	// Action is one of start, stop, next, update_settings.
	Action string `json:"action"`

	AutoTransition     bool    `json:"auto_transition,omitempty"`
	TransitionDuration float64 `json:"transition_duration,omitempty"`
	GenrePreference    string  `json:"genre_preference,omitempty"`

	SessionID string `json:"session_id,omitempty"`
}

// ─── Intent / peripherals / diagnostics ──────────────────────────────────────

// Intent is a validated LLM tool call translated to an internal intent.
type Intent struct {
	Base

	IntentName   string         `json:"intent_name"`
	Parameters   map[string]any `json:"parameters"`
	OriginalText string         `json:"original_text,omitempty"`
}

// EyeState is the requested eye-light pattern and color.
type EyeState struct {
	Base

	Pattern   string  `json:"pattern,omitempty"`
	Color     string  `json:"color,omitempty"`
	Intensity float64 `json:"intensity,omitempty"`
}

// MetricSample is one timing sample for an operation.
type MetricSample struct {
	Base

	Operation string  `json:"operation"`
	Seconds   float64 `json:"seconds"`
}

// LogEntry is a log entry reformatted for the browser UI.
type LogEntry struct {
	Base

	EntryID   string `json:"entry_id"`
	SessionID string `json:"session_id"`
	Level     string `json:"level"`
	Service   string `json:"service"`
	Message   string `json:"message"`
}
