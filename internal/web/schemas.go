package web

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. validator.Validate is
// goroutine-safe and caches struct metadata, so one instance serves all
// sessions.
var validate = validator.New(validator.WithRequiredStructEnabled())

// InboundMessage is the envelope every client message arrives in. Payload
// stays raw until the kind selects a schema.
type InboundMessage struct {
	Kind    string          `json:"kind" validate:"required,oneof=voice_command music_command dj_command system_command subscribe_events"`
	Payload json.RawMessage `json:"payload"`
}

// VoiceCommand starts or stops a capture session from the dashboard.
type VoiceCommand struct {
	Action string `json:"action" validate:"required,oneof=start stop"`
}

// MusicCommand is the dashboard's music control schema. A track is selected
// by name or by 1-based library id; track_name wins when both are set.
type MusicCommand struct {
	Action string `json:"action" validate:"required,oneof=play pause resume stop next queue volume"`

	// TrackName selects a track for play/queue by name (fuzzy matched).
	TrackName string `json:"track_name,omitempty" validate:"omitempty,max=200"`

	// TrackID selects a track by its 1-based library id.
	TrackID string `json:"track_id,omitempty" validate:"omitempty,max=20"`

	// VolumeLevel is the requested level for the volume action. A pointer
	// so an absent field is distinguishable from an explicit 0.
	VolumeLevel *float64 `json:"volume_level,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// DJCommand is the dashboard's DJ-mode control schema.
type DJCommand struct {
	Action string `json:"action" validate:"required,oneof=start stop next update_settings"`

	AutoTransition     bool     `json:"auto_transition,omitempty"`
	TransitionDuration *float64 `json:"transition_duration,omitempty" validate:"omitempty,gte=1,lte=30"`
	GenrePreference    string   `json:"genre_preference,omitempty" validate:"omitempty,max=50"`
}

// SystemCommand is the dashboard's system control schema.
type SystemCommand struct {
	Action string `json:"action" validate:"required,oneof=set_mode restart refresh_config"`

	// Mode is required for set_mode.
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=IDLE AMBIENT INTERACTIVE"`

	// RestartDelay in seconds, for the restart action.
	RestartDelay *float64 `json:"restart_delay,omitempty" validate:"omitempty,gte=0,lte=60"`
}

// SubscribeEvents selects which outbound kinds a session receives. An empty
// list subscribes to everything.
type SubscribeEvents struct {
	Kinds []string `json:"kinds,omitempty" validate:"omitempty,max=32,dive,max=64"`
}

// FieldError is one schema violation, shaped for the command_error payload.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// decodeAndValidate unmarshals raw into dst and runs schema validation,
// returning field-level errors suitable for a command_error response.
func decodeAndValidate(raw json.RawMessage, dst any) []FieldError {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return []FieldError{{Field: "payload", Rule: "json", Message: err.Error()}}
	}
	return validateStruct(dst)
}

func validateStruct(v any) []FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "payload", Rule: "invalid", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fmt.Sprintf("failed %q validation (value %v)", fe.Tag(), fe.Value()),
		})
	}
	return out
}

// ─── Dashboard-facing outbound schemas ────────────────────────────────────────

// Outbound message kinds.
const (
	KindCantinaEvent  = "cantina_event"
	KindServiceStatus = "service_status_update"
	KindTranscription = "transcription_update"
	KindVoiceStatus   = "voice_status"
	KindMusicStatus   = "music_status"
	KindMusicProgress = "music_progress"
	KindMusicQueue    = "music_queue"
	KindDJStatus      = "dj_status"
	KindLLMResponse   = "llm_response"
	KindSystemError   = "system_error"
	KindSystemLog     = "system_log"
	KindCommandAck    = "command_ack"
	KindCommandError  = "command_error"
)

// OutboundMessage is the envelope for every server-to-client message.
type OutboundMessage struct {
	Kind      string  `json:"kind"`
	Payload   any     `json:"payload"`
	Timestamp float64 `json:"timestamp"`
}

// ServiceStatusBroadcast is the re-validated dashboard shape for the
// aggregated service map.
type ServiceStatusBroadcast struct {
	Services map[string]string `json:"services" validate:"required,min=1"`
}

// MusicStatusBroadcast is the re-validated dashboard shape for playback
// state changes.
type MusicStatusBroadcast struct {
	State           string  `json:"state" validate:"required,oneof=playing stopped"`
	Track           string  `json:"track,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" validate:"gte=0"`
}

// MusicProgressBroadcast is the re-validated dashboard shape for progress
// ticks.
type MusicProgressBroadcast struct {
	Track           string  `json:"track" validate:"required"`
	PositionSeconds float64 `json:"position_seconds" validate:"gte=0"`
	DurationSeconds float64 `json:"duration_seconds" validate:"gte=0"`
	Progress        float64 `json:"progress" validate:"gte=0,lte=1"`
}

// fallbackPayload is broadcast when a status payload fails dashboard
// re-validation, so the UI shows a structured error instead of silence.
type fallbackPayload struct {
	Error  string `json:"error"`
	Source string `json:"source"`
}
