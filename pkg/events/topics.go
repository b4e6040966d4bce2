// Package events defines the shared event vocabulary used across all
// CantinaOS packages.
//
// These types form the lingua franca between services on the bus: the closed
// topic enumeration, the common payload envelope, and one payload variant per
// topic family. Each service defines its own internal types, but anything
// that crosses the bus lives here to avoid circular imports.
//
// Topics use the canonical dotted lowercase form. The enumeration below is
// the authoritative set; producers and consumers must reference topics
// symbolically rather than as string literals.
package events

// Topic is a stable identifier string selecting a logical event channel.
type Topic string

// System and lifecycle topics.
const (
	// SystemSetModeRequest asks the mode manager to transition to a new
	// system mode. Payload: SetModeRequest.
	SystemSetModeRequest Topic = "system.set_mode.request"

	// SystemModeChange announces that the current system mode has been
	// mutated. Payload: ModeChange.
	SystemModeChange Topic = "system.mode.change"

	// SystemShutdownRequested asks the container to begin an orderly
	// shutdown. Payload: ShutdownRequest.
	SystemShutdownRequested Topic = "system.shutdown.requested"

	// ServiceStatusUpdate carries a service lifecycle status change.
	// Payload: ServiceStatus.
	ServiceStatusUpdate Topic = "service.status.update"
)

// Mode transition topics. For every transition the observed order to any
// single subscriber is started → system.mode.change → complete.
const (
	// ModeTransitionStarted marks the beginning of a mode transition.
	// Payload: ModeTransition.
	ModeTransitionStarted Topic = "mode.transition.started"

	// ModeTransitionComplete marks the end of a mode transition, successful
	// or failed (see ModeTransition.Status). Payload: ModeTransition.
	ModeTransitionComplete Topic = "mode.transition.complete"
)

// Command pipeline topics.
const (
	// CLICommand carries a normalized command that matched no specific
	// dispatch verb. Payload: Command.
	CLICommand Topic = "cli.command"

	// CLIResponse carries feedback destined for the terminal surface.
	// Payload: CommandResponse.
	CLIResponse Topic = "cli.response"
)

// Voice pipeline topics.
const (
	// VoiceListeningStarted marks the start of a microphone capture
	// session. Payload: VoiceListening.
	VoiceListeningStarted Topic = "voice.listening.started"

	// VoiceListeningStopRequested asks the STT service to finish the
	// current capture session. Emitted by the CLI, the web bridge, or the
	// button listener; the STT service answers with VoiceListeningStopped
	// once the vendor stream has flushed. Payload: VoiceListening.
	VoiceListeningStopRequested Topic = "voice.listening.stop_requested"

	// VoiceListeningStopped marks the end of a capture session. The
	// payload carries the accumulated final transcript. Payload:
	// VoiceListening.
	VoiceListeningStopped Topic = "voice.listening.stopped"

	// VoiceAudioChunk carries one captured audio frame from the microphone
	// service to the STT service. Payload: AudioChunk.
	VoiceAudioChunk Topic = "voice.audio.chunk"

	// VoiceProcessingComplete marks the end of a full voice turn.
	// Payload: VoiceStatus.
	VoiceProcessingComplete Topic = "voice.processing.complete"

	// VoiceError carries a structured voice-pipeline failure. Payload:
	// ErrorPayload.
	VoiceError Topic = "voice.error"

	// ConversationResetRequested asks for a fresh conversation: the LLM
	// service clears its memory and the mode manager returns the system
	// to IDLE. Payload: ResetRequest.
	ConversationResetRequested Topic = "conversation.reset.requested"
)

// Transcription topics.
const (
	// TranscriptionInterim carries an unstable STT segment, for display
	// only. Payload: TranscriptionSegment.
	TranscriptionInterim Topic = "transcription.interim"

	// TranscriptionFinal carries a stabilized STT segment, safe to
	// accumulate. Payload: TranscriptionSegment.
	TranscriptionFinal Topic = "transcription.final"
)

// LLM and speech topics.
const (
	// LLMResponse carries streaming response text. Chunks have
	// IsComplete=false; the final event carries the full text and the
	// completed tool calls. Payload: ModelResponse.
	LLMResponse Topic = "llm.response"

	// LLMProcessingEnded marks the end of an LLM turn regardless of
	// outcome. Payload: VoiceStatus.
	LLMProcessingEnded Topic = "llm.processing.ended"

	// TTSRequest asks the TTS service to synthesize text. Payload:
	// SynthesisRequest.
	TTSRequest Topic = "tts.request"

	// SpeechSynthesisStarted marks the start of speech playback.
	// Payload: SpeechSynthesis.
	SpeechSynthesisStarted Topic = "speech.synthesis.started"

	// SpeechSynthesisAmplitude carries one amplitude sample of the
	// playing speech, for driving mouth/eye effects. Payload:
	// SpeechSynthesis.
	SpeechSynthesisAmplitude Topic = "speech.synthesis.amplitude"

	// SpeechSynthesisCompleted marks a synthesis that played to its
	// natural end. Payload: SpeechSynthesis.
	SpeechSynthesisCompleted Topic = "speech.synthesis.completed"

	// SpeechSynthesisEnded marks the end of speech playback for any
	// reason, including interruption. Payload: SpeechSynthesis.
	SpeechSynthesisEnded Topic = "speech.synthesis.ended"
)

// Music topics.
const (
	// MusicCommand carries a normalized music control request. Payload:
	// MusicRequest.
	MusicCommand Topic = "music.command"

	// MusicPlaybackStarted announces a new playing track. Payload:
	// MusicPlayback.
	MusicPlaybackStarted Topic = "music.playback.started"

	// MusicPlaybackStopped announces that playback stopped. Payload:
	// MusicPlayback.
	MusicPlaybackStopped Topic = "music.playback.stopped"

	// MusicProgress carries periodic playback position updates. Payload:
	// PlaybackProgress.
	MusicProgress Topic = "music.progress"

	// TrackEnded announces the natural end of a track. Payload:
	// MusicPlayback.
	TrackEnded Topic = "track.ended"

	// MusicQueueUpdated announces a change to the pending track queue.
	// Payload: QueueUpdate.
	MusicQueueUpdated Topic = "music.queue.updated"
)

// DJ topics.
const (
	// DJCommand carries a DJ-mode control request. Payload: DJRequest.
	DJCommand Topic = "dj.command"

	// DJNextTrack asks the DJ controller to advance to the next track.
	// Payload: DJRequest.
	DJNextTrack Topic = "dj.next_track"
)

// Intent, peripheral, debug, and dashboard topics.
const (
	// IntentDetected carries a validated LLM tool call translated into an
	// internal intent. Payload: Intent.
	IntentDetected Topic = "intent.detected"

	// EyeCommand drives the eye-light peripheral. Payload: EyeState.
	EyeCommand Topic = "eye.command"

	// DebugCommand carries log-level and diagnostic control requests.
	// Payload: Command.
	DebugCommand Topic = "debug.command"

	// PerformanceMetric carries one timing sample for aggregation.
	// Payload: MetricSample.
	PerformanceMetric Topic = "performance.metric"

	// DashboardLog carries a structured log entry reformatted for the
	// browser UI. Payload: LogEntry.
	DashboardLog Topic = "dashboard.log"
)
