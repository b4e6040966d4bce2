// Package web implements the dashboard bridge: a small HTTP API, a
// WebSocket endpoint carrying schema-validated commands inbound and curated
// bus traffic outbound, and the cached periodic status broadcaster.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/music"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
)

// sendQueueSize bounds each session's outbound queue. A slow browser tab
// loses messages rather than stalling the bridge.
const sendQueueSize = 64

// Config holds the bridge server settings.
type Config struct {
	Host string
	Port int

	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler
}

// DefaultConfig returns the stock bridge settings.
func DefaultConfig() Config {
	return Config{Host: "127.0.0.1", Port: 8000}
}

// session is one connected dashboard client. send is never closed: a
// broadcaster may hold a snapshot of the session list from before removal,
// so enqueueing must always be safe. The write loop exits on stop instead.
type session struct {
	id   string
	conn *websocket.Conn
	send chan OutboundMessage
	stop chan struct{}

	mu    sync.Mutex
	kinds map[string]bool // nil means all kinds
}

// wants reports whether the session subscribed to the given outbound kind.
// Acks and errors always pass.
func (s *session) wants(kind string) bool {
	if kind == KindCommandAck || kind == KindCommandError {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kinds == nil || s.kinds[kind]
}

func (s *session) setKinds(kinds []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(kinds) == 0 {
		s.kinds = nil
		return
	}
	s.kinds = make(map[string]bool, len(kinds))
	for _, k := range kinds {
		s.kinds[k] = true
	}
}

// Bridge is the web surface service.
type Bridge struct {
	*service.Base

	cfg      Config
	library  func() []music.Track
	server   *http.Server
	listener net.Listener
	addr     string

	mu       sync.Mutex
	sessions map[string]*session

	caster *broadcaster
}

// New creates the bridge. library supplies the current track collection for
// the HTTP endpoint; it may be nil.
func New(b *bus.Bus, log *slog.Logger, cfg Config, library func() []music.Track) *Bridge {
	br := &Bridge{
		Base:     service.NewBase("web_bridge", b, log),
		cfg:      cfg,
		library:  library,
		sessions: make(map[string]*session),
	}
	br.caster = newBroadcaster(br.broadcast, log)
	return br
}

// Start wires subscriptions, mounts the routes, and begins serving.
func (br *Bridge) Start(ctx context.Context) error {
	return br.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		br.subscribeRepublication()

		mux := http.NewServeMux()
		mux.HandleFunc("GET /", br.handleRoot)
		mux.HandleFunc("GET /api/system/status", br.handleSystemStatus)
		mux.HandleFunc("GET /api/music/library", br.handleLibrary)
		mux.HandleFunc("GET /ws", br.handleWS)
		if br.cfg.MetricsHandler != nil {
			mux.Handle("GET /metrics", br.cfg.MetricsHandler)
		}

		addr := net.JoinHostPort(br.cfg.Host, fmt.Sprintf("%d", br.cfg.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("web: listening on %s: %w", addr, err)
		}

		br.server = &http.Server{Handler: mux}
		br.listener = ln
		br.addr = ln.Addr().String()
		go func() {
			if err := br.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				br.Log().Error("http server failed", "err", err)
				br.MarkError("http server failed: " + err.Error())
			}
		}()
		go br.caster.run()

		br.Log().Info("dashboard bridge listening", "addr", addr)
		return nil
	}})
}

// Stop shuts the server down and closes all sessions.
func (br *Bridge) Stop(ctx context.Context) error {
	return br.StopWithHooks(ctx, service.Hooks{OnStop: func(ctx context.Context) error {
		br.caster.stop()

		br.mu.Lock()
		sessions := make([]*session, 0, len(br.sessions))
		for _, s := range br.sessions {
			sessions = append(sessions, s)
		}
		br.sessions = make(map[string]*session)
		br.mu.Unlock()
		for _, s := range sessions {
			s.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}

		if br.server != nil {
			return br.server.Shutdown(ctx)
		}
		return nil
	}})
}

// Addr returns the bound listen address, for tests using port 0.
func (br *Bridge) Addr() string {
	return br.addr
}

// ─── HTTP handlers ───────────────────────────────────────────────────────────

func (br *Bridge) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	br.mu.Lock()
	clients := len(br.sessions)
	br.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":              "cantinaos",
		"status":               "ok",
		"cantina_os_connected": br.Status() == service.StatusRunning,
		"dashboard_clients":    clients,
		"timestamp":            nowSeconds(),
	})
}

func (br *Bridge) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	mode, voice, services := br.caster.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":     mode,
		"voice":    voice,
		"services": services,
	})
}

func (br *Bridge) handleLibrary(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		ID       int     `json:"id"`
		Title    string  `json:"title"`
		Artist   string  `json:"artist"`
		Duration float64 `json:"duration"`
		File     string  `json:"file"`
	}
	tracks := []entry{}
	if br.library != nil {
		for i, t := range br.library() {
			artist, title := splitTrackName(t.Name)
			e := entry{ID: i + 1, Title: title, Artist: artist, Duration: t.Duration.Seconds()}
			if t.Path != "" {
				e.File = filepath.Base(t.Path)
			}
			tracks = append(tracks, e)
		}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// splitTrackName derives artist and title from an "Artist - Title" file
// name. Names without the separator are all title.
func splitTrackName(name string) (artist, title string) {
	if a, t, ok := strings.Cut(name, " - "); ok {
		return strings.TrimSpace(a), strings.TrimSpace(t)
	}
	return "", name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// ─── WebSocket session handling ──────────────────────────────────────────────

func (br *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		br.Log().Warn("websocket accept failed", "err", err)
		return
	}

	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan OutboundMessage, sendQueueSize),
		stop: make(chan struct{}),
	}
	br.mu.Lock()
	br.sessions[s.id] = s
	br.mu.Unlock()
	br.Log().Info("dashboard session opened", "session_id", s.id)

	go br.writeLoop(r.Context(), s)
	br.readLoop(r.Context(), s)

	br.mu.Lock()
	delete(br.sessions, s.id)
	br.mu.Unlock()
	close(s.stop)
	conn.Close(websocket.StatusNormalClosure, "")
	br.Log().Info("dashboard session closed", "session_id", s.id)
}

func (br *Bridge) writeLoop(ctx context.Context, s *session) {
	for {
		select {
		case <-s.stop:
			return
		case msg := <-s.send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, s.conn, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (br *Bridge) readLoop(ctx context.Context, s *session) {
	for {
		var msg InboundMessage
		if err := wsjson.Read(ctx, s.conn, &msg); err != nil {
			return
		}
		br.route(s, msg)
	}
}

// route validates the inbound message against its kind's schema and
// translates it to an internal event, acknowledging the originating session
// either way.
func (br *Bridge) route(s *session, msg InboundMessage) {
	if errs := validateStruct(&msg); errs != nil {
		br.reject(s, msg.Kind, errs)
		return
	}

	var errs []FieldError
	switch msg.Kind {
	case "voice_command":
		var cmd VoiceCommand
		if errs = decodeAndValidate(msg.Payload, &cmd); errs == nil {
			br.applyVoice(s, cmd)
		}
	case "music_command":
		var cmd MusicCommand
		if errs = decodeAndValidate(msg.Payload, &cmd); errs == nil {
			br.applyMusic(s, cmd)
		}
	case "dj_command":
		var cmd DJCommand
		if errs = decodeAndValidate(msg.Payload, &cmd); errs == nil {
			br.applyDJ(s, cmd)
		}
	case "system_command":
		var cmd SystemCommand
		if errs = decodeAndValidate(msg.Payload, &cmd); errs == nil {
			br.applySystem(s, cmd)
		}
	case "subscribe_events":
		var sub SubscribeEvents
		if errs = decodeAndValidate(msg.Payload, &sub); errs == nil {
			s.setKinds(sub.Kinds)
		}
	}

	if errs != nil {
		br.reject(s, msg.Kind, errs)
		return
	}
	br.ack(s, msg.Kind)
}

func (br *Bridge) applyVoice(s *session, cmd VoiceCommand) {
	payload := events.VoiceListening{Base: events.NewBase(), Source: "web"}
	if cmd.Action == "start" {
		br.Emit(events.VoiceListeningStarted, payload)
		return
	}
	br.Emit(events.VoiceListeningStopRequested, payload)
}

func (br *Bridge) applyMusic(s *session, cmd MusicCommand) {
	query := strings.TrimSpace(cmd.TrackName)
	if query == "" {
		query = strings.TrimSpace(cmd.TrackID)
	}
	out := events.MusicRequest{
		Base:      events.NewBase(),
		Action:    cmd.Action,
		SongQuery: query,
		SessionID: s.id,
	}
	if cmd.VolumeLevel != nil {
		out.Volume = *cmd.VolumeLevel
	}
	br.Emit(events.MusicCommand, out)
}

func (br *Bridge) applyDJ(s *session, cmd DJCommand) {
	out := events.DJRequest{
		Base:            events.NewBase(),
		Action:          cmd.Action,
		AutoTransition:  cmd.AutoTransition,
		GenrePreference: cmd.GenrePreference,
		SessionID:       s.id,
	}
	if cmd.TransitionDuration != nil {
		out.TransitionDuration = *cmd.TransitionDuration
	}
	if cmd.Action == "next" {
		br.Emit(events.DJNextTrack, out)
		return
	}
	br.Emit(events.DJCommand, out)
}

func (br *Bridge) applySystem(s *session, cmd SystemCommand) {
	switch cmd.Action {
	case "set_mode":
		br.Emit(events.SystemSetModeRequest, events.SetModeRequest{Base: events.NewBase(), Mode: cmd.Mode})
	case "restart":
		br.Emit(events.SystemShutdownRequested, events.ShutdownRequest{Base: events.NewBase(), Source: "web"})
	case "refresh_config":
		br.Emit(events.CLICommand, events.Command{
			Base:      events.NewBase(),
			Command:   "refresh_config",
			RawInput:  "refresh_config",
			SessionID: s.id,
		})
	}
}

func (br *Bridge) ack(s *session, kind string) {
	br.deliver(s, OutboundMessage{
		Kind:      KindCommandAck,
		Payload:   map[string]string{"command": kind},
		Timestamp: nowSeconds(),
	})
}

func (br *Bridge) reject(s *session, kind string, errs []FieldError) {
	br.Log().Warn("command rejected", "session_id", s.id, "kind", kind, "violations", len(errs))
	br.deliver(s, OutboundMessage{
		Kind: KindCommandError,
		Payload: map[string]any{
			"command":           kind,
			"validation_errors": errs,
		},
		Timestamp: nowSeconds(),
	})
}

// deliver enqueues a message for one session, dropping when its queue is
// full.
func (br *Bridge) deliver(s *session, msg OutboundMessage) {
	select {
	case s.send <- msg:
	default:
		br.Log().Warn("session send queue full, message dropped", "session_id", s.id, "kind", msg.Kind)
	}
}

// broadcast fans a message out to every session subscribed to its kind.
func (br *Bridge) broadcast(kind string, payload any) {
	msg := OutboundMessage{Kind: kind, Payload: payload, Timestamp: nowSeconds()}
	br.mu.Lock()
	sessions := make([]*session, 0, len(br.sessions))
	for _, s := range br.sessions {
		sessions = append(sessions, s)
	}
	br.mu.Unlock()
	for _, s := range sessions {
		if s.wants(kind) {
			br.deliver(s, msg)
		}
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// ─── Bus republication ───────────────────────────────────────────────────────

// subscribeRepublication wires the curated topic set into dashboard
// messages. Status-carrying payloads are re-validated against the dashboard
// schemas; failures broadcast a structured fallback.
func (br *Bridge) subscribeRepublication() {
	br.Subscribe(events.ServiceStatusUpdate, func(_ context.Context, evt bus.Event) {
		if st, ok := evt.Payload.(events.ServiceStatus); ok {
			br.caster.setServiceStatus(st.Service, st.Status)
		}
	})
	br.Subscribe(events.SystemModeChange, func(_ context.Context, evt bus.Event) {
		if ch, ok := evt.Payload.(events.ModeChange); ok {
			br.caster.setMode(ch.NewMode)
			br.broadcast(KindCantinaEvent, ch)
		}
	})
	br.Subscribe(events.ModeTransitionStarted, br.republish(KindCantinaEvent))
	br.Subscribe(events.ModeTransitionComplete, br.republish(KindCantinaEvent))

	br.Subscribe(events.TranscriptionInterim, br.republish(KindTranscription))
	br.Subscribe(events.TranscriptionFinal, br.republish(KindTranscription))
	br.Subscribe(events.LLMResponse, br.republish(KindLLMResponse))
	br.Subscribe(events.VoiceError, br.republish(KindSystemError))
	br.Subscribe(events.DashboardLog, br.republish(KindSystemLog))
	br.Subscribe(events.DJCommand, br.republish(KindDJStatus))
	br.Subscribe(events.MusicQueueUpdated, br.republish(KindMusicQueue))

	br.Subscribe(events.MusicPlaybackStarted, func(_ context.Context, evt bus.Event) {
		mp, ok := evt.Payload.(events.MusicPlayback)
		if !ok {
			return
		}
		br.broadcastValidated(KindMusicStatus, MusicStatusBroadcast{
			State:           "playing",
			Track:           mp.Track,
			DurationSeconds: mp.DurationSeconds,
		})
	})
	br.Subscribe(events.MusicPlaybackStopped, func(_ context.Context, evt bus.Event) {
		mp, ok := evt.Payload.(events.MusicPlayback)
		if !ok {
			return
		}
		br.broadcastValidated(KindMusicStatus, MusicStatusBroadcast{
			State: "stopped",
			Track: mp.Track,
		})
	})
	br.Subscribe(events.MusicProgress, func(_ context.Context, evt bus.Event) {
		mp, ok := evt.Payload.(events.PlaybackProgress)
		if !ok {
			return
		}
		br.broadcastValidated(KindMusicProgress, MusicProgressBroadcast{
			Track:           mp.Track,
			PositionSeconds: mp.PositionSeconds,
			DurationSeconds: mp.DurationSeconds,
			Progress:        mp.Progress,
		})
	})

	// Voice indicator state machine, including the idle-reset set.
	br.Subscribe(events.VoiceListeningStarted, br.voiceState("recording"))
	br.Subscribe(events.VoiceListeningStopped, br.voiceState("processing"))
	br.Subscribe(events.SpeechSynthesisStarted, br.voiceState("speaking"))
	for _, topic := range []events.Topic{
		events.VoiceProcessingComplete,
		events.SpeechSynthesisCompleted,
		events.SpeechSynthesisEnded,
		events.LLMProcessingEnded,
		events.VoiceError,
	} {
		br.Subscribe(topic, br.voiceState("idle"))
	}
}

// republish returns a handler that forwards the raw payload under the given
// dashboard kind.
func (br *Bridge) republish(kind string) bus.Handler {
	return func(_ context.Context, evt bus.Event) {
		br.broadcast(kind, evt.Payload)
	}
}

func (br *Bridge) voiceState(state string) bus.Handler {
	return func(_ context.Context, _ bus.Event) {
		br.caster.setVoice(state)
	}
}

// broadcastValidated re-validates a dashboard payload before fan-out,
// falling back to a structured error payload on violation.
func (br *Bridge) broadcastValidated(kind string, payload any) {
	if errs := validateStruct(payload); errs != nil {
		br.Log().Warn("dashboard payload failed re-validation", "kind", kind, "violations", len(errs))
		br.broadcast(kind, fallbackPayload{Error: "payload failed validation", Source: kind})
		return
	}
	br.broadcast(kind, payload)
}
