package music

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/player"
)

// Config holds the controller settings.
type Config struct {
	// Directories are scanned in order at start; the first existing one
	// becomes the library directory.
	Directories []string

	// NormalVolume is the playback level in [0, 1] outside speech.
	NormalVolume float64

	// DuckingVolume is the lowered level used while the DJ is speaking.
	DuckingVolume float64

	// ProgressInterval is the spacing of music.progress events.
	ProgressInterval time.Duration
}

// DefaultConfig returns the stock controller settings.
func DefaultConfig() Config {
	return Config{
		Directories:      []string{"music", "assets/music"},
		NormalVolume:     0.8,
		DuckingVolume:    0.3,
		ProgressInterval: time.Second,
	}
}

// playback is the single current-player slot.
type playback struct {
	track     Track
	player    player.Player
	startedAt time.Time
	cancel    chan struct{}
}

// Controller owns the track library and the one-player playback slot. It
// ducks volume around speech synthesis while the system is INTERACTIVE and
// stops playback when the system returns to IDLE.
type Controller struct {
	*service.Base

	backend player.Backend
	cfg     Config

	mu       sync.Mutex
	library  *Library
	libDir   string
	current  *playback
	mode     string
	speaking bool

	// lastPath is the most recently started track, kept after the slot
	// empties so advancing from a finished track moves forward.
	lastPath string

	// queue holds explicitly queued tracks, played in order ahead of the
	// DJ rotation.
	queue []Track

	// DJ mode: when active, track end auto-advances to the next track.
	djActive bool
	djAuto   bool
	djGenre  string
}

// New creates the music controller on top of the given playback backend.
func New(b *bus.Bus, log *slog.Logger, backend player.Backend, cfg Config) *Controller {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	return &Controller{
		Base:    service.NewBase("music", b, log),
		backend: backend,
		cfg:     cfg,
		library: &Library{byName: map[string]int{}},
	}
}

// Start scans the library and subscribes to the control topics.
func (c *Controller) Start(ctx context.Context) error {
	return c.StartWithHooks(ctx, service.Hooks{OnStart: func(ctx context.Context) error {
		lib, dir, err := ScanLibrary(ctx, c.backend, c.cfg.Directories)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.library = lib
		c.libDir = dir
		c.mu.Unlock()
		c.Log().Info("library loaded", "tracks", lib.Len(), "dir", dir)

		c.Subscribe(events.MusicCommand, c.handleCommand)
		c.Subscribe(events.DJCommand, c.handleDJ)
		c.Subscribe(events.DJNextTrack, c.handleNext)
		c.Subscribe(events.TrackEnded, c.handleTrackEnded)
		c.Subscribe(events.SpeechSynthesisStarted, c.handleSpeechStarted)
		c.Subscribe(events.SpeechSynthesisCompleted, c.handleSpeechEnded)
		c.Subscribe(events.SpeechSynthesisEnded, c.handleSpeechEnded)
		c.Subscribe(events.SystemModeChange, c.handleModeChange)
		return nil
	}})
}

// Stop releases the current player before the base teardown.
func (c *Controller) Stop(ctx context.Context) error {
	return c.StopWithHooks(ctx, service.Hooks{OnStop: func(_ context.Context) error {
		c.stopPlayback(false)
		return nil
	}})
}

// Library returns the current track collection.
func (c *Controller) Library() *Library {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.library
}

func (c *Controller) handleCommand(ctx context.Context, evt bus.Event) {
	cmd, ok := evt.Payload.(events.MusicRequest)
	if !ok {
		return
	}

	switch cmd.Action {
	case "play":
		c.play(ctx, cmd.SongQuery)
	case "pause":
		c.pause()
	case "resume":
		c.resume()
	case "stop":
		c.stopPlayback(true)
	case "next":
		c.playNext(ctx)
	case "queue":
		c.enqueue(cmd.SongQuery)
	case "list":
		c.respond(c.formatList(), false)
	case "volume":
		c.setVolume(cmd.Volume)
	case "install":
		c.install(ctx, cmd.Directory)
	default:
		c.respond(fmt.Sprintf("unsupported music action %q", cmd.Action), true)
	}
}

func (c *Controller) handleNext(ctx context.Context, _ bus.Event) {
	c.playNext(ctx)
}

// handleDJ starts, stops, or reconfigures DJ mode. Starting begins playback
// immediately if nothing is playing.
func (c *Controller) handleDJ(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(events.DJRequest)
	if !ok {
		return
	}

	switch req.Action {
	case "start":
		c.mu.Lock()
		c.djActive = true
		c.djAuto = true
		playing := c.current != nil
		c.mu.Unlock()
		c.Log().Info("dj mode started")
		c.respond("DJ mode started", false)
		if !playing {
			c.playNext(ctx)
		}

	case "stop":
		c.mu.Lock()
		c.djActive = false
		c.mu.Unlock()
		c.Log().Info("dj mode stopped")
		c.respond("DJ mode stopped", false)

	case "update_settings":
		c.mu.Lock()
		c.djAuto = req.AutoTransition
		c.djGenre = req.GenrePreference
		c.mu.Unlock()
		c.respond("DJ settings updated", false)

	default:
		c.respond(fmt.Sprintf("unsupported dj action %q", req.Action), true)
	}
}

// handleTrackEnded advances to the next queued track, or onward through the
// library when DJ mode is on.
func (c *Controller) handleTrackEnded(ctx context.Context, _ bus.Event) {
	c.mu.Lock()
	advance := (c.djActive && c.djAuto) || len(c.queue) > 0
	c.mu.Unlock()
	if advance {
		c.playNext(ctx)
	}
}

// DJActive reports whether DJ auto-advance is engaged.
func (c *Controller) DJActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.djActive
}

func (c *Controller) play(ctx context.Context, query string) {
	c.mu.Lock()
	track, err := c.library.Resolve(query)
	c.mu.Unlock()
	if err != nil {
		c.Log().Warn("track resolution failed", "query", query, "err", err)
		c.respond(err.Error(), true)
		return
	}
	c.startTrack(ctx, track)
}

// playNext plays the head of the explicit queue when one is waiting.
// Otherwise it advances to the track after the current one in insertion
// order, wrapping at the end; with nothing playing it starts from the first
// track.
func (c *Controller) playNext(ctx context.Context) {
	c.mu.Lock()
	if len(c.queue) > 0 {
		track := c.queue[0]
		c.queue = c.queue[1:]
		names := queueNames(c.queue)
		c.mu.Unlock()
		c.Emit(events.MusicQueueUpdated, events.QueueUpdate{Base: events.NewBase(), Tracks: names})
		c.startTrack(ctx, track)
		return
	}
	tracks := c.library.Tracks()
	from := c.lastPath
	if c.current != nil {
		from = c.current.track.Path
	}
	next := 0
	if from != "" {
		for i, t := range tracks {
			if t.Path == from {
				next = (i + 1) % len(tracks)
				break
			}
		}
	}
	c.mu.Unlock()

	if len(tracks) == 0 {
		c.respond("music library is empty", true)
		return
	}
	c.startTrack(ctx, tracks[next])
}

func (c *Controller) startTrack(ctx context.Context, track Track) {
	// Single-player invariant: the old player is released before a new
	// one is acquired, on every path.
	c.stopPlayback(true)

	c.mu.Lock()
	volume := c.cfg.NormalVolume
	if c.speaking && c.mode == "INTERACTIVE" {
		volume = c.cfg.DuckingVolume
	}
	c.mu.Unlock()

	p, err := c.backend.Play(ctx, track.Path, volume)
	if err != nil {
		c.Log().Error("playback failed", "track", track.Name, "err", err)
		c.respond("playback failed: "+err.Error(), true)
		return
	}

	pb := &playback{
		track:     track,
		player:    p,
		startedAt: time.Now(),
		cancel:    make(chan struct{}),
	}
	c.mu.Lock()
	c.current = pb
	c.lastPath = track.Path
	c.mu.Unlock()

	go c.watch(pb)

	c.Emit(events.MusicPlaybackStarted, events.MusicPlayback{
		Base:            events.NewBase(),
		Track:           track.Name,
		DurationSeconds: track.Duration.Seconds(),
		StartTimestamp:  float64(pb.startedAt.UnixNano()) / float64(time.Second),
	})
	c.Log().Info("playback started", "track", track.Name)
}

// watch emits progress ticks and the end-of-track events for one playback.
// It exits when the track finishes or the slot is released.
func (c *Controller) watch(pb *playback) {
	ticker := time.NewTicker(c.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pb.cancel:
			return

		case <-pb.player.Done():
			c.mu.Lock()
			if c.current == pb {
				c.current = nil
			}
			c.mu.Unlock()
			pb.player.Stop()
			c.Emit(events.MusicPlaybackStopped, events.MusicPlayback{
				Base:  events.NewBase(),
				Track: pb.track.Name,
			})
			c.Emit(events.TrackEnded, events.MusicPlayback{
				Base:            events.NewBase(),
				Track:           pb.track.Name,
				DurationSeconds: pb.track.Duration.Seconds(),
			})
			c.Log().Info("track ended", "track", pb.track.Name)
			return

		case <-ticker.C:
			position := pb.player.Position()
			duration := pb.track.Duration
			progress := 0.0
			if duration > 0 {
				progress = min(position.Seconds()/duration.Seconds(), 1)
			}
			c.Emit(events.MusicProgress, events.PlaybackProgress{
				Base:            events.NewBase(),
				Track:           pb.track.Name,
				PositionSeconds: position.Seconds(),
				DurationSeconds: duration.Seconds(),
				Progress:        progress,
			})
		}
	}
}

// stopPlayback releases the current player. The stopped event is emitted
// only when announce is true; the service-stop path stays silent.
func (c *Controller) stopPlayback(announce bool) {
	c.mu.Lock()
	pb := c.current
	c.current = nil
	c.mu.Unlock()
	if pb == nil {
		return
	}

	close(pb.cancel)
	if err := pb.player.Stop(); err != nil {
		c.Log().Warn("player stop failed", "track", pb.track.Name, "err", err)
	}
	if announce {
		c.Emit(events.MusicPlaybackStopped, events.MusicPlayback{
			Base:  events.NewBase(),
			Track: pb.track.Name,
		})
	}
	c.Log().Info("playback stopped", "track", pb.track.Name)
}

func (c *Controller) pause() {
	c.mu.Lock()
	pb := c.current
	c.mu.Unlock()
	if pb == nil {
		c.respond("nothing is playing", true)
		return
	}
	if err := pb.player.Pause(); err != nil {
		c.respond("pause failed: "+err.Error(), true)
		return
	}
	c.Log().Info("playback paused", "track", pb.track.Name)
	c.respond("playback paused", false)
}

func (c *Controller) resume() {
	c.mu.Lock()
	pb := c.current
	c.mu.Unlock()
	if pb == nil {
		c.respond("nothing is paused", true)
		return
	}
	if err := pb.player.Resume(); err != nil {
		c.respond("resume failed: "+err.Error(), true)
		return
	}
	c.Log().Info("playback resumed", "track", pb.track.Name)
	c.respond("playback resumed", false)
}

// enqueue resolves the query and appends the track to the explicit queue.
// Queued tracks play in order as the current one ends, ahead of the DJ
// rotation.
func (c *Controller) enqueue(query string) {
	c.mu.Lock()
	track, err := c.library.Resolve(query)
	if err != nil {
		c.mu.Unlock()
		c.respond(err.Error(), true)
		return
	}
	c.queue = append(c.queue, track)
	names := queueNames(c.queue)
	c.mu.Unlock()

	c.Emit(events.MusicQueueUpdated, events.QueueUpdate{Base: events.NewBase(), Tracks: names})
	c.respond(fmt.Sprintf("queued %q (%d waiting)", track.Name, len(names)), false)
}

func queueNames(queue []Track) []string {
	names := make([]string, len(queue))
	for i, t := range queue {
		names[i] = t.Name
	}
	return names
}

func (c *Controller) setVolume(level float64) {
	if level < 0 || level > 1 {
		c.respond(fmt.Sprintf("volume %.2f out of range [0, 1]", level), true)
		return
	}
	c.mu.Lock()
	c.cfg.NormalVolume = level
	pb := c.current
	apply := !c.speaking || c.mode != "INTERACTIVE"
	c.mu.Unlock()

	if pb != nil && apply {
		if err := pb.player.SetVolume(level); err != nil {
			c.Log().Warn("volume change failed", "err", err)
		}
	}
	c.respond(fmt.Sprintf("volume set to %.0f%%", level*100), false)
}

func (c *Controller) install(ctx context.Context, dir string) {
	c.mu.Lock()
	libDir := c.libDir
	c.mu.Unlock()
	if libDir == "" {
		c.respond("no library directory available", true)
		return
	}

	copied, err := Install(dir, libDir)
	if err != nil {
		c.respond("install failed: "+err.Error(), true)
		return
	}

	lib, _, err := ScanLibrary(ctx, c.backend, []string{libDir})
	if err != nil {
		c.respond("library reload failed: "+err.Error(), true)
		return
	}
	c.mu.Lock()
	c.library = lib
	c.mu.Unlock()

	c.respond(fmt.Sprintf("installed %d tracks, library now has %d", copied, lib.Len()), false)
}

func (c *Controller) formatList() string {
	c.mu.Lock()
	tracks := c.library.Tracks()
	c.mu.Unlock()
	if len(tracks) == 0 {
		return "music library is empty"
	}

	var sb strings.Builder
	sb.WriteString("Music library:\n")
	for i, t := range tracks {
		fmt.Fprintf(&sb, "  %d. %s", i+1, t.Name)
		if t.Duration > 0 {
			fmt.Fprintf(&sb, " (%s)", t.Duration.Round(time.Second))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Controller) handleSpeechStarted(_ context.Context, _ bus.Event) {
	c.mu.Lock()
	c.speaking = true
	pb := c.current
	duck := c.mode == "INTERACTIVE"
	level := c.cfg.DuckingVolume
	c.mu.Unlock()

	if pb != nil && duck {
		if err := pb.player.SetVolume(level); err != nil {
			c.Log().Warn("duck failed", "err", err)
		}
	}
}

func (c *Controller) handleSpeechEnded(_ context.Context, _ bus.Event) {
	c.mu.Lock()
	wasSpeaking := c.speaking
	c.speaking = false
	pb := c.current
	level := c.cfg.NormalVolume
	c.mu.Unlock()

	// Restore is idempotent: completed and ended both land here.
	if pb != nil && wasSpeaking {
		if err := pb.player.SetVolume(level); err != nil {
			c.Log().Warn("volume restore failed", "err", err)
		}
	}
}

func (c *Controller) handleModeChange(_ context.Context, evt bus.Event) {
	ch, ok := evt.Payload.(events.ModeChange)
	if !ok {
		return
	}
	c.mu.Lock()
	c.mode = ch.NewMode
	c.mu.Unlock()

	if ch.NewMode == "IDLE" {
		c.stopPlayback(true)
	}
}

func (c *Controller) respond(message string, isErr bool) {
	c.Emit(events.CLIResponse, events.CommandResponse{
		Base:    events.NewBase(),
		Message: message,
		IsError: isErr,
	})
}
