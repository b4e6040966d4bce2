package music

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/player"
	playermock "github.com/cantina-works/cantinaos/pkg/player/mock"
)

func testController(t *testing.T, b *bus.Bus) (*Controller, *playermock.Backend) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"Cantina Band.mp3", "Utinni.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	backend := &playermock.Backend{Info: player.TrackInfo{Duration: 2 * time.Minute}}
	cfg := DefaultConfig()
	cfg.Directories = []string{dir}
	cfg.ProgressInterval = 10 * time.Millisecond

	c := New(b, nil, backend, cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { c.Stop(context.Background()) })
	return c, backend
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestController_PlayEmitsStarted(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	started := make(chan events.MusicPlayback, 1)
	b.Subscribe(events.MusicPlaybackStarted, func(_ context.Context, evt bus.Event) {
		started <- evt.Payload.(events.MusicPlayback)
	})

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "Cantina Band"})

	select {
	case mp := <-started:
		if mp.Track != "Cantina Band" {
			t.Errorf("track = %q, want Cantina Band", mp.Track)
		}
		if mp.DurationSeconds != 120 {
			t.Errorf("duration = %v, want 120", mp.DurationSeconds)
		}
		if mp.StartTimestamp == 0 {
			t.Error("start timestamp missing")
		}
	case <-time.After(time.Second):
		t.Fatal("no playback started event")
	}
	if backend.PlayCallCount() != 1 {
		t.Errorf("play calls = %d, want 1", backend.PlayCallCount())
	}
}

func TestController_SinglePlayerInvariant(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "1"})
	waitFor(t, "first play", func() bool { return backend.PlayCallCount() == 1 })
	first := backend.LastPlayer()

	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "2"})
	waitFor(t, "second play", func() bool { return backend.PlayCallCount() == 2 })

	waitFor(t, "first player released", first.Stopped)
}

func TestController_StopReleasesAndAnnounces(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	stopped := make(chan events.MusicPlayback, 2)
	b.Subscribe(events.MusicPlaybackStopped, func(_ context.Context, evt bus.Event) {
		stopped <- evt.Payload.(events.MusicPlayback)
	})

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "1"})
	waitFor(t, "play", func() bool { return backend.PlayCallCount() == 1 })

	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "stop"})

	select {
	case mp := <-stopped:
		if mp.Track != "Cantina Band" {
			t.Errorf("stopped track = %q", mp.Track)
		}
	case <-time.After(time.Second):
		t.Fatal("no stopped event")
	}
	if !backend.LastPlayer().Stopped() {
		t.Error("player not released on stop")
	}
}

func TestController_DucksOnlyWhileInteractive(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "1"})
	waitFor(t, "play", func() bool { return backend.PlayCallCount() == 1 })
	p := backend.LastPlayer()

	// Not INTERACTIVE yet: speech must not duck.
	b.Emit(events.SpeechSynthesisStarted, events.SpeechSynthesis{Base: events.NewBase(), Text: "hi"})
	time.Sleep(50 * time.Millisecond)
	if got := p.Volume(); got != 0.8 {
		t.Errorf("volume = %v after speech outside INTERACTIVE, want 0.8", got)
	}
	b.Emit(events.SpeechSynthesisEnded, events.SpeechSynthesis{Base: events.NewBase()})

	b.Emit(events.SystemModeChange, events.ModeChange{Base: events.NewBase(), OldMode: "IDLE", NewMode: "INTERACTIVE"})
	time.Sleep(50 * time.Millisecond)

	b.Emit(events.SpeechSynthesisStarted, events.SpeechSynthesis{Base: events.NewBase(), Text: "hi"})
	waitFor(t, "duck", func() bool { return p.Volume() == 0.3 })

	b.Emit(events.SpeechSynthesisEnded, events.SpeechSynthesis{Base: events.NewBase()})
	waitFor(t, "restore", func() bool { return p.Volume() == 0.8 })

	// completed after ended is idempotent.
	b.Emit(events.SpeechSynthesisCompleted, events.SpeechSynthesis{Base: events.NewBase()})
	time.Sleep(50 * time.Millisecond)
	if got := p.Volume(); got != 0.8 {
		t.Errorf("volume = %v after duplicate restore, want 0.8", got)
	}
}

func TestController_ProgressTicks(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	progress := make(chan events.PlaybackProgress, 8)
	b.Subscribe(events.MusicProgress, func(_ context.Context, evt bus.Event) {
		progress <- evt.Payload.(events.PlaybackProgress)
	})

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "1"})
	waitFor(t, "play", func() bool { return backend.PlayCallCount() == 1 })
	backend.LastPlayer().SetPosition(30 * time.Second)

	select {
	case mp := <-progress:
		if mp.DurationSeconds != 120 {
			t.Errorf("duration = %v, want 120", mp.DurationSeconds)
		}
		if mp.Progress < 0 || mp.Progress > 1 {
			t.Errorf("progress = %v, want within [0,1]", mp.Progress)
		}
	case <-time.After(time.Second):
		t.Fatal("no progress event")
	}
}

func TestController_NaturalEndEmitsTrackEnded(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	ended := make(chan events.MusicPlayback, 1)
	b.Subscribe(events.TrackEnded, func(_ context.Context, evt bus.Event) {
		ended <- evt.Payload.(events.MusicPlayback)
	})
	stopped := make(chan events.MusicPlayback, 1)
	b.Subscribe(events.MusicPlaybackStopped, func(_ context.Context, evt bus.Event) {
		stopped <- evt.Payload.(events.MusicPlayback)
	})

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "1"})
	waitFor(t, "play", func() bool { return backend.PlayCallCount() == 1 })

	backend.LastPlayer().FinishTrack()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("no stopped event on natural end")
	}
	select {
	case mp := <-ended:
		if mp.Track != "Cantina Band" {
			t.Errorf("ended track = %q", mp.Track)
		}
	case <-time.After(time.Second):
		t.Fatal("no track.ended event")
	}
}

func TestController_IdleModeStopsPlayback(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "1"})
	waitFor(t, "play", func() bool { return backend.PlayCallCount() == 1 })

	b.Emit(events.SystemModeChange, events.ModeChange{Base: events.NewBase(), OldMode: "AMBIENT", NewMode: "IDLE"})
	waitFor(t, "player released on IDLE", backend.LastPlayer().Stopped)
}

func TestController_ListRespondsWithEnumeratedTracks(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	responses := make(chan events.CommandResponse, 1)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		responses <- evt.Payload.(events.CommandResponse)
	})

	testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "list"})

	select {
	case resp := <-responses:
		if resp.IsError {
			t.Fatalf("list errored: %s", resp.Message)
		}
		for _, want := range []string{"1. Cantina Band", "2. Utinni"} {
			if !strings.Contains(resp.Message, want) {
				t.Errorf("list missing %q:\n%s", want, resp.Message)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("no list response")
	}
}

func TestController_UnknownQueryRespondsError(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	responses := make(chan events.CommandResponse, 1)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		responses <- evt.Payload.(events.CommandResponse)
	})

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "xzqwv"})

	select {
	case resp := <-responses:
		if !resp.IsError {
			t.Errorf("unknown query accepted: %s", resp.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("no error response")
	}
	if backend.PlayCallCount() != 0 {
		t.Errorf("play calls = %d, want 0", backend.PlayCallCount())
	}
}

func TestController_DJStartBeginsPlayback(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	c, backend := testController(t, b)
	b.Emit(events.DJCommand, events.DJRequest{Base: events.NewBase(), Action: "start"})

	waitFor(t, "dj playback", func() bool { return backend.PlayCallCount() == 1 })
	if !c.DJActive() {
		t.Error("dj mode not active after start")
	}
}

func TestController_DJAutoAdvancesOnTrackEnd(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	c, backend := testController(t, b)
	b.Emit(events.DJCommand, events.DJRequest{Base: events.NewBase(), Action: "start"})
	waitFor(t, "first track", func() bool { return backend.PlayCallCount() == 1 })

	backend.LastPlayer().FinishTrack()
	waitFor(t, "auto-advance", func() bool { return backend.PlayCallCount() == 2 })
	if backend.PlayCalls[0].Path == backend.PlayCalls[1].Path {
		t.Errorf("auto-advance replayed %q instead of moving on", backend.PlayCalls[0].Path)
	}

	// Stopping dj mode ends the chain: the next natural end stays quiet.
	b.Emit(events.DJCommand, events.DJRequest{Base: events.NewBase(), Action: "stop"})
	waitFor(t, "dj off", func() bool { return !c.DJActive() })
	backend.LastPlayer().FinishTrack()
	time.Sleep(50 * time.Millisecond)
	if got := backend.PlayCallCount(); got != 2 {
		t.Errorf("play calls after dj stop = %d, want 2", got)
	}
}

func TestController_DJSettingsDisableAutoTransition(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	_, backend := testController(t, b)
	b.Emit(events.DJCommand, events.DJRequest{Base: events.NewBase(), Action: "start"})
	waitFor(t, "first track", func() bool { return backend.PlayCallCount() == 1 })

	b.Emit(events.DJCommand, events.DJRequest{
		Base: events.NewBase(), Action: "update_settings", AutoTransition: false,
	})
	// Give the settings change time to land before ending the track.
	time.Sleep(20 * time.Millisecond)

	backend.LastPlayer().FinishTrack()
	time.Sleep(50 * time.Millisecond)
	if got := backend.PlayCallCount(); got != 1 {
		t.Errorf("play calls with auto_transition off = %d, want 1", got)
	}
}

func TestController_PauseAndResume(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	responses := make(chan events.CommandResponse, 4)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		responses <- evt.Payload.(events.CommandResponse)
	})

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "1"})
	waitFor(t, "play", func() bool { return backend.PlayCallCount() == 1 })
	p := backend.LastPlayer()

	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "pause"})
	waitFor(t, "pause", p.Paused)
	select {
	case resp := <-responses:
		if resp.IsError || !strings.Contains(resp.Message, "paused") {
			t.Errorf("pause response = %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("no pause response")
	}

	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "resume"})
	waitFor(t, "resume", func() bool { return !p.Paused() })
	if p.Stopped() {
		t.Error("pause/resume released the player")
	}
}

func TestController_PauseWithoutPlaybackErrors(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	responses := make(chan events.CommandResponse, 1)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		responses <- evt.Payload.(events.CommandResponse)
	})

	testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "pause"})

	select {
	case resp := <-responses:
		if !resp.IsError {
			t.Errorf("pause with nothing playing succeeded: %s", resp.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("no response")
	}
}

func TestController_QueuedTrackPlaysAfterCurrent(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	updates := make(chan events.QueueUpdate, 2)
	b.Subscribe(events.MusicQueueUpdated, func(_ context.Context, evt bus.Event) {
		updates <- evt.Payload.(events.QueueUpdate)
	})

	_, backend := testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "play", SongQuery: "Cantina Band"})
	waitFor(t, "play", func() bool { return backend.PlayCallCount() == 1 })

	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "queue", SongQuery: "Utinni"})
	select {
	case up := <-updates:
		if len(up.Tracks) != 1 || up.Tracks[0] != "Utinni" {
			t.Errorf("queue update = %v", up.Tracks)
		}
	case <-time.After(time.Second):
		t.Fatal("no queue update")
	}

	// Without DJ mode, the natural end still advances into the queue.
	backend.LastPlayer().FinishTrack()
	waitFor(t, "queued track", func() bool { return backend.PlayCallCount() == 2 })
	if !strings.HasSuffix(backend.PlayCalls[1].Path, "Utinni.mp3") {
		t.Errorf("second play = %q, want the queued track", backend.PlayCalls[1].Path)
	}

	select {
	case up := <-updates:
		if len(up.Tracks) != 0 {
			t.Errorf("queue after advance = %v, want empty", up.Tracks)
		}
	case <-time.After(time.Second):
		t.Fatal("no queue drain update")
	}
}

func TestController_QueueUnknownTrackErrors(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	responses := make(chan events.CommandResponse, 1)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		responses <- evt.Payload.(events.CommandResponse)
	})

	testController(t, b)
	b.Emit(events.MusicCommand, events.MusicRequest{Base: events.NewBase(), Action: "queue", SongQuery: "xzqwv"})

	select {
	case resp := <-responses:
		if !resp.IsError {
			t.Errorf("unknown queue query accepted: %s", resp.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("no error response")
	}
}
