package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/config"
	"github.com/cantina-works/cantinaos/internal/logging"
	"github.com/cantina-works/cantinaos/internal/mode"
	audiomock "github.com/cantina-works/cantinaos/pkg/audio/mock"
	"github.com/cantina-works/cantinaos/pkg/events"
	hidmock "github.com/cantina-works/cantinaos/pkg/hid/mock"
	lightsmock "github.com/cantina-works/cantinaos/pkg/lights/mock"
	playermock "github.com/cantina-works/cantinaos/pkg/player/mock"
	llmmock "github.com/cantina-works/cantinaos/pkg/provider/llm/mock"
	sttmock "github.com/cantina-works/cantinaos/pkg/provider/stt/mock"
	ttsmock "github.com/cantina-works/cantinaos/pkg/provider/tts/mock"
)

// memSink is an in-memory replacement for the rotating log file.
type memSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (m *memSink) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

func (m *memSink) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	cfg.Server.Port = 0 // let the kernel pick
	cfg.Music.Directories = []string{t.TempDir()}
	return cfg
}

func fullProviders() *Providers {
	return &Providers{
		Audio:  &audiomock.Input{},
		STT:    &sttmock.Provider{},
		LLM:    &llmmock.Provider{},
		TTS:    &ttsmock.Provider{},
		Player: &playermock.Backend{},
		Button: &hidmock.Listener{},
		Eyes:   &lightsmock.Controller{},
	}
}

func startApp(t *testing.T, providers *Providers, opts ...Option) *App {
	t.Helper()
	opts = append(opts,
		WithCaptureOptions(logging.WithSink(&memSink{})),
		WithCLIStreams(strings.NewReader(""), io.Discard),
	)
	a, err := New(testConfig(t), providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Shutdown(ctx)
	})
	return a
}

func awaitResponse(t *testing.T, b *bus.Bus) chan events.CommandResponse {
	t.Helper()
	ch := make(chan events.CommandResponse, 4)
	b.Subscribe(events.CLIResponse, func(_ context.Context, evt bus.Event) {
		if resp, ok := evt.Payload.(events.CommandResponse); ok {
			ch <- resp
		}
	})
	return ch
}

func TestApp_StartAdvancesToIdle(t *testing.T) {
	a := startApp(t, fullProviders())

	if got := a.Mode().Current(); got != mode.ModeIdle {
		t.Errorf("mode after start = %s, want IDLE", got)
	}
	if a.DashboardAddr() == "" {
		t.Error("dashboard address empty after start")
	}
}

func TestApp_NilProvidersSkipOptionalServices(t *testing.T) {
	a := startApp(t, &Providers{})

	names := map[string]bool{}
	for _, svc := range a.Services() {
		names[svc.Name()] = true
	}
	for _, want := range []string{"log_capture", "mode_manager", "debug", "intent_router", "cli", "web_bridge"} {
		if !names[want] {
			t.Errorf("core service %q missing", want)
		}
	}
	for _, skip := range []string{"mic", "music", "eyes", "button"} {
		if names[skip] {
			t.Errorf("service %q present without its provider", skip)
		}
	}
}

func TestApp_StatusCommandReportsServices(t *testing.T) {
	a := startApp(t, fullProviders())
	responses := awaitResponse(t, a.Bus())

	a.Bus().Emit(events.CLICommand, events.Command{
		Base: events.NewBase(), Command: "status", RawInput: "status",
	})

	select {
	case resp := <-responses:
		if resp.IsError {
			t.Fatalf("status returned error: %s", resp.Message)
		}
		if !strings.Contains(resp.Message, "System mode: IDLE") {
			t.Errorf("status missing mode line:\n%s", resp.Message)
		}
		if !strings.Contains(resp.Message, "mode_manager") {
			t.Errorf("status missing service rows:\n%s", resp.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response to status command")
	}
}

func TestApp_UnknownCommandIsAnError(t *testing.T) {
	a := startApp(t, &Providers{})
	responses := awaitResponse(t, a.Bus())

	a.Bus().Emit(events.CLICommand, events.Command{
		Base: events.NewBase(), Command: "warble", RawInput: "warble",
	})

	select {
	case resp := <-responses:
		if !resp.IsError || !strings.Contains(resp.Message, "warble") {
			t.Errorf("response = %+v, want error naming the command", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response to unknown command")
	}
}

func TestApp_EyeStatusWithoutControllerErrors(t *testing.T) {
	a := startApp(t, &Providers{})
	responses := awaitResponse(t, a.Bus())

	a.Bus().Emit(events.CLICommand, events.Command{
		Base: events.NewBase(), Command: "eye", Subcommand: "status",
	})

	select {
	case resp := <-responses:
		if !resp.IsError {
			t.Errorf("eye status without controller succeeded: %s", resp.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response to eye status")
	}
}

func TestApp_EyePatternCommandReachesController(t *testing.T) {
	providers := fullProviders()
	a := startApp(t, providers)
	eyes := a.eyes

	a.Bus().Emit(events.CLICommand, events.Command{
		Base: events.NewBase(), Command: "eye", Subcommand: "pattern", Args: []string{"Rainbow"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eyes.Current().Pattern == "rainbow" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pattern = %q, want rainbow", eyes.Current().Pattern)
}

func TestApp_ShutdownRequestUnblocksRun(t *testing.T) {
	a := startApp(t, &Providers{})

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	a.Bus().Emit(events.SystemShutdownRequested, events.ShutdownRequest{
		Base: events.NewBase(), Source: "test",
	})

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil on requested shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown request")
	}
}

func TestApp_RunReturnsContextError(t *testing.T) {
	a := startApp(t, &Providers{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	a := startApp(t, fullProviders())

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestApp_RefreshConfigReappliesLogLevels(t *testing.T) {
	reloaded := testConfig(t)
	reloaded.Server.LogLevel = config.LogDebug

	a := startApp(t, &Providers{}, WithConfigReloader(func() (*config.Config, error) {
		return reloaded, nil
	}))
	responses := awaitResponse(t, a.Bus())

	a.Bus().Emit(events.CLICommand, events.Command{
		Base: events.NewBase(), Command: "refresh_config", RawInput: "refresh_config",
	})

	select {
	case resp := <-responses:
		if resp.IsError {
			t.Fatalf("refresh_config failed: %s", resp.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response to refresh_config")
	}

	if got := a.Levels().LevelFor("anything"); got != slog.LevelDebug {
		t.Errorf("default level after refresh = %v, want debug", got)
	}
}

func TestApp_RefreshConfigWithoutReloaderErrors(t *testing.T) {
	a := startApp(t, &Providers{})
	responses := awaitResponse(t, a.Bus())

	a.Bus().Emit(events.CLICommand, events.Command{
		Base: events.NewBase(), Command: "refresh_config",
	})

	select {
	case resp := <-responses:
		if !resp.IsError {
			t.Errorf("refresh without reloader succeeded: %s", resp.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response")
	}
}
