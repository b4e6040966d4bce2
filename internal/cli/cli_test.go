package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/pkg/events"
)

// lockedBuffer makes bytes.Buffer safe for the prompt writer and the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startCLI(t *testing.T, b *bus.Bus, input string) *lockedBuffer {
	t.Helper()
	out := &lockedBuffer{}
	s := New(b, nil, WithStreams(strings.NewReader(input), out))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })
	return out
}

func waitOutput(t *testing.T, out *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, out.String())
}

func TestCLI_DispatchesParsedLines(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	requests := make(chan events.MusicRequest, 1)
	b.Subscribe(events.MusicCommand, func(_ context.Context, evt bus.Event) {
		requests <- evt.Payload.(events.MusicRequest)
	})

	startCLI(t, b, "p cantina band\n")

	select {
	case req := <-requests:
		if req.Action != "play" || req.SongQuery != "cantina band" {
			t.Errorf("request = %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shortcut line not dispatched")
	}
}

func TestCLI_HelpRendersLocally(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	out := startCLI(t, b, "help\n")
	waitOutput(t, out, "show this help")
}

func TestCLI_PrintsBusResponses(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	out := startCLI(t, b, "")
	b.Emit(events.CLIResponse, events.CommandResponse{
		Base: events.NewBase(), Message: "volume set to 80%",
	})
	waitOutput(t, out, "volume set to 80%")

	b.Emit(events.CLIResponse, events.CommandResponse{
		Base: events.NewBase(), Message: "no such track", IsError: true,
	})
	waitOutput(t, out, "ERROR: no such track")
}

func TestCLI_QuitRequestsShutdown(t *testing.T) {
	b := bus.New()
	defer b.Stop(context.Background())

	requested := make(chan events.ShutdownRequest, 1)
	b.Subscribe(events.SystemShutdownRequested, func(_ context.Context, evt bus.Event) {
		requested <- evt.Payload.(events.ShutdownRequest)
	})

	startCLI(t, b, "q\n")

	select {
	case req := <-requested:
		if req.Source != "cli" {
			t.Errorf("source = %q, want cli", req.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("quit did not request shutdown")
	}
}
