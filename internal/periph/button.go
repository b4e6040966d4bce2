package periph

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/hid"
)

// buttonQueueSize bounds the hand-off from the device thread to the event
// loop. Presses beyond a full queue are dropped and counted.
const buttonQueueSize = 16

// Button is the push-to-talk trigger service. A press toggles the capture
// session, but only while the system is in INTERACTIVE mode.
type Button struct {
	*service.Base

	listener hid.Listener
	queue    chan hid.ButtonEvent
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	dropped  atomic.Uint64

	mu        sync.Mutex
	mode      string
	capturing bool
}

// NewButton creates the button service around a device listener.
func NewButton(b *bus.Bus, log *slog.Logger, listener hid.Listener) *Button {
	return &Button{
		Base:     service.NewBase("button", b, log),
		listener: listener,
		mode:     "STARTUP",
	}
}

// Start opens the device and begins pumping presses onto the bus.
func (bt *Button) Start(ctx context.Context) error {
	return bt.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		bt.Subscribe(events.SystemModeChange, bt.handleModeChange)
		bt.Subscribe(events.VoiceListeningStarted, bt.captureState(true))
		bt.Subscribe(events.VoiceListeningStopped, bt.captureState(false))

		bt.queue = make(chan hid.ButtonEvent, buttonQueueSize)
		pumpCtx, cancel := context.WithCancel(context.Background())
		bt.cancel = cancel

		// The callback fires on the device thread and must not block.
		if err := bt.listener.Listen(pumpCtx, func(e hid.ButtonEvent) {
			select {
			case bt.queue <- e:
			default:
				bt.dropped.Add(1)
			}
		}); err != nil {
			cancel()
			return err
		}

		bt.wg.Add(1)
		go bt.pump(pumpCtx)
		return nil
	}})
}

// Stop closes the device and drains the pump.
func (bt *Button) Stop(ctx context.Context) error {
	return bt.StopWithHooks(ctx, service.Hooks{OnStop: func(_ context.Context) error {
		if bt.cancel != nil {
			bt.cancel()
		}
		err := bt.listener.Close()
		bt.wg.Wait()
		if n := bt.dropped.Load(); n > 0 {
			bt.Log().Warn("button presses dropped", "count", n)
		}
		return err
	}})
}

// Dropped returns the number of presses lost to a full queue.
func (bt *Button) Dropped() uint64 {
	return bt.dropped.Load()
}

func (bt *Button) pump(ctx context.Context) {
	defer bt.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-bt.queue:
			if e.Pressed {
				bt.toggle(e.Device)
			}
		}
	}
}

// toggle starts or stops a capture session. The local capturing flag flips
// optimistically so a quick double press does not emit two starts; the
// authoritative started/stopped events keep it converged.
func (bt *Button) toggle(device string) {
	bt.mu.Lock()
	if bt.mode != "INTERACTIVE" {
		mode := bt.mode
		bt.mu.Unlock()
		bt.Log().Debug("press ignored outside interactive mode", "device", device, "mode", mode)
		return
	}
	starting := !bt.capturing
	bt.capturing = starting
	bt.mu.Unlock()

	payload := events.VoiceListening{Base: events.NewBase(), Source: "button"}
	if starting {
		bt.Emit(events.VoiceListeningStarted, payload)
		return
	}
	bt.Emit(events.VoiceListeningStopRequested, payload)
}

func (bt *Button) handleModeChange(_ context.Context, evt bus.Event) {
	ch, ok := evt.Payload.(events.ModeChange)
	if !ok {
		return
	}
	bt.mu.Lock()
	bt.mode = ch.NewMode
	bt.mu.Unlock()
}

func (bt *Button) captureState(active bool) bus.Handler {
	return func(_ context.Context, _ bus.Event) {
		bt.mu.Lock()
		bt.capturing = active
		bt.mu.Unlock()
	}
}
