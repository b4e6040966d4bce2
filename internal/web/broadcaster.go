package web

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// broadcastInterval is how often the status broadcaster checks for changes.
const broadcastInterval = 2 * time.Second

// broadcastCeiling forces a resend even when nothing changed, so freshly
// connected clients converge without a dedicated replay path.
const broadcastCeiling = 60 * time.Second

// broadcaster is the cached periodic status fan-out: the aggregated service
// map is only resent when it differs from the last transmitted copy or when
// the ceiling interval has elapsed. The voice indicator broadcasts on every
// change.
type broadcaster struct {
	send func(kind string, payload any)
	log  *slog.Logger
	done chan struct{}

	mu       sync.Mutex
	mode     string
	voice    string
	services map[string]string
	lastSent map[string]string
	sentAt   time.Time
}

func newBroadcaster(send func(kind string, payload any), log *slog.Logger) *broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &broadcaster{
		send:     send,
		log:      log,
		done:     make(chan struct{}),
		mode:     "STARTUP",
		voice:    "idle",
		services: make(map[string]string),
	}
}

func (bc *broadcaster) run() {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-bc.done:
			return
		case <-ticker.C:
			bc.tick()
		}
	}
}

func (bc *broadcaster) stop() {
	select {
	case <-bc.done:
	default:
		close(bc.done)
	}
}

// tick sends the service map when it changed or the ceiling elapsed.
func (bc *broadcaster) tick() {
	bc.mu.Lock()
	changed := !maps.Equal(bc.services, bc.lastSent)
	stale := time.Since(bc.sentAt) >= broadcastCeiling
	if len(bc.services) == 0 || (!changed && !stale) {
		bc.mu.Unlock()
		return
	}
	snapshot := maps.Clone(bc.services)
	bc.lastSent = snapshot
	bc.sentAt = time.Now()
	bc.mu.Unlock()

	payload := ServiceStatusBroadcast{Services: snapshot}
	if errs := validateStruct(payload); errs != nil {
		bc.log.Warn("service status failed re-validation", "violations", len(errs))
		bc.send(KindServiceStatus, fallbackPayload{Error: "payload failed validation", Source: KindServiceStatus})
		return
	}
	bc.send(KindServiceStatus, payload)
}

func (bc *broadcaster) setServiceStatus(name, status string) {
	bc.mu.Lock()
	bc.services[name] = status
	bc.mu.Unlock()
}

func (bc *broadcaster) setMode(mode string) {
	bc.mu.Lock()
	bc.mode = mode
	bc.mu.Unlock()
}

// setVoice broadcasts the indicator immediately on change; the UI must not
// wait for a periodic tick to leave a busy state.
func (bc *broadcaster) setVoice(state string) {
	bc.mu.Lock()
	if bc.voice == state {
		bc.mu.Unlock()
		return
	}
	bc.voice = state
	bc.mu.Unlock()
	bc.send(KindVoiceStatus, map[string]string{"state": state})
}

// snapshot returns the current mode, voice state, and service map copy for
// the HTTP status endpoint.
func (bc *broadcaster) snapshot() (mode, voice string, services map[string]string) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.mode, bc.voice, maps.Clone(bc.services)
}
