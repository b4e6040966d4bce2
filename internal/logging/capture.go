package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
)

const (
	// ringSize is the number of recent entries kept in memory for the
	// debug console.
	ringSize = 1000

	// dedupWindow suppresses byte-identical entries from the same
	// component within this interval.
	dedupWindow = 30 * time.Second

	// maxEntriesPerSecond trips the circuit breaker. A service stuck in a
	// log loop must not drown the file writer or the dashboard.
	maxEntriesPerSecond = 50

	// fileQueueSize bounds the handoff between the capture tap and the
	// batch writer. The tap runs on the caller's goroutine and never
	// blocks.
	fileQueueSize = 512

	flushInterval = 250 * time.Millisecond
	flushBatch    = 32

	// infoThrottle limits dashboard-bound INFO entries to one per
	// component per interval. Warnings and errors always pass.
	infoThrottle = time.Second

	// dedupPruneSize caps the dedup key map before stale keys are swept.
	dedupPruneSize = 4096
)

// Capture is the log capture service. Handlers feed it through Submit; it
// keeps the in-memory ring, writes batched lines to the rotating session log
// file, and republishes entries on the bus for the dashboard.
type Capture struct {
	*service.Base

	cfg       Config
	sessionID string
	sink      io.WriteCloser
	now       func() time.Time

	mu          sync.Mutex
	ring        []Entry
	next        int
	filled      int
	lastSeen    map[string]time.Time
	windowStart time.Time
	windowCount int
	lastInfo    map[string]time.Time
	queue       chan Entry

	dropped    atomic.Uint64
	queueDrops atomic.Uint64
	wg         sync.WaitGroup
}

// Config holds the session log file settings.
type Config struct {
	// Dir is the directory session log files are written to.
	Dir string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig returns the stock capture settings.
func DefaultConfig() Config {
	return Config{Dir: "logs", MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 14}
}

// Option customizes a Capture.
type Option func(*Capture)

// WithSink replaces the rotating file sink, for tests.
func WithSink(w io.WriteCloser) Option {
	return func(c *Capture) { c.sink = w }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Capture) { c.now = now }
}

// NewCapture creates the capture service.
func NewCapture(b *bus.Bus, log *slog.Logger, cfg Config, opts ...Option) *Capture {
	c := &Capture{
		Base:     service.NewBase("log_capture", b, log),
		cfg:      cfg,
		now:      time.Now,
		ring:     make([]Entry, ringSize),
		lastSeen: make(map[string]time.Time),
		lastInfo: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start names the session, opens the rotating sink, and launches the batch
// writer.
func (c *Capture) Start(ctx context.Context) error {
	return c.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		c.sessionID = "session_" + c.now().Format("20060102_150405")
		if c.sink == nil {
			c.sink = &lumberjack.Logger{
				Filename:   filepath.Join(c.cfg.Dir, c.sessionID+".log"),
				MaxSize:    c.cfg.MaxSizeMB,
				MaxBackups: c.cfg.MaxBackups,
				MaxAge:     c.cfg.MaxAgeDays,
				Compress:   true,
			}
		}
		queue := make(chan Entry, fileQueueSize)
		c.mu.Lock()
		c.queue = queue
		c.mu.Unlock()
		c.wg.Add(1)
		go c.writer(queue)
		return nil
	}})
}

// Stop drains the writer and closes the sink. Entries already queued are
// flushed before shutdown completes.
func (c *Capture) Stop(ctx context.Context) error {
	return c.StopWithHooks(ctx, service.Hooks{OnStop: func(_ context.Context) error {
		c.mu.Lock()
		queue := c.queue
		c.queue = nil
		c.mu.Unlock()
		if queue != nil {
			close(queue)
			c.wg.Wait()
		}
		if c.sink != nil {
			return c.sink.Close()
		}
		return nil
	}})
}

// SessionID returns the timestamped session identifier, empty before Start.
func (c *Capture) SessionID() string {
	return c.sessionID
}

// Submit accepts one entry from a handler tap. It applies the circuit
// breaker and the dedup window, records the entry in the ring, and hands it
// to the batch writer without blocking. Safe for concurrent use.
func (c *Capture) Submit(e Entry) {
	now := c.now()

	c.mu.Lock()
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	if c.windowCount > maxEntriesPerSecond {
		c.mu.Unlock()
		c.dropped.Add(1)
		return
	}

	key := e.Service + "|" + e.Level.String() + "|" + e.Message
	if last, ok := c.lastSeen[key]; ok && now.Sub(last) < dedupWindow {
		c.mu.Unlock()
		c.dropped.Add(1)
		return
	}
	if len(c.lastSeen) >= dedupPruneSize {
		for k, t := range c.lastSeen {
			if now.Sub(t) >= dedupWindow {
				delete(c.lastSeen, k)
			}
		}
	}
	c.lastSeen[key] = now

	c.ring[c.next] = e
	c.next = (c.next + 1) % ringSize
	if c.filled < ringSize {
		c.filled++
	}
	queue := c.queue
	c.mu.Unlock()

	if queue == nil {
		return
	}
	select {
	case queue <- e:
	default:
		c.queueDrops.Add(1)
	}
}

// Recent returns up to n of the most recent entries, oldest first.
func (c *Capture) Recent(n int) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.filled {
		n = c.filled
	}
	out := make([]Entry, 0, n)
	start := (c.next - n + ringSize) % ringSize
	for i := 0; i < n; i++ {
		out = append(out, c.ring[(start+i)%ringSize])
	}
	return out
}

// Dropped returns the number of entries suppressed by the breaker, the dedup
// window, or a full writer queue.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load() + c.queueDrops.Load()
}

// ─── Batch writer ────────────────────────────────────────────────────────────

func (c *Capture) writer(queue <-chan Entry) {
	defer c.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)
	for {
		select {
		case e, ok := <-queue:
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush writes one batch to the session log file and republishes each entry
// for the dashboard, throttling INFO chatter per component.
func (c *Capture) flush(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	var b strings.Builder
	for _, e := range batch {
		fmt.Fprintf(&b, "%s %-5s [%s] %s\n",
			e.Time.Format("2006-01-02 15:04:05.000"), e.Level.String(), e.Service, e.Message)
	}
	if _, err := io.WriteString(c.sink, b.String()); err != nil {
		c.queueDrops.Add(uint64(len(batch)))
	}

	for _, e := range batch {
		if e.Level < slog.LevelWarn && !c.allowInfo(e.Service) {
			continue
		}
		c.Emit(events.DashboardLog, events.LogEntry{
			Base:      events.NewBase(),
			EntryID:   uuid.NewString(),
			SessionID: c.sessionID,
			Level:     e.Level.String(),
			Service:   e.Service,
			Message:   e.Message,
		})
	}
}

func (c *Capture) allowInfo(service string) bool {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastInfo[service]; ok && now.Sub(last) < infoThrottle {
		return false
	}
	c.lastInfo[service] = now
	return true
}
