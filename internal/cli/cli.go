// Package cli implements the terminal command surface: a line reader on
// process stdin feeding the command pipeline, and a printer for cli.response
// feedback.
//
// The reader runs on its own goroutine because stdin reads block; it never
// touches service state directly and hands each line to the event loop
// through a bounded channel, mirroring how the audio callback and button
// listener bridge into the bus.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/command"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/pkg/events"
)

const prompt = "dj> "

// lineQueueSize bounds the pending-line channel. A human typing cannot
// realistically overflow it; pasted bursts beyond the bound are dropped
// with a warning.
const lineQueueSize = 64

var helpText = strings.TrimSpace(`
Commands:
  engage (e)                 enter INTERACTIVE mode
  ambient (a)                enter AMBIENT mode
  disengage (d)              return to IDLE mode
  status (st)                show service status
  record (rec) / done        start / finish a voice capture session
  reset (r)                  clear the conversation and return to IDLE
  list music (l)             list the music library
  play music <n|name> (p)    play a track by number or name
  stop music (s)             stop playback
  dj start|stop|next         DJ mode control
  debug level <svc|all> <LVL>  change log levels
  help (h)                   show this help
  quit (q) / exit            shut down
`)

// Service is the terminal command surface.
type Service struct {
	*service.Base

	in  io.Reader
	out io.Writer

	lines chan string
	done  chan struct{}
	wg    sync.WaitGroup
}

// Option configures the Service during construction.
type Option func(*Service)

// WithStreams overrides stdin/stdout, for tests.
func WithStreams(in io.Reader, out io.Writer) Option {
	return func(s *Service) {
		s.in = in
		s.out = out
	}
}

// New creates the CLI service reading from stdin and writing to stdout.
func New(b *bus.Bus, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		Base:  service.NewBase("cli", b, log),
		in:    os.Stdin,
		out:   os.Stdout,
		lines: make(chan string, lineQueueSize),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start subscribes to responses and launches the reader and consumer
// goroutines.
func (s *Service) Start(ctx context.Context) error {
	return s.StartWithHooks(ctx, service.Hooks{OnStart: func(_ context.Context) error {
		s.Subscribe(events.CLIResponse, s.handleResponse)

		s.wg.Add(1)
		go s.consume()
		go s.read()

		fmt.Fprint(s.out, prompt)
		return nil
	}})
}

// Stop stops the consumer. The reader goroutine may stay blocked in a stdin
// read until the process exits; it holds no resources and its sends are
// gated on the done channel.
func (s *Service) Stop(ctx context.Context) error {
	return s.StopWithHooks(ctx, service.Hooks{OnStop: func(_ context.Context) error {
		close(s.done)
		s.wg.Wait()
		return nil
	}})
}

// read pulls lines off stdin on a dedicated goroutine and hands them to the
// consumer through the bounded channel.
func (s *Service) read() {
	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		select {
		case <-s.done:
			return
		case s.lines <- scanner.Text():
		default:
			s.Log().Warn("input line dropped, queue full")
		}
	}
	if err := scanner.Err(); err != nil {
		s.Log().Warn("stdin read error", "err", err)
	}
}

// consume parses and dispatches queued lines on the service side.
func (s *Service) consume() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case line := <-s.lines:
			s.handleLine(line)
		}
	}
}

func (s *Service) handleLine(line string) {
	cmd := command.Parse(line)
	if cmd.Name == "" {
		fmt.Fprint(s.out, prompt)
		return
	}

	// help renders locally; everything else goes through the dispatcher.
	if cmd.Name == "help" {
		fmt.Fprintln(s.out, helpText)
		fmt.Fprint(s.out, prompt)
		return
	}

	topic := command.Dispatch(s, cmd)
	s.Log().Debug("dispatched command", "command", cmd.Name, "topic", topic)
	fmt.Fprint(s.out, prompt)
}

// handleResponse prints bus feedback to the terminal, prefixing errors with
// their severity.
func (s *Service) handleResponse(_ context.Context, evt bus.Event) {
	resp, ok := evt.Payload.(events.CommandResponse)
	if !ok {
		return
	}
	if resp.IsError {
		fmt.Fprintf(s.out, "ERROR: %s\n%s", resp.Message, prompt)
		return
	}
	fmt.Fprintf(s.out, "%s\n%s", resp.Message, prompt)
}
