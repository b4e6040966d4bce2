// Package app wires all CantinaOS services into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// services, Start brings them up tier by tier, Run blocks until shutdown
// is requested, and Shutdown tears everything down in reverse order.
//
// Hardware and vendor integrations arrive through the Providers struct.
// A nil provider slot simply disables the services that need it, so a
// development machine without a microphone or LED controller still runs
// the bus, the dashboard, and the command pipeline.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cantina-works/cantinaos/internal/bus"
	"github.com/cantina-works/cantinaos/internal/cli"
	"github.com/cantina-works/cantinaos/internal/config"
	"github.com/cantina-works/cantinaos/internal/debug"
	"github.com/cantina-works/cantinaos/internal/intent"
	"github.com/cantina-works/cantinaos/internal/logging"
	"github.com/cantina-works/cantinaos/internal/mode"
	"github.com/cantina-works/cantinaos/internal/music"
	"github.com/cantina-works/cantinaos/internal/observe"
	"github.com/cantina-works/cantinaos/internal/periph"
	"github.com/cantina-works/cantinaos/internal/service"
	"github.com/cantina-works/cantinaos/internal/voice"
	"github.com/cantina-works/cantinaos/internal/web"
	"github.com/cantina-works/cantinaos/pkg/audio"
	"github.com/cantina-works/cantinaos/pkg/events"
	"github.com/cantina-works/cantinaos/pkg/hid"
	"github.com/cantina-works/cantinaos/pkg/lights"
	"github.com/cantina-works/cantinaos/pkg/player"
	"github.com/cantina-works/cantinaos/pkg/provider/llm"
	"github.com/cantina-works/cantinaos/pkg/provider/stt"
	"github.com/cantina-works/cantinaos/pkg/provider/tts"
)

// Providers holds one implementation per hardware or vendor slot. Nil means
// the slot is not configured and its dependent services are skipped.
// Populated by main.go from the config; tests pass mocks.
type Providers struct {
	Audio  audio.Input
	STT    stt.Provider
	LLM    llm.Provider
	TTS    tts.Provider
	Player player.Backend
	Button hid.Listener
	Eyes   lights.Controller
}

// App owns the bus and every service lifetime.
type App struct {
	cfg       *config.Config
	providers *Providers

	bus     *bus.Bus
	levels  *logging.Levels
	metrics *observe.Metrics

	capture *logging.Capture
	manager *mode.Manager
	music   *music.Controller
	eyes    *periph.Eyes
	web     *web.Bridge

	// tiers are started in order; services within one tier have no
	// start-order dependency on each other.
	tiers [][]service.Service

	mu      sync.Mutex
	started []service.Service

	shutdown     chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once

	// injected via options
	metricsHandler http.Handler
	captureOpts    []logging.Option
	cliIn          io.Reader
	cliOut         io.Writer
	reloadConfig   func() (*config.Config, error)
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetricsHandler mounts h at /metrics on the dashboard server.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevels shares a level registry created by the caller. main.go builds
// the registry first so the process slog handler and the app consult the
// same overrides.
func WithLevels(l *logging.Levels) Option {
	return func(a *App) { a.levels = l }
}

// WithCLIStreams replaces the terminal's stdin/stdout, for tests.
func WithCLIStreams(in io.Reader, out io.Writer) Option {
	return func(a *App) { a.cliIn, a.cliOut = in, out }
}

// WithCaptureOptions forwards options to the log capture service, for tests
// that need a memory sink or a fake clock.
func WithCaptureOptions(opts ...logging.Option) Option {
	return func(a *App) { a.captureOpts = opts }
}

// WithConfigReloader enables the refresh_config command. reload re-reads the
// configuration source; only the runtime-adjustable settings (log levels)
// are re-applied, everything else needs a restart.
func WithConfigReloader(reload func() (*config.Config, error)) Option {
	return func(a *App) { a.reloadConfig = reload }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all services onto one bus. Construction is
// synchronous and side-effect free; nothing subscribes or opens hardware
// until Start.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	if providers == nil {
		providers = &Providers{}
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		shutdown:  make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Log levels ────────────────────────────────────────────────────
	if a.levels == nil {
		a.levels = logging.NewLevels()
	}
	a.levels.SetLevel("", logging.ParseLevel(string(cfg.Server.LogLevel)))
	for component, level := range cfg.Logging.Levels {
		a.levels.SetLevel(component, logging.ParseLevel(string(level)))
	}

	// ── 2. Bus ───────────────────────────────────────────────────────────
	a.bus = bus.New(
		bus.WithLogger(slog.Default()),
		bus.WithDropObserver(func(topic events.Topic) {
			a.metrics.RecordBusDrop(context.Background(), string(topic))
		}),
	)

	// ── 3. Services ──────────────────────────────────────────────────────
	a.buildServices()

	return a, nil
}

// buildServices constructs every service and arranges them into start tiers:
// log capture first so nothing logs unseen, then the core event services,
// then music, the voice pipeline, peripherals, and finally the operator
// surfaces.
func (a *App) buildServices() {
	cfg := a.cfg

	a.capture = logging.NewCapture(a.bus, nil, logging.Config{
		Dir:        cfg.Logging.Dir,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}, a.captureOpts...)

	a.manager = mode.New(a.bus, nil)
	core := []service.Service{
		a.manager,
		debug.New(a.bus, nil, a.levels, debug.DefaultConfig()),
		intent.New(a.bus, nil),
	}

	var playback []service.Service
	if a.providers.Player != nil {
		mcfg := music.DefaultConfig()
		mcfg.Directories = cfg.Music.Directories
		mcfg.NormalVolume = cfg.Music.NormalLevel()
		mcfg.DuckingVolume = cfg.Music.DuckingLevel()
		a.music = music.New(a.bus, nil, a.providers.Player, mcfg)
		playback = append(playback, a.music)
	}

	var pipeline []service.Service
	if a.providers.Audio != nil {
		pipeline = append(pipeline, voice.NewMic(a.bus, nil, a.providers.Audio, voice.DefaultMicConfig()))
	}
	if a.providers.STT != nil {
		scfg := voice.DefaultSTTConfig()
		scfg.Language = cfg.Voice.Language
		pipeline = append(pipeline, voice.NewSTT(a.bus, nil, a.providers.STT, scfg))
	}
	if a.providers.LLM != nil {
		lcfg := voice.DefaultLLMConfig()
		lcfg.Model = cfg.Voice.Model
		lcfg.Temperature = cfg.Voice.Temperature
		lcfg.MaxTokens = cfg.Voice.MaxTokens
		lcfg.TokenBudget = cfg.Voice.TokenBudget
		lcfg.ResetOnTurn = cfg.Voice.ResetEachTurn()
		lcfg.RequestsPerMinute = cfg.Voice.RequestsPerMinute
		if cfg.Voice.SystemPrompt != "" {
			lcfg.SystemPrompt = cfg.Voice.SystemPrompt
		}
		pipeline = append(pipeline, voice.NewLLM(a.bus, nil, a.providers.LLM, lcfg))
	}
	if a.providers.TTS != nil {
		tcfg := voice.DefaultTTSConfig()
		if cfg.Voice.TTSVoice != "" {
			tcfg.Voice = tts.Voice{ID: cfg.Voice.TTSVoice}
		}
		pipeline = append(pipeline, voice.NewTTS(a.bus, nil, a.providers.TTS, tcfg))
	}

	var hardware []service.Service
	if a.providers.Eyes != nil {
		ecfg := periph.DefaultEyesConfig()
		if cfg.Peripherals.EyeColor != "" {
			ecfg.IdleColor = cfg.Peripherals.EyeColor
		}
		if cfg.Peripherals.EyeIntensity > 0 {
			ecfg.Intensity = cfg.Peripherals.EyeLevel()
		}
		a.eyes = periph.NewEyes(a.bus, nil, a.providers.Eyes, ecfg)
		hardware = append(hardware, a.eyes)
	}
	if a.providers.Player != nil {
		scfg := periph.DefaultSoundConfig()
		scfg.Dir = cfg.Peripherals.SfxDir
		hardware = append(hardware, periph.NewSound(a.bus, nil, a.providers.Player, scfg))
	}
	if a.providers.Button != nil {
		hardware = append(hardware, periph.NewButton(a.bus, nil, a.providers.Button))
	}

	var library func() []music.Track
	if a.music != nil {
		library = func() []music.Track { return a.music.Library().Tracks() }
	}
	a.web = web.New(a.bus, nil, web.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MetricsHandler: a.metricsHandler,
	}, library)

	var cliOpts []cli.Option
	if a.cliIn != nil {
		cliOpts = append(cliOpts, cli.WithStreams(a.cliIn, a.cliOut))
	}
	surfaces := []service.Service{cli.New(a.bus, nil, cliOpts...), a.web}

	a.tiers = [][]service.Service{
		{a.capture},
		core,
		playback,
		pipeline,
		hardware,
		surfaces,
	}
}

// ─── Start ───────────────────────────────────────────────────────────────────

// Start brings every service up tier by tier. Services within a tier start
// concurrently; a failure anywhere stops everything already running (in
// reverse order) and returns the first error. After the last tier is up the
// system advances from STARTUP to IDLE.
func (a *App) Start(ctx context.Context) error {
	a.wireContainer()

	for _, tier := range a.tiers {
		g, gctx := errgroup.WithContext(ctx)
		for _, svc := range tier {
			g.Go(func() error {
				if err := svc.Start(gctx); err != nil {
					return fmt.Errorf("start %s: %w", svc.Name(), err)
				}
				a.mu.Lock()
				a.started = append(a.started, svc)
				a.mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			a.stopStarted(context.WithoutCancel(ctx))
			return fmt.Errorf("app: %w", err)
		}
	}

	if err := a.manager.AdvanceFromStartup(ctx); err != nil {
		slog.Warn("startup mode advance failed", "err", err)
	}

	slog.Info("cantinaos started",
		"services", len(a.Services()),
		"mode", string(a.manager.Current()),
		"dashboard", a.web.Addr(),
	)
	return nil
}

// wireContainer registers the container-level subscriptions: shutdown
// requests, the catch-all command handler, and metric recording off the
// pipeline's own telemetry events.
func (a *App) wireContainer() {
	a.bus.Subscribe(events.SystemShutdownRequested, func(_ context.Context, evt bus.Event) {
		source := "unknown"
		if req, ok := evt.Payload.(events.ShutdownRequest); ok {
			source = req.Source
		}
		slog.Info("shutdown requested", "source", source)
		a.requestShutdown()
	})

	a.bus.Subscribe(events.CLICommand, a.handleCommand)

	a.bus.Subscribe(events.PerformanceMetric, func(ctx context.Context, evt bus.Event) {
		if m, ok := evt.Payload.(events.MetricSample); ok {
			a.metrics.RecordOperation(ctx, m.Operation, m.Seconds)
		}
	})
	a.bus.Subscribe(events.IntentDetected, func(ctx context.Context, evt bus.Event) {
		if in, ok := evt.Payload.(events.Intent); ok {
			a.metrics.RecordToolCall(ctx, in.IntentName, "detected")
		}
	})
	a.bus.Subscribe(events.VoiceProcessingComplete, func(ctx context.Context, _ bus.Event) {
		a.metrics.RecordVoiceTurn(ctx, "complete")
	})
	a.bus.Subscribe(events.VoiceError, func(ctx context.Context, _ bus.Event) {
		a.metrics.RecordVoiceTurn(ctx, "error")
	})
	a.bus.Subscribe(events.MusicPlaybackStarted, func(ctx context.Context, _ bus.Event) {
		a.metrics.RecordPlaybackStart(ctx, "controller")
	})
}

// ─── Commands ────────────────────────────────────────────────────────────────

// handleCommand answers the normalized commands no dedicated service claims:
// the status report and the eye subcommands.
func (a *App) handleCommand(_ context.Context, evt bus.Event) {
	cmd, ok := evt.Payload.(events.Command)
	if !ok {
		return
	}

	switch cmd.Command {
	case "status":
		a.respond(a.statusReport(), false)

	case "eye":
		a.handleEyeCommand(cmd)

	case "refresh_config":
		a.refreshConfig()

	default:
		a.respond(fmt.Sprintf("unknown command %q (try 'help')", cmd.Command), true)
	}
}

func (a *App) handleEyeCommand(cmd events.Command) {
	switch cmd.Subcommand {
	case "pattern":
		if len(cmd.Args) == 0 {
			a.respond("usage: eye pattern <name>", true)
			return
		}
		a.bus.Emit(events.EyeCommand, events.EyeState{
			Base:    events.NewTurnBase(cmd.ConversationID),
			Pattern: strings.ToLower(cmd.Args[0]),
		})
		a.respond("eye pattern set to "+cmd.Args[0], false)

	case "test":
		a.bus.Emit(events.EyeCommand, events.EyeState{
			Base:    events.NewTurnBase(cmd.ConversationID),
			Pattern: "test",
		})
		a.respond("eye test pattern running", false)

	case "status":
		if a.eyes == nil {
			a.respond("eyes are not configured", true)
			return
		}
		cur := a.eyes.Current()
		a.respond(fmt.Sprintf("eyes: pattern=%s color=%s intensity=%.2f",
			cur.Pattern, cur.Color, cur.Intensity), false)

	default:
		a.respond("usage: eye pattern <name> | eye test | eye status", true)
	}
}

// refreshConfig re-reads the config source and re-applies the log levels.
func (a *App) refreshConfig() {
	if a.reloadConfig == nil {
		a.respond("config refresh is not available", true)
		return
	}
	cfg, err := a.reloadConfig()
	if err != nil {
		a.respond("config refresh failed: "+err.Error(), true)
		return
	}

	a.levels.SetLevel("", logging.ParseLevel(string(cfg.Server.LogLevel)))
	for component, level := range cfg.Logging.Levels {
		a.levels.SetLevel(component, logging.ParseLevel(string(level)))
	}
	slog.Info("configuration refreshed", "log_level", cfg.Server.LogLevel)
	a.respond("configuration refreshed (log levels re-applied; other changes need a restart)", false)
}

// statusReport renders one line per running service plus the current mode.
func (a *App) statusReport() string {
	var sb strings.Builder
	sb.WriteString("System mode: " + string(a.manager.Current()) + "\n")
	for _, svc := range a.Services() {
		fmt.Fprintf(&sb, "  %-16s %s\n", svc.Name(), svc.Status())
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *App) respond(message string, isError bool) {
	a.bus.Emit(events.CLIResponse, events.CommandResponse{
		Base:    events.NewBase(),
		Message: message,
		IsError: isError,
	})
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run blocks until the context is cancelled or a shutdown request arrives on
// the bus. It returns nil on a requested shutdown and the context error on
// cancellation; either way the caller still runs Shutdown.
func (a *App) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.shutdown:
		return nil
	}
}

func (a *App) requestShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdown) })
}

// Shutdown stops every started service in reverse order, then the bus. It
// respects the context deadline: if ctx expires before all services stopped,
// the remainder is skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.requestShutdown()
		shutdownErr = a.stopStarted(ctx)
		if err := a.bus.Stop(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("bus stop error", "err", err)
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) stopStarted(ctx context.Context) error {
	a.mu.Lock()
	started := a.started
	a.started = nil
	a.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", i+1)
			return ctx.Err()
		default:
		}
		svc := started[i]
		if err := svc.Stop(ctx); err != nil {
			slog.Warn("service stop error", "service", svc.Name(), "err", err)
		}
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Bus returns the event bus, for tests that drive the app externally.
func (a *App) Bus() *bus.Bus { return a.bus }

// Levels returns the mutable log level registry.
func (a *App) Levels() *logging.Levels { return a.levels }

// Capture returns the log capture service; wire its Submit into the process
// slog handler tap.
func (a *App) Capture() *logging.Capture { return a.capture }

// Mode returns the mode manager.
func (a *App) Mode() *mode.Manager { return a.manager }

// DashboardAddr returns the web bridge's bound address, empty before Start.
func (a *App) DashboardAddr() string { return a.web.Addr() }

// Services returns every service in start order, flattened across tiers.
func (a *App) Services() []service.Service {
	var out []service.Service
	for _, tier := range a.tiers {
		out = append(out, tier...)
	}
	return out
}
