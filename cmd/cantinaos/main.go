// Command cantinaos is the entry point for the CantinaOS animatronic runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cantina-works/cantinaos/internal/app"
	"github.com/cantina-works/cantinaos/internal/config"
	"github.com/cantina-works/cantinaos/internal/logging"
	"github.com/cantina-works/cantinaos/internal/observe"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "cantina_config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ────────────────────────────────────────────────────────────
	// Provider API keys live in .env beside the binary, never in the config
	// file. A missing .env is fine; the variables may come from the shell.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "cantinaos: load .env: %v\n", err)
	}

	// ── Load configuration ──────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cantinaos: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cantinaos: %v\n", err)
		}
		return 1
	}

	// ── Logger ──────────────────────────────────────────────────────────────────
	// The capture service does not exist yet, so the handler taps through an
	// atomic slot that is filled right after the app is constructed. Records
	// logged in between still reach stderr.
	levels := logging.NewLevels()
	var capture atomic.Pointer[logging.Capture]
	handler := logging.NewHandler(
		slog.NewTextHandler(os.Stderr, nil),
		levels,
		func(e logging.Entry) {
			if c := capture.Load(); c != nil {
				c.Submit(e)
			}
		},
	)
	slog.SetDefault(slog.New(handler))

	slog.Info("cantinaos starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ──────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ─────────────────────────────────────────────────────────────────
	shutdownMetrics, metricsHandler, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "cantinaos",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Application ─────────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, buildProviders(cfg),
		app.WithLevels(levels),
		app.WithMetricsHandler(metricsHandler),
		app.WithConfigReloader(func() (*config.Config, error) {
			return config.Load(*configPath)
		}),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	capture.Store(application.Capture())

	if err := application.Start(ctx); err != nil {
		slog.Error("startup failed", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down", "dashboard", application.DashboardAddr())

	runErr := application.Run(ctx)

	// ── Graceful shutdown ───────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders resolves the provider slots named in the config. Hardware
// backends and vendor SDK adapters register here as they land; a configured
// slot without a built-in implementation is skipped with a notice so the
// rest of the system still runs.
func buildProviders(cfg *config.Config) *app.Providers {
	ps := &app.Providers{}

	for _, slot := range []struct {
		kind string
		name string
	}{
		{"stt", cfg.Providers.STT.Name},
		{"llm", cfg.Providers.LLM.Name},
		{"tts", cfg.Providers.TTS.Name},
	} {
		if slot.name == "" {
			continue
		}
		slog.Warn("provider not yet implemented — skipping",
			"kind", slot.kind, "name", slot.name)
	}

	return ps
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        CantinaOS — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Dashboard    : %-22s ║\n", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	fmt.Printf("║  Music dirs   : %-22d ║\n", len(cfg.Music.Directories))
	fmt.Printf("║  Session logs : %-22s ║\n", cfg.Logging.Dir)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 22 {
		value = value[:19] + "…"
	}
	fmt.Printf("║  %-12s : %-22s ║\n", kind, value)
}
