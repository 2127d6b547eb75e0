// Command ipdsim runs the spatial iterated prisoner's dilemma simulation.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/talgya/dilemma/internal/api"
	"github.com/talgya/dilemma/internal/config"
	"github.com/talgya/dilemma/internal/engine"
	"github.com/talgya/dilemma/internal/entropy"
	"github.com/talgya/dilemma/internal/persistence"
	"github.com/talgya/dilemma/internal/report"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults are used when empty)")
	autostart := flag.Bool("autostart", true, "start the configured population immediately")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath, *autostart); err != nil {
		slog.Error("ipdsim failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, autostart bool) error {
	// ── Configuration ─────────────────────────────────────────────────
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	seeds, err := cfg.Seeds()
	if err != nil {
		return err
	}
	seed := entropy.Resolve(cfg.Seed)
	slog.Info("configuration loaded", configAttrs(configPath, cfg, seed, seeds)...)

	// ── Run log ───────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.DBPath != "" {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
		}
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.DBPath)
	}

	// ── Controller ────────────────────────────────────────────────────
	var recorder atomic.Pointer[persistence.Recorder]
	ctl := engine.NewController(engine.ControllerConfig{
		Params:     cfg.Params,
		Seed:       seed,
		CycleDelay: cfg.CycleDelay,
		MaxCycles:  cfg.MaxCycles,
		LogEvery:   cfg.LogEvery,
		Observer: func(snap engine.Snapshot) {
			if rec := recorder.Load(); rec != nil {
				rec.Observe(snap)
			}
		},
	})

	startRun := func() error {
		if ctl.State() != engine.StateNotStarted {
			return engine.ErrAlreadyStarted
		}
		if db != nil {
			runID, err := db.CreateRun(seed, cfg.Params, seeds)
			if err != nil {
				return fmt.Errorf("create run: %w", err)
			}
			recorder.Store(persistence.NewRecorder(db, runID, cfg.RecordEvery))
			slog.Info("run log started", "run", runID)
		}
		return ctl.Start(seeds)
	}
	runID := func() string {
		if rec := recorder.Load(); rec != nil {
			return rec.RunID()
		}
		return ""
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("IPDSIM_ADMIN_KEY not set, lifecycle POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Ctl:      ctl,
		DB:       db,
		Port:     cfg.APIPort,
		AdminKey: cfg.AdminKey,
		StartRun: startRun,
		RunID:    runID,
	}
	apiServer.Start()
	defer apiServer.Close()

	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)

	if autostart {
		if err := startRun(); err != nil {
			return err
		}
		fmt.Println("Starting simulation... (Ctrl+C to stop)")
	} else {
		fmt.Println("Waiting for POST /api/v1/start... (Ctrl+C to stop)")
	}

	// ── Shutdown ──────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	ctl.Close()
	if rec := recorder.Load(); rec != nil {
		if err := rec.Flush(); err != nil {
			slog.Error("final run log flush failed", "error", err)
		}
	}

	final := ctl.Snapshot()
	slog.Info("simulation stopped", "state", ctl.State(), "summary", report.Summary(final))
	fmt.Print(report.Statistics(final))
	fmt.Println("Simulation stopped.")
	return nil
}

// configAttrs summarizes the effective configuration for the startup log.
func configAttrs(path string, cfg config.Config, seed int64, seeds []engine.Seed) []any {
	agents := 0
	for _, s := range seeds {
		agents += s.Count
	}
	return []any{
		"config", path,
		"seed", seed,
		"strategies", len(seeds),
		"agents", agents,
		"meeting_radius", cfg.Params.MeetingRadius,
		"breed_threshold", cfg.Params.MinEnergyToBreed,
		"max_cycles", cfg.MaxCycles,
	}
}
