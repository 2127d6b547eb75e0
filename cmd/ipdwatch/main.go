// Command ipdwatch monitors a running ipdsim process over its HTTP API.
// With -do it sends one lifecycle command and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/dilemma/internal/watch"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	apiURL := flag.String("url", envOrDefault("IPDSIM_API_URL", "http://localhost:8080"), "ipdsim API base URL")
	interval := flag.Duration("interval", 10*time.Second, "poll interval")
	command := flag.String("do", "", "send a lifecycle command (start, pause, resume) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observer := watch.NewObserver(*apiURL)

	readyCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	slog.Info("waiting for ipdsim API...", "url", *apiURL)
	err := watch.WaitReady(readyCtx, observer, 2*time.Second, 30*time.Second)
	cancel()
	if err != nil {
		slog.Error("ipdsim API unavailable", "error", err)
		os.Exit(1)
	}

	if *command != "" {
		adminKey := os.Getenv("IPDSIM_ADMIN_KEY")
		if adminKey == "" {
			slog.Error("IPDSIM_ADMIN_KEY is required for -do")
			os.Exit(1)
		}
		res, err := watch.NewActor(*apiURL, adminKey).Do(ctx, *command)
		if err != nil {
			slog.Error("command failed", "command", *command, "error", err)
			os.Exit(1)
		}
		slog.Info("command accepted", "command", *command, "state", res.State)
		return
	}

	poll(ctx, observer)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			poll(ctx, observer)
		case <-ctx.Done():
			fmt.Println("Watcher stopped.")
			return
		}
	}
}

// poll logs one observation.
func poll(ctx context.Context, observer *watch.Observer) {
	obs, err := observer.Observe(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}
	attrs := []any{
		"state", obs.Status.State,
		"cycle", humanize.Comma(int64(obs.Status.Cycle)),
		"population", obs.Status.Population,
		"births", humanize.Comma(int64(obs.Status.Births)),
		"deaths", humanize.Comma(int64(obs.Status.Deaths)),
		"avg_energy", fmt.Sprintf("%.2f", obs.Status.AverageEnergy),
	}
	if leader, ok := obs.Leader(); ok {
		attrs = append(attrs, "leader", leader.Label, "leader_share", fmt.Sprintf("%.1f%%", leader.Share*100))
	}
	if n := len(obs.History); n > 1 {
		first, last := obs.History[0], obs.History[n-1]
		attrs = append(attrs, "population_trend", last.Population-first.Population)
	}
	slog.Info("observation", attrs...)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
