package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/edmgate/internal/common"
	"example.com/edmgate/internal/config"
)

func setupLogging(cfg *config.Config) (io.Closer, error) {
	rotator, err := cfg.Logs.Rotator("edmtail.log")
	if err != nil {
		return nil, err
	}
	common.SetOutput(io.MultiWriter(os.Stdout, rotator))
	common.SetVerbose(cfg.Decoder.Verbose)
	return rotator, nil
}

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	in := flag.String("in", "", "capture file to follow")
	poll := flag.Duration("poll", 0, "poll interval (overrides config)")
	idle := flag.Duration("idle-timeout", -1, "close the capture after this long without growth (overrides config)")
	progress := flag.Bool("progress", false, "display decode progress updates")
	flag.Parse()

	if *in == "" {
		common.Fatalf("required: --in")
	}
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			common.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *poll > 0 {
		cfg.Tail.PollInterval = *poll
	}
	if *idle >= 0 {
		cfg.Tail.IdleTimeout = *idle
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		common.Fatalf("output dir: %v", err)
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		common.Fatalf("setup logging: %v", err)
	}
	defer closer.Close()

	metrics := common.NewMetrics()
	metrics.Start()
	if *progress {
		stop := common.StartProgressPrinter(os.Stderr, metrics, time.Second)
		defer stop()
	}

	f := newFollower(cfg, *in, metrics)
	common.Logf("edmtail: following %s (session %s, poll %s)", *in, f.session.ID(), cfg.Tail.PollInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runErr := f.run(ctx, cfg.Tail.PollInterval)
	metrics.Stop()

	snap := metrics.Snapshot()
	common.Logf("edmtail: %s after %s: %d flights (%d invalid), %d samples, %s",
		f.session.State(), snap.Duration.Round(time.Millisecond), snap.Flights, snap.InvalidFlights, snap.Samples, common.FormatBytes(snap.Bytes))
	if runErr != nil {
		common.Logf("edmtail: %v", runErr)
		closer.Close()
		os.Exit(1)
	}
	common.Logf("edmtail stopped")
}
