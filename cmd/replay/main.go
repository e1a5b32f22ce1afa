package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/trendhunter/internal/replay"
	"github.com/okian/trendhunter/pkg/logger"
)

func main() {
	var (
		scenario = flag.String("scenario", "", "Path to the YAML scenario")
		logLevel = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	if *scenario == "" {
		os.Stderr.WriteString("usage: replay -scenario path/to/scenario.yaml\n")
		os.Exit(2)
	}

	if err := logger.InitWithFormat("text", os.Stderr); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(*logLevel); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, cfg, err := replay.Load(*scenario)
	if err != nil {
		os.Stderr.WriteString("failed to load scenario: " + err.Error() + "\n")
		os.Exit(1)
	}

	res, err := replay.NewRunner(sc, cfg).Run(ctx)
	if err != nil {
		os.Stderr.WriteString("replay failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := replay.WriteReport(os.Stdout, res); err != nil {
		os.Stderr.WriteString("failed to print report: " + err.Error() + "\n")
		os.Exit(1)
	}
}
