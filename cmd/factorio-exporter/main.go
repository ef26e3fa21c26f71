package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZCK12/factorio-prometheus-exporter/internal/app/config"
	"github.com/ZCK12/factorio-prometheus-exporter/internal/domain"
	"github.com/ZCK12/factorio-prometheus-exporter/pkg/exporter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("factorio-exporter %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to an optional configuration file")
	metricsPath := fs.String("metrics-path", config.DefaultSnapshotPath, "Path to the Factorio metrics snapshot file")
	metricsPort := fs.Int("metrics-port", config.DefaultMetricsPort, "The port to expose the metrics endpoint on")
	logLevel := fs.String("log-level", config.DefaultLogLevel, "Log level (debug|info|warn|error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags set on the command line win over file values.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "metrics-path":
			cfg.Snapshot.Path = *metricsPath
		case "metrics-port":
			cfg.Metrics.Port = *metricsPort
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	exp, err := exporter.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return exp.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	metricsPath := fs.String("metrics-path", config.DefaultSnapshotPath, "Path to the snapshot file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := os.ReadFile(*metricsPath)
	if err != nil {
		return err
	}
	snap, err := domain.Parse(data)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot %s looks good: tick=%d players=%d forces=%d pollution_sources=%d surfaces=%d\n",
		*metricsPath,
		snap.Game.Time.Tick,
		len(snap.Players),
		len(snap.Forces),
		len(snap.Pollution),
		len(snap.Surfaces),
	)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9102/metrics", "Exporter metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"factorio_game_tick":               0,
		"factorio_pollution_production":    0,
		"factorio_force_research_progress": 0,
	}
	counts := map[string]int{
		"factorio_player_connected": 0,
		"factorio_entity_count":     0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") || strings.HasPrefix(line, key+"{") {
				fields := strings.Fields(line)
				if len(fields) == 2 {
					var value float64
					if _, err := fmt.Sscanf(fields[1], "%f", &value); err == nil {
						targets[key] += value
					}
				}
			}
		}
		for key := range counts {
			if strings.HasPrefix(line, key+"{") {
				counts[key]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] tick=%.0f pollution=%.2f research=%.2f players=%d entity_series=%d\n",
		time.Now().Format(time.RFC3339),
		targets["factorio_game_tick"],
		targets["factorio_pollution_production"],
		targets["factorio_force_research_progress"],
		counts["factorio_player_connected"],
		counts["factorio_entity_count"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`Factorio Prometheus exporter

Usage:
  factorio-exporter <command> [flags]

Commands:
  run        Start the exporter and serve the metrics endpoint
  validate   Read and validate a snapshot file without starting the exporter
  stats      Poll the metrics endpoint and print live values

Examples:
  factorio-exporter run -metrics-path /factorio/script-output/metrics.json -metrics-port 9102
  factorio-exporter validate -metrics-path ./metrics.json
  factorio-exporter stats -url http://localhost:9102/metrics -interval 1s
`)
}
