// TonerTrack fleet agent: polls network printers over SNMP, tracks supply
// levels and monthly page usage, discovers new devices via mDNS, and opens
// NinjaRMM tickets when a printer degrades.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"github.com/Oberon01/tonertrack-v2/config"
	"github.com/Oberon01/tonertrack-v2/discovery"
	"github.com/Oberon01/tonertrack-v2/logger"
	"github.com/Oberon01/tonertrack-v2/monitor"
	"github.com/Oberon01/tonertrack-v2/notify"
	"github.com/Oberon01/tonertrack-v2/poll"
	"github.com/Oberon01/tonertrack-v2/snmp"
	"github.com/Oberon01/tonertrack-v2/store"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path (default: search standard locations)")
	generateConfig := flag.Bool("generate-config", false, "Generate default config file and exit")
	serviceCmd := flag.String("service", "", "Service control: install, uninstall, start, stop, run")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("TonerTrack %s (%s)\n", Version, GitCommit)
		return
	}

	if *generateConfig {
		path := *configPath
		if path == "" {
			path = "config.toml"
		}
		if err := config.WriteDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at %s\n", path)
		return
	}

	if *serviceCmd != "" {
		handleServiceCommand(*serviceCmd, *configPath)
		return
	}

	if !service.Interactive() {
		runAsService(*configPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, *configPath, false); err != nil {
		fmt.Fprintf(os.Stderr, "tonertrack: %v\n", err)
		os.Exit(1)
	}
}

// run assembles the agent and blocks until ctx is canceled.
func run(ctx context.Context, configPath string, asService bool) error {
	if configPath == "" {
		configPath = config.FindConfigFile("config.toml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logDir, err := config.LogDirectory(asService)
	if err != nil {
		return fmt.Errorf("log directory: %w", err)
	}
	log := logger.New(logger.LevelFromString(cfg.Logging.Level), logDir, 500)
	defer log.Close()
	log.SetConsoleOutput(!asService)
	log.Info("TonerTrack starting", "version", Version, "config", configPath)

	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		if dataDir, err = config.DataDirectory(asService); err != nil {
			return fmt.Errorf("data directory: %w", err)
		}
	}
	repo, err := store.Open(dataDir, log)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	log.Info("Repository opened", "dir", dataDir, "printers", len(repo.List()))

	client := snmp.NewClient(snmp.ClientConfig{
		Community: cfg.SNMP.Community,
		Timeout:   time.Duration(cfg.SNMP.TimeoutMs) * time.Millisecond,
	})
	builder := poll.NewBuilder(client, log)
	coord := poll.NewCoordinator(repo, builder, cfg.Poll.Concurrency, cfg.Poll.OfflineThreshold, log)

	if ninja := notify.NewNinjaClient(cfg.Ninja, os.Getenv("NINJA_API_TOKEN"), log); ninja != nil {
		coord.OnStatusChange = ninja.StatusChangeHook()
		log.Info("NinjaRMM ticketing enabled", "baseUrl", cfg.Ninja.BaseURL)
	}

	var browser *discovery.Browser
	if cfg.Discovery.Enabled {
		browser = discovery.NewBrowser(
			time.Duration(cfg.Discovery.BrowseSeconds)*time.Second,
			cfg.Discovery.Sites, log)
	}
	mon := monitor.New(repo, coord, browser, log)

	// first discovery pass before the initial poll so new devices are
	// included in it
	if browser != nil {
		if summary, err := mon.SyncDiscovered(ctx); err != nil {
			log.Warn("Initial discovery sync failed", "error", err)
		} else {
			log.Info("Initial discovery sync", "created", summary.Created, "updated", summary.Updated)
		}
	}

	go func() {
		if err := mon.PollAll(ctx); err != nil {
			log.Warn("Initial poll failed", "error", err)
		}
	}()

	go coord.RunAutoPoll(ctx, time.Duration(cfg.Poll.IntervalSeconds)*time.Second)

	if browser != nil && cfg.Discovery.IntervalSeconds > 0 {
		go runDiscoveryLoop(ctx, mon, time.Duration(cfg.Discovery.IntervalSeconds)*time.Second, log)
	}

	<-ctx.Done()
	log.Info("TonerTrack stopping")
	return nil
}

// runDiscoveryLoop browses and syncs on a fixed interval until ctx ends.
func runDiscoveryLoop(ctx context.Context, mon *monitor.Monitor, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := mon.SyncDiscovered(ctx)
			if err != nil {
				log.Warn("Discovery sync failed", "error", err)
				continue
			}
			if summary.Created > 0 || summary.Updated > 0 {
				log.Info("Discovery sync",
					"created", summary.Created, "updated", summary.Updated, "unchanged", summary.Unchanged)
			}
		}
	}
}
