package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface.
type program struct {
	configPath string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("TonerTrack service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if err := run(p.ctx, p.configPath, true); err != nil && p.svcLogger != nil {
			p.svcLogger.Error(fmt.Sprintf("TonerTrack service failed: %v", err))
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("TonerTrack service stop requested")
	}
	if p.cancel != nil {
		p.cancel()
	}

	select {
	case <-p.done:
		if p.svcLogger != nil {
			p.svcLogger.Info("TonerTrack service stopped gracefully")
		}
	case <-time.After(30 * time.Second):
		if p.svcLogger != nil {
			p.svcLogger.Warning("TonerTrack service stopped with timeout")
		}
	}
	return nil
}

// getServiceConfig returns the platform service definition.
func getServiceConfig() *service.Config {
	return &service.Config{
		Name:        "TonerTrack",
		DisplayName: "TonerTrack Agent",
		Description: "TonerTrack printer fleet agent. Polls printers over SNMP for supply levels, alerts and page counts, and discovers new devices on the network.",
		Arguments:   []string{"--service", "run"},
		Option: service.KeyValue{
			// Windows service options
			"StartType":              "automatic",
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",

			// Linux systemd options
			"Restart":    "on-failure",
			"RestartSec": 5,
			"KillSignal": "SIGTERM",

			// macOS launchd options
			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}

// handleServiceCommand processes --service install/uninstall/start/stop/run.
func handleServiceCommand(cmd, configPath string) {
	prg := &program{configPath: configPath}
	s, err := service.New(prg, getServiceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install":
		if err := s.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("TonerTrack service installed. Use '--service start' to start it.")
	case "uninstall":
		if err := s.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("TonerTrack service uninstalled.")
	case "start":
		if err := s.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("TonerTrack service started.")
	case "stop":
		if err := s.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("TonerTrack service stopped.")
	case "run":
		if err := s.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Service run failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown service command %q (want install, uninstall, start, stop or run)\n", cmd)
		os.Exit(1)
	}
}

// runAsService wraps run for the case where the process was launched by the
// service manager without explicit arguments.
func runAsService(configPath string) {
	prg := &program{configPath: configPath}
	s, err := service.New(prg, getServiceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}
	if err := s.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Service run failed: %v\n", err)
		os.Exit(1)
	}
}
