package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"uartviewer/bridge"
	"uartviewer/config"
	"uartviewer/format"
	"uartviewer/monitoring"
	"uartviewer/notify"
	"uartviewer/serial"
	"uartviewer/session"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (JSON or YAML)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	listPorts := flag.Bool("list-ports", false, "List available serial ports and exit")
	baud := flag.Int("baud", 0, "Baud rate for ports given as arguments")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Display version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "UARTViewer - multi-port serial log viewer\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [device...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s /dev/ttyUSB0\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -baud 9600 /dev/ttyUSB0 /dev/ttyACM0\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config config.yaml -validate\n", os.Args[0])
	}

	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("UARTViewer version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Load configuration, or run on defaults
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	for _, device := range flag.Args() {
		cfg.Ports = append(cfg.Ports, config.PortConfig{
			Device:      device,
			BaudRate:    *baud,
			Enabled:     true,
			AutoConnect: true,
		})
	}
	if *baud != 0 {
		if err := serial.CheckBaud(*baud); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.ApplyDefaults()

	// Handle list-ports flag
	if *listPorts {
		printPorts(cfg.Discovery.Prefixes)
		os.Exit(0)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed:\n  %v\n", err)
		os.Exit(1)
	}

	// Handle validate flag
	if *validate {
		fmt.Println("Configuration is valid")
		fmt.Printf("  Instance: %s\n", cfg.App.InstanceID)
		fmt.Printf("  Ports configured: %d\n", len(cfg.Ports))
		for i, port := range cfg.Ports {
			if port.Enabled {
				fmt.Printf("    [%d] %s - %d baud, %d%s%d, auto_connect=%t\n",
					i, port.Device, port.BaudRate, port.DataBits, parityLetter(port.Parity), port.StopBits, port.AutoConnect)
			}
		}
		os.Exit(0)
	}

	// Setup logging
	logger := setupLogging(cfg, *debug)
	slog.SetDefault(logger)

	logger.Info("UARTViewer starting",
		"version", version,
		"instance", cfg.App.InstanceID,
		"ports", len(cfg.Ports),
	)

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create Slack notifier
	slackNotifier := notify.NewSlackNotifier(&cfg.Slack, cfg.App.InstanceID, logger)

	// Shared timestamp settings
	clock := format.NewClock(cfg.Timestamp.Enabled)
	if err := clock.SetTimezone(cfg.Timestamp.Timezone); err != nil {
		logger.Warn("Timezone not available", "error", err)
	}

	var registry *session.Registry
	registry = session.NewRegistry(session.Options{
		ReadTimeout: cfg.Session.GetReadTimeout(),
		JoinTimeout: cfg.Session.GetJoinTimeout(),
		IdleSleep:   cfg.Session.GetIdleSleep(),
		ReadBuffer:  cfg.Session.ReadBufferBytes,
		Stamper:     clock,
		OnStall: func(id string, err error) {
			go func() {
				var tail string
				if sess, ok := registry.Get(id); ok {
					tail = sess.Log().Tail(4096)
				}
				if _, err := slackNotifier.NotifyStall(id, err, tail); err != nil {
					logger.Warn("Failed to send stall notification", "error", err)
				}
			}()
		},
		Logger: logger,
	})

	connected := openPorts(cfg, registry, logger)
	if registry.Len() == 0 {
		if candidates, err := serial.ListCandidatePorts(cfg.Discovery.Prefixes); err == nil && len(candidates) > 0 {
			logger.Info("No ports configured", "candidates", candidates)
		} else {
			logger.Info("No ports configured and no candidate ports found")
		}
	}

	registry.AddSink(NewConsoleSink(os.Stdout, registry))

	// Start monitoring server
	var monitorServer *monitoring.Server
	if !cfg.Monitoring.Disabled {
		monitorServer = monitoring.NewServer(cfg, *configPath, version, registry, clock, logger)
		registry.AddSink(monitorServer.Hub())
		if err := monitorServer.Start(); err != nil {
			logger.Error("Failed to start monitoring server", "error", err)
		}
	}

	// Connect the broker bridge
	var mqttBridge *bridge.Bridge
	if cfg.MQTT.Enabled() {
		b, err := bridge.Connect(cfg.MQTT, registry, logger)
		if err != nil {
			logger.Error("Failed to start MQTT bridge", "error", err)
		} else {
			mqttBridge = b
			registry.AddSink(mqttBridge)
		}
	}

	// Send startup notification
	if err := slackNotifier.NotifyStartup(portIDs(registry), connected); err != nil {
		logger.Warn("Failed to send startup notification", "error", err)
	}

	startTime := time.Now()
	logger.Info("UARTViewer running",
		"sessions", registry.Len(),
		"connected", connected,
		"drain_interval", cfg.Session.GetDrainInterval(),
	)

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		registry.Run(ctx, cfg.Session.GetDrainInterval())
	}()

	go readInput(ctx, os.Stdin, registry, logger)

	// Wait for shutdown
	<-ctx.Done()
	<-drainDone

	// Graceful shutdown
	logger.Info("UARTViewer shutting down")

	if monitorServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := monitorServer.Stop(shutdownCtx); err != nil {
			logger.Warn("Error stopping monitoring server", "error", err)
		}
	}

	if mqttBridge != nil {
		mqttBridge.Close()
	}

	// Calculate total bytes logged before the sessions go away
	var totalBytes int64
	for _, info := range registry.Infos() {
		totalBytes += int64(info.LogBytes)
	}

	registry.Close()

	// Send shutdown notification
	uptime := time.Since(startTime)
	if err := slackNotifier.NotifyShutdown(totalBytes, uptime); err != nil {
		logger.Warn("Failed to send shutdown notification", "error", err)
	}

	logger.Info("UARTViewer stopped",
		"uptime", uptime,
		"bytes_logged", totalBytes,
	)
}

// openPorts adds every enabled port and connects those marked auto_connect.
// It returns the number of connected sessions.
func openPorts(cfg *config.Config, registry *session.Registry, logger *slog.Logger) int {
	connected := 0
	for _, port := range cfg.Ports {
		if !port.Enabled {
			continue
		}
		sess, err := registry.AddPort(port.Serial())
		if err != nil {
			logger.Error("Failed to add port", "device", port.Device, "error", err)
			continue
		}
		if !port.AutoConnect {
			continue
		}
		if err := sess.Connect(0); err != nil {
			logger.Error("Failed to connect port", "device", port.Device, "error", err)
			continue
		}
		connected++
	}
	return connected
}

func portIDs(registry *session.Registry) []string {
	sessions := registry.Sessions()
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID())
	}
	return ids
}

func printPorts(prefixes []string) {
	candidates, err := serial.DiscoverPorts(prefixes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Candidate serial ports:")
	if len(candidates) == 0 {
		fmt.Println("  (none found)")
	}
	for _, p := range candidates {
		if p.IsUSB {
			fmt.Printf("  %-20s USB %s:%s %s\n", p.Name, p.VID, p.PID, p.Product)
		} else {
			fmt.Printf("  %s\n", p.Name)
		}
	}

	ports, err := serial.ListPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("All serial ports:")
	if len(ports) == 0 {
		fmt.Println("  (none found)")
	}
	for _, port := range ports {
		fmt.Printf("  %s\n", port)
	}
}

func parityLetter(parity string) string {
	switch parity {
	case "odd":
		return "O"
	case "even":
		return "E"
	case "mark":
		return "M"
	case "space":
		return "S"
	default:
		return "N"
	}
}

func setupLogging(cfg *config.Config, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler

	// If base path is set, use file logging with rotation
	if cfg.Logging.BasePath != "" {
		logPath := filepath.Join(cfg.Logging.BasePath, cfg.Logging.Filename)
		writer := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		}
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		// Stdout carries the port output, so console logging goes to stderr
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
