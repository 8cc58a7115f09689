package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"uartviewer/config"
	"uartviewer/format"
	"uartviewer/gui/ui"
	"uartviewer/session"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (JSON or YAML)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	clock := format.NewClock(cfg.Timestamp.Enabled)
	if err := clock.SetTimezone(cfg.Timestamp.Timezone); err != nil {
		logger.Warn("Timezone not available", "error", err)
	}

	// The UI registers itself once it exists
	var mainUI atomic.Pointer[ui.MainUI]
	registry := session.NewRegistry(session.Options{
		ReadTimeout: cfg.Session.GetReadTimeout(),
		JoinTimeout: cfg.Session.GetJoinTimeout(),
		IdleSleep:   cfg.Session.GetIdleSleep(),
		ReadBuffer:  cfg.Session.ReadBufferBytes,
		Stamper:     clock,
		OnStall: func(id string, err error) {
			if m := mainUI.Load(); m != nil {
				m.OnStall(id, err)
			}
		},
		Logger: logger,
	})

	for _, port := range cfg.Ports {
		if !port.Enabled {
			continue
		}
		sess, err := registry.AddPort(port.Serial())
		if err != nil {
			logger.Error("Failed to add port", "device", port.Device, "error", err)
			continue
		}
		if port.AutoConnect {
			if err := sess.Connect(0); err != nil {
				logger.Error("Failed to connect port", "device", port.Device, "error", err)
			}
		}
	}

	// Create the app
	myApp := app.New()
	myWindow := myApp.NewWindow("UART Viewer")
	myWindow.Resize(fyne.NewSize(1200, 800))

	// Create the main UI
	view := ui.NewMainUI(myWindow, cfg, *configPath, registry, clock)
	myWindow.SetContent(view.Build())
	mainUI.Store(view)
	registry.AddSink(view)

	ctx, cancel := context.WithCancel(context.Background())
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		registry.Run(ctx, cfg.Session.GetDrainInterval())
	}()

	myWindow.SetOnClosed(func() {
		view.Detach()
		cancel()
	})
	myWindow.ShowAndRun()

	cancel()
	<-drainDone
	registry.Close()
}
