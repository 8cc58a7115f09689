package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"

	"uartviewer/format"
	"uartviewer/serial"
	"uartviewer/simulator"
)

func main() {
	mode := flag.String("mode", "pty", "Mode: pty, send, or receive")
	device := flag.String("device", "/dev/ttyUSB0", "Serial device for send and receive")
	baud := flag.Int("baud", 115200, "Baud rate for send and receive")
	sample := flag.String("sample", "", "Replay lines from this file instead of synthetic output")
	loop := flag.Bool("loop", true, "Restart the sample file when it ends")
	rate := flag.Float64("rate", 120, "Lines per minute")
	jitter := flag.Float64("jitter", 20, "Interval jitter in percent")
	chunk := flag.Int("chunk", 16, "Largest single write in bytes")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := simulator.Options{
		Mode:           simulator.ModeSynthetic,
		SampleFile:     *sample,
		Loop:           *loop,
		LinesPerMinute: *rate,
		JitterPercent:  *jitter,
		MaxChunk:       *chunk,
	}
	if *sample != "" {
		opts.Mode = simulator.ModeReplay
	}

	cfg := serial.PortConfig{
		Device:   *device,
		BaudRate: *baud,
	}

	switch *mode {
	case "pty":
		ptyDevice(ctx, opts)
	case "send":
		sendTest(ctx, cfg, opts)
	case "receive":
		receiveTest(ctx, cfg)
	default:
		log.Fatal("Invalid mode. Use: pty, send, or receive")
	}
}

// ptyDevice creates a pseudo-terminal and plays the device on its master
// side. Point the viewer at the printed path.
func ptyDevice(ctx context.Context, opts simulator.Options) {
	master, tty, err := pty.Open()
	if err != nil {
		log.Fatalf("Failed to open pty: %v", err)
	}
	defer master.Close()
	defer tty.Close()

	fmt.Printf("Fake UART ready on %s\n", tty.Name())
	fmt.Println("Press Ctrl+C to stop")

	// Lines the viewer sends come back out of the master
	go echoReceived(master)

	runSimulator(ctx, opts, master)
}

func sendTest(ctx context.Context, cfg serial.PortConfig, opts simulator.Options) {
	port, err := serial.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open port: %v", err)
	}
	defer port.Close()

	fmt.Printf("Sending on %s at %d baud\n", cfg.Device, cfg.BaudRate)
	runSimulator(ctx, opts, port)
}

func runSimulator(ctx context.Context, opts simulator.Options, w io.Writer) {
	sim, err := simulator.New(opts)
	if err != nil {
		log.Fatalf("Failed to create simulator: %v", err)
	}

	err = sim.Run(ctx, w)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Println("\nStopped")
	case errors.Is(err, simulator.ErrEndOfSample):
		fmt.Println("Sample file complete")
	default:
		log.Printf("Simulator stopped: %v", err)
	}
}

func echoReceived(r io.Reader) {
	var decoder format.Decoder
	formatter := format.NewLineFormatter(format.FixedStamper{})
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return
		}
		if text := formatter.Format(decoder.Decode(buf[:n])); text != "" {
			fmt.Printf("<- %s", text)
		}
	}
}

func receiveTest(ctx context.Context, cfg serial.PortConfig) {
	port, err := serial.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open port: %v", err)
	}
	defer port.Close()

	fmt.Printf("Listening on %s at %d baud\n", cfg.Device, cfg.BaudRate)
	fmt.Println("Press Ctrl+C to stop")

	clock := format.NewClock(true)
	var decoder format.Decoder
	formatter := format.NewLineFormatter(clock)
	buf := make([]byte, 1024)
	totalBytes := 0

	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			log.Printf("Read error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		totalBytes += n
		fmt.Print(formatter.Format(decoder.Decode(buf[:n])))
	}
	fmt.Printf("\nReceived %d bytes\n", totalBytes)
}
