package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"uartviewer/config"
	"uartviewer/serial"
	"uartviewer/session"
)

func testRegistry(t *testing.T) (*session.Registry, *serial.MockOpener) {
	t.Helper()
	opener := serial.NewMockOpener()
	r := session.NewRegistry(session.Options{
		Opener: opener.Open,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(r.Close)
	return r, opener
}

func TestConsoleSinkPrefixesWithSeveralPorts(t *testing.T) {
	registry, _ := testRegistry(t)
	var out bytes.Buffer
	sink := NewConsoleSink(&out, registry)

	_, err := registry.Add("/dev/ttyUSB0", 0)
	require.NoError(t, err)
	sink.Append("/dev/ttyUSB0", "one\ntwo\n")
	require.Equal(t, "one\ntwo\n", out.String())

	_, err = registry.Add("/dev/ttyACM0", 0)
	require.NoError(t, err)
	out.Reset()
	sink.Append("/dev/ttyACM0", "three\n\nfour\n")
	require.Equal(t, "[ttyACM0] three\n[ttyACM0] \n[ttyACM0] four\n", out.String())
}

func TestRouteInput(t *testing.T) {
	registry, _ := testRegistry(t)

	_, _, err := routeInput("hello", registry.Sessions())
	require.ErrorIs(t, err, session.ErrNotConnected)

	usb, err := registry.Add("/dev/ttyUSB0", 0)
	require.NoError(t, err)

	sess, text, err := routeInput("hello world", registry.Sessions())
	require.NoError(t, err)
	require.Same(t, usb, sess)
	require.Equal(t, "hello world", text)

	acm, err := registry.Add("/dev/ttyACM0", 0)
	require.NoError(t, err)

	_, _, err = routeInput("hello", registry.Sessions())
	require.ErrorIs(t, err, errAmbiguousTarget)

	sess, text, err = routeInput("@ttyACM0 AT+RST", registry.Sessions())
	require.NoError(t, err)
	require.Same(t, acm, sess)
	require.Equal(t, "AT+RST", text)

	sess, _, err = routeInput("@/dev/ttyUSB0 x", registry.Sessions())
	require.NoError(t, err)
	require.Same(t, usb, sess)

	_, _, err = routeInput("@ttyS9 x", registry.Sessions())
	require.ErrorIs(t, err, session.ErrUnknownSession)

	_, _, err = routeInput("@ttyACM0", registry.Sessions())
	require.Error(t, err)
}

func TestReadInputSendsLines(t *testing.T) {
	registry, opener := testRegistry(t)
	sess, err := registry.Add("/dev/ttyUSB0", 0)
	require.NoError(t, err)
	require.NoError(t, sess.Connect(0))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	readInput(context.Background(), strings.NewReader("reboot\r\nstatus\n"), registry, logger)

	require.Equal(t, "reboot\r\nstatus\r\n", string(opener.Port("/dev/ttyUSB0").GetWrittenData()))
}

func TestOpenPortsHonorsFlags(t *testing.T) {
	registry, opener := testRegistry(t)
	cfg := config.Default()
	cfg.Ports = []config.PortConfig{
		{Device: "/dev/ttyUSB0", BaudRate: 9600, Enabled: true, AutoConnect: true},
		{Device: "/dev/ttyUSB1", BaudRate: 9600, Enabled: true},
		{Device: "/dev/ttyUSB2", BaudRate: 9600},
	}
	cfg.ApplyDefaults()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.Equal(t, 1, openPorts(cfg, registry, logger))
	require.Equal(t, 2, registry.Len())
	require.Len(t, opener.Configs(), 1)
	require.Equal(t, 9600, opener.Configs()[0].BaudRate)
	require.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, portIDs(registry))
}

func TestParityLetter(t *testing.T) {
	require.Equal(t, "N", parityLetter("none"))
	require.Equal(t, "E", parityLetter("even"))
	require.Equal(t, "O", parityLetter("odd"))
}
