package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uartviewer/serial"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSONAppliesDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"app": {"instance_id": "bench-1"},
		"ports": [{"device": "/dev/ttyUSB0", "enabled": true, "auto_connect": true}],
		"timestamp": {"enabled": true, "timezone": "UTC"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "UARTViewer", cfg.App.Name)
	require.Equal(t, "bench-1", cfg.App.InstanceID)
	require.Len(t, cfg.Ports, 1)
	p := cfg.Ports[0]
	require.Equal(t, serial.DefaultBaudRate, p.BaudRate)
	require.Equal(t, 8, p.DataBits)
	require.Equal(t, 1, p.StopBits)
	require.Equal(t, "none", p.Parity)
	require.Equal(t, serial.BackendBugst, p.Backend)
	require.True(t, p.AutoConnect)

	require.Equal(t, []string{"ttyUSB", "ttyACM"}, cfg.Discovery.Prefixes)
	require.Equal(t, 50*time.Millisecond, cfg.Session.GetDrainInterval())
	require.Equal(t, 100*time.Millisecond, cfg.Session.GetReadTimeout())
	require.Equal(t, 20*time.Millisecond, cfg.Session.GetIdleSleep())
	require.Equal(t, time.Second, cfg.Session.GetJoinTimeout())
	require.Equal(t, 4096, cfg.Session.ReadBufferBytes)
	require.Equal(t, 8080, cfg.Monitoring.Port)
	require.Equal(t, "uartviewer", cfg.MQTT.TopicPrefix)
	require.Equal(t, "uartviewer-bench-1", cfg.MQTT.ClientID)
	require.False(t, cfg.MQTT.Enabled())

	require.NoError(t, Validate(cfg))
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  name: Bench
ports:
  - device: /dev/ttyACM0
    baud_rate: 9600
    parity: even
    backend: tarm
    enabled: true
discovery:
  prefixes: [ttyUSB]
search:
  resume_on_reopen: true
mqtt:
  broker: tcp://localhost:1883
  qos: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Bench", cfg.App.Name)
	require.Equal(t, 9600, cfg.Ports[0].BaudRate)
	require.Equal(t, "even", cfg.Ports[0].Parity)
	require.Equal(t, "tarm", cfg.Ports[0].Backend)
	require.Equal(t, []string{"ttyUSB"}, cfg.Discovery.Prefixes)
	require.True(t, cfg.Search.ResumeOnReopen)
	require.True(t, cfg.MQTT.Enabled())
	require.Equal(t, byte(1), cfg.MQTT.QoS)
	require.NoError(t, Validate(cfg))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", `{"ports": [`))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.yml", "ports: [\n"))
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Ports = append(cfg.Ports, PortConfig{Device: "/dev/ttyUSB3", BaudRate: 921600, DataBits: 8, StopBits: 1, Parity: "none", Backend: "bugst"})

	for _, name := range []string{"out.json", "out.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, Save(cfg, path))
		loaded, err := Load(path)
		require.NoError(t, err, name)
		require.Equal(t, cfg.Ports, loaded.Ports, name)
		require.Equal(t, cfg.Session, loaded.Session, name)
	}
}

func TestPortConfigSerial(t *testing.T) {
	p := PortConfig{Device: "/dev/ttyUSB0", BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "odd", Backend: "tarm"}
	s := p.Serial()
	require.Equal(t, serial.PortConfig{Device: "/dev/ttyUSB0", BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "odd", Backend: "tarm"}, s)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Ports = []PortConfig{
		{Device: "/dev/ttyUSB0", BaudRate: 12345, DataBits: 9, StopBits: 3, Parity: "weird", Backend: "nope"},
		{Device: "/dev/ttyUSB0", BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "none", Backend: "bugst"},
		{Device: "", BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "none", Backend: "bugst"},
	}
	cfg.Timestamp.Timezone = "Nowhere/Special"
	cfg.Session.ReadTimeoutMs = 2000
	cfg.Logging.Level = "loud"
	cfg.Logging.BasePath = filepath.Join(t.TempDir(), "missing")
	cfg.Monitoring.Port = 70000
	cfg.MQTT.Broker = "localhost"
	cfg.MQTT.QoS = 3
	cfg.MQTT.TopicPrefix = "lab/#"

	err := Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]bool{}
	for _, v := range verrs {
		fields[v.Field] = true
	}
	for _, want := range []string{
		"ports[0].baud_rate",
		"ports[0].data_bits",
		"ports[0].stop_bits",
		"ports[0].parity",
		"ports[0].backend",
		"ports[1].device",
		"ports[2].device",
		"timestamp.timezone",
		"session.join_timeout_ms",
		"logging.level",
		"logging.base_path",
		"monitoring.port",
		"mqtt.broker",
		"mqtt.qos",
		"mqtt.topic_prefix",
	} {
		require.True(t, fields[want], "missing %s in %v", want, err)
	}
	require.Contains(t, err.Error(), "duplicate device: /dev/ttyUSB0")
}

func TestValidateAllowsNoPortsAndDisabledMonitoring(t *testing.T) {
	cfg := Default()
	cfg.Monitoring.Disabled = true
	cfg.Monitoring.Port = -1
	require.NoError(t, Validate(cfg))
}
