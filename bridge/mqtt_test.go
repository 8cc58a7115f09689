package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"uartviewer/config"
	"uartviewer/serial"
	"uartviewer/session"
)

type published struct {
	topic   string
	payload []byte
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(t *testing.T, registry *session.Registry, publish func(string, []byte) error) *Bridge {
	t.Helper()
	b := newBridge("lab", 0, registry, testLogger(), publish)
	t.Cleanup(b.Close)
	return b
}

func TestTopics(t *testing.T) {
	require.Equal(t, "ttyUSB0", PortToken("/dev/ttyUSB0"))
	require.Equal(t, "COM3", PortToken("COM3"))
	require.Equal(t, "COM3", PortToken(`\\.\COM3`))
	require.Equal(t, "odd_name_", PortToken("/dev/odd+name#"))

	require.Equal(t, "lab/ttyUSB0/rx", RxTopic("lab", "/dev/ttyUSB0"))
	require.Equal(t, "lab/ttyACM1/tx", TxTopic("lab", "/dev/ttyACM1"))
}

func TestAppendPublishesRxMessage(t *testing.T) {
	out := make(chan published, 4)
	b := newTestBridge(t, nil, func(topic string, payload []byte) error {
		out <- published{topic: topic, payload: payload}
		return nil
	})

	b.Append("/dev/ttyUSB0", "boot\n")

	var got published
	select {
	case got = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
	require.Equal(t, "lab/ttyUSB0/rx", got.topic)

	var msg RxMessage
	require.NoError(t, json.Unmarshal(got.payload, &msg))
	require.Equal(t, "/dev/ttyUSB0", msg.Device)
	require.Equal(t, "boot\n", msg.Text)
	_, err := uuid.Parse(msg.ID)
	require.NoError(t, err)
	require.False(t, msg.Time.IsZero())
}

func TestAppendDropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	b := newTestBridge(t, nil, func(string, []byte) error {
		<-release
		return errors.New("broker gone")
	})
	defer close(release)

	// One message is held by the worker, queueDepth more fill the queue
	for i := 0; i < queueDepth+20; i++ {
		b.Append("/dev/ttyUSB0", "x")
	}
	require.GreaterOrEqual(t, b.Dropped(), int64(19))
}

func TestHandleTxSendsLine(t *testing.T) {
	opener := serial.NewMockOpener()
	registry := session.NewRegistry(session.Options{Opener: opener.Open, Logger: testLogger()})
	t.Cleanup(registry.Close)

	sess, err := registry.Add("/dev/ttyUSB0", 0)
	require.NoError(t, err)
	require.NoError(t, sess.Connect(0))

	b := newTestBridge(t, registry, func(string, []byte) error { return nil })

	b.handleTx("lab/ttyUSB0/tx", []byte("reset\n"))
	b.handleTx("lab/ttyUSB0/tx", []byte(`{"id":"1","line":"status"}`))
	// Ignored: wrong prefix, unknown port, not a tx topic
	b.handleTx("other/ttyUSB0/tx", []byte("nope"))
	b.handleTx("lab/ttyUSB9/tx", []byte("nope"))
	b.handleTx("lab/ttyUSB0/rx", []byte("nope"))

	require.Equal(t, "reset\r\nstatus\r\n", string(opener.Port("/dev/ttyUSB0").GetWrittenData()))
}

func TestDecodeTx(t *testing.T) {
	require.Equal(t, "AT", decodeTx([]byte("AT\r\n")))
	require.Equal(t, "AT+GMR", decodeTx([]byte(`{"line":"AT+GMR"}`)))
	require.Equal(t, "{not json", decodeTx([]byte("{not json")))
	require.Equal(t, "", decodeTx(nil))
}

func TestConnectRequiresBroker(t *testing.T) {
	_, err := Connect(config.MQTTConfig{}, nil, testLogger())
	require.Error(t, err)
}
