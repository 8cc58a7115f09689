// Package notify posts viewer lifecycle events to a Slack incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"uartviewer/config"
)

const (
	footer = "uartviewer"

	// stallCooldown is the minimum gap between stall notices for one device
	stallCooldown = 5 * time.Minute

	// tailLines is how much of the port log accompanies a stall notice.
	tailLines = 5
	tailBytes = 2048
)

// SlackNotifier sends port events to Slack
type SlackNotifier struct {
	config     *config.SlackConfig
	instanceID string
	logger     *slog.Logger
	client     *http.Client
	now        func() time.Time

	mu        sync.Mutex
	lastStall map[string]time.Time
}

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier creates a notifier. Without a webhook URL every call is a
// no-op.
func NewSlackNotifier(cfg *config.SlackConfig, instanceID string, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		config:     cfg,
		instanceID: instanceID,
		logger:     logger.With("component", "slack"),
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		lastStall:  make(map[string]time.Time),
	}
}

// IsEnabled returns true if Slack notifications are configured
func (s *SlackNotifier) IsEnabled() bool {
	return s.config.WebhookURL != ""
}

// NotifyStartup lists the configured ports and how many of them opened.
func (s *SlackNotifier) NotifyStartup(ports []string, connected int) error {
	if !s.IsEnabled() || !s.config.NotifyStartup {
		return nil
	}

	list := "none"
	if len(ports) > 0 {
		list = strings.Join(ports, ", ")
	}
	return s.post(s.attachment("good", "Viewer started",
		short("Instance", s.instanceID),
		short("Connected", fmt.Sprintf("%d of %d", connected, len(ports))),
		long("Ports", list),
	))
}

// NotifyShutdown reports uptime and the total size of all port logs.
func (s *SlackNotifier) NotifyShutdown(bytesLogged int64, uptime time.Duration) error {
	if !s.IsEnabled() || !s.config.NotifyShutdown {
		return nil
	}

	return s.post(s.attachment("warning", "Viewer stopped",
		short("Instance", s.instanceID),
		short("Uptime", formatDuration(uptime)),
		short("Logged", formatSize(bytesLogged)),
	))
}

// NotifyStall reports a port whose reader stopped on a transport error,
// together with the last lines it logged. Repeats for the same device
// within stallCooldown are dropped and reported as not sent.
func (s *SlackNotifier) NotifyStall(device string, err error, logTail string) (bool, error) {
	if !s.IsEnabled() || !s.config.NotifyErrors {
		return false, nil
	}

	now := s.now()
	s.mu.Lock()
	if last, ok := s.lastStall[device]; ok && now.Sub(last) < stallCooldown {
		s.mu.Unlock()
		s.logger.Debug("Stall notice suppressed", "device", device)
		return false, nil
	}
	s.lastStall[device] = now
	s.mu.Unlock()

	att := s.attachment("danger", "Reader stopped on "+device,
		short("Instance", s.instanceID),
		short("Device", device),
		long("Error", err.Error()),
	)
	att.Text = "The port stays open but no more data is logged until it is reconnected."
	if tail := lastLines(logTail, tailLines); tail != "" {
		att.Fields = append(att.Fields, long("Last output", "```"+tail+"```"))
	}
	return true, s.post(att)
}

func (s *SlackNotifier) attachment(color, title string, fields ...SlackField) SlackAttachment {
	return SlackAttachment{
		Color:     color,
		Title:     title,
		Fields:    fields,
		Footer:    footer,
		Timestamp: s.now().Unix(),
	}
}

func (s *SlackNotifier) post(att SlackAttachment) error {
	body, err := json.Marshal(SlackMessage{Attachments: []SlackAttachment{att}})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("Slack notification sent", "title", att.Title)
	return nil
}

func short(title, value string) SlackField { return SlackField{Title: title, Value: value, Short: true} }
func long(title, value string) SlackField  { return SlackField{Title: title, Value: value} }

// lastLines keeps the final n lines of text, capped at tailBytes.
func lastLines(text string, n int) string {
	text = strings.TrimRight(text, "\n")
	if len(text) > tailBytes {
		text = text[len(text)-tailBytes:]
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		}
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
