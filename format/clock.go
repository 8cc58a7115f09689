package format

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata" // zone names resolve on hosts without a zoneinfo database
)

// Clock is the shared timestamp configuration handed to every session. The
// enabled flag and the zone may be changed at any time; lines formatted
// after the change use the new setting.
type Clock struct {
	enabled atomic.Bool

	mu   sync.RWMutex
	zone string
	loc  *time.Location
	now  func() time.Time
}

// NewClock creates a clock in local time
func NewClock(enabled bool) *Clock {
	c := &Clock{
		loc: time.Local,
		now: time.Now,
	}
	c.enabled.Store(enabled)
	return c
}

// Enabled reports whether timestamping is on
func (c *Clock) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled turns timestamping on or off
func (c *Clock) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// SetTimezone switches to the named IANA zone. An empty name selects local
// time. An unknown name also selects local time and returns the lookup error.
func (c *Clock) SetTimezone(name string) error {
	loc := time.Local
	var err error
	if name != "" {
		var l *time.Location
		l, err = time.LoadLocation(name)
		if err != nil {
			err = fmt.Errorf("unknown timezone %q, using local time: %w", name, err)
			name = ""
		} else {
			loc = l
		}
	}

	c.mu.Lock()
	c.zone = name
	c.loc = loc
	c.mu.Unlock()
	return err
}

// Timezone returns the configured zone name, or "Local"
func (c *Clock) Timezone() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.zone == "" {
		return "Local"
	}
	return c.zone
}

// Timestamp returns the current time as [DD-MM-YYYY HH:MM:SS:mmm]
func (c *Clock) Timestamp() string {
	c.mu.RLock()
	now, loc := c.now, c.loc
	c.mu.RUnlock()
	return FormatTimestamp(now().In(loc))
}

// SetNowFunc replaces the time source, for tests
func (c *Clock) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// FormatTimestamp renders t as [DD-MM-YYYY HH:MM:SS:mmm]
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s:%03d]", t.Format("[02-01-2006 15:04:05"), t.Nanosecond()/int(time.Millisecond))
}

// FixedStamper is a Stamper with a constant prefix
type FixedStamper struct {
	Stamp string
	On    bool
}

// Enabled implements Stamper
func (s FixedStamper) Enabled() bool { return s.On }

// Timestamp implements Stamper
func (s FixedStamper) Timestamp() string { return s.Stamp }
