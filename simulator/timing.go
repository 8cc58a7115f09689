package simulator

import (
	"math/rand"
	"time"
)

// RateLimiter controls the rate of emitted lines with optional jitter
type RateLimiter struct {
	linesPerMinute float64
	jitterPercent  float64
	random         *rand.Rand
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(linesPerMinute, jitterPercent float64, random *rand.Rand) *RateLimiter {
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RateLimiter{
		linesPerMinute: linesPerMinute,
		jitterPercent:  jitterPercent,
		random:         random,
	}
}

// NextInterval returns the duration to wait before the next line
func (r *RateLimiter) NextInterval() time.Duration {
	if r.linesPerMinute <= 0 {
		return time.Minute // Default to 1 per minute if not set
	}

	baseInterval := time.Duration(float64(time.Minute) / r.linesPerMinute)

	// Generate random value between -jitter% and +jitter%
	if r.jitterPercent > 0 {
		jitterFactor := (r.random.Float64()*2 - 1) * (r.jitterPercent / 100)
		return baseInterval + time.Duration(float64(baseInterval)*jitterFactor)
	}

	return baseInterval
}

// Ticker creates a channel that sends at the configured rate with jitter
type Ticker struct {
	limiter *RateLimiter
	C       chan time.Time
	done    chan struct{}
}

// NewTicker creates a new ticker that fires at the rate limiter's interval
func NewTicker(limiter *RateLimiter) *Ticker {
	t := &Ticker{
		limiter: limiter,
		C:       make(chan time.Time, 1),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Ticker) run() {
	timer := time.NewTimer(t.limiter.NextInterval())
	defer timer.Stop()
	for {
		select {
		case now := <-timer.C:
			select {
			case t.C <- now:
			default:
				// Channel full, skip this tick
			}
			timer.Reset(t.limiter.NextInterval())
		case <-t.done:
			return
		}
	}
}

// Stop stops the ticker
func (t *Ticker) Stop() {
	close(t.done)
}
