// Package countdown derives a live "seconds remaining" value for a session
// and signals when the session is about to expire and when it has expired.
package countdown

import (
	"math"
	"sync"
	"time"
)

// Ticker is the subset of *time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// DefaultThresholds are the remaining-seconds marks that raise "expiring soon".
var DefaultThresholds = []int{300, 60}

type Option func(*Countdown)

// WithTicker replaces the ticker factory (tests).
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(c *Countdown) { c.newTicker = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Countdown) { c.now = now }
}

// WithThresholds replaces DefaultThresholds.
func WithThresholds(t ...int) Option {
	return func(c *Countdown) { c.thresholds = t }
}

// Countdown ticks once per second. Only one tick loop is ever active:
// Start stops the previous loop before starting a new one.
type Countdown struct {
	mu         sync.Mutex
	remaining  int
	running    bool
	generation uint64
	stop       chan struct{}
	ticker     Ticker

	newTicker  func(time.Duration) Ticker
	now        func() time.Time
	thresholds []int

	onTick     func(remaining int)
	onExpiring func(remaining int)
	onExpired  func()
}

func New(opts ...Option) *Countdown {
	c := &Countdown{
		newTicker:  newRealTicker,
		now:        time.Now,
		thresholds: DefaultThresholds,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnTick sets the callback invoked after every decrement.
func (c *Countdown) OnTick(f func(remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = f
}

// OnExpiring sets the callback invoked when a threshold is crossed.
func (c *Countdown) OnExpiring(f func(remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpiring = f
}

// OnExpired sets the callback invoked once when the countdown reaches zero.
func (c *Countdown) OnExpired(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = f
}

// RemainingUntil returns ceil(expiresAt - now) in seconds, or fallback when
// expiresAt is zero. Negative results are clamped to zero.
func (c *Countdown) RemainingUntil(expiresAt time.Time, fallback time.Duration) int {
	d := fallback
	if !expiresAt.IsZero() {
		d = expiresAt.Sub(c.now())
	}
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// StartUntil starts the countdown from the authoritative expiry, falling
// back to the given duration when no expiry is known.
func (c *Countdown) StartUntil(expiresAt time.Time, fallback time.Duration) {
	c.Start(c.RemainingUntil(expiresAt, fallback))
}

// Start resets the countdown to seconds and begins ticking. A non-positive
// value expires immediately.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	c.stopLocked()
	c.generation++

	if seconds <= 0 {
		c.remaining = 0
		expired := c.onExpired
		c.mu.Unlock()
		if expired != nil {
			expired()
		}
		return
	}

	c.remaining = seconds
	c.running = true
	c.stop = make(chan struct{})
	c.ticker = c.newTicker(time.Second)
	gen, ticker, stop := c.generation, c.ticker, c.stop
	c.mu.Unlock()

	go c.loop(gen, ticker, stop)
}

func (c *Countdown) loop(gen uint64, ticker Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if done := c.tick(gen); done {
				return
			}
		}
	}
}

func (c *Countdown) tick(gen uint64) bool {
	c.mu.Lock()
	if gen != c.generation || !c.running {
		c.mu.Unlock()
		return true
	}

	c.remaining--
	remaining := c.remaining
	onTick, onExpiring, onExpired := c.onTick, c.onExpiring, c.onExpired

	crossed := false
	for _, th := range c.thresholds {
		if remaining == th {
			crossed = true
		}
	}

	expired := remaining <= 0
	if expired {
		c.remaining = 0
		c.stopLocked()
	}
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if crossed && onExpiring != nil {
		onExpiring(remaining)
	}
	if expired && onExpired != nil {
		onExpired()
	}
	return expired
}

// Stop halts ticking without emitting expired. Safe to call repeatedly.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.generation++
}

func (c *Countdown) stopLocked() {
	if !c.running {
		return
	}
	c.running = false
	c.ticker.Stop()
	close(c.stop)
	c.ticker = nil
	c.stop = nil
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
