package httpapi

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/time/rate"
)

// Limit is a budget of Requests per Window for a single key. A request is
// allowed when fewer than Requests requests of the same key were allowed
// during the Window before it.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Default device API limits.
var (
	EnrollLimit = Limit{Requests: 5, Window: 15 * time.Minute}
	ConfigLimit = Limit{Requests: 600, Window: time.Hour}
	BundleLimit = Limit{Requests: 120, Window: time.Hour}
)

// Default budget of the device API as a whole, across all clients.
const (
	DeviceRate  rate.Limit = 50
	DeviceBurst            = 100
)

// keyedLimiter keeps, per key, the times of the requests it allowed within
// the last window. Keys with no request left in the window are dropped.
type keyedLimiter struct {
	limit Limit
	clock clock.Clock

	mu        sync.Mutex
	requests  map[string][]time.Time
	lastSweep time.Time
}

func newKeyedLimiter(limit Limit, clk clock.Clock) *keyedLimiter {
	return &keyedLimiter{
		limit:     limit,
		clock:     clk,
		requests:  make(map[string][]time.Time),
		lastSweep: clk.Now(),
	}
}

// expire drops the leading timestamps that fell out of the window ending
// at now.
func (l *keyedLimiter) expire(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.limit.Window)
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// Allow reports whether one more request for key fits the budget, and
// counts it if so.
func (l *keyedLimiter) Allow(key string) bool {
	if l == nil || l.limit.Requests <= 0 {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.limit.Window {
		for k, times := range l.requests {
			if len(l.expire(times, now)) == 0 {
				delete(l.requests, k)
			}
		}
		l.lastSweep = now
	}

	times := l.expire(l.requests[key], now)
	if len(times) >= l.limit.Requests {
		l.requests[key] = times
		return false
	}
	l.requests[key] = append(times, now)
	return true
}

func (l *keyedLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// globalLimiter is a token bucket shared by every request of a surface.
type globalLimiter struct {
	limiter *rate.Limiter
	clock   clock.Clock
}

func newGlobalLimiter(r rate.Limit, burst int, clk clock.Clock) *globalLimiter {
	if r <= 0 || burst <= 0 {
		return nil
	}
	return &globalLimiter{limiter: rate.NewLimiter(r, burst), clock: clk}
}

func (g *globalLimiter) Allow() bool {
	if g == nil {
		return true
	}
	return g.limiter.AllowN(g.clock.Now(), 1)
}
