package alerting

import (
	"sync"
	"time"
)

// Cooldown suppresses repeat alerts per symbol within a fixed period. The
// check-and-set is atomic under the mutex, so concurrent callers for the
// same symbol admit exactly one alert per window.
type Cooldown struct {
	period time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown constructs a Cooldown with the given suppression period.
func NewCooldown(period time.Duration) *Cooldown {
	if period <= 0 {
		period = time.Minute
	}
	return &Cooldown{period: period, last: make(map[string]time.Time)}
}

// ShouldAlert reports whether an alert for symbol is admissible at now, and
// records now as the last alert time when it is. Entries are overwritten,
// never deleted; the map is bounded by symbol cardinality.
func (c *Cooldown) ShouldAlert(symbol string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[symbol]; ok && now.Sub(last) <= c.period {
		return false
	}
	c.last[symbol] = now
	return true
}
