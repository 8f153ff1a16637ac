package engine

import "time"

const (
	DefaultMinRetryDelay = 5 * time.Second
	DefaultMaxRetryDelay = 2 * time.Minute
)

// Backoff is the delay between connection attempts. It doubles on every use until it
// reaches its ceiling.
type Backoff struct {
	ceiling time.Duration
	current time.Duration
}

// NewBackoff returns a Backoff that starts at floor and never exceeds ceiling. Zero or
// negative values select the defaults.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultMinRetryDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultMaxRetryDelay
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{ceiling: ceiling, current: floor}
}

// Next returns the current delay and doubles it for the next call.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}
	return d
}
