package preprocess

import "time"

const (
	MinConcurrency = 2
	MaxConcurrency = 6

	DefaultMaxWidth     = 1600
	DefaultQuality      = 0.86
	DefaultTaskTimeout  = 360 * time.Second
	DefaultRespawnDelay = time.Second
)

// Config sizes the pool. Zero values fall back to the defaults above.
type Config struct {
	// Concurrency is the number of slots; always clamped to [MinConcurrency, MaxConcurrency].
	Concurrency int
	// MaxWidth and Quality apply to inputs submitted without their own params.
	MaxWidth int
	Quality  float64
	// TaskTimeout is the per-assignment deadline. Expiry destroys the context.
	TaskTimeout time.Duration
	// RespawnDelay spaces out retries when a replacement context cannot start.
	RespawnDelay time.Duration
}

// DefaultConcurrency derives a slot count from the available CPUs: half of
// them, rounded up, within the allowed range.
func DefaultConcurrency(cpus int) int {
	if cpus <= 0 {
		cpus = 4
	}
	return clampConcurrency((cpus + 1) / 2)
}

func clampConcurrency(n int) int {
	return max(MinConcurrency, min(n, MaxConcurrency))
}

func (c Config) withDefaults() Config {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency(0)
	}
	c.Concurrency = clampConcurrency(c.Concurrency)
	if c.MaxWidth <= 0 {
		c.MaxWidth = DefaultMaxWidth
	}
	if c.Quality <= 0 {
		c.Quality = DefaultQuality
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.RespawnDelay <= 0 {
		c.RespawnDelay = DefaultRespawnDelay
	}
	return c
}
