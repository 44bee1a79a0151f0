package resilience

import (
	"math"
	"math/rand"
	"time"
)

// Backoff returns base doubled per attempt, starting at attempt 1. jitterPct spreads the delay
// by up to that fraction either way (0.2 means ±20%). Delays that would overflow saturate
// without jitter.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := uint(attempt - 1)
	if shift > 62 || base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	d := base << shift
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}
