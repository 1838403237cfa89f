package supervisor

import (
	"math"
	"time"
)

// backoffDelay computes delay_ms = min(max_delay, base_delay * factor^attempt),
// deterministically — no jitter, per the escalation design's reliance on
// reproducible restart timing.
func backoffDelay(base, max time.Duration, factor float64, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	scaled := float64(base) * math.Pow(factor, float64(attempt))
	if scaled > float64(max) {
		return max
	}
	return time.Duration(scaled)
}
