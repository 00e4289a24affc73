package connection

import (
	"math"
	"time"
)

// backoffDelay returns the wait before retry number attempt (1-based):
// base * multiplier^(attempt-1), clamped to maxDelay.
func backoffDelay(base time.Duration, multiplier float64, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}
