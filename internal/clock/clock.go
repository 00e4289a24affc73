package clock

import "time"

// Clock abstracts the subset of the time package used by the connection
// manager.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after d.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f in its own goroutine (real) or during Advance
	// (fake) once d has elapsed. The returned Timer cancels the call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable pending call created by AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It returns true if the call
// stopped the timer, false if the timer already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}
