package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_Now(t *testing.T) {
	c := Fake(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	c.Advance(5 * time.Second)
	if got, want := c.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClock_After(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(3 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(3 * time.Second)

	select {
	case <-ch:
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeClock_AfterFunc(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(2*time.Second, func() { fired++ })

	c.Advance(time.Second)
	if fired != 0 {
		t.Fatalf("fired = %d before deadline, want 0", fired)
	}

	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d at deadline, want 1", fired)
	}

	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("fired = %d after deadline, want 1", fired)
	}
}

func TestFakeClock_AfterFuncZeroFiresOnNextAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := false
	c.AfterFunc(0, func() { fired = true })

	if fired {
		t.Fatal("AfterFunc(0) fired synchronously")
	}
	c.Advance(0)
	if !fired {
		t.Fatal("AfterFunc(0) did not fire on Advance(0)")
	}
}

func TestFakeClock_Stop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false on active timer, want true")
	}
	if timer.Stop() {
		t.Fatal("second Stop() = true, want false")
	}

	c.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if n := len(c.Pending()); n != 0 {
		t.Fatalf("Pending() has %d entries, want 0", n)
	}
}

func TestFakeClock_RearmDuringAdvance(t *testing.T) {
	c := Fake(epoch)
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(10*time.Second, tick)
	}
	c.AfterFunc(10*time.Second, tick)

	c.Advance(35 * time.Second)
	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}

	pending := c.Pending()
	if len(pending) != 1 || pending[0] != 5*time.Second {
		t.Fatalf("Pending() = %v, want [5s]", pending)
	}
}

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestTimer_StopNil(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Fatal("nil Timer Stop() = true, want false")
	}
}
