// Package clock provides an injectable time source so that timer-driven
// code (keepalives, reconnect backoff) can be tested deterministically.
//
// Production code uses Real(). Tests use Fake(), whose timers only fire
// when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	m := connection.NewManager(cfg, creds, nil, connection.WithClock(c))
//	c.Advance(30 * time.Second) // fires the keepalive deterministically
package clock
