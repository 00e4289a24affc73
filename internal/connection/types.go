package connection

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrNoSubject     = errors.New("no subject identifier available")
	ErrAlreadyClosed = errors.New("already closed")
	ErrEmptyToken    = errors.New("credential provider returned empty token")
)

// Status is the externally observable connection state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Control frame types.
const (
	FrameTypePing = "ping"
	FrameTypePong = "pong"
)

// InboundEvent is a frame pushed by the server.
type InboundEvent struct {
	Event     string         `json:"event,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp"`
	Type      string         `json:"type,omitempty"` // "pong" for keepalive acknowledgements
}

// IsControl reports whether the event is a protocol-internal frame.
func (e InboundEvent) IsControl() bool {
	return e.Type == FrameTypePong
}

// HandlerFunc receives the data payload of a named event.
type HandlerFunc func(data map[string]any)

// WildcardFunc receives every non-control event.
type WildcardFunc func(event InboundEvent)

// Handlers is the event registry consulted on every inbound frame.
type Handlers struct {
	Named    map[string]HandlerFunc
	Wildcard WildcardFunc
}

// StatusListener observes status transitions. Calls are made in
// transition order from a single goroutine, without manager locks held.
type StatusListener interface {
	OnStatusChanged(status Status)
}

// StatusListenerFunc adapts a function to StatusListener.
type StatusListenerFunc func(status Status)

// OnStatusChanged calls f(status).
func (f StatusListenerFunc) OnStatusChanged(status Status) { f(status) }

// CredentialProvider supplies the identity and short-lived token used to
// open each transport. Tokens are requested once per attempt and never
// cached by the manager.
type CredentialProvider interface {
	// Subject returns the stable subject identifier, or false if no
	// identity is currently available.
	Subject() (string, bool)

	// Token returns a fresh bearer token.
	Token(ctx context.Context) (string, error)
}

// SubjectWatcher is optionally implemented by providers whose identity
// can change at runtime. An empty subject means the identity was cleared.
type SubjectWatcher interface {
	SubjectChanges() <-chan string
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                  string        // Transport base address (e.g., wss://api.example.com/realtime)
	SubjectParam         string        // Query parameter carrying the subject identifier
	TokenParam           string        // Query parameter carrying the bearer token
	AutoConnect          bool          // Connect from Start and whenever the identity changes
	Reconnect            bool          // Retry automatically after unexpected closure
	MaxReconnectAttempts int           // Consecutive retries before settling (0 = default 5, negative = none)
	ReconnectInterval    time.Duration // Base delay of the backoff schedule
	MaxReconnectDelay    time.Duration // Upper bound on a single backoff delay
	BackoffMultiplier    float64       // Growth factor per consecutive attempt
	KeepaliveInterval    time.Duration // Period of the ping control frame
	ConnectDelay         time.Duration // Deferral of the first automatic connect (0 = immediate)
	DialTimeout          time.Duration // Bound on token fetch + handshake per attempt
	Handlers             Handlers      // Initial handler registry
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SubjectParam:         "userId",
		TokenParam:           "token",
		AutoConnect:          true,
		Reconnect:            true,
		MaxReconnectAttempts: 5,
		ReconnectInterval:    3 * time.Second,
		MaxReconnectDelay:    15 * time.Second,
		BackoffMultiplier:    1.5,
		KeepaliveInterval:    30 * time.Second,
		DialTimeout:          10 * time.Second,
	}
}

// withDefaults fills zero-valued tuning fields. Booleans are left alone.
func (c ManagerConfig) withDefaults() ManagerConfig {
	d := DefaultManagerConfig()
	if c.SubjectParam == "" {
		c.SubjectParam = d.SubjectParam
	}
	if c.TokenParam == "" {
		c.TokenParam = d.TokenParam
	}
	switch {
	case c.MaxReconnectAttempts == 0:
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	case c.MaxReconnectAttempts < 0:
		c.MaxReconnectAttempts = 0
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	return c
}
