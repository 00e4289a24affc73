package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens transports.
type Dialer interface {
	// Dial opens a transport to target. The context bounds the handshake
	// only; the returned Conn outlives it.
	Dial(ctx context.Context, target string) (Conn, error)
}

// Conn is a single open, message-framed transport.
type Conn interface {
	// ReadMessage blocks until the next text frame arrives or the
	// transport closes.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one text frame. Safe for concurrent use.
	WriteMessage(data []byte) error

	// Close closes the transport. Safe to call more than once.
	Close() error
}

// TransportConfig configures the WebSocket dialer.
type TransportConfig struct {
	HandshakeTimeout time.Duration // Handshake bound when ctx has no deadline
	WriteTimeout     time.Duration // Write deadline for sends
	ReadLimit        int64         // Maximum inbound frame size in bytes
	Header           http.Header   // Extra handshake headers
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        10 << 20, // 10 MiB
	}
}

// WSDialer dials gorilla/websocket connections.
type WSDialer struct {
	cfg    TransportConfig
	logger *slog.Logger
}

// NewWSDialer creates a WebSocket dialer.
func NewWSDialer(cfg TransportConfig, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSDialer{cfg: cfg, logger: logger}
}

// Dial establishes the WebSocket connection.
func (d *WSDialer) Dial(ctx context.Context, target string) (Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	for k, vs := range d.cfg.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial transport: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial transport: %w", err)
	}
	if d.cfg.ReadLimit > 0 {
		conn.SetReadLimit(d.cfg.ReadLimit)
	}

	d.logger.Debug("websocket connected", "host", hostOf(target))

	return &wsConn{conn: conn, writeTimeout: d.cfg.WriteTimeout}, nil
}

// wsConn adapts *websocket.Conn to Conn.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	// Write serialization
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
		// Binary frames are not part of the protocol.
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// isTransportFailure reports whether a read error is an abnormal failure
// rather than an orderly close by the peer.
func isTransportFailure(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return false
		}
	}
	return true
}

// buildTarget embeds the subject and token as query parameters of base.
func buildTarget(base, subjectParam, subject, tokenParam, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse transport url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse transport url: %q is not absolute", base)
	}
	q := u.Query()
	q.Set(subjectParam, subject)
	q.Set(tokenParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// hostOf returns the host of target for logging without leaking the token.
func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Host
}
