package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*http.Request, *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(r, conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSDialer_Dial(t *testing.T) {
	var (
		mu    sync.Mutex
		query url.Values
	)
	server := mockWSServer(t, func(r *http.Request, conn *websocket.Conn) {
		mu.Lock()
		query = r.URL.Query()
		mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	target, err := buildTarget(wsURL(server), "userId", "u-1", "token", "t-1")
	if err != nil {
		t.Fatalf("buildTarget failed: %v", err)
	}

	dialer := NewWSDialer(DefaultTransportConfig(), nil)
	conn, err := dialer.Dial(context.Background(), target)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	mu.Lock()
	defer mu.Unlock()
	if got := query.Get("userId"); got != "u-1" {
		t.Errorf("userId = %q, want %q", got, "u-1")
	}
	if got := query.Get("token"); got != "t-1" {
		t.Errorf("token = %q, want %q", got, "t-1")
	}
}

func TestWSDialer_DialRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	dialer := NewWSDialer(DefaultTransportConfig(), nil)
	if _, err := dialer.Dial(context.Background(), wsURL(server)); err == nil {
		t.Fatal("expected error for rejected handshake")
	}
}

func TestWSConn_ReadWrite(t *testing.T) {
	received := make(chan []byte, 1)

	server := mockWSServer(t, func(_ *http.Request, conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"hello"}`)); err != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg
	})
	defer server.Close()

	dialer := NewWSDialer(DefaultTransportConfig(), nil)
	conn, err := dialer.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// Binary frames are skipped
	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if string(msg) != `{"event":"hello"}` {
		t.Errorf("ReadMessage = %q, want hello event", msg)
	}

	if err := conn.WriteMessage(pingFrame); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(pingFrame) {
			t.Errorf("server received %q, want %q", got, pingFrame)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestWSConn_CloseIdempotent(t *testing.T) {
	server := mockWSServer(t, func(_ *http.Request, conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	dialer := NewWSDialer(DefaultTransportConfig(), nil)
	conn, err := dialer.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	first := conn.Close()
	if second := conn.Close(); second != first {
		t.Errorf("second Close = %v, want %v", second, first)
	}
	if _, err := conn.ReadMessage(); err == nil {
		t.Error("expected ReadMessage to fail after Close")
	}
}

func TestWSConn_PeerClose(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		failure bool
	}{
		{"normal", websocket.CloseNormalClosure, false},
		{"going away", websocket.CloseGoingAway, false},
		{"internal error", websocket.CloseInternalServerErr, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := mockWSServer(t, func(_ *http.Request, conn *websocket.Conn) {
				msg := websocket.FormatCloseMessage(tt.code, "bye")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				time.Sleep(50 * time.Millisecond)
			})
			defer server.Close()

			dialer := NewWSDialer(DefaultTransportConfig(), nil)
			conn, err := dialer.Dial(context.Background(), wsURL(server))
			if err != nil {
				t.Fatalf("Dial failed: %v", err)
			}
			defer conn.Close()

			_, err = conn.ReadMessage()
			if err == nil {
				t.Fatal("expected read error after peer close")
			}
			if got := isTransportFailure(err); got != tt.failure {
				t.Errorf("isTransportFailure(%v) = %v, want %v", err, got, tt.failure)
			}
		})
	}
}

func TestIsTransportFailure_PlainError(t *testing.T) {
	if !isTransportFailure(errors.New("connection reset by peer")) {
		t.Error("expected plain error to count as failure")
	}
}

func TestBuildTarget(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{
			name: "plain",
			base: "wss://api.example.com/realtime",
			want: "wss://api.example.com/realtime?token=tok%2F1&userId=user+1",
		},
		{
			name: "existing query",
			base: "wss://api.example.com/realtime?v=2",
			want: "wss://api.example.com/realtime?token=tok%2F1&userId=user+1&v=2",
		},
		{
			name:    "relative",
			base:    "/realtime",
			wantErr: true,
		},
		{
			name:    "unparseable",
			base:    "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildTarget(tt.base, "userId", "user 1", "token", "tok/1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("buildTarget() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("wss://api.example.com/realtime?token=secret"); got != "api.example.com" {
		t.Errorf("hostOf() = %q, want %q", got, "api.example.com")
	}
}
