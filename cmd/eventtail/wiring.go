package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/rickgao/eventlink/internal/api"
	"github.com/rickgao/eventlink/internal/archive"
	"github.com/rickgao/eventlink/internal/auth"
	"github.com/rickgao/eventlink/internal/config"
	"github.com/rickgao/eventlink/internal/connection"
	"github.com/rickgao/eventlink/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// printAll in handlers.print selects every event.
const printAll = "*"

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newProvider builds the credential provider selected by auth.mode.
// Non-static providers are returned as a *auth.Session so the subject can
// be replaced at runtime.
func newProvider(cfg config.AuthConfig, logger *slog.Logger) (connection.CredentialProvider, error) {
	switch cfg.Mode {
	case config.AuthModeStatic:
		return auth.Static{SubjectID: cfg.Subject, TokenStr: cfg.Token}, nil

	case config.AuthModeSigner:
		signer, err := auth.NewSigner(cfg.KeyID, cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("create signer: %w", err)
		}
		return auth.NewSession(signer, cfg.Subject), nil

	case config.AuthModeEndpoint:
		client := api.NewClient(
			cfg.TokenURL,
			cfg.APIKey,
			api.WithTimeout(cfg.Timeout),
			api.WithRetries(cfg.MaxRetries, api.DefaultRetryBackoff),
			api.WithUserAgent(version.UserAgent()),
			api.WithLogger(logger),
		)
		return auth.NewSession(auth.NewEndpoint(client), cfg.Subject), nil

	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// managerConfig maps the stream section onto the manager's settings.
func managerConfig(cfg config.StreamConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		URL:                  cfg.URL,
		SubjectParam:         cfg.SubjectParam,
		TokenParam:           cfg.TokenParam,
		AutoConnect:          cfg.AutoConnectEnabled(),
		Reconnect:            cfg.ReconnectEnabled(),
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectDelay:    cfg.MaxReconnectDelay,
		BackoffMultiplier:    cfg.BackoffMultiplier,
		KeepaliveInterval:    cfg.KeepaliveInterval,
		ConnectDelay:         cfg.ConnectDelay,
		DialTimeout:          cfg.DialTimeout,
	}
}

// transportConfig maps the stream section onto the WebSocket dialer.
func transportConfig(cfg config.StreamConfig) connection.TransportConfig {
	tc := connection.DefaultTransportConfig()
	tc.HandshakeTimeout = cfg.DialTimeout
	tc.WriteTimeout = cfg.WriteTimeout
	tc.ReadLimit = cfg.ReadLimit
	tc.Header = http.Header{"User-Agent": []string{version.UserAgent()}}
	return tc
}

// archiveConfig maps the archive section onto the writer's settings.
func archiveConfig(cfg config.ArchiveConfig) archive.Config {
	return archive.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		BufferSize:    cfg.BufferSize,
	}
}

// eventSink receives every non-control event. Satisfied by *archive.Writer.
type eventSink interface {
	Write(ev connection.InboundEvent) bool
}

// printer writes one JSON line per event.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

type printedEvent struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp,omitempty"`
}

func (p *printer) print(ev printedEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.w.Write(append(line, '\n'))
}

// buildHandlers builds the registry for the given print selection. Named
// events get their own handler; "*" prints from the wildcard instead. The
// sink, when set, receives every event.
func buildHandlers(selection []string, p *printer, sink eventSink) connection.Handlers {
	h := connection.Handlers{Named: make(map[string]connection.HandlerFunc)}

	all := false
	for _, name := range selection {
		name = strings.TrimSpace(name)
		switch name {
		case "":
			continue
		case printAll:
			all = true
		default:
			event := name
			h.Named[event] = func(data map[string]any) {
				p.print(printedEvent{Event: event, Data: data})
			}
		}
	}

	if all {
		// Named printers would duplicate wildcard output.
		h.Named = map[string]connection.HandlerFunc{}
	}

	if all || sink != nil {
		h.Wildcard = func(ev connection.InboundEvent) {
			if all {
				p.print(printedEvent{Event: ev.Event, Data: ev.Data, Timestamp: ev.Timestamp})
			}
			if sink != nil {
				sink.Write(ev)
			}
		}
	}

	return h
}
