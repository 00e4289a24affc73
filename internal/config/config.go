package config

import "time"

// Config is the root configuration for an eventtail instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Stream   StreamConfig   `yaml:"stream"`
	Auth     AuthConfig     `yaml:"auth"`
	Handlers HandlersConfig `yaml:"handlers"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds the realtime connection settings.
type StreamConfig struct {
	URL                  string        `yaml:"url"`
	SubjectParam         string        `yaml:"subject_param"`
	TokenParam           string        `yaml:"token_param"`
	AutoConnect          *bool         `yaml:"auto_connect"` // nil means true
	Reconnect            *bool         `yaml:"reconnect"`    // nil means true
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay"`
	BackoffMultiplier    float64       `yaml:"backoff_multiplier"`
	KeepaliveInterval    time.Duration `yaml:"keepalive_interval"`
	ConnectDelay         time.Duration `yaml:"connect_delay"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	ReadLimit            int64         `yaml:"read_limit"`
}

// Auth modes.
const (
	AuthModeStatic   = "static"
	AuthModeSigner   = "signer"
	AuthModeEndpoint = "endpoint"
)

// AuthConfig selects and configures the credential provider.
type AuthConfig struct {
	Mode    string `yaml:"mode"`    // static, signer or endpoint
	Subject string `yaml:"subject"` // Subject identifier sent on connect

	// static
	Token string `yaml:"token"`

	// signer
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"` // Path to RSA private key PEM file

	// endpoint
	TokenURL   string        `yaml:"token_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// HandlersConfig selects which events are printed. "*" prints everything.
// This section is reloaded live.
type HandlersConfig struct {
	Print []string `yaml:"print"`
}

// ArchiveConfig holds the optional event archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// AutoConnectEnabled reports whether auto-connect is on.
func (s StreamConfig) AutoConnectEnabled() bool {
	return s.AutoConnect == nil || *s.AutoConnect
}

// ReconnectEnabled reports whether automatic reconnection is on.
func (s StreamConfig) ReconnectEnabled() bool {
	return s.Reconnect == nil || *s.Reconnect
}
