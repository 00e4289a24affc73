package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID           = "eventtail"
	DefaultSubjectParam         = "userId"
	DefaultTokenParam           = "token"
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectDelay    = 15 * time.Second
	DefaultBackoffMultiplier    = 1.5
	DefaultKeepaliveInterval    = 30 * time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultReadLimit            = 10 << 20
	DefaultAuthMode             = AuthModeStatic
	DefaultAuthTimeout          = 10 * time.Second
	DefaultAuthMaxRetries       = 3
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Stream defaults
	if c.Stream.SubjectParam == "" {
		c.Stream.SubjectParam = DefaultSubjectParam
	}
	if c.Stream.TokenParam == "" {
		c.Stream.TokenParam = DefaultTokenParam
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Stream.ReconnectInterval == 0 {
		c.Stream.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Stream.MaxReconnectDelay == 0 {
		c.Stream.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if c.Stream.BackoffMultiplier == 0 {
		c.Stream.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.Stream.KeepaliveInterval == 0 {
		c.Stream.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.Stream.DialTimeout == 0 {
		c.Stream.DialTimeout = DefaultDialTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.ReadLimit == 0 {
		c.Stream.ReadLimit = DefaultReadLimit
	}

	// Auth defaults
	if c.Auth.Mode == "" {
		c.Auth.Mode = DefaultAuthMode
	}
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = DefaultAuthTimeout
	}
	if c.Auth.MaxRetries == 0 {
		c.Auth.MaxRetries = DefaultAuthMaxRetries
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
