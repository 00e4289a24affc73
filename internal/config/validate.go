package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Stream.validate(); err != nil {
		return err
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (s *StreamConfig) validate() error {
	if s.URL == "" {
		return errors.New("stream.url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("stream.url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream.url must use ws or wss, got %q", u.Scheme)
	}
	if s.MaxReconnectAttempts < 0 {
		return errors.New("stream.max_reconnect_attempts must be >= 0")
	}
	if s.BackoffMultiplier < 1 {
		return errors.New("stream.backoff_multiplier must be >= 1")
	}
	if s.ReconnectInterval > s.MaxReconnectDelay {
		return fmt.Errorf("stream.reconnect_interval (%s) cannot exceed max_reconnect_delay (%s)", s.ReconnectInterval, s.MaxReconnectDelay)
	}
	if s.ConnectDelay < 0 {
		return errors.New("stream.connect_delay must be >= 0")
	}
	return nil
}

func (a *AuthConfig) validate() error {
	switch a.Mode {
	case AuthModeStatic:
		if a.Token == "" {
			return errors.New("auth.token is required for static mode")
		}
	case AuthModeSigner:
		if a.KeyID == "" {
			return errors.New("auth.key_id is required for signer mode")
		}
		if a.PrivateKeyPath == "" {
			return errors.New("auth.private_key_path is required for signer mode")
		}
	case AuthModeEndpoint:
		if a.TokenURL == "" {
			return errors.New("auth.token_url is required for endpoint mode")
		}
	default:
		return fmt.Errorf("auth.mode must be one of static, signer, endpoint, got %q", a.Mode)
	}
	if a.MaxRetries < 0 {
		return errors.New("auth.max_retries must be >= 0")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
