package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Token service defaults. Issuance sits on the connect path, so the
// timeout stays well under the manager's per-attempt dial budget.
const (
	DefaultTimeout      = 5 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
)

// Client issues realtime tokens from the token service.
type Client struct {
	baseURL    string
	apiKey     string // Service credential, sent as a bearer token
	tokenPath  string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a token service client rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		tokenPath: TokenPath,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:       slog.Default(),
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout bounds a single issuance request. Non-positive values keep
// the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how often a 429 or 5xx answer is retried and the base
// backoff between tries.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if max < 0 {
			max = 0
		}
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithTokenPath overrides the issuance endpoint path.
func WithTokenPath(path string) ClientOption {
	return func(c *Client) {
		if path != "" {
			c.tokenPath = "/" + strings.TrimLeft(path, "/")
		}
	}
}

// WithUserAgent sets the User-Agent sent to the token service.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
