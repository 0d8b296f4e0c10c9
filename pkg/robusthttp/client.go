package robusthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Settings for an outbound webhook client. Zero fields fall back to DefaultConfig values.
type Config struct {
	// Overall per-request timeout, including retries.
	Timeout time.Duration
	// Negative disables retries.
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	switch {
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	case c.MaxRetries == 0:
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = def.RetryWaitMin
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		c.RetryWaitMax = max(def.RetryWaitMax, c.RetryWaitMin)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Adapts slog to retryablehttp, demoting ERROR to WARN since failed attempts are retried.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, kv ...any) { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Info(msg string, kv ...any)  { l.inner.Info(msg, kv...) }
func (l leveledSlog) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }

// Builds an HTTP client for outbound webhook calls (eg, Slack alerts). The
// returned client has the stdlib http.Client interface, with retryablehttp
// logic internally and otelhttp tracing on the transport.
//
// Retries connection errors and 5xx responses (except 501). Rate limit
// responses are returned to the caller as-is.
func NewClient(config Config) *http.Client {
	config = config.withDefaults()

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.HTTPClient.Timeout = config.Timeout
	retryClient.RetryMax = config.MaxRetries
	retryClient.RetryWaitMin = config.RetryWaitMin
	retryClient.RetryWaitMax = config.RetryWaitMax
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: config.Logger.With("subsystem", "robusthttp")})
	retryClient.CheckRetry = WebhookRetryPolicy

	client := retryClient.StandardClient()
	client.Timeout = config.Timeout
	return client
}

// Like retryablehttp.DefaultRetryPolicy, but never retries 429 Too Many Requests.
func WebhookRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
