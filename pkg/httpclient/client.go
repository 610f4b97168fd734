package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/utafrali/catalogcore/pkg/breaker"
	"github.com/utafrali/catalogcore/pkg/retry"
)

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxAttempts     int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
	// MaxBodyBytes bounds a fetched body. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes is the fetch limit when none is configured.
const DefaultMaxBodyBytes = 10 << 20

// DefaultConfig returns sensible defaults for fetching remote media.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxAttempts:     3,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 16,
		MaxBodyBytes:    DefaultMaxBodyBytes,
	}
}

// Body is a fully read response body.
type Body struct {
	Data        []byte
	ContentType string
}

// Client fetches remote resources with retries behind a circuit breaker.
type Client struct {
	httpClient *http.Client
	config     Config
	breaker    *breaker.Breaker[*Body]
	logger     *slog.Logger
}

// New creates a client with connection pooling.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		config:     cfg,
		// Bad URLs from callers must not open the breaker.
		breaker: breaker.New[*Body](breaker.DefaultConfig("httpclient"), func(err error) bool {
			return err == nil || IsClientFailure(err)
		}, logger),
		logger: logger,
	}
}

// Fetch GETs url and returns its body. Network errors and temporary status
// codes are retried; 4xx responses and oversized bodies are not.
func (c *Client) Fetch(ctx context.Context, url string) (*Body, error) {
	cfg := retry.Config{
		MaxAttempts:     c.config.MaxAttempts,
		InitialInterval: c.config.RetryWaitMin,
		MaxInterval:     c.config.RetryWaitMax,
		Retryable:       isRetryableError,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.WarnContext(ctx, "fetch failed, retrying",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		},
	}

	body, err := retry.Do(ctx, cfg, func(ctx context.Context) (*Body, error) {
		return c.breaker.Execute(func() (*Body, error) {
			return c.fetchOnce(ctx, url)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, c.config.MaxBodyBytes)
	}

	return &Body{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// isRetryableError determines if an error is retryable.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTooLarge) || breaker.IsRejected(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
