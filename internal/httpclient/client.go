// Package httpclient provides the blocking HTTP client used for registry calls
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "biblio-sync/1.0"
)

// errServerFailure marks a 5xx response as a breaker failure while still
// handing the response back to the caller
var errServerFailure = errors.New("server failure")

// Client is an interface for HTTP operations
type Client interface {
	// Do performs the request and returns the response for any status code.
	// A non-nil error means no usable response was received.
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(d *DefaultClient) {
		d.client = c
	}
}

// WithBreakerSettings overrides the circuit breaker trip thresholds
func WithBreakerSettings(minRequests uint32, failureRatio float64, openTimeout time.Duration) Option {
	return func(d *DefaultClient) {
		d.minRequests = minRequests
		d.failureRatio = failureRatio
		d.openTimeout = openTimeout
	}
}

// DefaultClient is the default HTTP client implementation.
// Requests go through a circuit breaker named after the registry target.
type DefaultClient struct {
	client       *http.Client
	timeout      time.Duration
	breaker      *gobreaker.CircuitBreaker[*Response]
	minRequests  uint32
	failureRatio float64
	openTimeout  time.Duration
}

// NewDefaultClient creates a new default HTTP client with the specified timeout.
// If timeout is 0, uses DefaultTimeout.
func NewDefaultClient(name string, timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client:       &http.Client{Timeout: timeout},
		timeout:      timeout,
		minRequests:  5,
		failureRatio: 0.6,
		openTimeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < c.minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= c.failureRatio
		},
		IsSuccessful: func(err error) bool {
			// cancellation says nothing about the remote side
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Registry circuit breaker changed state",
				"target", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return c
}

// State returns the current circuit breaker state
func (c *DefaultClient) State() gobreaker.State {
	return c.breaker.State()
}

// Do performs an HTTP request through the circuit breaker
func (c *DefaultClient) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.breaker.Execute(func() (*Response, error) {
		resp, err := c.do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerFailure
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, errServerFailure) {
			return resp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *DefaultClient) do(ctx context.Context, r *Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	for key, values := range r.Header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Check Content-Length header if available
	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// +1 to detect if limit exceeded
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
