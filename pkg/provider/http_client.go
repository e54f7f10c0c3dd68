package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ClientConfig bounds every outbound provider call.
type ClientConfig struct {
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

var errServerStatus = errors.New("provider returned a server error")

// Client is the shared outbound HTTP client. Each provider key gets its own
// circuit breaker and rate limiter.
type Client struct {
	http *http.Client
	cfg  ClientConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Client) guards(key string) (*gobreaker.CircuitBreaker, *rate.Limiter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[key]
	if !ok {
		failures := uint32(c.cfg.BreakerFailures)
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "provider-" + key,
			MaxRequests: 1,
			Timeout:     c.cfg.BreakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		})
		c.breakers[key] = cb
	}

	limiter, ok := c.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.RatePerSecond), c.cfg.Burst)
		c.limiters[key] = limiter
	}
	return cb, limiter
}

// Do sends req under the key's limiter, breaker and the per-call timeout.
// 5xx responses count as breaker failures but are still returned to the caller.
func (c *Client) Do(ctx context.Context, key string, req *http.Request) (*http.Response, error) {
	cb, limiter := c.guards(key)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	if err := limiter.Wait(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var resp *http.Response
	_, err := cb.Execute(func() (interface{}, error) {
		var doErr error
		resp, doErr = c.http.Do(req.WithContext(ctx))
		if doErr != nil {
			return nil, doErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, errServerStatus
		}
		return nil, nil
	})
	if err != nil && !errors.Is(err, errServerStatus) {
		cancel()
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
