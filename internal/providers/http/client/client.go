package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/resilience"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("external service unavailable: circuit breaker open")

// Options configures a Client
type Options struct {
	// Name labels the circuit breaker
	Name      string
	Timeout   time.Duration
	UserAgent string
	// RateLimit is requests per second; zero means unlimited
	RateLimit float64
	// FollowRedirects lets the transport chase redirects itself. When false
	// every 3xx is returned to the caller as a normal response.
	FollowRedirects bool
	// TLSConfig replaces the transport's TLS settings when set
	TLSConfig *tls.Config
	// Jar replaces resty's default cookie jar when set
	Jar http.CookieJar
	// Breaker overrides the default breaker settings when non-nil
	Breaker *resilience.Settings
	// Logger receives breaker state changes
	Logger *logging.Logger
}

// Client wraps resty with rate limiting and a circuit breaker. Every request
// is a single attempt; callers own their fallback policy.
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	mu      sync.RWMutex
}

// DefaultBreakerSettings trips after a run of transport failures
func DefaultBreakerSettings() resilience.Settings {
	return resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
	}
}

// NeverTripSettings counts requests but never opens the breaker. Used where
// every attempt must reach the network, such as probes and page loads.
func NeverTripSettings() resilience.Settings {
	settings := DefaultBreakerSettings()
	settings.ReadyToTrip = func(resilience.Counts) bool { return false }
	return settings
}

// NewClient creates a single-attempt HTTP client
func NewClient(opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "http-external"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	// Only the pooled transport is used; resty owns the request lifecycle
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTransport(retryClient.HTTPClient.Transport).
		SetTimeout(opts.Timeout).
		SetRetryCount(0)
	if opts.UserAgent != "" {
		restyClient.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.TLSConfig != nil {
		restyClient.SetTLSClientConfig(opts.TLSConfig)
	}
	if !opts.FollowRedirects {
		restyClient.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	}
	if opts.Jar != nil {
		restyClient.SetCookieJar(opts.Jar)
	}

	settings := DefaultBreakerSettings()
	if opts.Breaker != nil {
		settings = *opts.Breaker
	}
	if settings.OnStateChange == nil && opts.Logger != nil {
		logger := opts.Logger.Named("breaker")
		settings.OnStateChange = func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}

	return &Client{
		Resty:   restyClient,
		Limiter: limiter,
		Breaker: resilience.New(opts.Name, settings),
	}
}

// SetHeader adds a default header
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// SetTimeout configures the request timeout
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Resty.SetTimeout(d)
}

// Request creates a new request after the breaker and rate limiter agree
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.Breaker.State() == resilience.StateOpen {
		return nil, ErrUnavailable
	}

	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// Do runs one request through the circuit breaker. Only transport errors
// count against the breaker; status handling is left to the caller.
func (c *Client) Do(fn func() (*resty.Response, error)) (*resty.Response, error) {
	resp, err := resilience.Call(c.Breaker, fn)
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	return resp, err
}

// Get builds and sends a GET request
func (c *Client) Get(ctx context.Context, url string, configure func(*resty.Request)) (*resty.Response, error) {
	return c.send(ctx, http.MethodGet, url, configure)
}

// Head builds and sends a HEAD request
func (c *Client) Head(ctx context.Context, url string, configure func(*resty.Request)) (*resty.Response, error) {
	return c.send(ctx, http.MethodHead, url, configure)
}

// Post builds and sends a POST request
func (c *Client) Post(ctx context.Context, url string, configure func(*resty.Request)) (*resty.Response, error) {
	return c.send(ctx, http.MethodPost, url, configure)
}

func (c *Client) send(ctx context.Context, method, url string, configure func(*resty.Request)) (*resty.Response, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}
	if configure != nil {
		configure(req)
	}
	return c.Do(func() (*resty.Response, error) {
		return req.Execute(method, url)
	})
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}

// BreakerCounts returns circuit breaker statistics
func (c *Client) BreakerCounts() resilience.Counts {
	return c.Breaker.Counts()
}
