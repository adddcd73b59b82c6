package scraper

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"imovel-monitor/internal/logging"
	"imovel-monitor/internal/ratelimit"
)

var logger = logging.New("Scraper")

// Page is a fetched listing page
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves a page. Implementations return *FetchError so callers
// can tell transient network failures from definitive HTTP answers.
type Fetcher interface {
	Get(ctx context.Context, url string) (*Page, error)
}

// ErrCircuitOpen is the cause of a FetchError when a host is paused
var ErrCircuitOpen = errors.New("circuit breaker open")

// FetchError describes a failed page fetch
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err is a fetch failure worth retrying
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

// HTTPFetcherConfig configures HTTPFetcher
type HTTPFetcherConfig struct {
	Timeout                time.Duration
	UserAgent              string
	RequestDelay           time.Duration
	RequestJitter          time.Duration
	MaxBodyBytes           int64
	CircuitBreakerFailures int
	CircuitBreakerReset    time.Duration
}

// HTTPFetcher fetches pages with a browser-like header set, per-host spacing
// and a per-host circuit breaker
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	limiter      *ratelimit.HostLimiter
	breakers     *breakerSet
}

// NewHTTPFetcher creates a fetcher with its own cookie jar
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	jar, err := cookiejar.New(nil)
	if err != nil {
		logger.Warnf("failed to create cookie jar: %v", err)
		jar = nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.CircuitBreakerReset <= 0 {
		cfg.CircuitBreakerReset = 30 * time.Minute
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
		limiter:      ratelimit.NewHostLimiter(1, cfg.RequestDelay, cfg.RequestJitter),
		breakers:     newBreakerSet(cfg.CircuitBreakerFailures, cfg.CircuitBreakerReset),
	}
}

// applyBrowserHeaders sets browser-like headers to reduce bot friction
func applyBrowserHeaders(req *http.Request, userAgent string) {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Sec-Fetch-Dest", "document")
}

// Get fetches pageURL once. Network failures are transient; any non-2xx
// status is definitive.
func (f *HTTPFetcher) Get(ctx context.Context, pageURL string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, &FetchError{URL: pageURL, Message: "invalid url", Cause: err}
	}
	host := u.Host

	breaker := f.breakers.get(host)
	if !breaker.CanProceed() {
		return nil, &FetchError{URL: pageURL, Message: "host paused", Cause: ErrCircuitOpen}
	}

	if err := f.limiter.Acquire(ctx, host); err != nil {
		return nil, &FetchError{URL: pageURL, Message: "cancelled while waiting", Cause: err}
	}
	defer f.limiter.Release(host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Message: "failed to create request", Cause: err}
	}
	applyBrowserHeaders(req, f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		// a cancelled parent context is not worth retrying
		transient := ctx.Err() == nil
		return nil, &FetchError{URL: pageURL, Transient: transient, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			breaker.RecordFailure(resp.StatusCode)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Message: "unexpected status"}
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &FetchError{URL: pageURL, Message: "failed to create gzip reader", Cause: err}
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Transient: ctx.Err() == nil, Message: "failed to read body", Cause: err}
	}

	breaker.RecordSuccess()
	return &Page{URL: pageURL, StatusCode: resp.StatusCode, Body: body}, nil
}

// RetryFetcher retries transient failures of the wrapped fetcher with a
// randomized delay between attempts
type RetryFetcher struct {
	next        Fetcher
	maxAttempts int
	minDelay    time.Duration
	maxDelay    time.Duration

	mu    sync.Mutex
	rnd   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryFetcher wraps next with bounded, jittered retries
func NewRetryFetcher(next Fetcher, maxAttempts int, minDelay, maxDelay time.Duration) *RetryFetcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &RetryFetcher{
		next:        next,
		maxAttempts: maxAttempts,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       sleepContext,
	}
}

// Get calls the wrapped fetcher until it succeeds, fails definitively,
// or the attempts run out
func (r *RetryFetcher) Get(ctx context.Context, pageURL string) (*Page, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		page, err := r.next.Get(ctx, pageURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == r.maxAttempts {
			break
		}

		delay := r.jitter()
		logger.Warnf("attempt %d/%d for %s failed: %v (retrying in %v)", attempt, r.maxAttempts, pageURL, err, delay)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, &FetchError{URL: pageURL, Message: "cancelled between retries", Cause: err}
		}
	}
	return nil, lastErr
}

func (r *RetryFetcher) jitter() time.Duration {
	span := r.maxDelay - r.minDelay
	if span <= 0 {
		return r.minDelay
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay + time.Duration(r.rnd.Int63n(int64(span)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
