package fetch

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dakiwatch/dakiwatch/internal/model"
)

// Sentinel errors classified out of transport responses.
var (
	ErrBlocked     = eris.New("fetch: blocked by anti-bot protection")
	ErrRateLimited = eris.New("fetch: rate limited by remote host")
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Options configures the HTTP fetcher.
type Options struct {
	UserAgents   []string
	Timeout      time.Duration
	MaxRetries   int
	PerHostRate  rate.Limit
	Burst        int
	ProxyURL     string
	MaxBodyBytes int64
}

// HTTPFetcher implements Fetcher using net/http with per-host rate
// limiting, rotating identity headers, retry with backoff, and block
// detection. Resources are scoped per call; nothing is held across cycles
// except the limiter clocks.
type HTTPFetcher struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.PerHostRate == 0 {
		opts.PerHostRate = rate.Every(2 * time.Second)
	}
	if opts.Burst == 0 {
		opts.Burst = 1
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = defaultUserAgents
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, eris.Wrap(err, "fetch: parse proxy url")
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// limiterFor returns the rate limiter for the URL's host, creating one on
// first use.
func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.PerHostRate, f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch retrieves one page, retrying transient transport errors and 5xx
// responses. 429s and detected block pages surface as classified errors so
// callers never mistake them for "item unavailable".
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.limiterFor(rawURL).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetch: rate limiter wait")
		}

		page, retryable, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			return nil, err
		}

		zap.L().Warn("fetch failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		f.backoff(ctx, attempt)
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) (page *Page, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgents[rand.IntN(len(f.opts.UserAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, eris.Wrapf(err, "fetch: %s", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, true, eris.Wrap(err, "fetch: read body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, eris.Wrapf(ErrRateLimited, "fetch: %s", rawURL)
	}
	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, false, eris.Wrapf(ErrBlocked, "fetch: %s (%s)", rawURL, blockType)
	}
	if resp.StatusCode >= 500 {
		return nil, true, eris.Errorf("fetch: %s returned status %d", rawURL, resp.StatusCode)
	}

	return &Page{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, false, nil
}

// backoff sleeps with exponential backoff plus jitter, honoring ctx.
func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	base := 500 * time.Millisecond
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	delay += time.Duration(rand.Int64N(int64(delay) / 2))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Classify maps a transport error to the adapter failure taxonomy.
func Classify(err error) model.FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return model.FailureTimeout
	case errors.Is(err, ErrRateLimited):
		return model.FailureRateLimited
	case errors.Is(err, ErrBlocked):
		return model.FailureBlocked
	default:
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return model.FailureTimeout
		}
		return model.FailureUnknown
	}
}
