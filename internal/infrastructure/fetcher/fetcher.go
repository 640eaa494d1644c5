// Package fetcher downloads search result pages with a browser-like identity.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/ports"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7"
	DefaultTimeout        = 10 * time.Second

	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	maxBodyBytes = 8 << 20
)

// ErrTimeout marks a request that did not complete within the timeout.
var ErrTimeout = errors.New("timeout")

// Config configures the fetcher.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	// RequestsPerSecond paces requests across all searches. Zero disables pacing.
	RequestsPerSecond float64
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Fetcher issues single GET requests without retries.
type Fetcher struct {
	client  *http.Client
	config  Config
	limiter *rate.Limiter
}

var _ ports.PageFetcher = (*Fetcher)(nil)

// New builds a Fetcher. A nil client gets one with the configured timeout.
func New(cfg Config, client *http.Client) *Fetcher {
	cfg.defaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Fetcher{client: client, config: cfg, limiter: limiter}
}

// Fetch requests url. Any HTTP response, whatever its status, is returned
// without error; only transport failures produce one.
func (f *Fetcher) Fetch(ctx context.Context, url string) (ports.FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return ports.FetchResult{}, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ports.FetchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", f.config.AcceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return ports.FetchResult{}, classify(err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		// The status alone is enough to report a block.
		if domain.IsBlockStatus(resp.StatusCode) {
			return ports.FetchResult{StatusCode: resp.StatusCode}, nil
		}
		return ports.FetchResult{}, classify(err)
	}

	return ports.FetchResult{StatusCode: resp.StatusCode, Body: body}, nil
}

// readBody decodes the body to UTF-8 using the declared or sniffed charset.
func readBody(resp *http.Response) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	enc, name, certain := charset.DetermineEncoding(raw, resp.Header.Get("Content-Type"))
	// windows-1252 without a declaration is only the detector's guess.
	if name == "utf-8" || (!certain && name == "windows-1252") {
		return string(raw), nil
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), nil
	}
	return string(decoded), nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("do request: %w", err)
}
