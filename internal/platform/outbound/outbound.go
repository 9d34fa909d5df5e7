// Package outbound guards every network call the pipeline makes. A URL is
// dispatched only when its host equals, or is a subdomain of, an allowlisted
// domain; in production mode the scheme must also be https.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/env"
)

// UserAgent is attached to every outbound request.
const UserAgent = "knesset-sync/1.0 (+https://github.com/moshelati/knesset-data-vote-sub001)"

// ErrSSRFBlocked marks a URL rejected by the allowlist. It is a configuration
// error and is never retried.
var ErrSSRFBlocked = errors.New("outbound url blocked")

var DefaultAllowedDomains = []string{"knesset.gov.il", "data.gov.il"}

type Config struct {
	AllowedDomains []string      `env:"KNESSET_ALLOWED_DOMAINS" envSeparator:","`
	Production     bool          `env:"KNESSET_PRODUCTION" envDefault:"true"`
	Timeout        time.Duration `env:"KNESSET_HTTP_TIMEOUT" envDefault:"30s"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.AllowedDomains) == 0 {
		cfg.AllowedDomains = append([]string(nil), DefaultAllowedDomains...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.AllowedDomains) == 0 {
		return errors.New("KNESSET_ALLOWED_DOMAINS must not be empty")
	}
	for _, d := range c.AllowedDomains {
		if normalizeHost(d) == "" {
			return fmt.Errorf("invalid allowed domain %q", d)
		}
	}
	if c.Timeout <= 0 {
		return errors.New("KNESSET_HTTP_TIMEOUT must be positive")
	}
	return nil
}

// Guard validates URLs and performs guarded HTTP requests.
type Guard struct {
	allowed    []string
	production bool
	client     *http.Client
}

func New(cfg Config) (*Guard, error) {
	if len(cfg.AllowedDomains) == 0 {
		cfg.AllowedDomains = DefaultAllowedDomains
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	allowed := make([]string, 0, len(cfg.AllowedDomains))
	for _, d := range cfg.AllowedDomains {
		allowed = append(allowed, normalizeHost(d))
	}
	g := &Guard{allowed: allowed, production: cfg.Production}
	g.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return g.AssertAllowed(req.URL.String())
		},
	}
	return g, nil
}

// AssertAllowed returns nil when raw may be fetched, or an error wrapping
// ErrSSRFBlocked.
func (g *Guard) AssertAllowed(raw string) error {
	if g == nil {
		return fmt.Errorf("%w: guard not initialized", ErrSSRFBlocked)
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: parse url: %v", ErrSSRFBlocked, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch {
	case g.production && scheme != "https":
		return fmt.Errorf("%w: scheme %q not allowed in production", ErrSSRFBlocked, u.Scheme)
	case scheme != "https" && scheme != "http":
		return fmt.Errorf("%w: scheme %q not allowed", ErrSSRFBlocked, u.Scheme)
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: url %q has no host", ErrSSRFBlocked, raw)
	}
	for _, domain := range g.allowed {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not in the allowlist", ErrSSRFBlocked, host)
}

// Do checks the request URL, sets the User-Agent and dispatches it.
func (g *Guard) Do(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("request is required")
	}
	if err := g.AssertAllowed(req.URL.String()); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	return g.client.Do(req)
}

// Get fetches raw and returns the body of a 2xx response.
func (g *Guard) Get(ctx context.Context, raw string, accept string) ([]byte, error) {
	if err := g.AssertAllowed(raw); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := g.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("get %s: unexpected status %d", raw, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimSuffix(host, ".")
}
