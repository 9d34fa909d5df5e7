package odata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Doer dispatches HTTP requests. The outbound guard satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPError is returned for non-2xx page responses.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("odata request %s: unexpected status %d", e.URL, e.StatusCode)
}

// Client pages through OData collections.
type Client struct {
	doer      Doer
	baseURL   string
	pageSize  int
	pageDelay time.Duration
}

func NewClient(doer Doer, cfg Config) (*Client, error) {
	if doer == nil {
		return nil, errors.New("http doer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		doer:      doer,
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		pageSize:  cfg.PageSize,
		pageDelay: cfg.PageDelay,
	}, nil
}

func (c *Client) PageSize() int {
	return c.pageSize
}

// Pages returns a lazy sequence over the pages of collection. Requests are
// strictly sequential; each one after the first starts no earlier than the
// page delay after the previous response was read. A page shorter than the
// page size ends the sequence without another request. The first error is
// yielded and ends the sequence.
func (c *Client) Pages(ctx context.Context, collection string, q Query) iter.Seq2[[]Record, error] {
	return func(yield func([]Record, error) bool) {
		skip := 0
		for {
			page, err := c.FetchPage(ctx, collection, q, skip)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if len(page) < c.pageSize {
				return
			}
			skip += len(page)
			if err := c.pause(ctx); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// FetchPage requests one page starting at skip.
func (c *Client) FetchPage(ctx context.Context, collection string, q Query, skip int) ([]Record, error) {
	u := PageURL(c.baseURL, collection, c.pageSize, skip, q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: u}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s page: %w", collection, err)
	}
	page, err := DecodePage(body)
	if err != nil {
		return nil, fmt.Errorf("%s page at skip %d: %w", collection, skip, err)
	}
	return page, nil
}

// PageURL builds <base>/<collection>?$top=..&$skip=..[&$filter=..][&$orderby=..]&$format=json.
func PageURL(base, collection string, top, skip int, q Query) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(collection))
	b.WriteString("?$top=")
	b.WriteString(strconv.Itoa(top))
	b.WriteString("&$skip=")
	b.WriteString(strconv.Itoa(skip))
	if f := strings.TrimSpace(q.Filter); f != "" {
		b.WriteString("&$filter=")
		b.WriteString(escapeQueryValue(f))
	}
	if o := strings.TrimSpace(q.OrderBy); o != "" {
		b.WriteString("&$orderby=")
		b.WriteString(escapeQueryValue(o))
	}
	b.WriteString("&$format=json")
	return b.String()
}

// OData servers expect %20 rather than '+' for spaces.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// pause blocks for one page delay measured from now.
func (c *Client) pause(ctx context.Context) error {
	if c.pageDelay <= 0 {
		return ctx.Err()
	}
	pacer := rate.NewLimiter(rate.Every(c.pageDelay), 1)
	// Spend the initial token so the wait spans a full delay.
	pacer.Allow()
	return pacer.Wait(ctx)
}
