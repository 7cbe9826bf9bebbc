// Package rest implements the query port over a PostgREST-style HTTP API:
// row-limited table reads with offset paging, exact counts through the
// Content-Range header and named functions under /rpc.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
	"github.com/Veraticus/draftflow/internal/service"
)

// Options configures a Client.
type Options struct {
	// HTTPClient supplies the base transport. Nil uses a pooled default.
	HTTPClient *http.Client
	BaseURL    string
	// APIKey is sent in the apikey header.
	APIKey string
	// Token, when set, is sent as a bearer token.
	Token             string
	Retry             common.RetryOptions
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client implements service.Store over HTTP.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	apiKey  string
	retry   common.RetryOptions
}

var _ service.Store = (*Client)(nil)

// New creates a Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("%w: store url is required", common.ErrMissingConfig)
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid store url %q", common.ErrInvalidConfig, opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var transport http.RoundTripper = &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		transport = opts.HTTPClient.Transport
	}
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		limiter: rate.NewLimiter(limit, burst),
		apiKey:  opts.APIKey,
		retry:   opts.Retry,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Count implements service.QueryPort using an exact-count HEAD request.
func (c *Client) Count(ctx context.Context, table model.Table, filter model.Filter) (int, error) {
	q, err := Query(table, filter)
	if err != nil {
		return 0, err
	}
	q.Set("select", "id")

	var total int
	err = c.do(ctx, http.MethodHead, c.endpoint(string(table), q), nil, func(resp *http.Response) error {
		n, perr := parseContentRange(resp.Header.Get("Content-Range"))
		if perr != nil {
			return perr
		}
		total = n
		return nil
	}, map[string]string{"Prefer": "count=exact"})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return total, nil
}

// FetchPage implements service.QueryPort.
func (c *Client) FetchPage(ctx context.Context, table model.Table, filter model.Filter, fields []string, offset, limit int) ([]model.Row, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: offset %d limit %d", common.ErrInvalidConfig, offset, limit)
	}
	q, err := Query(table, filter)
	if err != nil {
		return nil, err
	}
	cols, err := projection(table, fields)
	if err != nil {
		return nil, err
	}
	q.Set("select", strings.Join(cols, ","))
	q.Set("order", "id.asc")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var rows []model.Row
	err = c.do(ctx, http.MethodGet, c.endpoint(string(table), q), nil, func(resp *http.Response) error {
		return decodeRows(resp.Body, &rows)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s rows %d-%d: %w", table, offset, offset+limit-1, err)
	}
	return rows, nil
}

// CallProcedure implements service.QueryPort by POSTing to /rpc/name.
func (c *Client) CallProcedure(ctx context.Context, name string, args map[string]any) ([]model.Row, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/?#") {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownProcedure, name)
	}
	body := make(map[string]any, len(args))
	for k, v := range args {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	var rows []model.Row
	err = c.do(ctx, http.MethodPost, c.endpoint("rpc/"+name, nil), payload, func(resp *http.Response) error {
		return decodeRows(resp.Body, &rows)
	}, map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", name, err)
	}
	return rows, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/" + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do sends one request under the rate limiter, retrying rate-limited and
// server errors according to the retry options.
func (c *Client) do(ctx context.Context, method, target string, body []byte, handle func(*http.Response) error, headers map[string]string) error {
	return common.WithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter canceled: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("apikey", c.apiKey)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: ctx.Err() == nil}
		}
		defer func() { _ = resp.Body.Close() }()

		if err := statusError(resp); err != nil {
			slog.Debug("Store request failed", "method", method, "status", resp.StatusCode, "error", err)
			return err
		}
		return handle(resp)
	}, c.retry)
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", common.ErrStoreRateLimit, msg)
	case resp.StatusCode >= 500:
		return &common.RetryableError{Err: fmt.Errorf("server error %d: %s", resp.StatusCode, msg), Retryable: true}
	default:
		return fmt.Errorf("store returned %d: %s", resp.StatusCode, msg)
	}
}

// parseContentRange reads the total from "0-24/1300" or "*/1300".
func parseContentRange(header string) (int, error) {
	_, total, ok := strings.Cut(header, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("missing exact count in Content-Range %q", header)
	}
	n, err := strconv.Atoi(total)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	return n, nil
}

func decodeRows(r io.Reader, rows *[]model.Row) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(rows); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if *rows == nil {
		*rows = []model.Row{}
	}
	return nil
}
