// Package remote is a thin JSON-over-HTTP client. HTTP error statuses are
// returned as ordinary responses; only transport failures are errors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"gistrun/internal/monitor"
)

const jsonContentType = "application/json;charset=utf-8"

// DefaultMaxBodyBytes caps how much of a response body is read. A longer
// body fails the request rather than being cut short.
const DefaultMaxBodyBytes = 16 << 20

// Header is one response header line. A header with several values appears
// once per value.
type Header struct {
	Name  string
	Value string
}

// Response is a normalized HTTP response.
type Response struct {
	Status  int
	Reason  string
	Headers []Header
	Text    string
	JSON    any // nil when Text is not valid JSON
}

// OK reports whether Status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Header returns the first value of the named header, case-insensitively.
func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Options are the optional parts of a request.
type Options struct {
	Params  map[string]any // scalar values, merged into the URL query
	Data    any            // JSON-encoded request body
	Headers map[string]string
}

// Client issues single-attempt HTTP requests.
type Client struct {
	http      *http.Client
	headers   map[string]string
	userAgent string
	maxBody   int64
	metrics   *monitor.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithHeader adds a header sent on every request.
func WithHeader(name, value string) Option {
	return func(c *Client) { c.headers[name] = value }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *monitor.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client with the given timeout per request.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: timeout},
		headers: make(map[string]string),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get is shorthand for Request(ctx, http.MethodGet, rawURL, Options{Params: params}).
func (c *Client) Get(ctx context.Context, rawURL string, params map[string]any) (*Response, error) {
	return c.Request(ctx, http.MethodGet, rawURL, Options{Params: params})
}

// Request performs one HTTP request. A non-nil error is always a
// *TransportError or a request-construction error; HTTP status codes never
// produce an error. A body over the size limit is a *TransportError wrapping
// ErrBodyTooLarge.
func (c *Client) Request(ctx context.Context, method, rawURL string, opts Options) (*Response, error) {
	method = strings.ToUpper(method)

	target, err := MergeQuery(rawURL, opts.Params)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if opts.Data != nil {
		payload, err := json.Marshal(opts.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if opts.Data != nil {
		req.Header.Set("Content-Type", jsonContentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	logger := log.With().Str("method", method).Str("url", target).Logger()
	logger.Debug().Msg("sending request")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordRequest(method, 0, time.Since(start).Seconds())
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		c.metrics.RecordRequest(method, 0, time.Since(start).Seconds())
		return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(raw)) > c.maxBody {
		c.metrics.RecordRequest(method, resp.StatusCode, time.Since(start).Seconds())
		return nil, &TransportError{
			Method: method,
			URL:    target,
			Err:    fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, c.maxBody),
		}
	}
	c.metrics.RecordRequest(method, resp.StatusCode, time.Since(start).Seconds())

	logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Dur("duration", time.Since(start)).
		Msg("response received")

	return normalize(resp, raw), nil
}

func normalize(resp *http.Response, raw []byte) *Response {
	out := &Response{
		Status: resp.StatusCode,
		Reason: reason(resp),
		Text:   strings.ToValidUTF8(string(raw), "�"),
	}

	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range resp.Header[name] {
			out.Headers = append(out.Headers, Header{Name: name, Value: v})
		}
	}

	if json.Valid(raw) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			out.JSON = v
		}
	}
	return out
}

// reason strips the numeric code from resp.Status ("404 Not Found" -> "Not Found").
func reason(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if r, ok := strings.CutPrefix(resp.Status, code); ok {
		return strings.TrimSpace(r)
	}
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}

// MergeQuery adds params to rawURL's existing query string. Keys in params
// replace any existing values for the same key.
func MergeQuery(rawURL string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, v := range params {
		s, err := scalar(v)
		if err != nil {
			return "", fmt.Errorf("query param %q: %w", k, err)
		}
		q.Set(k, s)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
