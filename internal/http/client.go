// Package http is the transport shared by the request executor and the
// authentication provider. It sends JSON over a retryablehttp client and
// classifies connectivity failures into the client's error kinds.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// Client sends requests relative to a base URL.
type Client struct {
	baseURL     string
	httpClient  *retryablehttp.Client
	transport   *http.Transport
	logger      polaris.Logger
	debug       bool
	userAgent   string
	proxy       *url.URL
	proxyErr    error
	insecureTLS bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger polaris.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig enables transport retries on 5xx, 429 and connection
// errors. Clients are built without retries.
func WithRetryConfig(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// WithProxy routes every request through the proxy URL.
func WithProxy(proxy string) Option {
	return func(c *Client) {
		if proxy == "" {
			return
		}

		u, err := url.Parse(proxy)
		if err != nil || u.Host == "" {
			c.proxyErr = fmt.Errorf("%w: %q", constants.ErrInvalidProxyURL, proxy)

			return
		}

		c.proxy = u
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Client) {
		c.insecureTLS = skip
	}
}

// NewClient creates a transport client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	transport := cleanhttp.DefaultPooledTransport()

	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
		transport:  transport,
		logger:     polaris.NopLogger{},
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.proxyErr != nil {
		return nil, polaris.NewError(polaris.KindValidation, "proxy", client.proxyErr)
	}

	if client.proxy != nil {
		transport.Proxy = http.ProxyURL(client.proxy)
		transport.OnProxyConnectResponse = rejectFailedConnect
	}

	if client.insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in for lab deployments
	}

	rc.HTTPClient = &http.Client{Transport: transport}

	if client.debug {
		rc.Logger = &leveledLogger{logger: client.logger}
	}

	return client, nil
}

// BaseURL returns the base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request is one HTTP request. URL, when set, overrides BaseURL+Path.
type Request struct {
	Op      string
	Method  string
	Path    string
	URL     string
	Query   url.Values
	Body    interface{}
	Headers http.Header
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do sends the request. Every HTTP status is returned as a Response; the
// error is set only when no response was received.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	target := req.URL
	if target == "" {
		target = c.baseURL + req.Path
	}

	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body []byte

	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, polaris.NewError(polaris.KindValidation, req.Op, fmt.Errorf("failed to marshal request body: %w", err))
		}

		body = encoded
	}

	var reader interface{}
	if body != nil {
		reader = body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, polaris.NewError(polaris.KindValidation, req.Op, fmt.Errorf("failed to create request: %w", err))
	}

	for k, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	if c.debug {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"op":     req.Op,
			"method": req.Method,
			"url":    target,
			"bytes":  len(body),
		})
	}

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classify(ctx, req.Op, err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, req.Op, fmt.Errorf("failed to read response body: %w", err))
	}

	if c.debug {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"op":       req.Op,
			"status":   resp.StatusCode,
			"bytes":    len(respBody),
			"duration": time.Since(start).String(),
		})
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// Post sends a JSON body to BaseURL+path.
func (c *Client) Post(ctx context.Context, op, path string, body interface{}, headers http.Header) (*Response, error) {
	return c.Do(ctx, &Request{Op: op, Method: http.MethodPost, Path: path, Body: body, Headers: headers})
}

// PostURL sends a JSON body to an absolute URL.
func (c *Client) PostURL(ctx context.Context, op, target string, body interface{}, headers http.Header) (*Response, error) {
	return c.Do(ctx, &Request{Op: op, Method: http.MethodPost, URL: target, Body: body, Headers: headers})
}

// classify maps a failed round trip to Proxy or Transport. An elapsed
// request deadline is a transport failure that still matches
// context.DeadlineExceeded; KindTimeout is reserved for monitoring sessions.
func (c *Client) classify(ctx context.Context, op string, err error) error {
	if !errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return polaris.NewError(polaris.KindTransport, op, err)
	}

	if c.proxy != nil && isProxyFailure(err) {
		return polaris.NewError(polaris.KindProxy, op, err)
	}

	return polaris.NewError(polaris.KindTransport, op, err)
}

// isProxyFailure matches a failed dial to the proxy and a CONNECT the proxy
// answered with a non-2xx status.
func isProxyFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return true
	}

	return errors.Is(err, constants.ErrProxyRefused)
}

func rejectFailedConnect(_ context.Context, _ *url.URL, _ *http.Request, res *http.Response) error {
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s", constants.ErrProxyRefused, res.Status)
	}

	return nil
}

// leveledLogger adapts polaris.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger polaris.Logger
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, fields(keysAndValues))
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, fields(keysAndValues))
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues))
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, fields(keysAndValues))
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	return out
}
