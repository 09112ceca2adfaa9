// Copyright (c) 2025, The Bitte Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport provides the HTTP client shared by the Nomad, Vault and
// Terraform Cloud source clients.
//
// A Client carries a base URL, default headers (auth tokens, content type),
// the connection timeouts from pkg/defaults and an optional rate limiter.
// It is safe for concurrent use and is meant to be constructed once and
// shared read-only across concurrent fetches.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bitte-ops/bitte/pkg/defaults"
	"github.com/bitte-ops/bitte/pkg/errors"
)

const (
	DefaultUserAgent = "bitte/1.0"

	// maxErrorBody caps how much of a failed response body is kept for the error message.
	maxErrorBody = 512
)

// HeaderFunc produces a header value at request time, e.g. a lazily resolved token.
type HeaderFunc func(ctx context.Context) (string, error)

// Option defines a configuration option for Client.
type Option func(*Client)

// Client performs JSON requests against a single base URL.
type Client struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client

	headers     http.Header
	headerFuncs map[string]HeaderFunc
	limiter     *rate.Limiter
	source      string
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.UserAgent = userAgent
	}
}

// WithHeader sets a static header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithHeaderFunc sets a header whose value is computed per request.
func WithHeaderFunc(key string, fn HeaderFunc) Option {
	return func(c *Client) {
		c.headerFuncs[http.CanonicalHeaderKey(key)] = fn
	}
}

// WithTimeout sets the total per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.HTTP.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.HTTP = client
		}
	}
}

// WithRateLimit throttles requests to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(r, burst)
	}
}

// WithSource names the inventory this client talks to; it is attached to
// every error as the "source" context key.
func WithSource(source string) Option {
	return func(c *Client) {
		c.source = source
	}
}

// New creates a Client for baseURL with the specified options.
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: DefaultUserAgent,
		HTTP: &http.Client{
			Timeout:   defaults.HTTPClientTimeout,
			Transport: newDefaultTransport(),
		},
		headers:     http.Header{},
		headerFuncs: map[string]HeaderFunc{},
	}

	for _, opt := range options {
		opt(c)
	}

	if c.source == "" {
		c.source = c.BaseURL
	}
	return c
}

func newDefaultTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,

		DialContext: (&net.Dialer{
			Timeout:   defaults.HTTPConnectTimeout,
			KeepAlive: defaults.HTTPKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   defaults.HTTPTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaults.HTTPResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       defaults.HTTPIdleConnTimeout,
		ForceAttemptHTTP2:     true,

		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// GetJSON issues a GET for path (relative to BaseURL) with the given query and
// decodes the JSON response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	u := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeInvalidRequest, "failed to build request", err,
			map[string]any{"source": c.source, "url": u})
	}

	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, fn := range c.headerFuncs {
		v, err := fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s header: %w", k, err)
		}
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	ctx := req.Context()
	errCtx := map[string]any{"source": c.source, "url": req.URL.Redacted()}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.WrapWithContext(errors.ErrCodeTimeout, "rate limiter wait aborted", err, errCtx)
		}
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		code := errors.ErrCodeUnavailable
		if ctx.Err() != nil {
			code = errors.ErrCodeTimeout
		}
		return errors.WrapWithContext(code, "request failed", err, errCtx)
	}
	defer resp.Body.Close()

	slog.Debug("http request",
		slog.String("source", c.source),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		errCtx["status"] = resp.StatusCode
		return errors.WrapWithContext(statusCode(resp.StatusCode),
			fmt.Sprintf("unexpected status %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(body))), errCtx)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// Decode errors raised by the target type keep their own code.
		if errors.CodeOf(err) != "" {
			return err
		}
		return errors.WrapWithContext(errors.ErrCodeDecode, "failed to decode response", err, errCtx)
	}
	return nil
}

func statusCode(status int) errors.ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.ErrCodeUnauthorized
	case status == http.StatusNotFound:
		return errors.ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return errors.ErrCodeUnavailable
	case status >= 400 && status < 500:
		return errors.ErrCodeInvalidRequest
	default:
		return errors.ErrCodeUnavailable
	}
}
