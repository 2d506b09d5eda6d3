// Package remote talks to the shared players store over HTTP and WebSocket.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/stats"
	"github.com/valyala/fasthttp"
)

// ErrTransport marks failures where no HTTP status was received (dial, timeout, reset).
var ErrTransport = errors.New("remote store unreachable")

// StatusError is a non-2xx answer from the remote store.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote store %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Temporary reports whether the store may accept the same request later.
func (e *StatusError) Temporary() bool {
	switch e.Code {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

// HeaderFunc returns extra headers for each request and feed handshake.
type HeaderFunc func() map[string]string

type Client struct {
	base    string
	hc      *fasthttp.Client
	extra   HeaderFunc
	timeout time.Duration
	// attempts bounds reads only; mutations are sent once.
	attempts int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry sets how many times a read is attempted in total.
func WithRetry(attempts int) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = attempts
	}
}

func WithConnLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.hc.MaxConnsPerHost = n
		}
	}
}

func WithHeaders(h HeaderFunc) Option {
	return func(c *Client) { c.extra = h }
}

// NewClient talks to the store rooted at baseURL, e.g. http://localhost:3000/api.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		hc: &fasthttp.Client{
			Name:            "h2h-ledger",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 8,
		},
		timeout:  10 * time.Second,
		attempts: 3,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Players lists every participant aggregate.
func (c *Client) Players(ctx context.Context) ([]stats.Aggregate, error) {
	var out []stats.Aggregate
	if err := c.call(ctx, call{method: fasthttp.MethodGet, path: "/players", idempotent: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Player(ctx context.Context, name string) (stats.Aggregate, error) {
	var out stats.Aggregate
	err := c.call(ctx, call{method: fasthttp.MethodGet, path: playerPath(name), idempotent: true}, &out)
	return out, err
}

// UpdatePlayer overwrites the whole record of one participant.
func (c *Client) UpdatePlayer(ctx context.Context, name string, a stats.Aggregate) (stats.Aggregate, error) {
	var out stats.Aggregate
	err := c.call(ctx, call{method: fasthttp.MethodPut, path: playerPath(name), body: a}, &out)
	return out, err
}

// SubmitMatch applies e on the store and returns both updated participants.
func (c *Client) SubmitMatch(ctx context.Context, e match.Entry) (stats.Pair, error) {
	var out stats.Pair
	err := c.call(ctx, call{method: fasthttp.MethodPost, path: "/matches", body: e}, &out)
	return out, err
}

// ReverseMatch undoes a previously submitted e and returns both updated participants.
func (c *Client) ReverseMatch(ctx context.Context, e match.Entry) (stats.Pair, error) {
	var out stats.Pair
	err := c.call(ctx, call{method: fasthttp.MethodPost, path: "/matches/reverse", body: e}, &out)
	return out, err
}

func playerPath(name string) string { return "/players/" + url.PathEscape(name) }

type call struct {
	method     string
	path       string
	body       any
	idempotent bool
}

func (c *Client) call(ctx context.Context, rc call, out any) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := c.prepare(req, rc); err != nil {
		return err
	}

	tries := 1
	if rc.idempotent {
		tries = c.attempts
	}
	var err error
	for n := 1; ; n++ {
		err = c.roundTrip(ctx, req, resp, rc)
		if err == nil {
			break
		}
		if n >= tries || !retryable(err) {
			return err
		}
		if waitErr := pause(ctx, retryDelay(n)); waitErr != nil {
			return err
		}
		resp.Reset()
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", rc.method, rc.path, err)
	}
	return nil
}

func (c *Client) prepare(req *fasthttp.Request, rc call) error {
	req.Header.SetMethod(rc.method)
	req.SetRequestURI(c.base + rc.path)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.extra != nil {
		for k, v := range c.extra() {
			if k = strings.TrimSpace(k); k != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if rc.body == nil {
		return nil
	}
	payload, err := json.Marshal(rc.body)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", rc.method, rc.path, err)
	}
	req.Header.SetContentType("application/json")
	req.SetBodyRaw(payload)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, rc call) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, rc.method, rc.path, err)
	}
	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, rc.method, rc.path, err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return &StatusError{Method: rc.method, Path: rc.path, Code: code, Body: snippet(resp.Body())}
	}
	return nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return errors.Is(err, ErrTransport)
}

// retryDelay doubles from 100ms and stops growing at 3.2s.
func retryDelay(n int) time.Duration {
	n = min(max(n, 1), 6)
	return (100 * time.Millisecond) << (n - 1)
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(b []byte) string {
	const limit = 512
	if len(b) > limit {
		b = b[:limit]
	}
	return string(b)
}
