// Package gateway is the typed boundary to the storefront backend's cart and
// order endpoints. It normalizes every failure into ErrUnauthenticated,
// ErrUnavailable or ErrRejected and never retries on its own.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/cart-sync/pkg/circuitbreaker"
	"github.com/fjod/go_cart/cart-sync/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20 // 1MB
)

// Credential is the shopper's bearer token, handed in explicitly per session.
type Credential struct {
	Token string
}

type HTTPGateway struct {
	baseURL string
	cred    Credential
	client  *http.Client
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	log     *zap.Logger
}

type Option func(*HTTPGateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *HTTPGateway) { g.client = c }
}

// WithTimeout bounds every request. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(g *HTTPGateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBreaker shares one breaker between the gateways of all sessions.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(g *HTTPGateway) { g.breaker = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *HTTPGateway) { g.log = logger.OrNop(l) }
}

func NewHTTPGateway(baseURL string, cred Credential, opts ...Option) *HTTPGateway {
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		cred:    cred,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(g)
	}
	if g.client == nil {
		g.client = NewHTTPClient()
	}
	if g.breaker == nil {
		g.breaker = NewBreaker(circuitbreaker.Config{Name: "storefront-backend"}, g.log)
	}
	return g
}

// NewHTTPClient returns a traced client suitable for sharing between gateways.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// NewBreaker builds a breaker that only counts ErrUnavailable against the
// backend; rejections and auth failures are answers, not outages.
func NewBreaker(cfg circuitbreaker.Config, log *zap.Logger) *circuitbreaker.Breaker {
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || !errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled)
	}
	return circuitbreaker.New(cfg, log)
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, in, out any) error {
	if g.cred.Token == "" {
		return &Error{Op: op, Kind: ErrUnauthenticated, Message: "missing credential"}
	}

	err := g.breaker.Execute(func() error {
		return g.roundTrip(ctx, op, method, path, in, out)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return &Error{Op: op, Kind: ErrUnavailable, Err: err}
	}
	if err != nil {
		logger.FromContext(ctx, g.log).Debug("backend call failed",
			zap.String("op", op), zap.Error(err))
	}
	return err
}

func (g *HTTPGateway) roundTrip(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cred.Token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: ErrUnavailable, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &Error{Op: op, Kind: ErrUnavailable, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(op, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return &Error{Op: op, Kind: ErrUnavailable, Status: resp.StatusCode, Message: "empty response body"}
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Kind: ErrUnavailable, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classifyStatus(op string, status int, body []byte) error {
	msg, structured := detailMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Op: op, Kind: ErrUnauthenticated, Status: status, Message: msg}
	case structured:
		return &Error{Op: op, Kind: ErrRejected, Status: status, Message: msg}
	default:
		return &Error{Op: op, Kind: ErrUnavailable, Status: status}
	}
}
