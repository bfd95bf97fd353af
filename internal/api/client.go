// ABOUTME: HTTP client for the backend: origin, auth header injection, and error mapping.
// ABOUTME: Queries go through the tag cache; mutations invalidate the tags they declare.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/cache"
	"github.com/2389-research/backstage/internal/logging"
	"github.com/2389-research/backstage/internal/media"
	"github.com/2389-research/backstage/internal/metrics"
	"github.com/2389-research/backstage/internal/session"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 30 * time.Second

// Client talks to one backend origin on behalf of one session.
type Client struct {
	origin    string
	http      *http.Client
	session   session.Store
	cache     *cache.Cache
	limiter   *rate.Limiter
	media     media.Normalizer
	maxUpload int64
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache shares a cache between clients.
func WithCache(qc *cache.Cache) Option {
	return func(c *Client) {
		if qc != nil {
			c.cache = qc
		}
	}
}

// WithPlaceholder sets the image used for absent profile media.
func WithPlaceholder(placeholder string) Option {
	return func(c *Client) {
		if placeholder != "" {
			c.media.Placeholder = placeholder
		}
	}
}

// WithMaxUploadBytes sets the local upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxUpload = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for origin, which must be an absolute http(s) URL.
func New(origin string, store session.Store, opts ...Option) (*Client, error) {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid backend origin %q: must be an http(s) URL", origin)
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}

	c := &Client{
		origin:    origin,
		http:      &http.Client{Timeout: DefaultTimeout},
		session:   store,
		limiter:   rate.NewLimiter(rate.Inf, 0),
		media:     media.NewNormalizer(origin),
		maxUpload: media.DefaultMaxUploadBytes,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.New(cache.WithLogger(c.logger))
	}
	return c, nil
}

// Origin returns the backend origin.
func (c *Client) Origin() string { return c.origin }

// Session returns the session store the client authenticates with.
func (c *Client) Session() session.Store { return c.session }

// Cache exposes the query cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Normalizer returns the media normalizer bound to the origin.
func (c *Client) Normalizer() media.Normalizer { return c.media }

// query serves ep through the cache.
func (c *Client) query(ctx context.Context, ep Endpoint, arg string, fetch cache.Fetcher) (any, error) {
	return c.cache.Query(ctx, cache.Key{Endpoint: ep.Name, Arg: arg}, ep.Provides, fetch)
}

// mutate sends ep and invalidates its tags on success.
func (c *Client) mutate(ctx context.Context, ep Endpoint, arg string, p *payload, out any) error {
	if err := c.do(ctx, ep, arg, p, out); err != nil {
		return err
	}
	if len(ep.Invalidates) > 0 {
		c.cache.Invalidate(ep.Invalidates...)
	}
	return nil
}

// do performs one request and decodes a successful response into out.
func (c *Client) do(ctx context.Context, ep Endpoint, arg string, p *payload, out any) error {
	if logging.FromContext(ctx) == slog.Default() {
		ctx = logging.WithLogger(ctx, c.logger)
	}
	ctx, span := logging.StartSpan(ctx, ep.Name)
	logger := logging.FromContext(ctx)
	start := time.Now()
	status := 0
	defer func() {
		metrics.ObserveRequest(ep.Name, status, start)
		span.End(slog.Int("status", status))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return apierr.Wrap(apierr.KindUnexpected, err, "request cancelled")
	}

	var body io.Reader
	if p != nil {
		body = p.body
	}
	req, err := http.NewRequestWithContext(ctx, ep.Method, c.origin+ep.PathFor(arg), body)
	if err != nil {
		return apierr.Wrap(apierr.KindUnexpected, err, "failed to create request")
	}
	if p != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", p.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	sess := c.session.Session()
	tokenSent := sess.Authenticated()
	if tokenSent {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("backend request failed", slog.String("endpoint", ep.Name), slog.String("error", err.Error()))
		return apierr.Wrap(apierr.KindUnexpected, err, "could not reach the server")
	}
	defer func() { _ = resp.Body.Close() }()
	status = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Wrap(apierr.KindUnexpected, err, "failed to read response")
	}

	if resp.StatusCode >= 400 {
		apiErr := apierr.FromResponse(resp.StatusCode, respBody)
		logger.Info("backend returned error",
			slog.String("endpoint", ep.Name),
			slog.Int("status", resp.StatusCode),
			slog.String("kind", apiErr.Kind.String()))
		if resp.StatusCode == http.StatusUnauthorized && ep.Authenticated && tokenSent {
			c.expireSession(ctx)
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apierr.Wrap(apierr.KindUnexpected, err, "invalid response from server")
	}
	return nil
}

// expireSession drops credentials the backend no longer accepts.
func (c *Client) expireSession(ctx context.Context) {
	logging.FromContext(ctx).Warn("session rejected by backend, logging out")
	c.session.Logout(ctx)
	c.cache.Reset()
}

func (c *Client) requireSession() error {
	if !c.session.Session().Authenticated() {
		return &apierr.Error{Kind: apierr.KindUnauthorized}
	}
	return nil
}
