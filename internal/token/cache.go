package token

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var tokenRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sandboxpages_token_requests_total",
	Help: "Total number of token lookups by cache result",
}, []string{"result"})

// FetchTimeout bounds a single Source call made on behalf of the cache.
const FetchTimeout = 30 * time.Second

// Cache memoizes the token of a Source for a bounded window.
//
// Concurrent callers that miss the cache share a single Source call. A failed
// fetch clears the cache so the next call asks the Source again.
type Cache struct {
	expiresAt time.Time
	source    Source
	now       func() time.Time
	token     string
	group     singleflight.Group
	ttl       time.Duration
	mu        sync.Mutex
}

var _ Source = (*Cache)(nil)

type Option func(*Cache)

// WithTTL sets how long a fetched token is reused. Non-positive values keep
// the default.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCache(source Source, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token or fetches a fresh one from the Source.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		tokenRequests.WithLabelValues("hit").Inc()
		return tok, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		// The previous flight may have filled the cache while this caller waited.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}

		// The flight is shared, so it must outlive the caller that started it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for token: %w", context.Cause(ctx))
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			slog.DebugContext(ctx, "token fetch shared with concurrent caller")
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
}

func (c *Cache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

func (c *Cache) fetch(ctx context.Context) (string, error) {
	tok, err := c.source.Token(ctx)
	if err != nil {
		c.Invalidate()
		tokenRequests.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "token source failed, cache cleared", "error", err)
		return "", fmt.Errorf("%w: %w", ErrTokenProvider, err)
	}
	tokenRequests.WithLabelValues("miss").Inc()

	if tok == "" {
		slog.DebugContext(ctx, "token source returned an empty token, not caching it")
		return "", nil
	}

	expiresAt := c.now().Add(c.ttl)
	if exp, ok := jwtExpiry(tok); ok && exp.Before(expiresAt) {
		slog.DebugContext(ctx, "token expires before cache window ends", "exp", exp)
		expiresAt = exp
	}

	c.mu.Lock()
	c.token = tok
	c.expiresAt = expiresAt
	c.mu.Unlock()

	return tok, nil
}

// jwtExpiry reads the exp claim without verifying the signature. Opaque
// tokens report false.
func jwtExpiry(tok string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
