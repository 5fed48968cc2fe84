// Package cache holds decrypted system and intermediate keys in memory.
//
// Entries are trusted for the policy's revoke check interval and re-validated
// lazily on access; no background goroutine is started. Concurrent misses for the
// same key collapse into a single load or create.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/metrics"
)

// Factory returns the current key for an ID, creating and persisting a new version
// when none is usable.
type Factory func(ctx context.Context) (*cryptoDomain.CryptoKey, error)

// Loader returns the exact key version named by meta.
type Loader func(ctx context.Context, meta cryptoDomain.KeyMeta) (*cryptoDomain.CryptoKey, error)

type entry struct {
	key      *cryptoDomain.CryptoKey
	loadedAt time.Time
}

// KeyCache caches decrypted keys by exact version and tracks the latest version per ID.
type KeyCache struct {
	name    string
	policy  *cryptoDomain.CryptoPolicy
	metrics metrics.BusinessMetrics
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	keys   map[string]*entry
	latest map[string]int64
	closed bool
}

// Option configures a KeyCache.
type Option func(*KeyCache)

// WithClock replaces time.Now as the cache's time source.
func WithClock(now func() time.Time) Option {
	return func(c *KeyCache) {
		c.now = now
	}
}

// New creates an empty KeyCache. name labels its metrics and logs.
func New(
	name string,
	policy *cryptoDomain.CryptoPolicy,
	m metrics.BusinessMetrics,
	logger *slog.Logger,
	opts ...Option,
) *KeyCache {
	if m == nil {
		m = metrics.NewNoOpBusinessMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &KeyCache{
		name:    name,
		policy:  policy,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		keys:    make(map[string]*entry),
		latest:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the latest key for id. A cached latest key is returned while it
// is fresh, unrevoked and unexpired; otherwise factory runs once for all concurrent
// callers and its result becomes the latest version.
func (c *KeyCache) GetOrCreate(ctx context.Context, id string, factory Factory) (*cryptoDomain.CryptoKey, error) {
	key, err := c.usableLatest(id)
	if err != nil {
		return nil, err
	}
	if key != nil {
		c.metrics.RecordCacheEvent(ctx, c.name, metrics.CacheEventHit)
		return key, nil
	}

	return c.do(ctx, "latest:"+id, func(ctx context.Context) (any, error) {
		key, err := c.usableLatest(id)
		if err != nil {
			return nil, err
		}
		if key != nil {
			return key, nil
		}

		c.metrics.RecordCacheEvent(ctx, c.name, metrics.CacheEventMiss)
		created, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		return c.store(id, created, true)
	})
}

// GetOrLoad returns the key version named by meta. Entries older than the revoke check
// interval are reloaded to refresh their revoked flag; when that reload fails the
// cached entry is served anyway.
func (c *KeyCache) GetOrLoad(
	ctx context.Context,
	meta cryptoDomain.KeyMeta,
	loader Loader,
) (*cryptoDomain.CryptoKey, error) {
	cached, fresh, err := c.lookup(meta)
	if err != nil {
		return nil, err
	}
	if fresh {
		c.metrics.RecordCacheEvent(ctx, c.name, metrics.CacheEventHit)
		return cached, nil
	}

	return c.do(ctx, "load:"+meta.String(), func(ctx context.Context) (any, error) {
		cached, fresh, err := c.lookup(meta)
		if err != nil {
			return nil, err
		}
		if fresh {
			return cached, nil
		}

		if cached != nil {
			c.metrics.RecordCacheEvent(ctx, c.name, metrics.CacheEventStale)
		} else {
			c.metrics.RecordCacheEvent(ctx, c.name, metrics.CacheEventMiss)
		}

		loaded, err := loader(ctx, meta)
		if err != nil {
			if cached != nil {
				c.logger.Warn("key reload failed, serving cached version",
					slog.String("cache", c.name),
					slog.String("key", meta.String()),
					slog.Any("error", err),
				)
				return cached, nil
			}
			return nil, err
		}
		return c.store(meta.ID, loaded, false)
	})
}

// do runs fn once for all concurrent callers of key. fn runs under a context detached
// from the first caller's cancellation, so one caller giving up does not fail the
// others; each caller stops waiting when its own ctx is done. Metastore and KMS calls
// made by fn are bounded by their own timeouts.
func (c *KeyCache) do(
	ctx context.Context,
	key string,
	fn func(ctx context.Context) (any, error),
) (*cryptoDomain.CryptoKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cryptoDomain.CryptoKey), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close zeroes every cached key and empties the cache. Later calls fail with
// ErrCacheClosed. Close is idempotent.
func (c *KeyCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for _, e := range c.keys {
		e.key.Close()
	}
	clear(c.keys)
	clear(c.latest)
}

// usableLatest returns the latest key for id if it can be used for a new encryption
// without consulting the metastore, or nil.
func (c *KeyCache) usableLatest(id string) (*cryptoDomain.CryptoKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, cryptoDomain.ErrCacheClosed
	}

	created, ok := c.latest[id]
	if !ok {
		return nil, nil
	}
	e := c.keys[cryptoDomain.KeyMeta{ID: id, Created: created}.String()]
	if e == nil {
		return nil, nil
	}

	now := c.now()
	if !c.isFresh(e, now) || e.key.Revoked() || e.key.IsExpired(now, c.policy.ExpireKeyAfter) {
		return nil, nil
	}
	return e.key, nil
}

func (c *KeyCache) lookup(meta cryptoDomain.KeyMeta) (*cryptoDomain.CryptoKey, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, false, cryptoDomain.ErrCacheClosed
	}

	e := c.keys[meta.String()]
	if e == nil {
		return nil, false, nil
	}
	return e.key, c.isFresh(e, c.now()), nil
}

func (c *KeyCache) isFresh(e *entry, now time.Time) bool {
	return now.Sub(e.loadedAt) < c.policy.RevokeCheckInterval
}

// store caches key under its exact version. An already cached instance of the same
// version is kept and refreshed, and the duplicate is closed.
func (c *KeyCache) store(id string, key *cryptoDomain.CryptoKey, markLatest bool) (*cryptoDomain.CryptoKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		key.Close()
		return nil, cryptoDomain.ErrCacheClosed
	}

	now := c.now()
	cacheKey := cryptoDomain.KeyMeta{ID: id, Created: key.Created()}.String()
	if existing, ok := c.keys[cacheKey]; ok {
		if existing.key != key {
			existing.key.SetRevoked(key.Revoked())
			key.Close()
		}
		existing.loadedAt = now
		key = existing.key
	} else {
		c.keys[cacheKey] = &entry{key: key, loadedAt: now}
	}

	if markLatest {
		if latest, ok := c.latest[id]; !ok || key.Created() >= latest {
			c.latest[id] = key.Created()
		}
	}
	return key, nil
}
