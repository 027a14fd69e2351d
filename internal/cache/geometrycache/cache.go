// Package geometrycache is a read-through Redis cache in front of a
// geometrystore.Store. Cache failures are logged and counted but never fail
// the wrapped operation.
//
// Writes replace the cached entry with a short lived tombstone before and
// after touching the store, and fills only land on an absent key, so a read
// racing a write cannot put the old geometry back. When a tombstone cannot be
// written the cache stops serving hits until a full namespace flush succeeds.
package geometrycache

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/osm-geometry-store/internal/cache/keys"
	"github.com/mohammed-shakir/osm-geometry-store/internal/core/observability"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry/codec"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/geometrystore"
)

// Backend is the subset of redisstore.Client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
	SetAll(ctx context.Context, keys []string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPrefix(ctx context.Context, prefix string) (int, error)
}

// tombstone is shorter than any packed geometry frame, so it never decodes.
var tombstone = []byte{0}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithOpTimeout bounds each Redis round trip independently of the caller's
// deadline.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

// WithTombstoneTTL sets how long a write keeps fills away from its key. It
// bounds how late a read that started before the write may try to fill.
func WithTombstoneTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.tombstoneTTL = d
		}
	}
}

// WithResyncInterval limits how often an untrusted cache retries its flush.
func WithResyncInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.resyncEvery = d
		}
	}
}

func WithNamespace(ns string) Option {
	return func(c *Cache) { c.namespace = ns }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

type Cache struct {
	next         geometrystore.Store
	backend      Backend
	ttl          time.Duration
	tombstoneTTL time.Duration
	opTimeout    time.Duration
	resyncEvery  time.Duration
	namespace    string
	log          *slog.Logger

	// The cache is trusted while flushed == failed. failed counts lost
	// invalidations; flushed is the failure count covered by the last
	// successful flush.
	failed     atomic.Uint64
	flushed    atomic.Uint64
	lastResync atomic.Int64
}

var _ geometrystore.Store = (*Cache)(nil)

func New(next geometrystore.Store, backend Backend, opts ...Option) *Cache {
	c := &Cache{
		next:         next,
		backend:      backend,
		ttl:          10 * time.Minute,
		tombstoneTTL: 5 * time.Second,
		opTimeout:    250 * time.Millisecond,
		resyncEvery:  time.Second,
		namespace:    keys.DefaultNamespace,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
}

func (c *Cache) Get(ctx context.Context, key geometry.ElementKey) (geometry.Geometry, bool, error) {
	if !c.resync(ctx) {
		observability.IncCacheMiss()
		return c.next.Get(ctx, key)
	}
	ck := keys.Geometry(c.namespace, key)

	if g, ok := c.lookup(ctx, ck); ok {
		observability.IncCacheHit()
		return g, true, nil
	}
	observability.IncCacheMiss()

	g, ok, err := c.next.Get(ctx, key)
	if err != nil || !ok {
		return g, ok, err
	}
	c.fill(ctx, ck, g)
	return g, true, nil
}

func (c *Cache) lookup(ctx context.Context, ck string) (geometry.Geometry, bool) {
	cctx, cancel := c.opCtx(ctx)
	defer cancel()

	raw, ok, err := c.backend.Get(cctx, ck)
	if err != nil {
		observability.IncCacheError("get")
		c.log.WarnContext(ctx, "cache get failed", "key", ck, "err", err)
		return nil, false
	}
	if !ok || bytes.Equal(raw, tombstone) {
		return nil, false
	}

	enc, err := codec.Unpack(raw)
	if err == nil {
		var g geometry.Geometry
		if g, err = codec.Decode(enc); err == nil {
			return g, true
		}
	}
	observability.IncCacheError("decode")
	c.log.WarnContext(ctx, "dropping undecodable cache entry", "key", ck, "err", err)
	if derr := c.backend.Del(cctx, ck); derr != nil {
		observability.IncCacheError("del")
	}
	return nil, false
}

// fill caches g unless the key already holds something, typically the
// tombstone of a write that overlapped this read.
func (c *Cache) fill(ctx context.Context, ck string, g geometry.Geometry) {
	enc, err := codec.Encode(g)
	if err != nil {
		return
	}
	cctx, cancel := c.opCtx(ctx)
	defer cancel()
	if _, err := c.backend.SetNX(cctx, ck, codec.Pack(enc), c.ttl); err != nil {
		observability.IncCacheError("set")
		c.log.WarnContext(ctx, "cache fill failed", "key", ck, "err", err)
	}
}

// invalidate overwrites the entries of ks with tombstones. A failure marks
// the cache untrusted.
func (c *Cache) invalidate(ctx context.Context, ks ...geometry.ElementKey) {
	if len(ks) == 0 {
		return
	}
	cks := make([]string, len(ks))
	for i, k := range ks {
		cks[i] = keys.Geometry(c.namespace, k)
	}
	cctx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.backend.SetAll(cctx, cks, tombstone, c.tombstoneTTL); err != nil {
		observability.IncCacheError("del")
		c.distrust()
		c.log.WarnContext(ctx, "cache invalidation failed, bypassing cache until flushed",
			"keys", len(cks), "err", err)
	}
}

func (c *Cache) distrust() { c.failed.Add(1) }

// resync reports whether cached entries may be served. An untrusted cache
// flushes its namespace, at most once per resync interval, and becomes
// trusted again once a flush covering every recorded failure succeeds.
func (c *Cache) resync(ctx context.Context) bool {
	gen := c.failed.Load()
	if c.flushed.Load() == gen {
		return true
	}
	now := time.Now().UnixNano()
	last := c.lastResync.Load()
	if now-last < int64(c.resyncEvery) || !c.lastResync.CompareAndSwap(last, now) {
		return false
	}
	if err := c.flush(ctx); err != nil {
		return false
	}
	for {
		f := c.flushed.Load()
		if f >= gen || c.flushed.CompareAndSwap(f, gen) {
			break
		}
	}
	if c.flushed.Load() != c.failed.Load() {
		return false
	}
	c.log.InfoContext(ctx, "cache flushed, serving hits again")
	return true
}

func (c *Cache) flush(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*c.opTimeout)
	defer cancel()
	if _, err := c.backend.DelPrefix(cctx, keys.Prefix(c.namespace)); err != nil {
		observability.IncCacheError("del_prefix")
		c.log.WarnContext(ctx, "cache flush failed", "err", err)
		return err
	}
	return nil
}

func (c *Cache) Put(ctx context.Context, key geometry.ElementKey, g geometry.Geometry) error {
	c.invalidate(ctx, key)
	if err := c.next.Put(ctx, key, g); err != nil {
		return err
	}
	c.invalidate(ctx, key)
	return nil
}

func (c *Cache) PutAll(ctx context.Context, entries []geometrystore.Entry) error {
	ks := make([]geometry.ElementKey, len(entries))
	for i, e := range entries {
		ks[i] = e.Key
	}
	c.invalidate(ctx, ks...)
	if err := c.next.PutAll(ctx, entries); err != nil {
		return err
	}
	c.invalidate(ctx, ks...)
	return nil
}

func (c *Cache) GetAllKeys(ctx context.Context, bbox geometry.BoundingBox) ([]geometry.ElementKey, error) {
	return c.next.GetAllKeys(ctx, bbox)
}

func (c *Cache) Delete(ctx context.Context, key geometry.ElementKey) (bool, error) {
	c.invalidate(ctx, key)
	deleted, err := c.next.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, key)
	return deleted, nil
}

// DeleteUnreferenced drops the whole namespace after removing rows; the
// store does not report which keys went away.
func (c *Cache) DeleteUnreferenced(ctx context.Context) (int64, error) {
	n, err := c.next.DeleteUnreferenced(ctx)
	if err != nil || n == 0 {
		return n, err
	}
	if err := c.flush(ctx); err != nil {
		c.distrust()
	}
	return n, nil
}
