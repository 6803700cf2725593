package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

const generationKey = "listings:browse:gen"

// BrowsePage is one cached page of the public browse query.
type BrowsePage struct {
	Items []*model.Listing `json:"items"`
	Total int64            `json:"total"`
}

// Loader reads a page from the primary store.
type Loader func(ctx context.Context) (BrowsePage, error)

// BrowseCache is a read-through Redis cache for public browse pages.
// Keys embed a generation counter; bumping the counter on any listing
// transition orphans every cached page at once. A nil *BrowseCache, or one
// built without a client, always calls the loader.
type BrowseCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	loads  atomic.Int64
}

// NewBrowseCache returns nil when rdb is nil so callers can wire it unconditionally.
func NewBrowseCache(rdb *redis.Client, ttl time.Duration) *BrowseCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &BrowseCache{rdb: rdb, ttl: ttl}
}

// Fetch serves f from Redis, falling back to load on a miss. Concurrent
// misses for the same key share one load. Redis failures degrade to a
// direct load.
func (c *BrowseCache) Fetch(ctx context.Context, f repository.BrowseFilter, load Loader) (BrowsePage, error) {
	if c == nil {
		return load(ctx)
	}

	gen, err := c.generation(ctx)
	if err != nil {
		logger.Debug("browse cache unavailable", zap.Error(err))
		return load(ctx)
	}
	key, err := pageKey(gen, f)
	if err != nil {
		return load(ctx)
	}

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var page BrowsePage
		if uErr := json.Unmarshal(data, &page); uErr == nil {
			c.hits.Add(1)
			return page, nil
		}
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.loads.Add(1)
		page, err := load(ctx)
		if err != nil {
			return BrowsePage{}, err
		}
		if payload, mErr := json.Marshal(page); mErr == nil {
			if sErr := c.rdb.Set(ctx, key, payload, c.ttl).Err(); sErr != nil {
				logger.Debug("browse cache set failed", zap.String("key", key), zap.Error(sErr))
			}
		}
		return page, nil
	})
	if err != nil {
		return BrowsePage{}, err
	}
	return v.(BrowsePage), nil
}

// Invalidate drops every cached page by advancing the generation.
func (c *BrowseCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		logger.Warn("browse cache invalidate failed", zap.Error(err))
	}
}

func (c *BrowseCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func pageKey(gen int64, f repository.BrowseFilter) (string, error) {
	f.Normalize()
	raw, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	return fmt.Sprintf("listings:browse:%d:%s", gen, hex.EncodeToString(sum[:12])), nil
}

// Counters reports cache traffic since the last reset.
func (c *BrowseCache) Counters() Counters {
	if c == nil {
		return Counters{}
	}
	return Counters{Hits: c.hits.Load(), Misses: c.misses.Load(), Loads: c.loads.Load()}
}

// ResetCounters clears recorded traffic.
func (c *BrowseCache) ResetCounters() {
	if c == nil {
		return
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.loads.Store(0)
}

// Counters summarises cache traffic.
type Counters struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Loads  int64 `json:"loads"`
}
