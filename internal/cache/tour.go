// Package cache holds the Redis-backed caches of the natours service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/pkg/breaker"
)

const (
	tourKeyPrefix = "natours:tour:"
	genKeySuffix  = ":gen"
	// genTTL outlives any read-through, so a generation never resets
	// under a reader still holding it.
	genTTL = 24 * time.Hour
)

// TourCache caches fully populated tour documents by id. Entries are dropped
// whenever the tour or its ratings change and otherwise expire after the TTL.
//
// Every invalidation bumps a per-tour generation. Get reports the generation
// it saw, and Set only writes if it is still current, so a read that raced
// an invalidation cannot put the old document back.
type TourCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *breaker.Breaker
}

// NewTourCache creates a Redis-backed tour cache.
func NewTourCache(client *redis.Client, ttl time.Duration) *TourCache {
	return &TourCache{client: client, ttl: ttl}
}

// WithBreaker routes reads and writes through b. While b is open they fail
// fast with breaker.ErrOpen.
func (c *TourCache) WithBreaker(b *breaker.Breaker) *TourCache {
	c.breaker = b
	return c
}

// cachedTour carries the fields that Tour hides from JSON.
type cachedTour struct {
	Tour      domain.Tour `json:"tour"`
	GuideIDs  []string    `json:"guide_ids"`
	CreatedAt time.Time   `json:"created_at"`
}

func tourKey(id string) string { return tourKeyPrefix + id }
func genKey(id string) string  { return tourKeyPrefix + id + genKeySuffix }

func (c *TourCache) do(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Do(fn)
}

// Get returns the cached tour, or nil on a miss, along with the tour's
// current generation to hand to Set.
func (c *TourCache) Get(ctx context.Context, id string) (*domain.Tour, int64, error) {
	var (
		data    []byte
		version int64
	)
	err := c.do(func() error {
		pipe := c.client.Pipeline()
		doc := pipe.Get(ctx, tourKey(id))
		gen := pipe.Get(ctx, genKey(id))
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		var err error
		if version, err = gen.Int64(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if data, err = doc.Bytes(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("redis get tour: %w", err)
	}
	if data == nil {
		return nil, version, nil
	}

	var entry cachedTour
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, version, fmt.Errorf("unmarshal cached tour: %w", err)
	}
	entry.Tour.GuideIDs = entry.GuideIDs
	entry.Tour.CreatedAt = entry.CreatedAt
	return &entry.Tour, version, nil
}

// Set stores tour with the configured TTL if the tour has not been
// invalidated since Get returned version. A stale write is dropped silently.
func (c *TourCache) Set(ctx context.Context, tour *domain.Tour, version int64) error {
	data, err := json.Marshal(cachedTour{Tour: *tour, GuideIDs: tour.GuideIDs, CreatedAt: tour.CreatedAt})
	if err != nil {
		return fmt.Errorf("marshal tour: %w", err)
	}

	gk := genKey(tour.ID)
	err = c.do(func() error {
		err := c.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, gk).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if current != version {
				return errStale
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, tourKey(tour.ID), data, c.ttl)
				return nil
			})
			return err
		}, gk)
		if errors.Is(err, errStale) || errors.Is(err, redis.TxFailedErr) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("redis set tour: %w", err)
	}
	return nil
}

var errStale = errors.New("tour invalidated since read")

// InvalidateTour drops the cached tour and bumps its generation. It is
// always attempted, even while the breaker is open, since a skipped
// invalidation would leave a stale entry behind once Redis is reachable.
func (c *TourCache) InvalidateTour(ctx context.Context, id string) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey(id))
		p.Expire(ctx, genKey(id), genTTL)
		p.Del(ctx, tourKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del tour: %w", err)
	}
	return nil
}
