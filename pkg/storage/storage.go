package storage

import (
	"sort"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	sharded "github.com/Borislavv/sports-data-aggregator/pkg/storage/map"
	"github.com/rs/zerolog/log"
)

// Storage is the cache store contract. Reads never fail, writes report durable failures
// as *model.CacheError while the in-memory value is still updated.
type Storage interface {
	Get(key string) (entry *model.Entry, found bool)
	Set(key string, payload []byte, tier model.Tier, count int, collection bool) (*model.Entry, error)
	Del(key string) error
	Keys(prefix string) []string
	PurgeExpired(maxAge time.Duration) (removed int, err error)
	Len() int64
	Mem() uintptr
	Close() error
}

// Durable is an optional mirror that survives process restarts.
type Durable interface {
	Get(key string) (*model.Entry, bool, error)
	Put(entry *model.Entry) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

// Cache keeps entries in a sharded in-memory map and mirrors them into a durable layer if one is given.
type Cache struct {
	mem     *sharded.Map[*model.Entry]
	durable Durable
	now     func() time.Time
}

// New constructs a store. durable may be nil.
func New(mem *sharded.Map[*model.Entry], durable Durable) *Cache {
	return &Cache{mem: mem, durable: durable, now: time.Now}
}

// WithClock replaces the clock used to stamp entries.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) Get(key string) (*model.Entry, bool) {
	if entry, found := c.mem.Get(key); found {
		return entry, true
	}
	if c.durable == nil {
		return nil, false
	}

	entry, found, err := c.durable.Get(key)
	if err != nil {
		log.Warn().Err(err).Msgf("[storage] durable read of %s failed, treating as absent", key)
		return nil, false
	}
	if !found {
		return nil, false
	}

	// warm the memory tier, a concurrent Set may already hold a newer entry
	return c.mem.Upsert(key, func(old *model.Entry, exists bool) *model.Entry {
		if exists && !old.CreatedAt.Before(entry.CreatedAt) {
			return old
		}
		return entry
	}), true
}

// Set replaces the entry atomically. The created-at stamp never goes backwards for a key.
func (c *Cache) Set(key string, payload []byte, tier model.Tier, count int, collection bool) (*model.Entry, error) {
	now := c.now()
	entry := c.mem.Upsert(key, func(old *model.Entry, exists bool) *model.Entry {
		createdAt := now
		if exists && old.CreatedAt.After(createdAt) {
			createdAt = old.CreatedAt
		}
		return model.NewEntry(key, payload, tier, count, collection, createdAt)
	})

	if c.durable != nil {
		if err := c.durable.Put(entry); err != nil {
			return entry, &model.CacheError{Op: "set", Key: key, Err: err}
		}
	}
	return entry, nil
}

func (c *Cache) Del(key string) error {
	c.mem.Del(key)
	if c.durable != nil {
		if err := c.durable.Delete(key); err != nil {
			return &model.CacheError{Op: "delete", Key: key, Err: err}
		}
	}
	return nil
}

// Keys lists keys from both tiers, sorted.
func (c *Cache) Keys(prefix string) []string {
	seen := make(map[string]struct{})
	for _, key := range c.mem.Keys(prefix) {
		seen[key] = struct{}{}
	}
	if c.durable != nil {
		keys, err := c.durable.Keys(prefix)
		if err != nil {
			log.Warn().Err(err).Msg("[storage] durable key listing failed, reporting memory keys only")
		}
		for _, key := range keys {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// PurgeExpired removes entries older than maxAge from both tiers and returns how many keys were removed.
func (c *Cache) PurgeExpired(maxAge time.Duration) (int, error) {
	cutoff := c.now().Add(-maxAge)
	expired := func(e *model.Entry) bool { return e.CreatedAt.Before(cutoff) }

	removed := make(map[string]struct{})
	for _, key := range c.mem.Keys("") {
		if c.mem.DelIf(key, expired) {
			removed[key] = struct{}{}
		}
	}

	var firstErr error
	if c.durable != nil {
		keys, err := c.durable.Keys("")
		if err != nil {
			firstErr = &model.CacheError{Op: "purge", Key: "*", Err: err}
		}
		for _, key := range keys {
			entry, found, err := c.durable.Get(key)
			if err != nil {
				log.Warn().Err(err).Msgf("[storage] unreadable durable entry %s is purged", key)
			} else if !found || !expired(entry) {
				continue
			}
			if _, live := c.mem.Get(key); live {
				// refreshed in memory meanwhile, the next Set overwrites the durable copy
				continue
			}
			if err = c.durable.Delete(key); err != nil {
				if firstErr == nil {
					firstErr = &model.CacheError{Op: "purge", Key: key, Err: err}
				}
				continue
			}
			removed[key] = struct{}{}
		}
	}
	return len(removed), firstErr
}

func (c *Cache) Len() int64 {
	return c.mem.Len()
}

func (c *Cache) Mem() uintptr {
	return c.mem.Mem()
}

func (c *Cache) Close() error {
	if c.durable != nil {
		return c.durable.Close()
	}
	return nil
}
