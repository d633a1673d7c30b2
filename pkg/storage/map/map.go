package sharded

import (
	"strings"

	"github.com/zeebo/xxh3"
)

const ShardCount uint64 = 256

type Sizer interface {
	Size() uintptr
}

// Map is a string-keyed map split into independently locked shards,
// so writers of different keys rarely contend.
type Map[V Sizer] struct {
	shards [ShardCount]*Shard[V]
}

func NewMap[V Sizer](defaultLen int) *Map[V] {
	m := &Map[V]{}
	for id := uint64(0); id < ShardCount; id++ {
		m.shards[id] = NewShard[V](id, defaultLen)
	}
	return m
}

func (smap *Map[V]) GetShardKey(key string) uint64 {
	return xxh3.HashString(key) % ShardCount
}

func (smap *Map[V]) Shard(key string) *Shard[V] {
	return smap.shards[smap.GetShardKey(key)]
}

func (smap *Map[V]) Get(key string) (value V, found bool) {
	return smap.Shard(key).Get(key)
}

func (smap *Map[V]) Set(key string, value V) {
	smap.Shard(key).Set(key, value)
}

// Upsert replaces the value under the shard lock. fn receives the current value, if any.
func (smap *Map[V]) Upsert(key string, fn func(old V, found bool) V) V {
	return smap.Shard(key).Upsert(key, fn)
}

func (smap *Map[V]) Del(key string) (value V, found bool) {
	return smap.Shard(key).Del(key)
}

// DelIf removes the key only while pred holds for the stored value.
func (smap *Map[V]) DelIf(key string, pred func(V) bool) bool {
	return smap.Shard(key).DelIf(key, pred)
}

// Walk visits every item shard by shard. Returning false from fn stops the walk.
func (smap *Map[V]) Walk(fn func(key string, value V) bool) {
	for _, shard := range smap.shards {
		if !shard.Walk(fn) {
			return
		}
	}
}

// Keys returns every key starting with prefix, unordered.
func (smap *Map[V]) Keys(prefix string) []string {
	var keys []string
	smap.Walk(func(key string, _ V) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

func (smap *Map[V]) Mem() uintptr {
	var mem uintptr
	for _, shard := range smap.shards {
		mem += shard.mem.Load()
	}
	return mem
}

func (smap *Map[V]) Len() int64 {
	var length int64
	for _, shard := range smap.shards {
		length += shard.Len.Load()
	}
	return length
}
