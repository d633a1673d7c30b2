package sharded

import (
	"sync"
	"sync/atomic"
)

type Shard[V Sizer] struct {
	sync.RWMutex
	id    uint64
	items map[string]V
	Len   *atomic.Int64
	mem   *atomic.Uintptr
}

func NewShard[V Sizer](id uint64, defaultLen int) *Shard[V] {
	return &Shard[V]{
		id:    id,
		items: make(map[string]V, defaultLen),
		Len:   &atomic.Int64{},
		mem:   &atomic.Uintptr{},
	}
}

func (shard *Shard[V]) ID() uint64 {
	return shard.id
}

func (shard *Shard[V]) Size() uintptr {
	return shard.mem.Load()
}

func (shard *Shard[V]) Set(key string, value V) {
	shard.Upsert(key, func(V, bool) V { return value })
}

func (shard *Shard[V]) Upsert(key string, fn func(old V, found bool) V) V {
	shard.Lock()
	defer shard.Unlock()

	old, found := shard.items[key]
	value := fn(old, found)
	shard.items[key] = value

	if found {
		shard.mem.Add(-old.Size())
	} else {
		shard.Len.Add(1)
	}
	shard.mem.Add(value.Size())
	return value
}

func (shard *Shard[V]) Get(key string) (value V, found bool) {
	shard.RLock()
	v, ok := shard.items[key]
	shard.RUnlock()
	return v, ok
}

func (shard *Shard[V]) Del(key string) (value V, found bool) {
	shard.Lock()
	defer shard.Unlock()
	v, f := shard.items[key]
	if f {
		shard.remove(key, v)
	}
	return v, f
}

func (shard *Shard[V]) DelIf(key string, pred func(V) bool) bool {
	shard.Lock()
	defer shard.Unlock()
	v, f := shard.items[key]
	if !f || !pred(v) {
		return false
	}
	shard.remove(key, v)
	return true
}

func (shard *Shard[V]) Walk(fn func(string, V) bool) bool {
	shard.RLock()
	defer shard.RUnlock()
	for k, v := range shard.items {
		if !fn(k, v) {
			return false
		}
	}
	return true
}

// remove must be called under the write lock.
func (shard *Shard[V]) remove(key string, v V) {
	delete(shard.items, key)
	shard.mem.Add(-v.Size())
	shard.Len.Add(-1)
}
