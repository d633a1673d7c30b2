package model

import (
	"strconv"
	"time"
	"unsafe"

	"github.com/zeebo/xxh3"
)

// Tier is the source that produced a payload: "primary", "fallback-N" or "synthetic".
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSynthetic Tier = "synthetic"
)

// TierOf maps a position in a provider chain onto its tier name.
func TierOf(index int) Tier {
	if index <= 0 {
		return TierPrimary
	}
	return Tier("fallback-" + strconv.Itoa(index))
}

// Entry is the unit of storage. Entries are never mutated after construction,
// a refresh replaces the whole value.
type Entry struct {
	Key        string
	Payload    []byte
	CreatedAt  time.Time
	Tier       Tier
	Count      int
	Collection bool
	Checksum   uint64
}

// NewEntry builds an entry and computes its payload checksum.
func NewEntry(key string, payload []byte, tier Tier, count int, collection bool, createdAt time.Time) *Entry {
	return &Entry{
		Key:        key,
		Payload:    payload,
		CreatedAt:  createdAt,
		Tier:       tier,
		Count:      count,
		Collection: collection,
		Checksum:   xxh3.Hash(payload),
	}
}

// Age returns how old the entry is at the given moment. Never negative.
func (e *Entry) Age(now time.Time) time.Duration {
	if age := now.Sub(e.CreatedAt); age > 0 {
		return age
	}
	return 0
}

// Size implements the sharded map Sizer.
func (e *Entry) Size() uintptr {
	return unsafe.Sizeof(*e) + uintptr(len(e.Payload)) + uintptr(len(e.Key))
}
