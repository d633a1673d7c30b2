package model

import (
	"net/url"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// Kind is a logical category of sports data.
type Kind string

const (
	KindRoster Kind = "roster"
	KindOdds   Kind = "odds"
	KindProps  Kind = "props"
)

func (k Kind) Valid() bool {
	switch k {
	case KindRoster, KindOdds, KindProps:
		return true
	}
	return false
}

// Resource identifies a logical data set such as the NFL roster or NBA odds.
// It is an immutable value used only to derive cache keys.
type Resource struct {
	Kind   Kind
	Sport  string
	Params map[string]string
}

// NewResource copies params so later mutation by the caller cannot change the key.
func NewResource(kind Kind, sport string, params map[string]string) Resource {
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return Resource{Kind: kind, Sport: sport, Params: cp}
}

// Prefix returns "kind:sport", the key prefix shared by every parametrization of the resource.
func (r Resource) Prefix() string {
	return string(r.Kind) + ":" + r.Sport
}

// Key returns the deterministic cache key: "kind:sport" followed by query-escaped params
// sorted by name, so distinct params never share a key.
func (r Resource) Key() string {
	if len(r.Params) == 0 {
		return r.Prefix()
	}

	names := make([]string, 0, len(r.Params))
	for name := range r.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(r.Prefix())
	for i, name := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(r.Params[name]))
	}
	return b.String()
}

// Hash is the xxh3 hash of Key.
func (r Resource) Hash() uint64 {
	return xxh3.HashString(r.Key())
}

// String implements fmt.Stringer.
func (r Resource) String() string {
	return r.Key()
}
