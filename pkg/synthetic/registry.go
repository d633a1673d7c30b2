// Package synthetic produces placeholder payloads for resources that may be served
// when no provider and no cached copy is available.
package synthetic

import (
	"errors"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
)

var ErrUnsupported = errors.New("no synthetic generator for resource")

// Generator builds a payload and its item count.
type Generator interface {
	Generate(res model.Resource) (payload []byte, count int, err error)
}

// Registry resolves generators by resource prefix ("kind:sport").
type Registry struct {
	generators map[string]Generator
}

func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

// Default registers every built-in generator.
func Default() *Registry {
	r := NewRegistry()
	r.Register(model.KindProps, "americanfootball_nfl", NFLProps{})
	return r
}

func (r *Registry) Register(kind model.Kind, sport string, g Generator) {
	r.generators[string(kind)+":"+sport] = g
}

// Generate builds the synthetic payload for res or returns ErrUnsupported.
func (r *Registry) Generate(res model.Resource) ([]byte, int, error) {
	g, ok := r.generators[res.Prefix()]
	if !ok {
		return nil, 0, ErrUnsupported
	}
	return g.Generate(res)
}
