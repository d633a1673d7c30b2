package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/shape"
)

// Resource is a compiled resource declaration: how long its data stays fresh,
// which providers serve it and what is acceptable when they all fail.
type Resource struct {
	Kind      model.Kind
	Sport     string
	Aliases   []string
	TTL       time.Duration
	ShapeExpr string
	Check     shape.Check
	// Params are the cache-relevant parameters with their defaults.
	// Only options named here take part in the cache key.
	Params    map[string]string
	// Allowed optionally restricts the values of a param. Comma separated values are
	// checked element by element.
	Allowed   map[string][]string
	Synthetic bool
	Policy    FallbackPolicy
	Warm      bool
	Chain     []Endpoint
}

// ParamError reports an option value outside the allow-list of its param.
type ParamError struct {
	Name    string
	Value   string
	Allowed []string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("param %s: value %q is not one of %s", e.Name, e.Value, strings.Join(e.Allowed, ", "))
}

// Resolve builds the concrete resource for a request, overriding declared params with options.
// An option outside the param allow-list is rejected with *ParamError.
func (r *Resource) Resolve(options map[string]string) (model.Resource, error) {
	params := make(map[string]string, len(r.Params))
	for name, def := range r.Params {
		v, ok := options[name]
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			params[name] = def
			continue
		}
		if err := r.allow(name, v); err != nil {
			return model.Resource{}, err
		}
		params[name] = v
	}
	return model.NewResource(r.Kind, r.Sport, params), nil
}

// Default is the resource with every declared param at its default value.
func (r *Resource) Default() model.Resource {
	params := make(map[string]string, len(r.Params))
	for name, def := range r.Params {
		params[name] = def
	}
	return model.NewResource(r.Kind, r.Sport, params)
}

func (r *Resource) allow(name, value string) error {
	allowed, restricted := r.Allowed[name]
	if !restricted {
		return nil
	}
	for _, part := range strings.Split(value, ",") {
		if !contains(allowed, strings.TrimSpace(part)) {
			return &ParamError{Name: name, Value: value, Allowed: allowed}
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Endpoint is one provider of a chain, resolved against its provider declaration.
type Endpoint struct {
	Provider    string
	URL         string
	Query       map[string]string
	Headers     map[string]string
	Credential  *Credential
	Timeout     time.Duration
	MaxAttempts int
	// RateLimit is the max requests per second toward the provider, zero means unlimited.
	RateLimit float64
	// Check overrides the resource shape check when the provider answers in its own format.
	Check shape.Check
}

// Render expands {name} placeholders in the URL and query values and encodes the query.
// The credential is not part of the result.
func (e Endpoint) Render(vars map[string]string) string {
	target := expand(e.URL, vars, true)
	if len(e.Query) == 0 {
		return target
	}

	names := make([]string, 0, len(e.Query))
	for name := range e.Query {
		names = append(names, name)
	}
	sort.Strings(names)

	values := url.Values{}
	for _, name := range names {
		if v := expand(e.Query[name], vars, false); v != "" {
			values.Set(name, v)
		}
	}
	if encoded := values.Encode(); encoded != "" {
		if strings.Contains(target, "?") {
			return target + "&" + encoded
		}
		return target + "?" + encoded
	}
	return target
}

func expand(tpl string, vars map[string]string, escape bool) string {
	if !strings.Contains(tpl, "{") {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		if escape {
			value = url.PathEscape(value)
		}
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
