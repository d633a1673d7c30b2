package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/shape"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAttempts = 1
)

// FallbackPolicy decides what is served when every provider failed and both
// a stale entry and a synthetic payload are possible.
type FallbackPolicy string

const (
	StaleFirst     FallbackPolicy = "stale-first"
	SyntheticFirst FallbackPolicy = "synthetic-first"
)

// File is the YAML document describing providers and the resources served from them.
type File struct {
	Providers map[string]ProviderSpec `yaml:"providers"`
	Resources []ResourceSpec          `yaml:"resources"`
}

type ProviderSpec struct {
	BaseURL    string            `yaml:"baseUrl"`
	Credential *Credential       `yaml:"credential"`
	Timeout    string            `yaml:"timeout"`
	Attempts   int               `yaml:"attempts"`
	RateLimit  float64           `yaml:"rateLimit"`
	Headers    map[string]string `yaml:"headers"`
	Query      map[string]string `yaml:"query"`
}

// Credential names the env variable holding a secret and where it is sent:
// either as a request header or as a query parameter.
type Credential struct {
	Env    string `yaml:"env"`
	Header string `yaml:"header"`
	Query  string `yaml:"query"`
}

type ResourceSpec struct {
	Kind      string              `yaml:"kind"`
	Sport     string              `yaml:"sport"`
	Aliases   []string            `yaml:"aliases"`
	TTL       string              `yaml:"ttl"`
	Shape     string              `yaml:"shape"`
	Params    map[string]string   `yaml:"params"`
	Allowed   map[string][]string `yaml:"allowed"`
	Synthetic bool                `yaml:"synthetic"`
	Fallback  string              `yaml:"fallback"`
	Warm      bool                `yaml:"warm"`
	Chain     []LinkSpec          `yaml:"chain"`
}

type LinkSpec struct {
	Provider string            `yaml:"provider"`
	Path     string            `yaml:"path"`
	Query    map[string]string `yaml:"query"`
	Shape    string            `yaml:"shape"`
	Timeout  string            `yaml:"timeout"`
	Attempts int               `yaml:"attempts"`
}

// Catalog is the process-wide, read-only set of declared resources.
type Catalog struct {
	resources []*Resource
	index     map[string]*Resource
}

// Load reads and compiles a catalog file.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse compiles a YAML catalog document.
func Parse(b []byte) (*Catalog, error) {
	var file File
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, err
	}
	return Compile(file)
}

// Compile validates a decoded catalog and resolves every chain link against its provider.
func Compile(file File) (*Catalog, error) {
	if len(file.Resources) == 0 {
		return nil, fmt.Errorf("resources: at least one resource is required")
	}

	c := &Catalog{
		resources: make([]*Resource, 0, len(file.Resources)),
		index:     make(map[string]*Resource, len(file.Resources)),
	}
	for i, spec := range file.Resources {
		res, err := compileResource(file.Providers, spec)
		if err != nil {
			return nil, fmt.Errorf("resources[%d]: %w", i, err)
		}
		for _, name := range append([]string{res.Sport}, res.Aliases...) {
			key := indexKey(res.Kind, name)
			if _, exists := c.index[key]; exists {
				return nil, fmt.Errorf("resources[%d]: %s is declared twice", i, key)
			}
			c.index[key] = res
		}
		c.resources = append(c.resources, res)
	}
	return c, nil
}

func compileResource(providers map[string]ProviderSpec, spec ResourceSpec) (*Resource, error) {
	kind := model.Kind(strings.TrimSpace(spec.Kind))
	if !kind.Valid() {
		return nil, fmt.Errorf("kind: unknown kind %q", spec.Kind)
	}
	sport := strings.ToLower(strings.TrimSpace(spec.Sport))
	if sport == "" {
		return nil, fmt.Errorf("sport is required")
	}

	ttl, err := time.ParseDuration(spec.TTL)
	if err != nil {
		return nil, fmt.Errorf("ttl: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl: must be positive")
	}

	check, err := shape.Parse(spec.Shape)
	if err != nil {
		return nil, fmt.Errorf("shape: %w", err)
	}

	policy := FallbackPolicy(spec.Fallback)
	switch policy {
	case "":
		policy = StaleFirst
	case StaleFirst:
	case SyntheticFirst:
		if !spec.Synthetic {
			return nil, fmt.Errorf("fallback: %s requires synthetic: true", SyntheticFirst)
		}
	default:
		return nil, fmt.Errorf("fallback: unknown policy %q", spec.Fallback)
	}

	if len(spec.Chain) == 0 {
		return nil, fmt.Errorf("chain: at least one provider is required")
	}
	chain := make([]Endpoint, 0, len(spec.Chain))
	for j, link := range spec.Chain {
		ep, err := compileLink(providers, link)
		if err != nil {
			return nil, fmt.Errorf("chain[%d]: %w", j, err)
		}
		chain = append(chain, ep)
	}

	params := make(map[string]string, len(spec.Params))
	for k, v := range spec.Params {
		params[k] = v
	}

	allowed := make(map[string][]string, len(spec.Allowed))
	for name, values := range spec.Allowed {
		if _, ok := params[name]; !ok {
			return nil, fmt.Errorf("allowed: %s is not a declared param", name)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("allowed: %s lists no values", name)
		}
		allowed[name] = append([]string(nil), values...)
	}

	res := &Resource{
		Kind:      kind,
		Sport:     sport,
		Aliases:   spec.Aliases,
		TTL:       ttl,
		ShapeExpr: spec.Shape,
		Check:     check,
		Params:    params,
		Allowed:   allowed,
		Synthetic: spec.Synthetic,
		Policy:    policy,
		Warm:      spec.Warm,
		Chain:     chain,
	}
	for name, def := range params {
		if err := res.allow(name, def); err != nil {
			return nil, fmt.Errorf("params: default %w", err)
		}
	}
	return res, nil
}

func compileLink(providers map[string]ProviderSpec, link LinkSpec) (Endpoint, error) {
	provider, ok := providers[link.Provider]
	if !ok {
		return Endpoint{}, fmt.Errorf("provider: %q is not declared", link.Provider)
	}
	if provider.BaseURL == "" {
		return Endpoint{}, fmt.Errorf("provider %q: baseUrl is required", link.Provider)
	}
	if c := provider.Credential; c != nil {
		if c.Env == "" {
			return Endpoint{}, fmt.Errorf("provider %q: credential.env is required", link.Provider)
		}
		if (c.Header == "") == (c.Query == "") {
			return Endpoint{}, fmt.Errorf("provider %q: credential needs exactly one of header or query", link.Provider)
		}
	}

	timeout := defaultTimeout
	for _, raw := range []string{provider.Timeout, link.Timeout} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Endpoint{}, fmt.Errorf("timeout: %w", err)
		}
		timeout = d
	}

	attempts := defaultAttempts
	if provider.Attempts > 0 {
		attempts = provider.Attempts
	}
	if link.Attempts > 0 {
		attempts = link.Attempts
	}

	var check shape.Check
	if link.Shape != "" {
		var err error
		if check, err = shape.Parse(link.Shape); err != nil {
			return Endpoint{}, fmt.Errorf("shape: %w", err)
		}
	}

	query := make(map[string]string, len(provider.Query)+len(link.Query))
	for k, v := range provider.Query {
		query[k] = v
	}
	for k, v := range link.Query {
		query[k] = v
	}

	return Endpoint{
		Provider:    link.Provider,
		URL:         strings.TrimRight(provider.BaseURL, "/") + "/" + strings.TrimLeft(link.Path, "/"),
		Query:       query,
		Headers:     provider.Headers,
		Credential:  provider.Credential,
		Timeout:     timeout,
		MaxAttempts: attempts,
		RateLimit:   provider.RateLimit,
		Check:       check,
	}, nil
}

// Lookup finds a resource by kind and sport name or alias.
func (c *Catalog) Lookup(kind model.Kind, sport string) (*Resource, bool) {
	res, ok := c.index[indexKey(kind, sport)]
	return res, ok
}

// LookupKey finds the resource a cache key belongs to.
func (c *Catalog) LookupKey(key string) (*Resource, bool) {
	prefix, _, _ := strings.Cut(key, "?")
	kind, sport, ok := strings.Cut(prefix, ":")
	if !ok {
		return nil, false
	}
	return c.Lookup(model.Kind(kind), sport)
}

// Resources returns every declared resource in file order.
func (c *Catalog) Resources() []*Resource {
	return c.resources
}

// Sports lists canonical sport names declared for the kind.
func (c *Catalog) Sports(kind model.Kind) []string {
	var sports []string
	for _, res := range c.resources {
		if res.Kind == kind {
			sports = append(sports, res.Sport)
		}
	}
	return sports
}

// Credentials lists the env names of every credential referenced by the catalog.
func (c *Catalog) Credentials() []string {
	seen := make(map[string]struct{})
	for _, res := range c.resources {
		for _, ep := range res.Chain {
			if ep.Credential != nil {
				seen[ep.Credential.Env] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func indexKey(kind model.Kind, sport string) string {
	return string(kind) + ":" + strings.ToLower(strings.TrimSpace(sport))
}
