package dispatcher

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/utils"
	"golang.org/x/sync/errgroup"
)

const defaultRefreshParallelism = 4

// RosterStatus is the freshness handshake answer: what is cached, not the roster itself.
type RosterStatus struct {
	Sport       string           `json:"sport"`
	Cached      bool             `json:"cached"`
	LastSync    time.Time        `json:"last_sync"`
	ActiveCount int              `json:"active_count"`
	Grade       model.Grade      `json:"grade"`
	Stale       bool             `json:"stale"`
	Provenance  model.Provenance `json:"provenance"`
	TTL         string           `json:"ttl"`
}

// rosterStatus makes sure the roster is fresh (refreshing it when needed, or always when
// sync is set) and reports its state.
func (d *Dispatcher) rosterStatus(sync bool) func(context.Context, Request) *model.Envelope {
	return func(ctx context.Context, req Request) *model.Envelope {
		def, failed := d.resolve(model.KindRoster, req)
		if failed != nil {
			return failed
		}

		res, err := def.Resolve(req.Options)
		if err != nil {
			return invalidParam(err)
		}
		result, err := d.coordinator.GetOrRefresh(ctx, def, res, sync || isForced(req.Options))
		if err != nil {
			return failure(res.Key(), err)
		}

		entry := result.Entry
		status := RosterStatus{
			Sport:       def.Sport,
			Cached:      !result.Provenance.IsLive(),
			LastSync:    entry.CreatedAt,
			ActiveCount: entry.Count,
			Grade:       d.evaluator.Grade(entry, def.TTL),
			Stale:       result.Provenance == model.ProvenanceStaleCache,
			Provenance:  result.Provenance,
			TTL:         def.TTL.String(),
		}

		env := d.aggregate(res.Key(), status, entry.Count, result.Warning)
		if env.Error == nil {
			env.Provenance = result.Provenance
			createdAt := entry.CreatedAt
			env.Timestamp = &createdAt
			env.Grade = status.Grade
		}
		return env
	}
}

// RefreshOutcome is the result of refreshing one resource.
type RefreshOutcome struct {
	Resource   string                  `json:"resource"`
	Provenance model.Provenance        `json:"provenance,omitempty"`
	Count      int                     `json:"count"`
	Warning    string                  `json:"warning,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Providers  []model.ProviderFailure `json:"providers,omitempty"`
}

// RefreshSummary aggregates RefreshOutcome of every refreshed resource.
type RefreshSummary struct {
	Total     int              `json:"total"`
	Refreshed int              `json:"refreshed"`
	Fallback  int              `json:"fallback"`
	Failed    int              `json:"failed"`
	Resources []RefreshOutcome `json:"resources"`
}

// refreshAll force-refreshes every declared resource, or those of one sport when it is given.
// A failing resource never stops the others.
func (d *Dispatcher) refreshAll(ctx context.Context, req Request) *model.Envelope {
	sport := strings.ToLower(strings.TrimSpace(req.Sport))
	if sport == "all" {
		sport = ""
	}

	var defs []*catalog.Resource
	for _, def := range d.catalog.Resources() {
		if sport == "" || matches(def, sport) {
			defs = append(defs, def)
		}
	}
	if len(defs) == 0 {
		return &model.Envelope{
			Status: http.StatusBadRequest,
			Error: &model.EnvelopeError{
				Code:    model.ErrCodeInvalidResource,
				Message: "no resources declared for sport " + req.Sport,
			},
		}
	}

	parallelism := d.cfg.RefreshParallelism
	if parallelism <= 0 {
		parallelism = defaultRefreshParallelism
	}

	outcomes := make([]RefreshOutcome, len(defs))
	g := &errgroup.Group{}
	g.SetLimit(parallelism)
	for i, def := range defs {
		res := def.Default()
		g.Go(func() error {
			outcomes[i] = d.refreshOne(ctx, def, res)
			return nil
		})
	}
	_ = g.Wait()

	summary := RefreshSummary{Total: len(outcomes), Resources: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Error != "":
			summary.Failed++
		case o.Provenance.IsLive():
			summary.Refreshed++
		default:
			summary.Fallback++
		}
	}

	var warning string
	if summary.Failed > 0 || summary.Fallback > 0 {
		warning = "some resources were not refreshed live"
	}
	return d.aggregate("*", summary, summary.Total, warning)
}

func (d *Dispatcher) refreshOne(ctx context.Context, def *catalog.Resource, res model.Resource) RefreshOutcome {
	outcome := RefreshOutcome{Resource: res.Key()}

	result, err := d.coordinator.GetOrRefresh(ctx, def, res, true)
	if err != nil {
		env := failure(res.Key(), err)
		outcome.Error = env.Error.Message
		outcome.Providers = env.Error.Providers
		return outcome
	}

	outcome.Provenance = result.Provenance
	outcome.Count = result.Entry.Count
	outcome.Warning = result.Warning
	outcome.Providers = result.Failures
	return outcome
}

func matches(def *catalog.Resource, sport string) bool {
	if def.Sport == sport {
		return true
	}
	for _, alias := range def.Aliases {
		if strings.EqualFold(alias, sport) {
			return true
		}
	}
	return false
}

// CacheItem describes one cached key.
type CacheItem struct {
	Key       string      `json:"key"`
	Tier      model.Tier  `json:"tier"`
	Count     int         `json:"count"`
	CreatedAt time.Time   `json:"created_at"`
	Age       string      `json:"age"`
	Grade     model.Grade `json:"grade"`
	Stale     bool        `json:"stale"`
}

// cacheStatus reports what is cached without calling any provider.
// Options "kind" and the request sport narrow the listed keys.
func (d *Dispatcher) cacheStatus(_ context.Context, req Request) *model.Envelope {
	prefix := ""
	if kind := strings.TrimSpace(req.Options["kind"]); kind != "" {
		prefix = kind + ":"
		if sport := strings.ToLower(strings.TrimSpace(req.Sport)); sport != "" {
			if def, ok := d.catalog.Lookup(model.Kind(kind), sport); ok {
				prefix = string(def.Kind) + ":" + def.Sport
			}
		}
	}

	now := d.evaluator.Now()
	items := make([]CacheItem, 0)
	for _, key := range d.store.Keys(prefix) {
		entry, found := d.store.Get(key)
		if !found {
			continue
		}
		item := CacheItem{
			Key:       key,
			Tier:      entry.Tier,
			Count:     entry.Count,
			CreatedAt: entry.CreatedAt,
			Age:       entry.Age(now).Truncate(time.Second).String(),
			Grade:     model.GradeF,
			Stale:     true,
		}
		if def, ok := d.catalog.LookupKey(key); ok {
			item.Grade = d.evaluator.Grade(entry, def.TTL)
			item.Stale = d.evaluator.Evaluate(entry, def.TTL, false).State != model.Fresh
		}
		items = append(items, item)
	}
	return d.aggregate(prefix+"*", items, len(items), "")
}

// Health reports the service state without calling any provider.
type Health struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	CacheEntries int64             `json:"cache_entries"`
	CacheMemory  string            `json:"cache_memory"`
	Credentials  map[string]string `json:"credentials"`
	Resources    int               `json:"resources"`
}

func (d *Dispatcher) health(_ context.Context, _ Request) *model.Envelope {
	credentials := make(map[string]string)
	for _, name := range d.catalog.Credentials() {
		if _, ok := d.secrets.Lookup(name); ok {
			credentials[name] = "present"
		} else {
			credentials[name] = "missing"
		}
	}

	return d.aggregate("health", Health{
		Status:       "ok",
		Uptime:       d.evaluator.Now().Sub(d.startedAt).Truncate(time.Second).String(),
		CacheEntries: d.store.Len(),
		CacheMemory:  utils.FmtMemory(d.store.Mem()),
		Credentials:  credentials,
		Resources:    len(d.catalog.Resources()),
	}, -1, "")
}
