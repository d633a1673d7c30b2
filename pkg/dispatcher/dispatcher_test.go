package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/freshness"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/repository"
	"github.com/Borislavv/sports-data-aggregator/pkg/service"
	"github.com/Borislavv/sports-data-aggregator/pkg/storage"
	sharded "github.com/Borislavv/sports-data-aggregator/pkg/storage/map"
	"github.com/Borislavv/sports-data-aggregator/pkg/synthetic"
)

const testCatalog = `
providers:
  keyed:
    baseUrl: {URL}
    credential: {env: PRIMARY_KEY, header: X-Key}
    timeout: 2s
  open:
    baseUrl: {URL}
    timeout: 2s
  sluggish:
    baseUrl: {URL}
    timeout: 100ms
resources:
  - kind: roster
    sport: nfl
    aliases: [americanfootball_nfl]
    ttl: 12h
    shape: array
    chain:
      - provider: open
        path: /nfl/players
  - kind: roster
    sport: nba
    ttl: 12h
    shape: array
    chain:
      - provider: open
        path: /broken
  - kind: odds
    sport: americanfootball_nfl
    aliases: [nfl]
    ttl: 3h
    shape: array
    params: {regions: us}
    allowed: {regions: [us, eu]}
    chain:
      - provider: keyed
        path: /odds/{sport}
        query: {regions: "{regions}"}
  - kind: roster
    sport: nhl
    ttl: 12h
    shape: array
    chain:
      - provider: sluggish
        path: /slow
`

type harness struct {
	dispatcher *Dispatcher
	store      *storage.Cache
	hits       map[string]*atomic.Int32
}

func newHarness(t *testing.T, secrets catalog.Secrets, dispatchTimeout time.Duration) *harness {
	t.Helper()

	hits := map[string]*atomic.Int32{
		"/nfl/players":               {},
		"/broken":                    {},
		"/odds/americanfootball_nfl": {},
		"/slow":                      {},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/nfl/players", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path].Add(1)
		_, _ = w.Write([]byte(`[{"id":1},{"id":2},{"id":3}]`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path].Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/odds/americanfootball_nfl", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path].Add(1)
		if r.Header.Get("X-Key") == "" || r.URL.Query().Get("regions") != "us" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"game-1"}]`))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path].Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cat, err := catalog.Parse([]byte(strings.ReplaceAll(testCatalog, "{URL}", srv.URL)))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	cfg := &config.Config{Fetcher: config.Fetcher{DispatchTimeout: dispatchTimeout}}
	store := storage.New(sharded.NewMap[*model.Entry](8), nil)
	evaluator := freshness.New()
	fetcher := repository.NewFallback(repository.NewBackend(nil), secrets, time.Millisecond, nil)
	coordinator := service.NewCoordinator(context.Background(), store, fetcher, evaluator, synthetic.Default(), nil)

	return &harness{
		dispatcher: New(cfg, cat, coordinator, store, evaluator, secrets),
		store:      store,
		hits:       hits,
	}
}

func (h *harness) handle(op, sport string, options map[string]string) *model.Envelope {
	return h.dispatcher.Handle(context.Background(), Request{Operation: op, Sport: sport, Options: options})
}

func TestHandleUnknownOperation(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)

	env := h.handle("getWeather", "nfl", nil)
	if env.Status != http.StatusBadRequest || env.Error == nil || env.Error.Code != model.ErrCodeInvalidOperation {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	supported := strings.Join(env.Error.Supported, ",")
	for _, name := range []string{"getOdds", "getRosterStatus", "syncRoster", "refreshAll"} {
		if !strings.Contains(supported, name) {
			t.Errorf("supported operations miss %s: %s", name, supported)
		}
	}
}

func TestHandleUnknownSport(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)

	env := h.handle("getRoster", "curling", nil)
	if env.Status != http.StatusBadRequest || env.Error.Code != model.ErrCodeInvalidResource {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(env.Error.Supported) != 3 {
		t.Fatalf("expected declared roster sports, got %v", env.Error.Supported)
	}
}

func TestHandleServesThenCaches(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)

	first := h.handle("ROSTER", "americanfootball_nfl", nil)
	if first.Status != http.StatusOK || first.Provenance != model.Provenance(model.TierPrimary) {
		t.Fatalf("unexpected first envelope: %+v", first)
	}
	if first.Operation != "getRoster" || first.Count == nil || *first.Count != 3 || first.Timestamp == nil {
		t.Fatalf("envelope misses operation, count or timestamp: %+v", first)
	}
	if first.Grade != model.GradeA {
		t.Fatalf("fresh data graded %s", first.Grade)
	}

	second := h.handle("getRoster", "nfl", nil)
	if second.Provenance != model.ProvenanceCache || string(second.Data) != string(first.Data) {
		t.Fatalf("expected cached data, got %s", second.Provenance)
	}
	if n := h.hits["/nfl/players"].Load(); n != 1 {
		t.Fatalf("upstream hit %d times, want 1", n)
	}

	forced := h.handle("getRoster", "nfl", map[string]string{"forceRefresh": "true"})
	if forced.Provenance != model.Provenance(model.TierPrimary) || h.hits["/nfl/players"].Load() != 2 {
		t.Fatalf("forceRefresh did not go upstream: %s", forced.Provenance)
	}
}

func TestHandleMissingCredential(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)

	env := h.handle("getOdds", "nfl", nil)
	if env.Status != http.StatusFailedDependency || env.Error.Code != model.ErrCodeMissingCredential {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(env.Error.Providers) != 1 || env.Error.Providers[0].Attempts != 0 {
		t.Fatalf("providers = %+v", env.Error.Providers)
	}
	if h.hits["/odds/americanfootball_nfl"].Load() != 0 {
		t.Fatal("provider without credential was requested")
	}
}

func TestHandleOddsWithCredential(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{"PRIMARY_KEY": "k"}, 0)

	env := h.handle("odds", "", nil)
	if env.Status != http.StatusOK || env.Resource != "odds:americanfootball_nfl?regions=us" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestHandleRejectsParamOutsideAllowList(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{"PRIMARY_KEY": "k"}, 0)

	env := h.handle("getOdds", "nfl", map[string]string{"regions": "us&regions=eu"})
	if env.Status != http.StatusBadRequest || env.Error == nil || env.Error.Code != model.ErrCodeInvalidResource {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if strings.Join(env.Error.Supported, ",") != "us,eu" {
		t.Fatalf("supported = %v", env.Error.Supported)
	}
	if h.hits["/odds/americanfootball_nfl"].Load() != 0 {
		t.Fatal("rejected request reached the provider")
	}
	if keys := h.store.Keys(""); len(keys) != 0 {
		t.Fatalf("rejected request created cache keys %v", keys)
	}
}

func TestHandleUpstreamExhausted(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)

	env := h.handle("getRoster", "nba", nil)
	if env.Status != http.StatusBadGateway || env.Error.Code != model.ErrCodeUpstreamExhausted {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(env.Error.Providers) != 1 || env.Error.Providers[0].Outcome != model.OutcomeHttpError {
		t.Fatalf("providers = %+v", env.Error.Providers)
	}
}

func TestHandleServesStaleWithWarning(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)
	if _, err := h.store.Set("roster:nba", []byte(`[{"id":7}]`), model.TierPrimary, 1, true); err != nil {
		t.Fatalf("set: %v", err)
	}

	env := h.handle("getRoster", "nba", map[string]string{"force": "1"})
	if env.Status != http.StatusOK || env.Provenance != model.ProvenanceStaleCache || env.Warning == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if string(env.Data) != `[{"id":7}]` {
		t.Fatalf("data = %s", env.Data)
	}
}

func TestHandleDispatchTimeout(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 30*time.Millisecond)

	env := h.handle("getRoster", "nhl", nil)
	if env.Status != http.StatusGatewayTimeout || env.Error.Code != model.ErrCodeTimeout {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestHandleRosterStatusAndSync(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)

	env := h.handle("getRosterStatus", "nfl", nil)
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var status RosterStatus
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Cached || status.ActiveCount != 3 || status.Sport != "nfl" || status.Grade != model.GradeA {
		t.Fatalf("status = %+v", status)
	}

	env = h.handle("rosterStatus", "nfl", nil)
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Cached {
		t.Fatal("second status call must be served from cache")
	}

	h.handle("syncRoster", "nfl", nil)
	if n := h.hits["/nfl/players"].Load(); n != 2 {
		t.Fatalf("sync must always refresh, upstream hit %d times", n)
	}
}

func TestHandleRefreshAllIsolatesFailures(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)

	env := h.handle("refreshAll", "", nil)
	if env.Status != http.StatusOK || env.Provenance != model.ProvenanceAggregate || env.Warning == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	var summary RefreshSummary
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Total != 4 || summary.Refreshed != 1 || summary.Failed != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Resources[0].Resource != "roster:nfl" || summary.Resources[0].Count != 3 {
		t.Fatalf("first outcome = %+v", summary.Resources[0])
	}
	if _, found := h.store.Get("roster:nfl"); !found {
		t.Fatal("successful resource was not cached")
	}
}

func TestHandleCacheStatusAndHealth(t *testing.T) {
	h := newHarness(t, catalog.StaticSecrets{}, 0)
	h.handle("getRoster", "nfl", nil)

	env := h.handle("cacheStatus", "", nil)
	var items []CacheItem
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Key != "roster:nfl" || items[0].Stale || items[0].Count != 3 {
		t.Fatalf("items = %+v", items)
	}

	env = h.handle("status", "", nil)
	if env.Operation != "health" {
		t.Fatalf("status must alias health, got %s", env.Operation)
	}
	var health Health
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Credentials["PRIMARY_KEY"] != "missing" || health.CacheEntries != 1 {
		t.Fatalf("health = %+v", health)
	}
}

func TestFailureDuringShutdown(t *testing.T) {
	env := failure("roster:nfl", service.ErrStopped)
	if env.Status != http.StatusServiceUnavailable || env.Error.Code != model.ErrCodeUnavailable {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
