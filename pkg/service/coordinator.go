package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/freshness"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/prometheus/metrics"
	"github.com/Borislavv/sports-data-aggregator/pkg/repository"
	"github.com/Borislavv/sports-data-aggregator/pkg/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrStopped is returned for requests which need a fetch after Close.
var ErrStopped = errors.New("coordinator is stopped")

// Synthesizer produces placeholder payloads, see synthetic.Registry.
type Synthesizer interface {
	Generate(res model.Resource) (payload []byte, count int, err error)
}

// Result is what a caller of GetOrRefresh is served.
type Result struct {
	Entry      *model.Entry
	Provenance model.Provenance
	Verdict    model.Verdict
	Warning    string
	// Attempts made by the live fetch that produced or failed to produce this result.
	Attempts []model.Attempt
	// Failures are set when the result is a fallback after every provider failed.
	Failures []model.ProviderFailure
	// Shared is true when the caller joined a fetch started by another caller.
	Shared bool
}

// Coordinator serves resources from cache while fresh and otherwise runs at most one
// upstream fetch per cache key, shared by every caller asking for the key meanwhile.
type Coordinator struct {
	// ctx bounds the lifetime of fetches, they are never cancelled by a single caller.
	ctx       context.Context
	store     storage.Storage
	fetcher   repository.Fetcher
	evaluator *freshness.Evaluator
	synth     Synthesizer
	recorder  metrics.Recorder
	group     singleflight.Group

	mu      sync.Mutex
	closed  bool
	flights sync.WaitGroup
}

func NewCoordinator(
	ctx context.Context,
	store storage.Storage,
	fetcher repository.Fetcher,
	evaluator *freshness.Evaluator,
	synth Synthesizer,
	recorder metrics.Recorder,
) *Coordinator {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Coordinator{
		ctx:       ctx,
		store:     store,
		fetcher:   fetcher,
		evaluator: evaluator,
		synth:     synth,
		recorder:  recorder,
	}
}

// GetOrRefresh returns the cached entry of res when fresh and force is not set. Otherwise it
// joins or starts the fetch for the key and waits for it until ctx is done. When every provider
// fails it serves the previous entry, then a synthetic payload if def permits one, and only then
// returns the *model.ExhaustionError.
func (c *Coordinator) GetOrRefresh(ctx context.Context, def *catalog.Resource, res model.Resource, force bool) (*Result, error) {
	key := res.Key()

	entry, _ := c.store.Get(key)
	verdict := c.evaluator.Evaluate(entry, def.TTL, force)
	if verdict.State == model.Fresh {
		c.recorder.IncServed(res.Kind, model.ProvenanceCache)
		return &Result{Entry: entry, Provenance: model.ProvenanceCache, Verdict: verdict}, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if !c.enter() {
			return nil, ErrStopped
		}
		defer c.flights.Done()
		return c.refresh(def, res, force)
	})

	select {
	case <-ctx.Done():
		// the fetch keeps running for the other callers and still lands in cache
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			c.recorder.IncCoalesced(res.Kind)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		shared := *r.Val.(*Result)
		shared.Shared = r.Shared
		c.recorder.IncServed(res.Kind, shared.Provenance)
		return &shared, nil
	}
}

// Close rejects new flights and waits for the running ones to finish,
// after which nothing writes to the store anymore.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.flights.Wait()
}

func (c *Coordinator) enter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.flights.Add(1)
	return true
}

// refresh is the body of a single flight.
func (c *Coordinator) refresh(def *catalog.Resource, res model.Resource, force bool) (*Result, error) {
	key := res.Key()

	// a flight that finished right before this one may have already refreshed the key
	prior, _ := c.store.Get(key)
	if !force {
		if verdict := c.evaluator.Evaluate(prior, def.TTL, false); verdict.State == model.Fresh {
			return &Result{Entry: prior, Provenance: model.ProvenanceCache, Verdict: verdict}, nil
		}
	}

	fetched, err := c.fetcher.Fetch(c.ctx, def.Chain, repository.Request{
		Key:   key,
		Vars:  varsOf(res),
		Check: def.Check,
	})
	if err == nil {
		entry, setErr := c.store.Set(key, fetched.Payload, fetched.Tier, fetched.Shape.Items, fetched.Shape.Collection)
		if setErr != nil {
			log.Warn().Err(setErr).Msgf("[coordinator] %s: write-through incomplete", key)
		}
		return &Result{
			Entry:      entry,
			Provenance: model.ProvenanceOf(fetched.Tier),
			Verdict:    c.evaluator.Evaluate(entry, def.TTL, false),
			Attempts:   fetched.Attempts,
		}, nil
	}

	var exhausted *model.ExhaustionError
	if !errors.As(err, &exhausted) {
		return nil, err
	}
	return c.fallback(def, res, prior, force, exhausted)
}

func (c *Coordinator) fallback(
	def *catalog.Resource,
	res model.Resource,
	prior *model.Entry,
	force bool,
	exhausted *model.ExhaustionError,
) (*Result, error) {
	order := []func() *Result{
		func() *Result { return c.staleResult(def, prior, force, exhausted) },
		func() *Result { return c.syntheticResult(def, res, exhausted) },
	}
	if def.Policy == catalog.SyntheticFirst {
		order[0], order[1] = order[1], order[0]
	}

	for _, next := range order {
		if result := next(); result != nil {
			log.Warn().Msgf("[coordinator] %s: %s", res.Key(), result.Warning)
			return result, nil
		}
	}

	log.Error().Err(exhausted).Msgf("[coordinator] %s: nothing to serve", res.Key())
	return nil, exhausted
}

func (c *Coordinator) staleResult(def *catalog.Resource, prior *model.Entry, force bool, exhausted *model.ExhaustionError) *Result {
	if prior == nil {
		return nil
	}
	verdict := c.evaluator.Evaluate(prior, def.TTL, force)
	return &Result{
		Entry:      prior,
		Provenance: model.ProvenanceStaleCache,
		Verdict:    verdict,
		Warning: fmt.Sprintf(
			"all %d provider(s) failed, serving cached data from %s (age %s)",
			len(exhausted.Failures), prior.CreatedAt.UTC().Format(time.RFC3339), verdict.Age.Truncate(time.Second),
		),
		Failures: exhausted.Failures,
	}
}

// syntheticResult builds a placeholder entry. It is never written to the cache so a later
// live fetch is not shadowed by it.
func (c *Coordinator) syntheticResult(def *catalog.Resource, res model.Resource, exhausted *model.ExhaustionError) *Result {
	if !def.Synthetic || c.synth == nil {
		return nil
	}
	payload, count, err := c.synth.Generate(res)
	if err != nil {
		log.Warn().Err(err).Msgf("[coordinator] %s: synthetic fallback unavailable", res.Key())
		return nil
	}

	entry := model.NewEntry(res.Key(), payload, model.TierSynthetic, count, true, c.evaluator.Now())
	return &Result{
		Entry:      entry,
		Provenance: model.ProvenanceSynthetic,
		Verdict:    model.Verdict{State: model.Fresh, TTL: def.TTL},
		Warning:    fmt.Sprintf("all %d provider(s) failed, serving synthetic data", len(exhausted.Failures)),
		Failures:   exhausted.Failures,
	}
}

// varsOf exposes the resource params and its sport to endpoint templates.
func varsOf(res model.Resource) map[string]string {
	vars := make(map[string]string, len(res.Params)+1)
	for k, v := range res.Params {
		vars[k] = v
	}
	vars["sport"] = res.Sport
	return vars
}
