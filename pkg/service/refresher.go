package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/freshness"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/storage"
	"github.com/Borislavv/sports-data-aggregator/pkg/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultRefreshParallelism = 4
	defaultRefreshRateLimit   = 2
	refreshCountersBuffer     = 128
)

type Refresher interface {
	Run()
	RefreshWarm() int
	// Wait blocks until the loop started by Run has returned.
	Wait()
}

// WarmRefresher keeps resources declared as warm fresh in background, so callers
// rarely have to wait for an upstream fetch.
type WarmRefresher struct {
	ctx         context.Context
	cfg         *config.Config
	catalog     *catalog.Catalog
	store       storage.Storage
	evaluator   *freshness.Evaluator
	coordinator *Coordinator
	limiter     *rate.Limiter
	successCh   chan struct{}
	erroredCh   chan struct{}
	wg          sync.WaitGroup
}

func NewRefresher(
	ctx context.Context,
	cfg *config.Config,
	catalog *catalog.Catalog,
	store storage.Storage,
	evaluator *freshness.Evaluator,
	coordinator *Coordinator,
) *WarmRefresher {
	limit := cfg.RefreshRateLimit
	if limit <= 0 {
		limit = defaultRefreshRateLimit
	}
	return &WarmRefresher{
		ctx:         ctx,
		cfg:         cfg,
		catalog:     catalog,
		store:       store,
		evaluator:   evaluator,
		coordinator: coordinator,
		limiter:     rate.NewLimiter(rate.Limit(limit), 1),
		successCh:   make(chan struct{}, refreshCountersBuffer),
		erroredCh:   make(chan struct{}, refreshCountersBuffer),
	}
}

// Run refreshes warm resources once at start and then every RefreshInterval until ctx is done.
func (r *WarmRefresher) Run() {
	if r.cfg.RefreshInterval <= 0 {
		log.Info().Msg("[refresher] disabled, REFRESH_INTERVAL is not set")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if r.cfg.IsDebugOn() {
			r.runLogger()
		}

		r.RefreshWarm()

		ticker := utils.NewTicker(r.ctx, r.cfg.RefreshInterval)
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker:
				r.RefreshWarm()
			}
		}
	}()
}

func (r *WarmRefresher) Wait() {
	r.wg.Wait()
}

// RefreshWarm refreshes every warm resource that is stale or absent and waits for the
// refreshes to finish. Returns how many were started.
func (r *WarmRefresher) RefreshWarm() int {
	parallelism := r.cfg.RefreshParallelism
	if parallelism <= 0 {
		parallelism = defaultRefreshParallelism
	}
	semaphore := make(chan struct{}, parallelism)
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	started := 0
	for _, def := range r.catalog.Resources() {
		if !def.Warm {
			continue
		}

		res := def.Default()
		entry, _ := r.store.Get(res.Key())
		if r.evaluator.Evaluate(entry, def.TTL, false).State == model.Fresh {
			continue
		}

		// Throttling
		if err := r.limiter.Wait(r.ctx); err != nil {
			return started
		}

		semaphore <- struct{}{}
		wg.Add(1)
		started++
		go func(def *catalog.Resource, res model.Resource) {
			defer func() {
				<-semaphore
				wg.Done()
			}()
			r.refreshItem(def, res)
		}(def, res)
	}
	return started
}

func (r *WarmRefresher) refreshItem(def *catalog.Resource, res model.Resource) {
	result, err := r.coordinator.GetOrRefresh(r.ctx, def, res, false)
	if err != nil || !result.Provenance.IsLive() {
		if err != nil {
			log.Warn().Err(err).Msgf("[refresher] %s: refresh failed", res.Key())
		}
		r.count(r.erroredCh)
		return
	}
	log.Debug().Msgf("[refresher] %s: refreshed from %s, %d item(s)", res.Key(), result.Provenance, result.Entry.Count)
	r.count(r.successCh)
}

func (r *WarmRefresher) count(ch chan struct{}) {
	if !r.cfg.IsDebugOn() {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// runLogger periodically logs the number of successful and failed refreshes.
func (r *WarmRefresher) runLogger() {
	go func() {
		refreshesNumPer5Sec := 0
		erroredNumPer5Sec := 0
		ticker := utils.NewTicker(r.ctx, 5*time.Second)
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-r.successCh:
				refreshesNumPer5Sec++
			case <-r.erroredCh:
				erroredNumPer5Sec++
			case <-ticker:
				if refreshesNumPer5Sec == 0 && erroredNumPer5Sec == 0 {
					continue
				}
				log.Info().Msgf(
					"[refresher][5s] success %s, errors: %s",
					strconv.Itoa(refreshesNumPer5Sec), strconv.Itoa(erroredNumPer5Sec),
				)
				refreshesNumPer5Sec = 0
				erroredNumPer5Sec = 0
			}
		}
	}()
}
