package service

import (
	"context"
	"sync"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/prometheus/metrics"
	"github.com/Borislavv/sports-data-aggregator/pkg/storage"
	"github.com/Borislavv/sports-data-aggregator/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Purger periodically drops entries older than PurgeMaxAge from both cache tiers.
type Purger struct {
	ctx      context.Context
	cfg      *config.Config
	store    storage.Storage
	recorder metrics.Recorder
	wg       sync.WaitGroup
}

func NewPurger(ctx context.Context, cfg *config.Config, store storage.Storage, recorder metrics.Recorder) *Purger {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Purger{ctx: ctx, cfg: cfg, store: store, recorder: recorder}
}

func (p *Purger) Run() {
	if p.cfg.PurgeInterval <= 0 || p.cfg.PurgeMaxAge <= 0 {
		log.Info().Msg("[purger] disabled, PURGE_INTERVAL or PURGE_MAX_AGE is not set")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := utils.NewTicker(p.ctx, p.cfg.PurgeInterval)
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker:
				p.Purge()
			}
		}
	}()
}

// Wait blocks until the loop started by Run has returned.
func (p *Purger) Wait() {
	p.wg.Wait()
}

// Purge runs one purge pass and returns the number of removed keys.
func (p *Purger) Purge() int {
	from := time.Now()
	removed, err := p.store.PurgeExpired(p.cfg.PurgeMaxAge)
	if err != nil {
		log.Warn().Err(err).Msg("[purger] purge finished with errors")
	}

	p.recorder.AddPurged(removed)
	p.recorder.SetCacheEntries(p.store.Len())

	if removed > 0 || p.cfg.IsDebugOn() {
		log.Info().Msgf(
			"[purger] removed %d entries older than %s in %s, entries left: %d, memory: %s",
			removed, p.cfg.PurgeMaxAge, time.Since(from), p.store.Len(), utils.FmtMemory(p.store.Mem()),
		)
	}
	return removed
}
