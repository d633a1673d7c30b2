package aggregator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Borislavv/sports-data-aggregator/internal/aggregator/config"
	"github.com/Borislavv/sports-data-aggregator/internal/aggregator/server"
	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/dispatcher"
	"github.com/Borislavv/sports-data-aggregator/pkg/freshness"
	"github.com/Borislavv/sports-data-aggregator/pkg/k8s/probe/liveness"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/prometheus/metrics"
	"github.com/Borislavv/sports-data-aggregator/pkg/repository"
	"github.com/Borislavv/sports-data-aggregator/pkg/service"
	"github.com/Borislavv/sports-data-aggregator/pkg/shutdown"
	"github.com/Borislavv/sports-data-aggregator/pkg/storage"
	"github.com/Borislavv/sports-data-aggregator/pkg/storage/durable"
	sharded "github.com/Borislavv/sports-data-aggregator/pkg/storage/map"
	"github.com/Borislavv/sports-data-aggregator/pkg/synthetic"
	"github.com/rs/zerolog/log"
)

// App defines the aggregator application lifecycle interface.
type App interface {
	Start(gc shutdown.Gracefuller)
}

// Aggregator holds the whole application state: the store, background workers and the HTTP server.
type Aggregator struct {
	cfg         *config.Config
	ctx         context.Context
	cancel      context.CancelFunc
	probe       liveness.Prober
	store       storage.Storage
	coordinator *service.Coordinator
	refresher   service.Refresher
	purger      *service.Purger
	server      server.Http
}

// NewApp loads the provider catalog and wires storage, fetcher, coordinator, dispatcher and server.
func NewApp(ctx context.Context, cfg *config.Config, probe liveness.Prober) (*Aggregator, error) {
	cat, err := catalog.Load(cfg.ProvidersFile)
	if err != nil {
		return nil, fmt.Errorf("load provider catalog: %w", err)
	}

	meter, err := metrics.New()
	if err != nil {
		return nil, err
	}

	var mirror storage.Durable
	if cfg.DurableCacheDir != "" {
		db, err := durable.Open(cfg.DurableCacheDir)
		if err != nil {
			return nil, fmt.Errorf("open durable cache %s: %w", cfg.DurableCacheDir, err)
		}
		mirror = db
	}

	ctx, cancel := context.WithCancel(ctx)

	store := storage.New(sharded.NewMap[*model.Entry](cfg.InitStorageLengthPerShard), mirror)
	evaluator := freshness.New()
	secrets := catalog.EnvSecrets{}
	fetcher := repository.NewFallback(repository.NewBackend(&http.Client{}), secrets, cfg.RetryBaseDelay, meter)
	coordinator := service.NewCoordinator(ctx, store, fetcher, evaluator, synthetic.Default(), meter)
	handler := dispatcher.New(&cfg.Config, cat, coordinator, store, evaluator, secrets)

	srv, err := server.New(ctx, cfg, handler, meter, probe)
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, err
	}

	for _, name := range cat.Credentials() {
		if _, ok := secrets.Lookup(name); !ok {
			log.Warn().Msgf("[app] credential %s is not set, its providers will be skipped", name)
		}
	}

	return &Aggregator{
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		probe:       probe,
		store:       store,
		coordinator: coordinator,
		refresher:   service.NewRefresher(ctx, &cfg.Config, cat, store, evaluator, coordinator),
		purger:      service.NewPurger(ctx, &cfg.Config, store, meter),
		server:      srv,
	}, nil
}

// Start runs background workers and the server, blocking until the server exits.
// gc.Done is called once everything has been stopped.
func (a *Aggregator) Start(gc shutdown.Gracefuller) {
	defer func() {
		a.stop()
		gc.Done()
	}()

	log.Info().Msg("[app] starting aggregator")

	a.probe.Watch(a)
	a.refresher.Run()
	a.purger.Run()

	log.Info().Msg("[app] aggregator has been started")

	a.server.Start()
}

func (a *Aggregator) stop() {
	log.Info().Msg("[app] stopping aggregator")
	a.cancel()

	// the store is closed only once nothing can write to it
	a.refresher.Wait()
	a.purger.Wait()
	a.coordinator.Close()

	if err := a.store.Close(); err != nil {
		log.Err(err).Msg("[app] failed to close the cache store")
	}
	log.Info().Msg("[app] aggregator has been stopped")
}

// IsAlive is called by the liveness probe.
func (a *Aggregator) IsAlive(_ context.Context) bool {
	if !a.server.IsAlive() {
		log.Info().Msg("[app] http server has gone away")
		return false
	}
	return true
}
