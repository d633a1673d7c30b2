package server

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Borislavv/sports-data-aggregator/internal/aggregator/api"
	"github.com/Borislavv/sports-data-aggregator/internal/aggregator/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/dispatcher"
	"github.com/Borislavv/sports-data-aggregator/pkg/k8s/probe/liveness"
	"github.com/Borislavv/sports-data-aggregator/pkg/prometheus/metrics"
	prometheuscontroller "github.com/Borislavv/sports-data-aggregator/pkg/prometheus/metrics/controller"
	prometheusrequestmiddleware "github.com/Borislavv/sports-data-aggregator/pkg/prometheus/metrics/middleware"
	httpserver "github.com/Borislavv/sports-data-aggregator/pkg/server"
	"github.com/Borislavv/sports-data-aggregator/pkg/server/controller"
	"github.com/Borislavv/sports-data-aggregator/pkg/server/middleware"
	"github.com/rs/zerolog/log"
)

var InitFailedErrorMessage = "[server] init. failed"

// Http interface exposes methods for starting and liveness probing.
type Http interface {
	Start()
	IsAlive() bool
}

// HttpServer implements Http over the aggregation dispatcher.
type HttpServer struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg           *config.Config
	metrics       *metrics.Metrics
	server        *httpserver.HTTP
	isServerAlive *atomic.Bool
}

// New composes the HTTP server. The metrics endpoint and the request instrumentation
// are mounted only when enabled in config.
func New(
	ctx context.Context,
	cfg *config.Config,
	handler dispatcher.Handler,
	meter *metrics.Metrics,
	probe liveness.Prober,
) (*HttpServer, error) {
	ctx, cancel := context.WithCancel(ctx)

	srv := &HttpServer{
		ctx:           ctx,
		cancel:        cancel,
		cfg:           cfg,
		metrics:       meter,
		isServerAlive: &atomic.Bool{},
	}

	server, err := httpserver.New(ctx, cfg, srv.controllers(handler, probe), srv.middlewares())
	if err != nil {
		cancel()
		log.Err(err).Msg(InitFailedErrorMessage)
		return nil, errors.New(InitFailedErrorMessage)
	}
	srv.server = server

	return srv, nil
}

// Start blocks until the server stops.
func (s *HttpServer) Start() {
	defer s.cancel()

	s.isServerAlive.Store(true)
	defer s.isServerAlive.Store(false)

	s.server.ListenAndServe()
}

// IsAlive returns true if the server is marked as alive.
func (s *HttpServer) IsAlive() bool {
	return s.isServerAlive.Load()
}

func (s *HttpServer) controllers(handler dispatcher.Handler, probe liveness.Prober) []controller.HttpController {
	controllers := []controller.HttpController{
		liveness.NewController(probe),
		api.NewAggregateController(s.ctx, s.cfg, handler),
	}
	if s.cfg.IsPrometheusMetricsEnabled() {
		controllers = append(controllers, prometheuscontroller.NewPrometheusMetrics(s.metrics.Registry()))
	}
	return controllers
}

// middlewares are executed in declared order.
func (s *HttpServer) middlewares() []middleware.HttpMiddleware {
	middlewares := []middleware.HttpMiddleware{
		/** exec 1st. */ middleware.NewRequestIdMiddleware(),
		/** exec 2nd. */ middleware.NewApplicationJsonMiddleware(),
		/** exec 3rd. */ middleware.NewWatermarkMiddleware(s.cfg),
		/** exec 4th. */ middleware.NewDuration(),
	}
	if s.cfg.IsPrometheusMetricsEnabled() {
		middlewares = append(middlewares, prometheusrequestmiddleware.NewPrometheusMetrics(s.metrics))
	}
	return middlewares
}
