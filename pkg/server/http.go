package httpserver

import (
	"context"
	"errors"
	"sync"

	"github.com/Borislavv/sports-data-aggregator/pkg/server/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/server/controller"
	"github.com/Borislavv/sports-data-aggregator/pkg/server/middleware"
	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

type HTTP struct {
	ctx    context.Context
	server *fasthttp.Server
	config fasthttpconfig.Configurator
}

func New(
	ctx context.Context,
	config fasthttpconfig.Configurator,
	controllers []controller.HttpController,
	middlewares []middleware.HttpMiddleware,
) (*HTTP, error) {
	if config.GetHttpServerPort() == "" {
		return nil, errors.New("http server port is not configured")
	}
	s := &HTTP{ctx: ctx, config: config}
	s.initServer(s.buildRouter(controllers), middlewares)
	return s, nil
}

// ListenAndServe blocks until the server stops, either by failure or by context cancellation.
func (s *HTTP) ListenAndServe() {
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	wg.Add(1)
	go s.serve(wg)

	wg.Add(1)
	go s.shutdown(wg)
}

// Handler is the router wrapped into the middlewares.
func (s *HTTP) Handler() fasthttp.RequestHandler {
	return s.server.Handler
}

func (s *HTTP) serve(wg *sync.WaitGroup) {
	defer wg.Done()

	name := s.config.GetHttpServerName()
	port := s.config.GetHttpServerPort()

	log.Info().Msgf("[fasthttp] %v was started (port: %v)", name, port)
	defer log.Info().Msgf("[fasthttp] %v was stopped (port: %v)", name, port)

	if err := s.server.ListenAndServe(port); err != nil {
		log.Err(err).Msgf("[fasthttp] %v failed to listen and serve port %v: %v", name, port, err.Error())
	}
}

func (s *HTTP) shutdown(wg *sync.WaitGroup) {
	defer wg.Done()

	<-s.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.GetHttpServerShutDownTimeout())
	defer cancel()

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Msgf("[fasthttp] %v shutdown failed: %v", s.config.GetHttpServerName(), err.Error())
		}
		return
	}
}

func (s *HTTP) buildRouter(controllers []controller.HttpController) *router.Router {
	r := router.New()
	for _, contr := range controllers {
		contr.AddRoute(r)
	}
	return r
}

func (s *HTTP) mergeMiddlewares(
	handler fasthttp.RequestHandler,
	middlewares []middleware.HttpMiddleware,
) fasthttp.RequestHandler {
	// the first middleware must be the outermost one,
	// so the handler is wrapped starting from the end of slice
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Middleware(handler)
	}
	return handler
}

func (s *HTTP) initServer(r *router.Router, middlewares []middleware.HttpMiddleware) {
	s.server = &fasthttp.Server{
		Name:         s.config.GetHttpServerName(),
		Handler:      s.mergeMiddlewares(r.Handler, middlewares),
		ReadTimeout:  s.config.GetHttpServerRequestTimeout(),
		WriteTimeout: s.config.GetHttpServerRequestTimeout(),
	}
}
