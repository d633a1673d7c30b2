// Package shutdown waits for an interrupt, cancels the application context and gives
// the registered components a bounded time to finish.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultGracefulTimeout = 10 * time.Second

var ErrTimeout = errors.New("graceful shutdown timed out")

// Gracefuller is handed to components which must report their completion.
type Gracefuller interface {
	Add(n int)
	Done()
}

type Graceful struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewGraceful(ctx context.Context, cancel context.CancelFunc) *Graceful {
	return &Graceful{ctx: ctx, cancel: cancel, timeout: defaultGracefulTimeout}
}

func (g *Graceful) SetGracefulTimeout(timeout time.Duration) {
	if timeout > 0 {
		g.timeout = timeout
	}
}

func (g *Graceful) Add(n int) {
	g.wg.Add(n)
}

func (g *Graceful) Done() {
	g.wg.Done()
}

// ListenCancelAndAwait blocks until SIGINT/SIGTERM arrives or the context is done,
// then cancels the context and waits for every registered component.
func (g *Graceful) ListenCancelAndAwait() error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		log.Info().Msgf("[shutdown] %s received", sig)
	case <-g.ctx.Done():
	}
	g.cancel()

	return g.await()
}

func (g *Graceful) await() error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.wg.Wait()
	}()

	select {
	case <-done:
		log.Info().Msg("[shutdown] all components have been stopped")
		return nil
	case <-time.After(g.timeout):
		return ErrTimeout
	}
}
