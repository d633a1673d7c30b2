package liveness

import (
	"context"
	"sync"
	"time"
)

const defaultTimeout = 5 * time.Second

// Service is anything able to report whether it is still alive.
type Service interface {
	IsAlive(ctx context.Context) bool
}

type Prober interface {
	Watch(services ...Service)
	IsAlive() bool
}

// Probe asks every watched service in parallel, each one within the timeout.
type Probe struct {
	timeout  time.Duration
	mu       sync.RWMutex
	services []Service
}

func NewProbe(timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Probe{timeout: timeout}
}

func (p *Probe) Watch(services ...Service) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services = append(p.services, services...)
}

// IsAlive is false when any service says so or does not answer in time.
func (p *Probe) IsAlive() bool {
	p.mu.RLock()
	services := p.services
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	answers := make(chan bool, len(services))
	for _, service := range services {
		go func() { answers <- service.IsAlive(ctx) }()
	}

	for range services {
		select {
		case alive := <-answers:
			if !alive {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
	return true
}
