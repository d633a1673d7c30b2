package liveness

import (
	"context"
	"testing"
	"time"
)

type service func(ctx context.Context) bool

func (s service) IsAlive(ctx context.Context) bool { return s(ctx) }

func TestIsAliveReportsWatchedServices(t *testing.T) {
	alive := service(func(context.Context) bool { return true })
	dead := service(func(context.Context) bool { return false })
	stuck := service(func(context.Context) bool {
		time.Sleep(200 * time.Millisecond)
		return true
	})

	tests := []struct {
		name     string
		services []Service
		want     bool
	}{
		{"nothing watched", nil, true},
		{"all alive", []Service{alive, alive}, true},
		{"one dead", []Service{alive, dead}, false},
		{"one stuck", []Service{alive, stuck}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProbe(20 * time.Millisecond)
			p.Watch(tt.services...)
			if got := p.IsAlive(); got != tt.want {
				t.Fatalf("IsAlive() = %v, want %v", got, tt.want)
			}
		})
	}
}
