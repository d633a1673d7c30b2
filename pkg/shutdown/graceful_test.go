package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAwaitsRegisteredComponents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGraceful(ctx, cancel)

	g.Add(1)
	go func() {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		g.Done()
	}()

	cancel()
	if err := g.ListenCancelAndAwait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimesOutOnStuckComponent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGraceful(ctx, cancel)
	g.SetGracefulTimeout(20 * time.Millisecond)
	g.Add(1)

	cancel()
	if err := g.ListenCancelAndAwait(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
