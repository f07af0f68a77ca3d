//go:build !integration

package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	logger := zerolog.Nop()
	p := NewPool(2, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	var mu sync.Mutex
	done := make(chan struct{})
	ran := 0
	for i := 0; i < 5; i++ {
		err := p.Submit(func(ctx context.Context) error {
			mu.Lock()
			ran++
			if ran == 5 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}
}

func TestPoolRejectsNilTask(t *testing.T) {
	logger := zerolog.Nop()
	p := NewPool(1, &logger)
	if err := p.Submit(nil); err == nil {
		t.Fatal("expected error for nil task")
	}
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	logger := zerolog.Nop()
	p := NewPool(1, &logger)
	// not started: the buffered queue fills and Submit must refuse rather
	// than block the producer
	blocked := func(ctx context.Context) error { return nil }
	var refused bool
	for i := 0; i < 100; i++ {
		if err := p.Submit(blocked); err != nil {
			refused = true
			break
		}
	}
	if !refused {
		t.Fatal("expected saturation refusal")
	}
}
