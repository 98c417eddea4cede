package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEmptySpecRunsOnce(t *testing.T) {
	var runs int32
	s, err := New("", func(context.Context) { atomic.AddInt32(&runs, 1) })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestInvalidSpec(t *testing.T) {
	if _, err := New("every now and then", func(context.Context) {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestScheduledRunsUntilCancelled(t *testing.T) {
	var runs int32
	s, err := New("@every 1s", func(context.Context) { atomic.AddInt32(&runs, 1) })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := atomic.LoadInt32(&runs); n < 1 {
		t.Fatalf("runs = %d, want at least 1", n)
	}
}
