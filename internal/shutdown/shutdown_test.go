package shutdown_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"vibetodo/internal/shutdown"
)

func TestShutdownCancelsContextAndRunsCleanup(t *testing.T) {
	mgr := shutdown.NewManager()

	var cleanupCalled atomic.Bool
	mgr.RegisterCleanup("test-cleanup", func(ctx context.Context) error {
		cleanupCalled.Store(true)
		return nil
	})

	if mgr.IsShutdown() {
		t.Fatal("new manager should not be shut down")
	}
	mgr.Shutdown()

	select {
	case <-mgr.Context().Done():
	default:
		t.Fatal("context should be cancelled after Shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if !cleanupCalled.Load() || !mgr.IsShutdown() {
		t.Error("expected cleanup to run and IsShutdown to be true")
	}
}

func TestShutdownOrder(t *testing.T) {
	mgr := shutdown.NewManager()

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		mgr.RegisterCleanup(name, func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	mgr.Shutdown()
	_ = mgr.Wait(context.Background())

	want := []string{"third", "second", "first"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("cleanup order = %v, want %v", order, want)
		}
	}
}

func TestCleanupErrorDoesNotStopOthers(t *testing.T) {
	mgr := shutdown.NewManager()

	var ran atomic.Int32
	mgr.RegisterCleanup("ok", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	mgr.RegisterCleanup("broken", func(ctx context.Context) error {
		ran.Add(1)
		return errors.New("boom")
	})

	mgr.Shutdown()
	_ = mgr.Wait(context.Background())
	if ran.Load() != 2 {
		t.Errorf("ran %d cleanups, want 2", ran.Load())
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := shutdown.NewManager()
	mgr.RegisterCleanup("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return nil
	})

	mgr.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := mgr.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want deadline exceeded", err)
	}
}

func TestShutdownConcurrentSafety(t *testing.T) {
	mgr := shutdown.NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Shutdown()
		}()
	}
	wg.Wait()

	if !mgr.IsShutdown() {
		t.Error("expected shutdown")
	}
}

func TestHandleSignals(t *testing.T) {
	mgr := shutdown.NewManager()
	mgr.HandleSignals(syscall.SIGUSR1)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-mgr.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not start shutdown")
	}
	if mgr.Signal() != syscall.SIGUSR1 {
		t.Errorf("Signal() = %v", mgr.Signal())
	}
}
