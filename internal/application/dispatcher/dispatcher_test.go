package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/office-requisition/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func newCreated() *event.Event {
	return event.NewEvent(event.TypeRequisitionCreated, 1, nil)
}

func noop(ctx context.Context, evt *event.Event) error { return nil }

func TestSubscribe(t *testing.T) {
	t.Run("subscribes multiple handlers to same event type", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		if err := d.Dispatch(context.Background(), newCreated()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !called1 || !called2 {
			t.Error("expected both handlers to be called")
		}

		handlers := d.ListHandlers(event.TypeRequisitionCreated)
		if len(handlers) != 2 || handlers[0].Name == handlers[1].Name {
			t.Errorf("expected 2 distinctly named handlers, got %+v", handlers)
		}
	})

	t.Run("logs named registration", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.SubscribeNamed(event.TypeRequisitionCreated, "notifier", noop)

		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})
}

func TestSubscribeMany(t *testing.T) {
	d := NewDispatcher()
	var seen []event.Type

	d.SubscribeMany([]event.Type{event.TypeRequisitionApproved, event.TypeRequisitionRejected}, "audit",
		func(ctx context.Context, evt *event.Event) error {
			seen = append(seen, evt.Type)
			return nil
		})

	_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeRequisitionApproved, 1, nil))
	_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeRequisitionRejected, 1, nil))
	_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeRequisitionCreated, 1, nil))

	if len(seen) != 2 || seen[0] != event.TypeRequisitionApproved || seen[1] != event.TypeRequisitionRejected {
		t.Errorf("seen = %v", seen)
	}
	if got := d.ListHandlers(event.TypeRequisitionRejected); len(got) != 1 || got[0].Name != "audit" {
		t.Errorf("ListHandlers() = %+v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	called1, called2 := false, false

	d.SubscribeNamed(event.TypeRequisitionCreated, "handler-1", func(ctx context.Context, evt *event.Event) error {
		called1 = true
		return nil
	})
	d.SubscribeNamed(event.TypeRequisitionCreated, "handler-2", func(ctx context.Context, evt *event.Event) error {
		called2 = true
		return nil
	})

	d.Unsubscribe(event.TypeRequisitionCreated, "handler-1")

	if err := d.Dispatch(context.Background(), newCreated()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if called1 {
		t.Error("expected handler-1 not to be called")
	}
	if !called2 {
		t.Error("expected handler-2 to be called")
	}
}

func TestDispatch(t *testing.T) {
	t.Run("runs handlers in registration order", func(t *testing.T) {
		d := NewDispatcher()
		var order []int

		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			order = append(order, 1)
			return nil
		})
		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			order = append(order, 2)
			return nil
		})

		if err := d.Dispatch(context.Background(), newCreated()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("expected handlers to run in order [1, 2], got %v", order)
		}
	})

	t.Run("keeps going after an error and joins errors", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("lark unavailable")
		called := false

		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), newCreated())
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error to wrap %v, got %v", expectedErr, err)
		}
		if !called {
			t.Error("expected second handler to run after first error")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			panic("test panic")
		})

		if err := d.Dispatch(context.Background(), newCreated()); err == nil {
			t.Fatal("expected error from panic recovery")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged as error")
		}
	})

	t.Run("returns ErrClosed when dispatcher is closed", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if err := d.Dispatch(context.Background(), newCreated()); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("handlers outlive the caller's context", func(t *testing.T) {
		d := NewDispatcher()
		var ctxErr atomic.Value
		release := make(chan struct{})

		d.Subscribe(event.TypeRequisitionApproved, func(ctx context.Context, evt *event.Event) error {
			<-release
			if err := ctx.Err(); err != nil {
				ctxErr.Store(err)
			}
			if event.CorrelationIDFrom(ctx) != "req-1" {
				return fmt.Errorf("correlation id lost")
			}
			return nil
		})

		ctx, cancel := context.WithCancel(event.WithCorrelationID(context.Background(), "req-1"))
		d.DispatchAsync(ctx, event.NewEvent(event.TypeRequisitionApproved, 1, nil))
		cancel()
		close(release)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if v := ctxErr.Load(); v != nil {
			t.Errorf("handler saw cancelled context: %v", v)
		}
	})

	t.Run("does not block on handler errors", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), newCreated())

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if called.Load() != 1 {
			t.Errorf("expected second handler to be called, got %d calls", called.Load())
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error to be logged")
		}
	})

	t.Run("does not dispatch when dispatcher is closed", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		d.DispatchAsync(context.Background(), newCreated())
		time.Sleep(20 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected handler not to be called after close")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error log for dispatching to closed dispatcher")
		}
	})
}

func TestListHandlers(t *testing.T) {
	d := NewDispatcher()

	if got := d.ListHandlers(event.TypeRequisitionCreated); len(got) != 0 {
		t.Errorf("expected 0 handlers, got %d", len(got))
	}

	d.SubscribeNamed(event.TypeRequisitionCreated, "notifier", noop)

	handlers := d.ListHandlers(event.TypeRequisitionCreated)
	if len(handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(handlers))
	}
	if handlers[0].Name != "notifier" || handlers[0].EventType != event.TypeRequisitionCreated {
		t.Errorf("unexpected handler info %+v", handlers[0])
	}
	if handlers[0].Handler != nil {
		t.Error("expected handler function not to be exposed")
	}
}

func TestClose(t *testing.T) {
	t.Run("waits for async handlers to complete", func(t *testing.T) {
		d := NewDispatcher()
		var completed atomic.Bool

		d.Subscribe(event.TypeRequisitionCreated, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(30 * time.Millisecond)
			completed.Store(true)
			return nil
		})

		d.DispatchAsync(context.Background(), newCreated())

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !completed.Load() {
			t.Error("expected async handler to complete before Close returns")
		}
	})

	t.Run("returns error on double close", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}
		if err := d.Close(); err == nil {
			t.Fatal("expected error on second close")
		}
	})
}

func TestConcurrency(t *testing.T) {
	d := NewDispatcher()
	var called atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeRequisitionCreated, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
				called.Add(1)
				return nil
			})
		}(i)
	}
	wg.Wait()

	if handlers := d.ListHandlers(event.TypeRequisitionCreated); len(handlers) != 10 {
		t.Fatalf("expected 10 handlers, got %d", len(handlers))
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), newCreated())
		}()
	}
	wg.Wait()

	if called.Load() != 100 {
		t.Errorf("expected 100 handler calls, got %d", called.Load())
	}
}
