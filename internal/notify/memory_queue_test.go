package notify

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueueDeliversNotifications(t *testing.T) {
	queue := NewMemoryQueue(8)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	received := make(map[string]struct{})
	done := make(chan struct{})

	go func() {
		_ = queue.Consume(ctx, 2, func(_ context.Context, intentHash string) error {
			mu.Lock()
			received[intentHash] = struct{}{}
			if len(received) == 3 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	for _, hash := range []string{"0x01", "0x02", "0x03"} {
		if err := queue.Publish(ctx, hash); err != nil {
			t.Fatalf("publish %s: %v", hash, err)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifications were not delivered in time")
	}
}

func TestMemoryQueueConsumeStopsOnCancel(t *testing.T) {
	queue := NewMemoryQueue(1)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := queue.Consume(ctx, 1, func(context.Context, string) error { return nil })
	if !stdErrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryQueueConsumeStopsOnClose(t *testing.T) {
	queue := NewMemoryQueue(1)

	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(context.Background(), 2, func(context.Context, string) error { return nil })
	}()

	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consume did not stop after close")
	}
}

func TestMemoryQueueCloseDuringPublish(t *testing.T) {
	queue := NewMemoryQueue(1)

	// 关闭与满缓冲区上阻塞的发布并发进行，发布方必须拿到错误而不是
	// 崩溃。
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := queue.Publish(context.Background(), "0xaa"); err != nil {
					return
				}
			}
		}()
	}

	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	if err := queue.Publish(context.Background(), "0xbb"); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), "0x01"); err == nil {
		t.Fatal("expected error after close")
	}
}
