package notify

import (
	"context"
	"sync"

	xerrors "AgentPact-Chain/internal/errors"
)

// MemoryQueue 使用 channel 模拟通知队列，主要用于测试与单机运行。
// ch 永不关闭，关闭通过 done 广播，在途的 Publish 不会撞上已关闭的
// channel。
type MemoryQueue struct {
	ch        chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

// Publish 将通知投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, intentHash string) error {
	select {
	case <-q.done:
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	case q.ch <- intentHash:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列中的通知。队列关闭后返回
// nil，上下文取消后返回取消原因。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case intentHash := <-q.ch:
					_ = handler(ctx, intentHash)
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case <-q.done:
		wg.Wait()
		return nil
	}
}

// Close 关闭内存队列，重复关闭是安全的。
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
