// Package notify 负责把新提交的 intent 广播给参与方的响应器，
// 驱动各方自动完成接受流程。队列中只传递 intentHash，记录本体
// 由消费方自行从镜像存储读取。
package notify

import "context"

// Handler 处理来自队列的 intentHash（0x 前缀十六进制）。
type Handler func(ctx context.Context, intentHash string) error

// Producer 负责向队列投递提案通知。
type Producer interface {
	Publish(ctx context.Context, intentHash string) error
	Close() error
}

// Consumer 负责从队列消费提案通知。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
