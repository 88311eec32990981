package agent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"AgentPact-Chain/internal/coordination"
	xerrors "AgentPact-Chain/internal/errors"
	"AgentPact-Chain/internal/notify"
	"AgentPact-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Responder 消费提案通知并以本方身份自动接受合规的 intent。
// 每个参与方进程跑一个 Responder；不相关的提案直接跳过。
type Responder struct {
	coordinator *Coordinator
	consumer    notify.Consumer
	workerCount int
	logger      *slog.Logger
}

// ResponderOption 定义可选配置。
type ResponderOption func(*Responder)

// WithResponderWorkers 设置消费协程数量。
func WithResponderWorkers(workers int) ResponderOption {
	return func(r *Responder) {
		if workers > 0 {
			r.workerCount = workers
		}
	}
}

// WithResponderLogger 指定日志输出。
func WithResponderLogger(l *slog.Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = l
	}
}

// NewResponder 构造 Responder。
func NewResponder(coordinator *Coordinator, consumer notify.Consumer, opts ...ResponderOption) *Responder {
	r := &Responder{coordinator: coordinator, consumer: consumer, workerCount: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Responder) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return logger.L()
}

// Run 启动消费循环，直到上下文取消。
func (r *Responder) Run(ctx context.Context) error {
	if r.consumer == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "未配置通知消费者")
	}
	return r.consumer.Consume(ctx, r.workerCount, r.handle)
}

func (r *Responder) handle(ctx context.Context, rawHash string) error {
	rawHash = strings.TrimSpace(rawHash)
	if len(rawHash) != 2+2*common.HashLength || !strings.HasPrefix(rawHash, "0x") {
		r.log().Warn("忽略格式非法的提案通知", slog.String("payload", rawHash))
		return nil
	}
	intentHash := common.HexToHash(rawHash)

	rec, err := r.coordinator.Intent(ctx, intentHash)
	if err != nil {
		if stdErrors.Is(err, coordination.ErrIntentNotFound) {
			r.log().Debug("跳过未知 intent", slog.String("intent_hash", rawHash))
			return nil
		}
		return err
	}

	self := r.coordinator.signer.Address()
	if self == rec.Intent.AgentID {
		// 发起方不对自己的提案出具接受证明。
		return nil
	}
	if !coordination.IsParticipant(self, rec.Intent.Participants) {
		return nil
	}

	_, err = r.coordinator.Accept(ctx, intentHash, coordination.AttestationOptions{
		ConditionsHash: rec.Payload.ConditionsHash,
	})
	switch {
	case err == nil:
		return nil
	case stdErrors.Is(err, coordination.ErrAcceptanceExists):
		return nil
	case xerrors.CodeOf(err) == xerrors.CodeAlreadyExpired:
		r.log().Debug("跳过已过期 intent", slog.String("intent_hash", rawHash))
		return nil
	default:
		r.log().Error("自动接受失败", slog.Any("error", err), slog.String("intent_hash", rawHash))
		return err
	}
}
