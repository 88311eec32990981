package coordination

import (
	"context"
	"time"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// DeriveStatus 在查询时刻从累计状态推导生命周期视图。
// 核心不持有这份状态，它只是对外部账本汇报内容的解释：
// 全部参与方均给出有效且未过期的接受证明时进入 Ready；
// 任何非终态在过期时间之后一律汇报为 Expired。
func DeriveStatus(intent AgentIntent, acceptances []AcceptanceAttestation, now uint64) CoordinationStatus {
	st := CoordinationStatus{
		Status:       StatusProposed,
		Proposer:     intent.AgentID,
		Participants: intent.Participants,
		Expiry:       intent.Expiry,
	}

	intentHash := IntentStructHash(intent)
	accepted := make([]common.Address, 0, len(acceptances))
	for _, att := range acceptances {
		if att.IntentHash != intentHash {
			continue
		}
		if att.Expiry <= now {
			continue
		}
		if len(att.Signature) == 0 {
			continue
		}
		if !IsParticipant(att.Participant, intent.Participants) {
			continue
		}
		if IsParticipant(att.Participant, accepted) {
			continue
		}
		accepted = append(accepted, att.Participant)
	}
	st.AcceptedBy = Canonicalize(accepted)

	if len(st.AcceptedBy) == len(intent.Participants) {
		st.Status = StatusReady
	}
	if intent.Expiry <= now {
		st.Status = StatusExpired
	}
	return st
}

// ValidTransition 判断一次状态迁移是否符合生命周期规则。
// 状态单调：不会回到 Proposed，Ready 只能从 Proposed 到达，终态无出边。
func ValidTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusProposed:
		return from == StatusNone
	case StatusReady:
		return from == StatusProposed
	case StatusExecuted:
		return from == StatusReady
	case StatusCancelled:
		return from == StatusProposed || from == StatusReady
	case StatusExpired:
		return from == StatusProposed || from == StatusReady
	}
	return false
}

// CanCancel 判断 caller 此刻能否请求取消：过期前仅发起方可取消，
// 过期后任何一方均可。
func CanCancel(st CoordinationStatus, caller common.Address, now uint64) bool {
	if st.Status != StatusProposed && st.Status != StatusReady {
		return false
	}
	if now < st.Expiry {
		return caller == st.Proposer
	}
	return true
}

// StatusPoller 读取一次当前状态。通常由 web3 客户端或本地镜像实现。
type StatusPoller func(ctx context.Context) (CoordinationStatus, error)

// WaitForReady 以固定间隔轮询状态直到 Ready。这是核心中唯一的挂起点：
// 每次轮询与每次休眠前都检查取消；观察到终态而非 Ready 时立即返回
// STATUS_TERMINAL_NOT_READY 而不是继续重试；超过截止时间返回 TIMEOUT。
func WaitForReady(ctx context.Context, poll StatusPoller, interval, timeout time.Duration) (CoordinationStatus, error) {
	if interval <= 0 {
		return CoordinationStatus{}, xerrors.New(xerrors.CodeInvalidArgument, "轮询间隔必须为正")
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return CoordinationStatus{}, err
		}

		st, err := poll(ctx)
		if err != nil {
			return CoordinationStatus{}, err
		}
		switch st.Status {
		case StatusReady:
			return st, nil
		case StatusNone, StatusProposed:
			// 尚未就绪，继续等待。
		default:
			return st, xerrors.Newf(xerrors.CodeStatusTerminal, "观察到终态 %s", st.Status)
		}

		if time.Now().Add(interval).After(deadline) {
			return st, xerrors.New(xerrors.CodeTimeout, "等待 Ready 超时")
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return CoordinationStatus{}, ctx.Err()
		case <-timer.C:
		}
	}
}
