package coordination

import (
	"context"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// IntentRecord 是本地镜像中保存的 intent 条目。镜像只为状态推导与
// 查询服务，权威状态始终在链上。
type IntentRecord struct {
	IntentHash common.Hash         `json:"intent_hash"`
	Intent     AgentIntent         `json:"intent"`
	Payload    CoordinationPayload `json:"payload"`
	Signature  []byte              `json:"signature,omitempty"`
	CreatedAt  int64               `json:"created_at"`
	UpdatedAt  int64               `json:"updated_at"`
}

var (
	// ErrIntentNotFound 表示指定的 intent 不存在。
	ErrIntentNotFound = xerrors.New(xerrors.CodeNotFound, "intent not found")
	// ErrIntentExists 表示 intent 已被记录，记录后不可变更。
	ErrIntentExists = xerrors.New(xerrors.CodeConflict, "intent already recorded")
	// ErrAcceptanceExists 表示同一参与方对同一 intent 的重复接受。
	ErrAcceptanceExists = xerrors.New(xerrors.CodeConflict, "acceptance already recorded")
)

// Store 抽象 intent 与接受证明的本地持久化。
type Store interface {
	PutIntent(ctx context.Context, rec *IntentRecord) error
	GetIntent(ctx context.Context, hash common.Hash) (*IntentRecord, error)
	ListIntents(ctx context.Context, limit int) ([]*IntentRecord, error)
	PutAcceptance(ctx context.Context, att AcceptanceAttestation) error
	ListAcceptances(ctx context.Context, intentHash common.Hash) ([]AcceptanceAttestation, error)
	Close() error
}
