package coordination

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore 以内存方式保存协调记录，主要用于测试与单机运行。
type MemoryStore struct {
	mu          sync.RWMutex
	intents     map[common.Hash]*IntentRecord
	acceptances map[common.Hash]map[common.Address]AcceptanceAttestation
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents:     make(map[common.Hash]*IntentRecord),
		acceptances: make(map[common.Hash]map[common.Address]AcceptanceAttestation),
	}
}

// PutIntent 实现 Store 接口。intent 记录后不可覆盖。
func (m *MemoryStore) PutIntent(_ context.Context, rec *IntentRecord) error {
	if rec == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "intent 记录不能为空")
	}
	if rec.IntentHash == (common.Hash{}) {
		return xerrors.New(xerrors.CodeInvalidArgument, "intentHash 不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[rec.IntentHash]; ok {
		return ErrIntentExists
	}
	now := time.Now().Unix()
	clone := cloneIntentRecord(rec)
	if clone.CreatedAt == 0 {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	m.intents[rec.IntentHash] = clone
	return nil
}

// GetIntent 返回 intent 记录。
func (m *MemoryStore) GetIntent(_ context.Context, hash common.Hash) (*IntentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.intents[hash]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return cloneIntentRecord(rec), nil
}

// ListIntents 按更新时间倒序返回最近的 intent 记录。
func (m *MemoryStore) ListIntents(_ context.Context, limit int) ([]*IntentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	results := make([]*IntentRecord, 0, len(m.intents))
	for _, rec := range m.intents {
		results = append(results, cloneIntentRecord(rec))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].UpdatedAt == results[j].UpdatedAt {
			return results[i].IntentHash.Hex() < results[j].IntentHash.Hex()
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// PutAcceptance 记录一个参与方的接受证明，重复提交视为冲突。
func (m *MemoryStore) PutAcceptance(_ context.Context, att AcceptanceAttestation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[att.IntentHash]; !ok {
		return ErrIntentNotFound
	}
	byParticipant, ok := m.acceptances[att.IntentHash]
	if !ok {
		byParticipant = make(map[common.Address]AcceptanceAttestation)
		m.acceptances[att.IntentHash] = byParticipant
	}
	if _, ok := byParticipant[att.Participant]; ok {
		return ErrAcceptanceExists
	}
	byParticipant[att.Participant] = cloneAttestation(att)
	if rec, ok := m.intents[att.IntentHash]; ok {
		rec.UpdatedAt = time.Now().Unix()
	}
	return nil
}

// ListAcceptances 返回某个 intent 收到的全部接受证明，按参与方地址升序。
func (m *MemoryStore) ListAcceptances(_ context.Context, intentHash common.Hash) ([]AcceptanceAttestation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.intents[intentHash]; !ok {
		return nil, ErrIntentNotFound
	}
	byParticipant := m.acceptances[intentHash]
	participants := make([]common.Address, 0, len(byParticipant))
	for p := range byParticipant {
		participants = append(participants, p)
	}
	participants = Canonicalize(participants)

	out := make([]AcceptanceAttestation, 0, len(participants))
	for _, p := range participants {
		out = append(out, cloneAttestation(byParticipant[p]))
	}
	return out, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneIntentRecord(rec *IntentRecord) *IntentRecord {
	clone := *rec
	clone.Intent.Participants = append([]common.Address{}, rec.Intent.Participants...)
	if rec.Intent.CoordinationValue != nil {
		clone.Intent.CoordinationValue = new(big.Int).Set(rec.Intent.CoordinationValue)
	}
	if rec.Payload.Timestamp != nil {
		clone.Payload.Timestamp = new(big.Int).Set(rec.Payload.Timestamp)
	}
	clone.Payload.CoordinationData = append([]byte{}, rec.Payload.CoordinationData...)
	clone.Payload.Metadata = append([]byte{}, rec.Payload.Metadata...)
	clone.Signature = append([]byte{}, rec.Signature...)
	return &clone
}

func cloneAttestation(att AcceptanceAttestation) AcceptanceAttestation {
	clone := att
	clone.Signature = append([]byte{}, att.Signature...)
	return clone
}

var _ Store = (*MemoryStore)(nil)
