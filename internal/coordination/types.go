package coordination

import (
	"math/big"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// AgentIntent 描述一次待协调的行动承诺。结构哈希计算之后即视为不可变，
// 并以该哈希（intentHash）作为全局标识。
type AgentIntent struct {
	PayloadHash       common.Hash      `json:"payload_hash"`
	Expiry            uint64           `json:"expiry"`
	Nonce             uint64           `json:"nonce"`
	AgentID           common.Address   `json:"agent_id"`
	CoordinationType  common.Hash      `json:"coordination_type"`
	CoordinationValue *big.Int         `json:"coordination_value"`
	Participants      []common.Address `json:"participants"`
}

// CoordinationPayload 承载不被核心解释的应用数据，核心只负责对其哈希。
type CoordinationPayload struct {
	Version          common.Hash `json:"version"`
	CoordinationType common.Hash `json:"coordination_type"`
	CoordinationData []byte      `json:"coordination_data"`
	ConditionsHash   common.Hash `json:"conditions_hash"`
	Timestamp        *big.Int    `json:"timestamp"`
	Metadata         []byte      `json:"metadata,omitempty"`
}

// AcceptanceAttestation 表示单个参与方对某个 intent 的签名接受，
// 以 (intentHash, participant) 作为唯一键。
type AcceptanceAttestation struct {
	IntentHash     common.Hash    `json:"intent_hash"`
	Participant    common.Address `json:"participant"`
	Nonce          uint64         `json:"nonce"`
	Expiry         uint64         `json:"expiry"`
	ConditionsHash common.Hash    `json:"conditions_hash"`
	Signature      []byte         `json:"signature,omitempty"`
}

// Status 是协调生命周期的封闭枚举。链上合约使用的数字编码
// 仅在序列化边界出现，见 StatusFromCode 与 ContractCode。
type Status uint8

const (
	StatusNone Status = iota
	StatusProposed
	StatusReady
	StatusExecuted
	StatusCancelled
	StatusExpired
)

var statusNames = map[Status]string{
	StatusNone:      "none",
	StatusProposed:  "proposed",
	StatusReady:     "ready",
	StatusExecuted:  "executed",
	StatusCancelled: "cancelled",
	StatusExpired:   "expired",
}

// String 实现 fmt.Stringer。
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal 判断状态是否为终态。终态没有任何出边。
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// ContractCode 返回链上合约使用的数字编码。
func (s Status) ContractCode() uint8 {
	return uint8(s)
}

// StatusFromCode 将合约返回的数字编码解析为状态枚举。
func StatusFromCode(code uint8) (Status, error) {
	s := Status(code)
	if _, ok := statusNames[s]; !ok {
		return StatusNone, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的状态编码: %d", code)
	}
	return s, nil
}

// CoordinationStatus 是查询时刻推导出来的生命周期视图，核心不持久化它。
type CoordinationStatus struct {
	Status       Status           `json:"status"`
	Proposer     common.Address   `json:"proposer"`
	Participants []common.Address `json:"participants"`
	AcceptedBy   []common.Address `json:"accepted_by"`
	Expiry       uint64           `json:"expiry"`
}
