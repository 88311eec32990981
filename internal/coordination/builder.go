package coordination

import (
	"math/big"
	"time"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultTTL 是 intent 与 attestation 未指定过期时间时使用的默认存活时长。
const DefaultTTL = 3600 * time.Second

// CoordinationType 是 coordinationType 字段的输入形式：要么直接给出
// 32 字节哈希，要么给出可读标签，由构造器在边界处一次性解析。
type CoordinationType struct {
	hash    common.Hash
	label   string
	isLabel bool
}

// TypeFromHash 以原始哈希构造 CoordinationType。
func TypeFromHash(h common.Hash) CoordinationType {
	return CoordinationType{hash: h}
}

// TypeFromLabel 以可读标签构造 CoordinationType。
func TypeFromLabel(label string) CoordinationType {
	return CoordinationType{label: label, isLabel: true}
}

// Resolve 将输入形式归约为单个哈希。
func (t CoordinationType) Resolve() common.Hash {
	if t.isLabel {
		return CoordinationTypeFromLabel(t.label)
	}
	return t.hash
}

// IntentOptions 汇总调用方构造 intent 所需的输入。
type IntentOptions struct {
	AgentID          common.Address
	Participants     []common.Address
	Type             CoordinationType
	Value            *big.Int
	Expiry           uint64        // 0 表示按 TTL 推导
	TTL              time.Duration // 0 表示 DefaultTTL
	PayloadVersion   common.Hash
	CoordinationData []byte
	ConditionsHash   common.Hash
	Metadata         []byte
}

// BuildIntent 从调用方输入组装一个规范的 intent 与其负载。
// 发起方若不在参与方集合中会被补入；参与方集合随后归一化；
// nonce 取链上当前值加一，不信任调用方自带的 nonce。
func BuildIntent(opts IntentOptions, currentNonce uint64) (AgentIntent, CoordinationPayload, error) {
	if opts.AgentID == (common.Address{}) {
		return AgentIntent{}, CoordinationPayload{}, xerrors.New(xerrors.CodeInvalidArgument, "必须指定发起方地址")
	}

	participants := opts.Participants
	if !IsParticipant(opts.AgentID, participants) {
		participants = append(append([]common.Address{}, participants...), opts.AgentID)
	}
	participants = Canonicalize(participants)

	expiry := opts.Expiry
	if expiry == 0 {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		expiry = uint64(time.Now().Add(ttl).Unix())
	}

	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	coordType := opts.Type.Resolve()
	payload := CoordinationPayload{
		Version:          opts.PayloadVersion,
		CoordinationType: coordType,
		CoordinationData: opts.CoordinationData,
		ConditionsHash:   opts.ConditionsHash,
		Timestamp:        big.NewInt(time.Now().Unix()),
		Metadata:         opts.Metadata,
	}

	intent := AgentIntent{
		PayloadHash:       PayloadHash(payload),
		Expiry:            expiry,
		Nonce:             currentNonce + 1,
		AgentID:           opts.AgentID,
		CoordinationType:  coordType,
		CoordinationValue: value,
		Participants:      participants,
	}

	if err := ValidateIntent(intent); err != nil {
		return AgentIntent{}, CoordinationPayload{}, err
	}
	return intent, payload, nil
}

// AttestationOptions 汇总构造接受证明所需的输入。
type AttestationOptions struct {
	IntentHash     common.Hash
	Participant    common.Address
	Nonce          uint64 // 未指定时保持 0
	Expiry         uint64
	TTL            time.Duration
	ConditionsHash common.Hash // 未指定时保持零哈希
}

// BuildAttestation 组装一个尚未签名的接受证明。
func BuildAttestation(opts AttestationOptions) AcceptanceAttestation {
	expiry := opts.Expiry
	if expiry == 0 {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		expiry = uint64(time.Now().Add(ttl).Unix())
	}
	return AcceptanceAttestation{
		IntentHash:     opts.IntentHash,
		Participant:    opts.Participant,
		Nonce:          opts.Nonce,
		Expiry:         expiry,
		ConditionsHash: opts.ConditionsHash,
	}
}

// ValidateIntent 执行客户端侧的结构校验。链上验证合约是最终裁决者，
// 这里提前执行同样的规则以便尽早失败。
func ValidateIntent(intent AgentIntent) error {
	if len(intent.Participants) == 0 {
		return xerrors.New(xerrors.CodeEmptyParticipantSet, "")
	}
	if !IsCanonical(intent.Participants) {
		return xerrors.New(xerrors.CodeNonCanonicalParts, "")
	}
	if !IsParticipant(intent.AgentID, intent.Participants) {
		return xerrors.New(xerrors.CodeAgentNotParticipant, "")
	}
	if intent.Expiry <= uint64(time.Now().Unix()) {
		return xerrors.New(xerrors.CodeAlreadyExpired, "intent 已过期")
	}
	return nil
}

// ValidateAttestation 校验接受证明相对给定参与方集合是否可提交。
func ValidateAttestation(att AcceptanceAttestation, required []common.Address) error {
	if att.Expiry <= uint64(time.Now().Unix()) {
		return xerrors.New(xerrors.CodeAlreadyExpired, "attestation 已过期")
	}
	if !IsParticipant(att.Participant, required) {
		return xerrors.New(xerrors.CodeParticipantNotRequired, "")
	}
	if len(att.Signature) == 0 {
		return xerrors.New(xerrors.CodeMissingSignature, "")
	}
	return nil
}
