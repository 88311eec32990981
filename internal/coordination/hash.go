package coordination

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// 协议域常量。它们与链上验证合约共同构成兼容面，改动即破坏互操作。
const (
	ProtocolName    = "AgentPact"
	ProtocolVersion = "1"
)

// 各消息类型的规范字段签名。类型标签是字段签名串的 keccak256，
// 作为结构哈希的前缀实现类型间的域分隔，杜绝跨类型签名重放。
const (
	intentTypeSignature     = "AgentIntent(bytes32 payloadHash,uint64 expiry,uint64 nonce,address agentId,bytes32 coordinationType,uint256 coordinationValue,bytes32 participantsHash)"
	acceptanceTypeSignature = "AcceptanceAttestation(bytes32 intentHash,address participant,uint64 nonce,uint64 expiry,bytes32 conditionsHash)"
	eip712DomainSignature   = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
)

var (
	intentTypeTag     = crypto.Keccak256Hash([]byte(intentTypeSignature))
	acceptanceTypeTag = crypto.Keccak256Hash([]byte(acceptanceTypeSignature))
	eip712DomainTag   = crypto.Keccak256Hash([]byte(eip712DomainSignature))

	// coordinationTypeKey 是 label 派生 coordinationType 时使用的键前缀。
	coordinationTypeKey = []byte("agentpact:coordination-type:")
)

// ParticipantsHash 对归一化后的参与方序列做单次紧凑打包哈希。
// 调用方必须先完成 Canonicalize，否则同一集合会得到不同哈希。
func ParticipantsHash(ids []common.Address) common.Hash {
	packed := make([]byte, 0, len(ids)*common.AddressLength)
	for _, id := range ids {
		packed = append(packed, id[:]...)
	}
	return crypto.Keccak256Hash(packed)
}

// IntentStructHash 计算 intent 的结构哈希，同时充当 intentHash 标识。
// 所有字段按固定宽度拼接：hash 32 字节、u64 8 字节、地址 20 字节、
// u256 左填充到 32 字节。它不是最终签名摘要，见 SigningDigest。
func IntentStructHash(intent AgentIntent) common.Hash {
	buf := make([]byte, 0, 32+32+8+8+20+32+32+32)
	buf = append(buf, intentTypeTag[:]...)
	buf = append(buf, intent.PayloadHash[:]...)
	buf = appendUint64(buf, intent.Expiry)
	buf = appendUint64(buf, intent.Nonce)
	buf = append(buf, intent.AgentID[:]...)
	buf = append(buf, intent.CoordinationType[:]...)
	buf = append(buf, uint256Bytes(intent.CoordinationValue)...)
	participants := ParticipantsHash(intent.Participants)
	buf = append(buf, participants[:]...)
	return crypto.Keccak256Hash(buf)
}

// AcceptanceStructHash 计算接受证明（不含签名字段）的结构哈希。
func AcceptanceStructHash(att AcceptanceAttestation) common.Hash {
	buf := make([]byte, 0, 32+32+20+8+8+32)
	buf = append(buf, acceptanceTypeTag[:]...)
	buf = append(buf, att.IntentHash[:]...)
	buf = append(buf, att.Participant[:]...)
	buf = appendUint64(buf, att.Nonce)
	buf = appendUint64(buf, att.Expiry)
	buf = append(buf, att.ConditionsHash[:]...)
	return crypto.Keccak256Hash(buf)
}

// PayloadHash 计算负载哈希。变长字段先各自哈希，再与定长字段打包，
// 避免变长编码歧义。
func PayloadHash(p CoordinationPayload) common.Hash {
	dataHash := crypto.Keccak256Hash(p.CoordinationData)
	metaHash := crypto.Keccak256Hash(p.Metadata)

	buf := make([]byte, 0, 32*6)
	buf = append(buf, p.Version[:]...)
	buf = append(buf, p.CoordinationType[:]...)
	buf = append(buf, dataHash[:]...)
	buf = append(buf, p.ConditionsHash[:]...)
	buf = append(buf, uint256Bytes(p.Timestamp)...)
	buf = append(buf, metaHash[:]...)
	return crypto.Keccak256Hash(buf)
}

// Domain 绑定签名摘要所属的链与验证合约。
type Domain struct {
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Separator 按 EIP-712 规则计算域分隔符。
func (d Domain) Separator() common.Hash {
	nameHash := crypto.Keccak256Hash([]byte(ProtocolName))
	versionHash := crypto.Keccak256Hash([]byte(ProtocolVersion))

	buf := make([]byte, 0, 32*5)
	buf = append(buf, eip712DomainTag[:]...)
	buf = append(buf, nameHash[:]...)
	buf = append(buf, versionHash[:]...)
	buf = append(buf, uint256Bytes(d.ChainID)...)
	buf = append(buf, common.LeftPadBytes(d.VerifyingContract[:], 32)...)
	return crypto.Keccak256Hash(buf)
}

// SigningDigest 计算最终被签名的值：0x19 0x01 ‖ domainSeparator ‖ structHash。
// 结构哈希是跨链稳定的身份，摘要则绑定到具体链与合约。
func SigningDigest(d Domain, structHash common.Hash) common.Hash {
	separator := d.Separator()
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, separator[:], structHash[:])
}

// CoordinationTypeFromLabel 用带键前缀的 keccak256 将可读标签
// 解析为 coordinationType 哈希。
func CoordinationTypeFromLabel(label string) common.Hash {
	return crypto.Keccak256Hash(coordinationTypeKey, []byte(label))
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func uint256Bytes(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}
