package bounds

import (
	"bytes"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Leaf 计算单个动作的叶子哈希：keccak256(target ‖ selector)。
func Leaf(action ActionBound) common.Hash {
	buf := make([]byte, 0, common.AddressLength+SelectorLength)
	buf = append(buf, action.Target[:]...)
	buf = append(buf, action.Selector[:]...)
	return crypto.Keccak256Hash(buf)
}

// ComputeRoot 对有序动作列表构建二叉哈希树并返回根。
// 叶子层通过复制最后一个叶子补齐到 2 的幂；该补齐规则是兼容面的
// 一部分，改用其它补齐方式会改变树形与所有证明。
// 单个动作的根等于其叶子本身；空列表是错误。
func ComputeRoot(actions []ActionBound) (common.Hash, error) {
	leaves, err := paddedLeaves(actions)
	if err != nil {
		return common.Hash{}, err
	}
	for len(leaves) > 1 {
		leaves = buildLevel(leaves)
	}
	return leaves[0], nil
}

// GenerateProof 为下标 i 的动作生成包含性证明：逐层记录当前节点的
// 兄弟哈希（按补齐后的下标），自叶向根排列。
func GenerateProof(actions []ActionBound, index int) ([]common.Hash, error) {
	if index < 0 || index >= len(actions) {
		return nil, xerrors.Newf(xerrors.CodeMerkleIndexOutOfRange, "下标 %d 超出动作列表范围 [0,%d)", index, len(actions))
	}
	leaves, err := paddedLeaves(actions)
	if err != nil {
		return nil, err
	}

	proof := make([]common.Hash, 0)
	for len(leaves) > 1 {
		sibling := index ^ 1
		proof = append(proof, leaves[sibling])
		leaves = buildLevel(leaves)
		index /= 2
	}
	return proof, nil
}

// VerifyProof 用与建树相同的排序配对规则折叠证明，校验最终值是否
// 等于既存根。验证方无需知道兄弟在左还是在右。
func VerifyProof(leaf common.Hash, root common.Hash, proof []common.Hash) bool {
	current := leaf
	for _, sibling := range proof {
		current = hashPair(current, sibling)
	}
	return current == root
}

func paddedLeaves(actions []ActionBound) ([]common.Hash, error) {
	if len(actions) == 0 {
		return nil, xerrors.New(xerrors.CodeEmptyActionList, "")
	}
	leaves := make([]common.Hash, len(actions))
	for i, action := range actions {
		leaves[i] = Leaf(action)
	}
	for len(leaves)&(len(leaves)-1) != 0 {
		leaves = append(leaves, leaves[len(leaves)-1])
	}
	return leaves, nil
}

func buildLevel(level []common.Hash) []common.Hash {
	next := make([]common.Hash, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next = append(next, hashPair(level[i], level[i+1]))
	}
	return next
}

// hashPair 先按数值大小排序两个子哈希再做 keccak256，
// 使每一步的验证与左右位置无关。
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}
