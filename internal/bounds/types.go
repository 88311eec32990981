package bounds

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SelectorLength 是方法选择器的固定字节长度。
const SelectorLength = 4

// Selector 是 4 字节的方法选择器。
type Selector [SelectorLength]byte

// ActionBound 是策略允许清单中的最小单元：目标合约加方法选择器。
type ActionBound struct {
	Target   common.Address `json:"target"`
	Selector Selector       `json:"selector"`
}

// Policy 镜像链上策略的只读视图。BoundsRoot 是对有序 ActionBound
// 列表的内容承诺；列表本身不在链上持久化，由注册方自行保留。
type Policy struct {
	BoundsRoot     common.Hash `json:"bounds_root"`
	SpendingLimit  *big.Int    `json:"spending_limit"`
	Spent          *big.Int    `json:"spent"`
	WindowStart    uint64      `json:"window_start"`
	WindowEnd      uint64      `json:"window_end"`
	CallsRemaining uint64      `json:"calls_remaining"`
	Active         bool        `json:"active"`
}
