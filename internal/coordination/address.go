package coordination

import (
	"bytes"
	"sort"
	"strings"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Canonicalize 将参与方集合归一为严格升序、去重后的序列。
// 地址按其 160 位无符号整数值排序。输入不会被修改。
func Canonicalize(ids []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(ids))
	out := make([]common.Address, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// IsCanonical 检查序列是否严格升序。相邻元素必须满足严格小于，
// 因此重复与乱序都会被拒绝。
func IsCanonical(ids []common.Address) bool {
	for i := 1; i < len(ids); i++ {
		if bytes.Compare(ids[i-1][:], ids[i][:]) >= 0 {
			return false
		}
	}
	return true
}

// IsParticipant 判断地址是否出现在序列中。
func IsParticipant(id common.Address, ids []common.Address) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// ParseParticipants 将十六进制地址列表解析并归一化为地址序列，
// 供 API 边界使用。大小写混用的输入在解析时统一。
func ParseParticipants(raw []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if !common.IsHexAddress(item) {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "无法解析参与方地址: %s", item)
		}
		out = append(out, common.HexToAddress(item))
	}
	return out, nil
}
