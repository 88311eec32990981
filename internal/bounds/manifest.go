package bounds

import (
	"fmt"
	"os"
	"strings"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"
)

// Manifest models the structure of a policy allow-list file.
type Manifest struct {
	Name    string          `yaml:"name"`
	Actions []ManifestEntry `yaml:"actions"`
}

// ManifestEntry describes a single allowed action. Selector may be given
// either as a 0x-prefixed 4-byte hex string or as a Solidity function
// signature such as "transfer(address,uint256)".
type ManifestEntry struct {
	Target    string `yaml:"target"`
	Selector  string `yaml:"selector"`
	Signature string `yaml:"signature"`
	Comment   string `yaml:"comment"`
}

// LoadManifest parses the YAML allow-list file at path.
func LoadManifest(path string) (Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return Manifest{}, xerrors.New(xerrors.CodeInvalidArgument, "允许清单路径不能为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("读取允许清单失败: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(content, &m); err != nil {
		return Manifest{}, fmt.Errorf("解析允许清单失败: %w", err)
	}
	return m, nil
}

// Resolve converts the manifest into the ordered ActionBound list the
// Merkle engine commits to. Entry order in the file is significant and is
// preserved, since proofs are generated against the same ordering.
func (m Manifest) Resolve() ([]ActionBound, error) {
	if len(m.Actions) == 0 {
		return nil, xerrors.New(xerrors.CodeEmptyActionList, "允许清单为空")
	}
	actions := make([]ActionBound, 0, len(m.Actions))
	for i, entry := range m.Actions {
		target := strings.TrimSpace(entry.Target)
		if !common.IsHexAddress(target) {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "第 %d 项 target 非法: %s", i, entry.Target)
		}
		selector, err := entry.resolveSelector()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("第 %d 项 selector 非法", i))
		}
		actions = append(actions, ActionBound{
			Target:   common.HexToAddress(target),
			Selector: selector,
		})
	}
	return actions, nil
}

func (e ManifestEntry) resolveSelector() (Selector, error) {
	var out Selector
	if sig := strings.TrimSpace(e.Signature); sig != "" {
		digest := crypto.Keccak256([]byte(sig))
		copy(out[:], digest[:SelectorLength])
		return out, nil
	}
	raw, err := hexutil.Decode(strings.TrimSpace(e.Selector))
	if err != nil {
		return out, err
	}
	if len(raw) != SelectorLength {
		return out, fmt.Errorf("selector 长度应为 %d 字节，实际 %d", SelectorLength, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// SelectorFromSignature derives the 4-byte selector of a Solidity function
// signature.
func SelectorFromSignature(sig string) Selector {
	var out Selector
	digest := crypto.Keccak256([]byte(sig))
	copy(out[:], digest[:SelectorLength])
	return out
}
