package agent

import (
	"context"
	"log/slog"
	"math/big"

	"AgentPact-Chain/internal/bounds"
	xerrors "AgentPact-Chain/internal/errors"
	"AgentPact-Chain/internal/web3"
	"AgentPact-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// BoundedExecutor 代表受策略约束的执行体：它注册允许清单的 Merkle
// 承诺，之后只能携带有效包含性证明发起清单内的调用。动作列表是
// 注册方自留的见证集合，保存在 Cache 中以便事后再生证明。
type BoundedExecutor struct {
	chain  web3.Client
	cache  bounds.Cache
	auth   *bind.TransactOpts
	logger *slog.Logger
}

// NewBoundedExecutor 创建 BoundedExecutor。
func NewBoundedExecutor(chain web3.Client, cache bounds.Cache, auth *bind.TransactOpts) *BoundedExecutor {
	return &BoundedExecutor{chain: chain, cache: cache, auth: auth}
}

func (e *BoundedExecutor) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return logger.L()
}

// RegisterPolicy 计算允许清单的 Merkle 根，在链上注册策略，并把
// 动作列表留存到缓存。返回从回执事件解码出的策略标识。
func (e *BoundedExecutor) RegisterPolicy(ctx context.Context, agentAddr common.Address, actions []bounds.ActionBound, spendingLimit *big.Int, window web3.PolicyWindow, maxCalls uint64) (web3.PolicyRegistration, error) {
	root, err := bounds.ComputeRoot(actions)
	if err != nil {
		return web3.PolicyRegistration{}, err
	}

	reg, err := e.chain.RegisterPolicy(ctx, e.auth, agentAddr, root, spendingLimit, window, maxCalls)
	if err != nil {
		return web3.PolicyRegistration{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "注册策略失败")
	}

	// 缓存失败不影响已注册的策略，只会让证明无法便捷再生。
	if err := e.cache.Put(ctx, reg.PolicyID, actions); err != nil {
		e.log().Warn("留存动作列表失败", slog.Any("error", err), slog.String("policy_id", reg.PolicyID.Hex()))
	}

	e.log().Info("策略已注册",
		slog.String("policy_id", reg.PolicyID.Hex()),
		slog.String("bounds_root", root.Hex()),
		slog.Int("actions", len(actions)))
	return reg, nil
}

// RegisterFromManifest 读取 YAML 允许清单文件，解析出动作列表后注册
// 策略。文件中的条目顺序即承诺顺序。
func (e *BoundedExecutor) RegisterFromManifest(ctx context.Context, agentAddr common.Address, path string, spendingLimit *big.Int, window web3.PolicyWindow, maxCalls uint64) (web3.PolicyRegistration, error) {
	manifest, err := bounds.LoadManifest(path)
	if err != nil {
		return web3.PolicyRegistration{}, err
	}
	actions, err := manifest.Resolve()
	if err != nil {
		return web3.PolicyRegistration{}, err
	}
	e.log().Info("已加载允许清单",
		slog.String("manifest", manifest.Name),
		slog.String("path", path),
		slog.Int("actions", len(actions)))
	return e.RegisterPolicy(ctx, agentAddr, actions, spendingLimit, window, maxCalls)
}

// Execute 在策略边界内发起一次调用：从缓存取回动作列表，定位目标
// 动作并生成包含性证明，随后携带证明提交受限调用。
func (e *BoundedExecutor) Execute(ctx context.Context, policyID common.Hash, target common.Address, selector bounds.Selector, callArgs []byte, value *big.Int) (web3.TxResult, error) {
	actions, err := e.cache.Get(ctx, policyID)
	if err != nil {
		return web3.TxResult{}, err
	}

	index := -1
	for i, action := range actions {
		if action.Target == target && action.Selector == selector {
			index = i
			break
		}
	}
	if index < 0 {
		return web3.TxResult{}, xerrors.Newf(xerrors.CodeNotFound, "动作 %s:%x 不在允许清单中", target.Hex(), selector)
	}

	proof, err := bounds.GenerateProof(actions, index)
	if err != nil {
		return web3.TxResult{}, err
	}

	callData := append(append([]byte{}, selector[:]...), callArgs...)
	result, err := e.chain.ExecuteBounded(ctx, e.auth, policyID, target, callData, value, proof)
	if err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "提交受限调用失败")
	}

	e.log().Info("受限调用已提交",
		slog.String("policy_id", policyID.Hex()),
		slog.String("target", target.Hex()),
		slog.Int("proof_len", len(proof)))
	return result, nil
}

// Policy 读取链上策略视图。
func (e *BoundedExecutor) Policy(ctx context.Context, policyID common.Hash) (bounds.Policy, error) {
	return e.chain.PolicyOf(ctx, policyID)
}

// ProofFor 为缓存中的动作列表重新生成某个下标的包含性证明。
func (e *BoundedExecutor) ProofFor(ctx context.Context, policyID common.Hash, index int) ([]common.Hash, error) {
	actions, err := e.cache.Get(ctx, policyID)
	if err != nil {
		return nil, err
	}
	return bounds.GenerateProof(actions, index)
}
