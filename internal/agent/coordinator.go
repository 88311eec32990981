package agent

import (
	"context"
	"log/slog"
	"time"

	"AgentPact-Chain/internal/coordination"
	xerrors "AgentPact-Chain/internal/errors"
	"AgentPact-Chain/internal/notify"
	"AgentPact-Chain/internal/web3"
	"AgentPact-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Coordinator 驱动一次多方协调的完整生命周期，是系统的业务核心。
// 所有哈希与校验都发生在本地，链上合约是最终裁决者。
type Coordinator struct {
	chain    web3.Client
	store    coordination.Store
	signer   web3.Signer
	auth     *bind.TransactOpts
	notifier notify.Producer
	logger   *slog.Logger
}

// Option 定义可选的 Coordinator 配置。
type Option func(*Coordinator)

// WithNotifier 配置提案通知的投递队列。
func WithNotifier(producer notify.Producer) Option {
	return func(c *Coordinator) {
		c.notifier = producer
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator 创建 Coordinator。chain 为空时只支持本地镜像的
// 读取与状态推导，写路径会返回参数错误，主要用于测试。
func NewCoordinator(chain web3.Client, store coordination.Store, signer web3.Signer, auth *bind.TransactOpts, opts ...Option) *Coordinator {
	c := &Coordinator{chain: chain, store: store, signer: signer, auth: auth}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Coordinator) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return logger.L()
}

func (c *Coordinator) requireChain() error {
	if c.chain == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "未配置链上客户端")
	}
	return nil
}

func (c *Coordinator) domain(ctx context.Context) (coordination.Domain, error) {
	chainID, err := c.chain.ChainID(ctx)
	if err != nil {
		return coordination.Domain{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "无法确定签名域")
	}
	return coordination.Domain{
		ChainID:           chainID,
		VerifyingContract: c.chain.VerifyingContract(),
	}, nil
}

// Propose 构造、签名并提交一个新的 intent，随后写入本地镜像并
// 广播通知。返回已记录的 intent 条目。
func (c *Coordinator) Propose(ctx context.Context, opts coordination.IntentOptions) (*coordination.IntentRecord, error) {
	if c.signer == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置消息签名器")
	}
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	if opts.AgentID == (common.Address{}) {
		opts.AgentID = c.signer.Address()
	}

	nonce, err := c.chain.NonceOf(ctx, opts.AgentID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询当前 nonce 失败")
	}

	intent, payload, err := coordination.BuildIntent(opts, nonce)
	if err != nil {
		return nil, err
	}

	domain, err := c.domain(ctx)
	if err != nil {
		return nil, err
	}
	intentHash := coordination.IntentStructHash(intent)
	digest := coordination.SigningDigest(domain, intentHash)
	signature, err := c.signer.SignDigest(digest)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "签名 intent 失败")
	}

	if _, err := c.chain.ProposeIntent(ctx, c.auth, intent, signature, payload); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "提交 intent 失败")
	}

	rec := &coordination.IntentRecord{
		IntentHash: intentHash,
		Intent:     intent,
		Payload:    payload,
		Signature:  signature,
	}
	if err := c.store.PutIntent(ctx, rec); err != nil {
		return nil, err
	}

	if c.notifier != nil {
		if err := c.notifier.Publish(ctx, intentHash.Hex()); err != nil {
			c.log().Warn("广播提案通知失败", slog.Any("error", err), slog.String("intent_hash", intentHash.Hex()))
		}
	}

	c.log().Info("intent 已提交",
		slog.String("intent_hash", intentHash.Hex()),
		slog.Int("participants", len(intent.Participants)),
		slog.Uint64("nonce", intent.Nonce))
	return rec, nil
}

// Intent 返回本地镜像中的 intent 记录。
func (c *Coordinator) Intent(ctx context.Context, intentHash common.Hash) (*coordination.IntentRecord, error) {
	return c.store.GetIntent(ctx, intentHash)
}

// ListIntents 返回最近记录的 intent。
func (c *Coordinator) ListIntents(ctx context.Context, limit int) ([]*coordination.IntentRecord, error) {
	return c.store.ListIntents(ctx, limit)
}

// Accept 以签名方身份接受一个 intent：构造接受证明、签名、提交并
// 写入本地镜像。
func (c *Coordinator) Accept(ctx context.Context, intentHash common.Hash, opts coordination.AttestationOptions) (coordination.AcceptanceAttestation, error) {
	if c.signer == nil {
		return coordination.AcceptanceAttestation{}, xerrors.New(xerrors.CodeInvalidArgument, "未配置消息签名器")
	}
	if err := c.requireChain(); err != nil {
		return coordination.AcceptanceAttestation{}, err
	}
	rec, err := c.store.GetIntent(ctx, intentHash)
	if err != nil {
		return coordination.AcceptanceAttestation{}, err
	}

	opts.IntentHash = intentHash
	if opts.Participant == (common.Address{}) {
		opts.Participant = c.signer.Address()
	}
	att := coordination.BuildAttestation(opts)

	domain, err := c.domain(ctx)
	if err != nil {
		return coordination.AcceptanceAttestation{}, err
	}
	digest := coordination.SigningDigest(domain, coordination.AcceptanceStructHash(att))
	if att.Signature, err = c.signer.SignDigest(digest); err != nil {
		return coordination.AcceptanceAttestation{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "签名接受证明失败")
	}

	if err := coordination.ValidateAttestation(att, rec.Intent.Participants); err != nil {
		return coordination.AcceptanceAttestation{}, err
	}

	if _, err := c.chain.AcceptIntent(ctx, c.auth, intentHash, att); err != nil {
		return coordination.AcceptanceAttestation{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "提交接受证明失败")
	}
	if err := c.store.PutAcceptance(ctx, att); err != nil {
		return coordination.AcceptanceAttestation{}, err
	}

	c.log().Info("接受证明已提交",
		slog.String("intent_hash", intentHash.Hex()),
		slog.String("participant", att.Participant.Hex()))
	return att, nil
}

// Status 返回 intent 的当前生命周期视图。配置了链上客户端时以链上
// 汇报为准，否则从本地镜像推导。
func (c *Coordinator) Status(ctx context.Context, intentHash common.Hash) (coordination.CoordinationStatus, error) {
	if c.chain != nil {
		return c.chain.StatusOf(ctx, intentHash)
	}
	return c.localStatus(ctx, intentHash)
}

func (c *Coordinator) localStatus(ctx context.Context, intentHash common.Hash) (coordination.CoordinationStatus, error) {
	rec, err := c.store.GetIntent(ctx, intentHash)
	if err != nil {
		return coordination.CoordinationStatus{}, err
	}
	atts, err := c.store.ListAcceptances(ctx, intentHash)
	if err != nil {
		return coordination.CoordinationStatus{}, err
	}
	return coordination.DeriveStatus(rec.Intent, atts, uint64(time.Now().Unix())), nil
}

// AwaitReady 轮询状态直到 Ready、终态、超时或取消。
func (c *Coordinator) AwaitReady(ctx context.Context, intentHash common.Hash, interval, timeout time.Duration) (coordination.CoordinationStatus, error) {
	return coordination.WaitForReady(ctx, func(ctx context.Context) (coordination.CoordinationStatus, error) {
		return c.Status(ctx, intentHash)
	}, interval, timeout)
}

// Execute 在协调就绪后触发链上执行。
func (c *Coordinator) Execute(ctx context.Context, intentHash common.Hash, executionData []byte) (web3.TxResult, error) {
	if err := c.requireChain(); err != nil {
		return web3.TxResult{}, err
	}
	st, err := c.Status(ctx, intentHash)
	if err != nil {
		return web3.TxResult{}, err
	}
	if st.Status != coordination.StatusReady {
		return web3.TxResult{}, xerrors.Newf(xerrors.CodeConflict, "当前状态 %s 不允许执行", st.Status)
	}
	rec, err := c.store.GetIntent(ctx, intentHash)
	if err != nil {
		return web3.TxResult{}, err
	}
	result, err := c.chain.ExecuteIntent(ctx, c.auth, intentHash, rec.Payload, executionData)
	if err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "执行 intent 失败")
	}
	c.log().Info("intent 已执行", slog.String("intent_hash", intentHash.Hex()), slog.String("tx", result.TxHash.Hex()))
	return result, nil
}

// Cancel 请求取消协调。过期前只有发起方可以取消，过期后任何一方均可；
// 本地先行校验，链上合约仍会复查。
func (c *Coordinator) Cancel(ctx context.Context, intentHash common.Hash, reason string) (web3.TxResult, error) {
	if c.signer == nil {
		return web3.TxResult{}, xerrors.New(xerrors.CodeInvalidArgument, "未配置消息签名器")
	}
	if err := c.requireChain(); err != nil {
		return web3.TxResult{}, err
	}
	st, err := c.Status(ctx, intentHash)
	if err != nil {
		return web3.TxResult{}, err
	}
	if !coordination.CanCancel(st, c.signer.Address(), uint64(time.Now().Unix())) {
		return web3.TxResult{}, xerrors.Newf(xerrors.CodeConflict, "当前状态 %s 下无权取消", st.Status)
	}
	result, err := c.chain.CancelIntent(ctx, c.auth, intentHash, reason)
	if err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "取消 intent 失败")
	}
	c.log().Info("intent 已取消", slog.String("intent_hash", intentHash.Hex()), slog.String("reason", reason))
	return result, nil
}
