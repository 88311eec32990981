package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"AgentPact-Chain/internal/bounds"
	"AgentPact-Chain/internal/coordination"
	"AgentPact-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// coordinationABI 是链上验证合约的调用面。元组字段的顺序与宽度
// 属于兼容面，必须与合约保持一致。
const coordinationABI = `[
  {"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"agent","type":"address"}],"outputs":[{"name":"","type":"uint64"}]},
  {"type":"function","name":"statusOf","stateMutability":"view","inputs":[{"name":"intentHash","type":"bytes32"}],"outputs":[{"name":"status","type":"uint8"},{"name":"proposer","type":"address"},{"name":"expiry","type":"uint64"},{"name":"participants","type":"address[]"},{"name":"acceptedBy","type":"address[]"}]},
  {"type":"function","name":"policyOf","stateMutability":"view","inputs":[{"name":"policyId","type":"bytes32"}],"outputs":[{"name":"boundsRoot","type":"bytes32"},{"name":"spendingLimit","type":"uint256"},{"name":"spent","type":"uint256"},{"name":"windowStart","type":"uint64"},{"name":"windowEnd","type":"uint64"},{"name":"callsRemaining","type":"uint64"},{"name":"active","type":"bool"}]},
  {"type":"function","name":"proposeIntent","stateMutability":"nonpayable","inputs":[
    {"name":"intent","type":"tuple","components":[
      {"name":"payloadHash","type":"bytes32"},{"name":"expiry","type":"uint64"},{"name":"nonce","type":"uint64"},
      {"name":"agentId","type":"address"},{"name":"coordinationType","type":"bytes32"},
      {"name":"coordinationValue","type":"uint256"},{"name":"participants","type":"address[]"}]},
    {"name":"signature","type":"bytes"},
    {"name":"payload","type":"tuple","components":[
      {"name":"version","type":"bytes32"},{"name":"coordinationType","type":"bytes32"},
      {"name":"coordinationData","type":"bytes"},{"name":"conditionsHash","type":"bytes32"},
      {"name":"timestamp","type":"uint256"},{"name":"metadata","type":"bytes"}]}],"outputs":[]},
  {"type":"function","name":"acceptIntent","stateMutability":"nonpayable","inputs":[
    {"name":"intentHash","type":"bytes32"},
    {"name":"attestation","type":"tuple","components":[
      {"name":"intentHash","type":"bytes32"},{"name":"participant","type":"address"},
      {"name":"nonce","type":"uint64"},{"name":"expiry","type":"uint64"},
      {"name":"conditionsHash","type":"bytes32"},{"name":"signature","type":"bytes"}]}],"outputs":[]},
  {"type":"function","name":"executeIntent","stateMutability":"nonpayable","inputs":[
    {"name":"intentHash","type":"bytes32"},
    {"name":"payload","type":"tuple","components":[
      {"name":"version","type":"bytes32"},{"name":"coordinationType","type":"bytes32"},
      {"name":"coordinationData","type":"bytes"},{"name":"conditionsHash","type":"bytes32"},
      {"name":"timestamp","type":"uint256"},{"name":"metadata","type":"bytes"}]},
    {"name":"executionData","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"cancelIntent","stateMutability":"nonpayable","inputs":[
    {"name":"intentHash","type":"bytes32"},{"name":"reason","type":"string"}],"outputs":[]},
  {"type":"function","name":"registerPolicy","stateMutability":"nonpayable","inputs":[
    {"name":"agent","type":"address"},{"name":"boundsRoot","type":"bytes32"},
    {"name":"spendingLimit","type":"uint256"},{"name":"windowStart","type":"uint64"},
    {"name":"windowEnd","type":"uint64"},{"name":"maxCalls","type":"uint64"}],"outputs":[]},
  {"type":"function","name":"executeBounded","stateMutability":"nonpayable","inputs":[
    {"name":"policyId","type":"bytes32"},{"name":"target","type":"address"},
    {"name":"callData","type":"bytes"},{"name":"value","type":"uint256"},
    {"name":"proof","type":"bytes32[]"}],"outputs":[]},
  {"type":"event","name":"PolicyRegistered","inputs":[
    {"name":"policyId","type":"bytes32","indexed":true},
    {"name":"agent","type":"address","indexed":true},
    {"name":"boundsRoot","type":"bytes32","indexed":false}],"anonymous":false}
]`

// Config describes how to construct an EVM coordination client.
type Config struct {
	Name     string
	RPCURL   string
	Contract string
	Notes    string
}

// Client implements the web3.Client interface against an EVM chain.
type Client struct {
	name         string
	notes        string
	rpcClient    *gethrpc.Client
	eth          *ethclient.Client
	contract     *bind.BoundContract
	contractAddr common.Address
	parsedABI    abi.ABI
	chainID      *big.Int
}

// NewClient dials the configured RPC endpoint and binds the coordination
// contract.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	if !common.IsHexAddress(strings.TrimSpace(cfg.Contract)) {
		return nil, errors.New("未配置合法的验证合约地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	parsedABI, err := abi.JSON(strings.NewReader(coordinationABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析合约 ABI 失败: %w", err)
	}

	addr := common.HexToAddress(strings.TrimSpace(cfg.Contract))
	return &Client{
		name:         cfg.Name,
		notes:        cfg.Notes,
		rpcClient:    rpcClient,
		eth:          eth,
		contract:     bind.NewBoundContract(addr, parsedABI, eth, eth, eth),
		contractAddr: addr,
		parsedABI:    parsedABI,
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
		c.eth = nil
	}
}

// ChainID reports the connected chain id, cached after the first query.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// VerifyingContract returns the bound coordination contract address.
func (c *Client) VerifyingContract() common.Address {
	return c.contractAddr
}

// NonceOf reads the current intent nonce recorded for an agent.
func (c *Client) NonceOf(ctx context.Context, agent common.Address) (uint64, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "nonces", agent); err != nil {
		return 0, fmt.Errorf("查询 nonce 失败: %w", err)
	}
	return *abi.ConvertType(out[0], new(uint64)).(*uint64), nil
}

// StatusOf reads the lifecycle view recorded for an intent hash.
func (c *Client) StatusOf(ctx context.Context, intentHash common.Hash) (coordination.CoordinationStatus, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "statusOf", intentHash); err != nil {
		return coordination.CoordinationStatus{}, fmt.Errorf("查询状态失败: %w", err)
	}

	code := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	status, err := coordination.StatusFromCode(code)
	if err != nil {
		return coordination.CoordinationStatus{}, err
	}
	return coordination.CoordinationStatus{
		Status:       status,
		Proposer:     *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		Expiry:       *abi.ConvertType(out[2], new(uint64)).(*uint64),
		Participants: *abi.ConvertType(out[3], new([]common.Address)).(*[]common.Address),
		AcceptedBy:   *abi.ConvertType(out[4], new([]common.Address)).(*[]common.Address),
	}, nil
}

// PolicyOf reads a bounded-execution policy.
func (c *Client) PolicyOf(ctx context.Context, policyID common.Hash) (bounds.Policy, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "policyOf", policyID); err != nil {
		return bounds.Policy{}, fmt.Errorf("查询策略失败: %w", err)
	}
	return bounds.Policy{
		BoundsRoot:     common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)),
		SpendingLimit:  *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Spent:          *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		WindowStart:    *abi.ConvertType(out[3], new(uint64)).(*uint64),
		WindowEnd:      *abi.ConvertType(out[4], new(uint64)).(*uint64),
		CallsRemaining: *abi.ConvertType(out[5], new(uint64)).(*uint64),
		Active:         *abi.ConvertType(out[6], new(bool)).(*bool),
	}, nil
}

// intentTuple mirrors the intent struct expected by the contract ABI.
type intentTuple struct {
	PayloadHash       [32]byte
	Expiry            uint64
	Nonce             uint64
	AgentId           common.Address
	CoordinationType  [32]byte
	CoordinationValue *big.Int
	Participants      []common.Address
}

type payloadTuple struct {
	Version          [32]byte
	CoordinationType [32]byte
	CoordinationData []byte
	ConditionsHash   [32]byte
	Timestamp        *big.Int
	Metadata         []byte
}

type attestationTuple struct {
	IntentHash     [32]byte
	Participant    common.Address
	Nonce          uint64
	Expiry         uint64
	ConditionsHash [32]byte
	Signature      []byte
}

func toIntentTuple(intent coordination.AgentIntent) intentTuple {
	value := intent.CoordinationValue
	if value == nil {
		value = new(big.Int)
	}
	return intentTuple{
		PayloadHash:       [32]byte(intent.PayloadHash),
		Expiry:            intent.Expiry,
		Nonce:             intent.Nonce,
		AgentId:           intent.AgentID,
		CoordinationType:  [32]byte(intent.CoordinationType),
		CoordinationValue: value,
		Participants:      intent.Participants,
	}
}

func toPayloadTuple(payload coordination.CoordinationPayload) payloadTuple {
	ts := payload.Timestamp
	if ts == nil {
		ts = new(big.Int)
	}
	return payloadTuple{
		Version:          [32]byte(payload.Version),
		CoordinationType: [32]byte(payload.CoordinationType),
		CoordinationData: payload.CoordinationData,
		ConditionsHash:   [32]byte(payload.ConditionsHash),
		Timestamp:        ts,
		Metadata:         payload.Metadata,
	}
}

func toAttestationTuple(att coordination.AcceptanceAttestation) attestationTuple {
	return attestationTuple{
		IntentHash:     [32]byte(att.IntentHash),
		Participant:    att.Participant,
		Nonce:          att.Nonce,
		Expiry:         att.Expiry,
		ConditionsHash: [32]byte(att.ConditionsHash),
		Signature:      att.Signature,
	}
}

// ProposeIntent submits a signed intent with its payload.
func (c *Client) ProposeIntent(ctx context.Context, auth *bind.TransactOpts, intent coordination.AgentIntent, signature []byte, payload coordination.CoordinationPayload) (web3.TxResult, error) {
	tx, err := c.transact(ctx, auth, "proposeIntent", toIntentTuple(intent), signature, toPayloadTuple(payload))
	if err != nil {
		return web3.TxResult{}, fmt.Errorf("提交 intent 失败: %w", err)
	}
	return web3.TxResult{TxHash: tx.Hash()}, nil
}

// AcceptIntent submits a participant's acceptance attestation.
func (c *Client) AcceptIntent(ctx context.Context, auth *bind.TransactOpts, intentHash common.Hash, att coordination.AcceptanceAttestation) (web3.TxResult, error) {
	tx, err := c.transact(ctx, auth, "acceptIntent", intentHash, toAttestationTuple(att))
	if err != nil {
		return web3.TxResult{}, fmt.Errorf("提交接受证明失败: %w", err)
	}
	return web3.TxResult{TxHash: tx.Hash()}, nil
}

// ExecuteIntent triggers execution of a Ready coordination.
func (c *Client) ExecuteIntent(ctx context.Context, auth *bind.TransactOpts, intentHash common.Hash, payload coordination.CoordinationPayload, executionData []byte) (web3.TxResult, error) {
	tx, err := c.transact(ctx, auth, "executeIntent", intentHash, toPayloadTuple(payload), executionData)
	if err != nil {
		return web3.TxResult{}, fmt.Errorf("执行 intent 失败: %w", err)
	}
	return web3.TxResult{TxHash: tx.Hash()}, nil
}

// CancelIntent requests cancellation with a reason string.
func (c *Client) CancelIntent(ctx context.Context, auth *bind.TransactOpts, intentHash common.Hash, reason string) (web3.TxResult, error) {
	tx, err := c.transact(ctx, auth, "cancelIntent", intentHash, reason)
	if err != nil {
		return web3.TxResult{}, fmt.Errorf("取消 intent 失败: %w", err)
	}
	return web3.TxResult{TxHash: tx.Hash()}, nil
}

// policyRegisteredEvent mirrors the PolicyRegistered event.
type policyRegisteredEvent struct {
	PolicyId   [32]byte
	Agent      common.Address
	BoundsRoot [32]byte
}

// RegisterPolicy submits a policy registration, waits for the transaction to
// mine and decodes the PolicyRegistered event from the receipt. The policy id
// is taken from the properly unpacked event, not from a raw log topic.
func (c *Client) RegisterPolicy(ctx context.Context, auth *bind.TransactOpts, agent common.Address, boundsRoot common.Hash, spendingLimit *big.Int, window web3.PolicyWindow, maxCalls uint64) (web3.PolicyRegistration, error) {
	if spendingLimit == nil {
		spendingLimit = new(big.Int)
	}
	tx, err := c.transact(ctx, auth, "registerPolicy", agent, [32]byte(boundsRoot), spendingLimit, window.Start, window.End, maxCalls)
	if err != nil {
		return web3.PolicyRegistration{}, fmt.Errorf("注册策略失败: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return web3.PolicyRegistration{}, fmt.Errorf("等待注册回执失败: %w", err)
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return web3.PolicyRegistration{}, errors.New("策略注册交易被回滚")
	}

	eventID := c.parsedABI.Events["PolicyRegistered"].ID
	for _, log := range receipt.Logs {
		if log.Address != c.contractAddr || len(log.Topics) == 0 || log.Topics[0] != eventID {
			continue
		}
		var ev policyRegisteredEvent
		if err := c.contract.UnpackLog(&ev, "PolicyRegistered", *log); err != nil {
			return web3.PolicyRegistration{}, fmt.Errorf("解码 PolicyRegistered 事件失败: %w", err)
		}
		return web3.PolicyRegistration{PolicyID: common.Hash(ev.PolicyId), TxHash: tx.Hash()}, nil
	}
	return web3.PolicyRegistration{}, errors.New("回执中缺少 PolicyRegistered 事件")
}

// ExecuteBounded submits a bounded action with its inclusion proof.
func (c *Client) ExecuteBounded(ctx context.Context, auth *bind.TransactOpts, policyID common.Hash, target common.Address, callData []byte, value *big.Int, proof []common.Hash) (web3.TxResult, error) {
	if value == nil {
		value = new(big.Int)
	}
	rawProof := make([][32]byte, len(proof))
	for i, h := range proof {
		rawProof[i] = h
	}
	tx, err := c.transact(ctx, auth, "executeBounded", [32]byte(policyID), target, callData, value, rawProof)
	if err != nil {
		return web3.TxResult{}, fmt.Errorf("提交受限调用失败: %w", err)
	}
	return web3.TxResult{TxHash: tx.Hash()}, nil
}

func (c *Client) transact(ctx context.Context, auth *bind.TransactOpts, method string, args ...any) (*coretypes.Transaction, error) {
	if auth == nil {
		return nil, errors.New("未提供交易签名器")
	}
	originalCtx := auth.Context
	auth.Context = ctx
	defer func() { auth.Context = originalCtx }()
	return c.contract.Transact(auth, method, args...)
}

var _ web3.Client = (*Client)(nil)
