package web3

import (
	"context"
	"math/big"

	"AgentPact-Chain/internal/bounds"
	"AgentPact-Chain/internal/coordination"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Signer is the opaque signing capability the core depends on. Key custody
// and the raw signing primitive live behind this interface; the core only
// ever hands it a 32-byte digest.
type Signer interface {
	Address() common.Address
	SignDigest(digest common.Hash) ([]byte, error)
}

// PolicyWindow bounds the time range during which a policy is exercisable.
type PolicyWindow struct {
	Start uint64
	End   uint64
}

// TxResult reports a submitted transaction.
type TxResult struct {
	TxHash common.Hash
}

// PolicyRegistration reports a mined policy registration, with the policy id
// decoded from the PolicyRegistered event rather than read off a raw topic.
type PolicyRegistration struct {
	PolicyID common.Hash
	TxHash   common.Hash
}

// Client defines the surface of the coordination verifier contract that the
// core consumes. Implementations live per chain family; see the ethereum
// subpackage.
type Client interface {
	// ChainID reports the connected chain so callers can build the
	// EIP-712 signing domain.
	ChainID(ctx context.Context) (*big.Int, error)
	// VerifyingContract returns the coordination contract address.
	VerifyingContract() common.Address

	// Read surface.
	NonceOf(ctx context.Context, agent common.Address) (uint64, error)
	StatusOf(ctx context.Context, intentHash common.Hash) (coordination.CoordinationStatus, error)
	PolicyOf(ctx context.Context, policyID common.Hash) (bounds.Policy, error)

	// Write surface. Transaction signing is delegated to the supplied
	// transact opts; message signing happens before these calls.
	ProposeIntent(ctx context.Context, auth *bind.TransactOpts, intent coordination.AgentIntent, signature []byte, payload coordination.CoordinationPayload) (TxResult, error)
	AcceptIntent(ctx context.Context, auth *bind.TransactOpts, intentHash common.Hash, att coordination.AcceptanceAttestation) (TxResult, error)
	ExecuteIntent(ctx context.Context, auth *bind.TransactOpts, intentHash common.Hash, payload coordination.CoordinationPayload, executionData []byte) (TxResult, error)
	CancelIntent(ctx context.Context, auth *bind.TransactOpts, intentHash common.Hash, reason string) (TxResult, error)
	RegisterPolicy(ctx context.Context, auth *bind.TransactOpts, agent common.Address, boundsRoot common.Hash, spendingLimit *big.Int, window PolicyWindow, maxCalls uint64) (PolicyRegistration, error)
	ExecuteBounded(ctx context.Context, auth *bind.TransactOpts, policyID common.Hash, target common.Address, callData []byte, value *big.Int, proof []common.Hash) (TxResult, error)

	Close()
}
