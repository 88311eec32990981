package web3

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner is a thin Signer implementation backed by an in-process
// secp256k1 key. Production deployments are expected to plug a remote
// signer behind the same interface; key custody is not this module's
// concern.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocalSigner parses a hex-encoded private key.
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return &LocalSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the signer's account address.
func (s *LocalSigner) Address() common.Address {
	return s.addr
}

// SignDigest signs a 32-byte digest and returns the 65-byte signature with
// the recovery id normalized to 27/28, matching on-chain ecrecover.
func (s *LocalSigner) SignDigest(digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// TransactOpts builds transaction signing opts bound to a chain id.
func (s *LocalSigner) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(s.key, chainID)
}

var _ Signer = (*LocalSigner)(nil)
