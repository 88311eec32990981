package agent

import (
	"bytes"
	"context"
	stdErrors "errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"AgentPact-Chain/internal/bounds"
	xerrors "AgentPact-Chain/internal/errors"
	"AgentPact-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

func testActions() []bounds.ActionBound {
	return []bounds.ActionBound{
		{Target: testAddr(0xA1), Selector: bounds.Selector{0x01, 0x02, 0x03, 0x04}},
		{Target: testAddr(0xA2), Selector: bounds.Selector{0x05, 0x06, 0x07, 0x08}},
		{Target: testAddr(0xA3), Selector: bounds.Selector{0x09, 0x0A, 0x0B, 0x0C}},
	}
}

func TestRegisterPolicyCachesActions(t *testing.T) {
	policyID := common.HexToHash("0x51")
	chain := &stubChain{registered: web3.PolicyRegistration{
		PolicyID: policyID,
		TxHash:   common.HexToHash("0x10"),
	}}
	cache := bounds.NewMemoryCache()
	executor := NewBoundedExecutor(chain, cache, nil)

	reg, err := executor.RegisterPolicy(context.Background(), testAddr(0x01), testActions(),
		big.NewInt(1000), web3.PolicyWindow{Start: 1, End: 100}, 10)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.PolicyID != policyID {
		t.Fatalf("unexpected policy id: %s", reg.PolicyID.Hex())
	}

	cached, err := cache.Get(context.Background(), policyID)
	if err != nil {
		t.Fatalf("cache lookup: %v", err)
	}
	if len(cached) != 3 {
		t.Fatalf("expected 3 cached actions, got %d", len(cached))
	}
}

func TestRegisterFromManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.yaml")
	content := `
name: treasury-ops
actions:
  - target: "0x00000000000000000000000000000000000000a1"
    signature: "transfer(address,uint256)"
  - target: "0x00000000000000000000000000000000000000a2"
    selector: "0x01020304"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	policyID := common.HexToHash("0x52")
	chain := &stubChain{registered: web3.PolicyRegistration{PolicyID: policyID}}
	cache := bounds.NewMemoryCache()
	executor := NewBoundedExecutor(chain, cache, nil)

	reg, err := executor.RegisterFromManifest(context.Background(), testAddr(0x01), path, nil, web3.PolicyWindow{}, 0)
	if err != nil {
		t.Fatalf("register from manifest: %v", err)
	}
	if reg.PolicyID != policyID {
		t.Fatalf("unexpected policy id: %s", reg.PolicyID.Hex())
	}

	cached, err := cache.Get(context.Background(), policyID)
	if err != nil {
		t.Fatalf("cache lookup: %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("expected 2 cached actions, got %d", len(cached))
	}
	if cached[0].Selector != bounds.SelectorFromSignature("transfer(address,uint256)") {
		t.Fatal("signature entry must resolve to its selector")
	}
	if cached[1].Selector != (bounds.Selector{0x01, 0x02, 0x03, 0x04}) {
		t.Fatal("hex entry must keep the file order")
	}
}

func TestRegisterFromManifestMissingFile(t *testing.T) {
	executor := NewBoundedExecutor(&stubChain{}, bounds.NewMemoryCache(), nil)
	_, err := executor.RegisterFromManifest(context.Background(), testAddr(0x01),
		filepath.Join(t.TempDir(), "nope.yaml"), nil, web3.PolicyWindow{}, 0)
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestExecuteBoundedCall(t *testing.T) {
	policyID := common.HexToHash("0x77")
	chain := &stubChain{}
	cache := bounds.NewMemoryCache()
	actions := testActions()
	if err := cache.Put(context.Background(), policyID, actions); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	executor := NewBoundedExecutor(chain, cache, nil)

	args := []byte{0xDE, 0xAD}
	result, err := executor.Execute(context.Background(), policyID, actions[1].Target, actions[1].Selector, args, big.NewInt(0))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.TxHash == (common.Hash{}) {
		t.Fatal("expected a transaction hash")
	}
	if len(chain.bounded) != 1 {
		t.Fatalf("expected one bounded call, got %d", len(chain.bounded))
	}
	want := append(actions[1].Selector[:], args...)
	if !bytes.Equal(chain.bounded[0], want) {
		t.Fatalf("call data mismatch: %x", chain.bounded[0])
	}
}

func TestExecuteRejectsUnlistedAction(t *testing.T) {
	policyID := common.HexToHash("0x77")
	chain := &stubChain{}
	cache := bounds.NewMemoryCache()
	if err := cache.Put(context.Background(), policyID, testActions()); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	executor := NewBoundedExecutor(chain, cache, nil)

	_, err := executor.Execute(context.Background(), policyID, testAddr(0xFF), bounds.Selector{1, 2, 3, 4}, nil, nil)
	if xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if len(chain.bounded) != 0 {
		t.Fatal("unlisted action must not reach the chain")
	}
}

func TestExecuteWithoutCachedActions(t *testing.T) {
	executor := NewBoundedExecutor(&stubChain{}, bounds.NewMemoryCache(), nil)
	_, err := executor.Execute(context.Background(), common.HexToHash("0x01"), testAddr(0x01), bounds.Selector{}, nil, nil)
	if !stdErrors.Is(err, bounds.ErrActionsNotCached) {
		t.Fatalf("expected ErrActionsNotCached, got %v", err)
	}
}

func TestProofForRegeneratesProof(t *testing.T) {
	policyID := common.HexToHash("0x77")
	cache := bounds.NewMemoryCache()
	actions := testActions()
	if err := cache.Put(context.Background(), policyID, actions); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	executor := NewBoundedExecutor(&stubChain{}, cache, nil)

	proof, err := executor.ProofFor(context.Background(), policyID, 1)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	root, err := bounds.ComputeRoot(actions)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bounds.VerifyProof(bounds.Leaf(actions[1]), root, proof) {
		t.Fatal("regenerated proof must verify")
	}

	if _, err := executor.ProofFor(context.Background(), policyID, 9); xerrors.CodeOf(err) != xerrors.CodeMerkleIndexOutOfRange {
		t.Fatalf("expected MERKLE_INDEX_OUT_OF_RANGE, got %v", err)
	}
}
