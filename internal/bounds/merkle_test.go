package bounds

import (
	"testing"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

func actionList(n int) []ActionBound {
	actions := make([]ActionBound, n)
	for i := range actions {
		var target common.Address
		target[common.AddressLength-1] = byte(i + 1)
		actions[i] = ActionBound{
			Target:   target,
			Selector: Selector{0xAA, 0xBB, 0xCC, byte(i)},
		}
	}
	return actions
}

func TestComputeRootSingleActionEqualsLeaf(t *testing.T) {
	actions := actionList(1)
	root, err := ComputeRoot(actions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root != Leaf(actions[0]) {
		t.Fatal("single action root must equal its leaf")
	}

	proof, err := GenerateProof(actions, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proof) != 0 {
		t.Fatalf("single action proof must be empty, got %d entries", len(proof))
	}
	if !VerifyProof(Leaf(actions[0]), root, proof) {
		t.Fatal("empty proof must verify against the leaf root")
	}
}

func TestComputeRootEmptyList(t *testing.T) {
	if _, err := ComputeRoot(nil); xerrors.CodeOf(err) != xerrors.CodeEmptyActionList {
		t.Fatalf("expected EMPTY_ACTION_LIST, got %v", err)
	}
}

func TestGenerateProofPaddedTree(t *testing.T) {
	// 3 个动作补齐到 4 个叶子，树高 2，证明长度为 2。
	actions := actionList(3)
	root, err := ComputeRoot(actions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proof, err := GenerateProof(actions, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proof) != 2 {
		t.Fatalf("expected proof of length 2, got %d", len(proof))
	}
	if !VerifyProof(Leaf(actions[1]), root, proof) {
		t.Fatal("proof for index 1 must verify")
	}
}

func TestGenerateProofAllIndices(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 8, 9} {
		actions := actionList(n)
		root, err := ComputeRoot(actions)
		if err != nil {
			t.Fatalf("n=%d: compute root: %v", n, err)
		}
		for i := range actions {
			proof, err := GenerateProof(actions, i)
			if err != nil {
				t.Fatalf("n=%d index=%d: %v", n, i, err)
			}
			if !VerifyProof(Leaf(actions[i]), root, proof) {
				t.Fatalf("n=%d index=%d: proof failed to verify", n, i)
			}
		}
	}
}

func TestVerifyProofRejectsTampering(t *testing.T) {
	actions := actionList(4)
	root, _ := ComputeRoot(actions)
	proof, _ := GenerateProof(actions, 2)

	tampered := append([]common.Hash{}, proof...)
	tampered[0][5] ^= 0x01
	if VerifyProof(Leaf(actions[2]), root, tampered) {
		t.Fatal("tampered proof must not verify")
	}

	if VerifyProof(Leaf(actions[3]), root, proof) {
		t.Fatal("proof must be bound to its leaf")
	}
}

func TestGenerateProofIndexOutOfRange(t *testing.T) {
	actions := actionList(3)
	for _, index := range []int{-1, 3, 10} {
		if _, err := GenerateProof(actions, index); xerrors.CodeOf(err) != xerrors.CodeMerkleIndexOutOfRange {
			t.Fatalf("index %d: expected MERKLE_INDEX_OUT_OF_RANGE, got %v", index, err)
		}
	}
	if _, err := GenerateProof(nil, 0); xerrors.CodeOf(err) != xerrors.CodeMerkleIndexOutOfRange {
		t.Fatalf("empty list: expected MERKLE_INDEX_OUT_OF_RANGE, got %v", err)
	}
}

func TestRootDependsOnContent(t *testing.T) {
	actions := actionList(4)
	root, _ := ComputeRoot(actions)

	// 配对前先排序，同一对内交换两个叶子不会改变根。
	swapped := append([]ActionBound{}, actions...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	swappedRoot, _ := ComputeRoot(swapped)
	if swappedRoot != root {
		t.Fatal("swap inside one pair must keep the root")
	}

	changed := append([]ActionBound{}, actions...)
	changed[2].Selector[0] ^= 0x01
	changedRoot, _ := ComputeRoot(changed)
	if changedRoot == root {
		t.Fatal("selector change must alter the root")
	}

	truncated, _ := ComputeRoot(actions[:3])
	if truncated == root {
		t.Fatal("action count must affect the root")
	}
}
