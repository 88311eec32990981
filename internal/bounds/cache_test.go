package bounds

import (
	"context"
	stdErrors "errors"
	"testing"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()
	policyID := common.HexToHash("0x01")
	actions := actionList(3)

	if err := cache.Put(ctx, policyID, actions); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := cache.Get(ctx, policyID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != len(actions) {
		t.Fatalf("expected %d actions, got %d", len(actions), len(got))
	}

	// 缓存返回拷贝，调用方修改不影响后续读取。
	got[0].Selector[0] ^= 0xFF
	again, _ := cache.Get(ctx, policyID)
	if again[0].Selector == got[0].Selector {
		t.Fatal("cached actions must not be aliased")
	}

	if err := cache.Delete(ctx, policyID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.Get(ctx, policyID); !stdErrors.Is(err, ErrActionsNotCached) {
		t.Fatalf("expected ErrActionsNotCached, got %v", err)
	}
}

func TestMemoryCacheRejectsEmptyList(t *testing.T) {
	cache := NewMemoryCache()
	err := cache.Put(context.Background(), common.HexToHash("0x01"), nil)
	if xerrors.CodeOf(err) != xerrors.CodeEmptyActionList {
		t.Fatalf("expected EMPTY_ACTION_LIST, got %v", err)
	}
}
