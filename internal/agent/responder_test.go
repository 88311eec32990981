package agent

import (
	"context"
	"testing"
)

func TestResponderAcceptsRelevantIntent(t *testing.T) {
	chain := &stubChain{}
	coordinator, store, _ := newTestCoordinator(chain)
	rec := seedIntent(t, store, testAddr(0x02), testAddr(0x01), testAddr(0x02))

	responder := NewResponder(coordinator, nil)
	if err := responder.handle(context.Background(), rec.IntentHash.Hex()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(chain.accepted) != 1 {
		t.Fatalf("expected one acceptance, got %d", len(chain.accepted))
	}
	if chain.accepted[0].Participant != testAddr(0x01) {
		t.Fatalf("unexpected participant: %s", chain.accepted[0].Participant.Hex())
	}

	// 重复通知幂等处理，不得返回错误触发重投。
	if err := responder.handle(context.Background(), rec.IntentHash.Hex()); err != nil {
		t.Fatalf("duplicate handle: %v", err)
	}
}

func TestResponderSkipsOwnProposal(t *testing.T) {
	chain := &stubChain{}
	coordinator, store, _ := newTestCoordinator(chain)
	rec := seedIntent(t, store, testAddr(0x01), testAddr(0x01), testAddr(0x02))

	responder := NewResponder(coordinator, nil)
	if err := responder.handle(context.Background(), rec.IntentHash.Hex()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(chain.accepted) != 0 {
		t.Fatal("responder must not accept its own proposal")
	}
}

func TestResponderSkipsIrrelevantIntent(t *testing.T) {
	chain := &stubChain{}
	coordinator, store, _ := newTestCoordinator(chain)
	rec := seedIntent(t, store, testAddr(0x02), testAddr(0x02), testAddr(0x03))

	responder := NewResponder(coordinator, nil)
	if err := responder.handle(context.Background(), rec.IntentHash.Hex()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(chain.accepted) != 0 {
		t.Fatal("responder must skip intents it is not part of")
	}
}

func TestResponderToleratesUnknownAndMalformed(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(&stubChain{})
	responder := NewResponder(coordinator, nil)

	if err := responder.handle(context.Background(), "not-a-hash"); err != nil {
		t.Fatalf("malformed payload must be dropped, got %v", err)
	}
	unknown := "0x1111111111111111111111111111111111111111111111111111111111111111"
	if err := responder.handle(context.Background(), unknown); err != nil {
		t.Fatalf("unknown intent must be dropped, got %v", err)
	}
}
