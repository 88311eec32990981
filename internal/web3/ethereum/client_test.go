package ethereum

import (
	"context"
	"testing"
	"time"

	"AgentPact-Chain/internal/coordination"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := NewClient(ctx, Config{Contract: "0x0000000000000000000000000000000000000001"}); err == nil {
		t.Fatal("expected error for missing rpc url")
	}
	if _, err := NewClient(ctx, Config{RPCURL: "http://127.0.0.1:8545", Contract: "not-an-address"}); err == nil {
		t.Fatal("expected error for malformed contract address")
	}
}

func TestToIntentTupleDefaultsNilValue(t *testing.T) {
	intent := coordination.AgentIntent{
		PayloadHash:      common.HexToHash("0x11"),
		Expiry:           100,
		Nonce:            2,
		AgentID:          common.HexToAddress("0x01"),
		CoordinationType: common.HexToHash("0x22"),
		Participants:     []common.Address{common.HexToAddress("0x01")},
	}
	tuple := toIntentTuple(intent)
	if tuple.CoordinationValue == nil || tuple.CoordinationValue.Sign() != 0 {
		t.Fatal("nil value must default to zero")
	}
	if tuple.PayloadHash != [32]byte(intent.PayloadHash) {
		t.Fatal("payload hash mismatch")
	}
	if tuple.AgentId != intent.AgentID || tuple.Nonce != 2 || tuple.Expiry != 100 {
		t.Fatalf("field mismatch: %+v", tuple)
	}
}

func TestToPayloadTupleDefaultsNilTimestamp(t *testing.T) {
	tuple := toPayloadTuple(coordination.CoordinationPayload{
		CoordinationType: common.HexToHash("0x22"),
		CoordinationData: []byte("terms"),
	})
	if tuple.Timestamp == nil || tuple.Timestamp.Sign() != 0 {
		t.Fatal("nil timestamp must default to zero")
	}
	if string(tuple.CoordinationData) != "terms" {
		t.Fatal("coordination data mismatch")
	}
}

func TestToAttestationTuple(t *testing.T) {
	att := coordination.AcceptanceAttestation{
		IntentHash:     common.HexToHash("0x33"),
		Participant:    common.HexToAddress("0x02"),
		Nonce:          0,
		Expiry:         200,
		ConditionsHash: common.HexToHash("0x44"),
		Signature:      []byte{0x01, 0x02},
	}
	tuple := toAttestationTuple(att)
	if tuple.IntentHash != [32]byte(att.IntentHash) {
		t.Fatal("intent hash mismatch")
	}
	if tuple.Participant != att.Participant || tuple.Expiry != 200 {
		t.Fatalf("field mismatch: %+v", tuple)
	}
	if len(tuple.Signature) != 2 {
		t.Fatal("signature must pass through")
	}
	if tuple.Nonce != 0 {
		t.Fatalf("expected nonce 0, got %d", tuple.Nonce)
	}
}
