package coordination

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

func signedAcceptance(intent AgentIntent, participant common.Address) AcceptanceAttestation {
	return AcceptanceAttestation{
		IntentHash:  IntentStructHash(intent),
		Participant: participant,
		Expiry:      intent.Expiry,
		Signature:   []byte{0x01},
	}
}

func TestDeriveStatusProgression(t *testing.T) {
	intent := sampleIntent()
	now := uint64(time.Now().Unix())

	st := DeriveStatus(intent, nil, now)
	if st.Status != StatusProposed {
		t.Fatalf("expected proposed, got %s", st.Status)
	}

	partial := []AcceptanceAttestation{
		signedAcceptance(intent, addr(0x02)),
	}
	st = DeriveStatus(intent, partial, now)
	if st.Status != StatusProposed {
		t.Fatalf("partial acceptance must stay proposed, got %s", st.Status)
	}
	if len(st.AcceptedBy) != 1 || st.AcceptedBy[0] != addr(0x02) {
		t.Fatalf("unexpected accepted set: %v", st.AcceptedBy)
	}

	full := []AcceptanceAttestation{
		signedAcceptance(intent, addr(0x01)),
		signedAcceptance(intent, addr(0x02)),
		signedAcceptance(intent, addr(0x03)),
	}
	st = DeriveStatus(intent, full, now)
	if st.Status != StatusReady {
		t.Fatalf("expected ready, got %s", st.Status)
	}
}

func TestDeriveStatusFiltersInvalidAcceptances(t *testing.T) {
	intent := sampleIntent()
	now := uint64(time.Now().Unix())

	wrongIntent := signedAcceptance(intent, addr(0x02))
	wrongIntent.IntentHash[0] ^= 0x01

	expired := signedAcceptance(intent, addr(0x02))
	expired.Expiry = now

	unsigned := signedAcceptance(intent, addr(0x02))
	unsigned.Signature = nil

	stranger := signedAcceptance(intent, addr(0x42))

	st := DeriveStatus(intent, []AcceptanceAttestation{wrongIntent, expired, unsigned, stranger}, now)
	if len(st.AcceptedBy) != 0 {
		t.Fatalf("invalid acceptances must be ignored, got %v", st.AcceptedBy)
	}

	duplicate := []AcceptanceAttestation{
		signedAcceptance(intent, addr(0x02)),
		signedAcceptance(intent, addr(0x02)),
	}
	st = DeriveStatus(intent, duplicate, now)
	if len(st.AcceptedBy) != 1 {
		t.Fatalf("duplicates must count once, got %v", st.AcceptedBy)
	}
}

func TestDeriveStatusExpiryOverridesReady(t *testing.T) {
	intent := sampleIntent()
	full := []AcceptanceAttestation{
		signedAcceptance(intent, addr(0x01)),
		signedAcceptance(intent, addr(0x02)),
		signedAcceptance(intent, addr(0x03)),
	}
	// 把每个接受证明的有效期延长到 intent 过期之后再观察。
	for i := range full {
		full[i].Expiry = intent.Expiry + 100
	}
	st := DeriveStatus(intent, full, intent.Expiry)
	if st.Status != StatusExpired {
		t.Fatalf("expected expired at the deadline, got %s", st.Status)
	}
}

func TestValidTransitionMonotonic(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusNone, StatusProposed}:      true,
		{StatusProposed, StatusReady}:     true,
		{StatusProposed, StatusCancelled}: true,
		{StatusProposed, StatusExpired}:   true,
		{StatusReady, StatusExecuted}:     true,
		{StatusReady, StatusCancelled}:    true,
		{StatusReady, StatusExpired}:      true,
	}
	all := []Status{StatusNone, StatusProposed, StatusReady, StatusExecuted, StatusCancelled, StatusExpired}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := ValidTransition(from, to); got != want {
				t.Fatalf("transition %s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestCanCancel(t *testing.T) {
	st := CoordinationStatus{
		Status:   StatusProposed,
		Proposer: addr(0x01),
		Expiry:   1000,
	}

	if !CanCancel(st, addr(0x01), 500) {
		t.Fatal("proposer must be able to cancel before expiry")
	}
	if CanCancel(st, addr(0x02), 500) {
		t.Fatal("non-proposer must not cancel before expiry")
	}
	if !CanCancel(st, addr(0x02), 1000) {
		t.Fatal("anyone may cancel at or after expiry")
	}

	st.Status = StatusExecuted
	if CanCancel(st, addr(0x01), 2000) {
		t.Fatal("terminal status must not be cancellable")
	}
}

func pollerFromSequence(t *testing.T, seq []Status) StatusPoller {
	t.Helper()
	i := 0
	return func(context.Context) (CoordinationStatus, error) {
		if i >= len(seq) {
			t.Fatalf("poller called %d times, sequence has %d entries", i+1, len(seq))
		}
		st := CoordinationStatus{Status: seq[i]}
		i++
		return st, nil
	}
}

func TestWaitForReadyEventuallyReady(t *testing.T) {
	poll := pollerFromSequence(t, []Status{StatusProposed, StatusProposed, StatusReady})
	st, err := WaitForReady(context.Background(), poll, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Status != StatusReady {
		t.Fatalf("expected ready, got %s", st.Status)
	}
}

func TestWaitForReadyTerminalStops(t *testing.T) {
	poll := pollerFromSequence(t, []Status{StatusProposed, StatusCancelled})
	st, err := WaitForReady(context.Background(), poll, time.Millisecond, time.Second)
	if xerrors.CodeOf(err) != xerrors.CodeStatusTerminal {
		t.Fatalf("expected STATUS_TERMINAL_NOT_READY, got %v", err)
	}
	if st.Status != StatusCancelled {
		t.Fatalf("expected last observed status, got %s", st.Status)
	}
}

func TestWaitForReadyTimeout(t *testing.T) {
	poll := func(context.Context) (CoordinationStatus, error) {
		return CoordinationStatus{Status: StatusProposed}, nil
	}
	_, err := WaitForReady(context.Background(), poll, 50*time.Millisecond, 10*time.Millisecond)
	if xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestWaitForReadyContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poll := func(context.Context) (CoordinationStatus, error) {
		t.Fatal("poll must not run after cancellation")
		return CoordinationStatus{}, nil
	}
	_, err := WaitForReady(ctx, poll, time.Millisecond, time.Second)
	if !stdErrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForReadyPollError(t *testing.T) {
	boom := stdErrors.New("rpc down")
	poll := func(context.Context) (CoordinationStatus, error) {
		return CoordinationStatus{}, boom
	}
	_, err := WaitForReady(context.Background(), poll, time.Millisecond, time.Second)
	if !stdErrors.Is(err, boom) {
		t.Fatalf("expected poll error to surface, got %v", err)
	}
}

func TestWaitForReadyRejectsNonPositiveInterval(t *testing.T) {
	_, err := WaitForReady(context.Background(), func(context.Context) (CoordinationStatus, error) {
		return CoordinationStatus{}, nil
	}, 0, time.Second)
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}
