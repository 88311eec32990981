package agentpact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProposeAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/intents" && r.Method == http.MethodPost:
			var req ProposeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("unexpected body: %v", err)
			}
			if req.TypeLabel != "swap" {
				t.Fatalf("unexpected type label: %s", req.TypeLabel)
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(IntentRecord{
				IntentHash: "0xabc",
				Intent:     Intent{Nonce: 2, CoordinationValue: "1000"},
			})
		case r.URL.Path == "/api/v1/intents/0xabc/status":
			_ = json.NewEncoder(w).Encode(StatusView{Status: "proposed"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	rec, err := client.Propose(context.Background(), ProposeRequest{
		Participants: []string{"0x0000000000000000000000000000000000000002"},
		TypeLabel:    "swap",
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if rec.IntentHash != "0xabc" || rec.Intent.Nonce != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	st, err := client.Status(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != "proposed" {
		t.Fatalf("unexpected status: %s", st.Status)
	}
}

func TestListIntentsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/intents" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Fatalf("unexpected limit: %s", r.URL.Query().Get("limit"))
		}
		_ = json.NewEncoder(w).Encode([]IntentRecord{{IntentHash: "0x01"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	records, err := client.ListIntents(context.Background(), 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestAwaitReadySendsWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/intents/0xabc/await" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]float64
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["timeout_seconds"] != 30 {
			t.Fatalf("unexpected timeout: %v", body["timeout_seconds"])
		}
		_ = json.NewEncoder(w).Encode(StatusView{Status: "ready"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	st, err := client.AwaitReady(context.Background(), "0xabc", 2*time.Second, 30*time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if st.Status != "ready" {
		t.Fatalf("unexpected status: %s", st.Status)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "CONFLICT",
			"message": "acceptance already recorded",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	_, err := client.Accept(context.Background(), "0xabc", AcceptRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "CONFLICT" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestRegisterPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/policies" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req PolicyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if len(req.Actions) != 1 {
			t.Fatalf("expected 1 action, got %d", len(req.Actions))
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(PolicyRegistration{PolicyID: "0x51", TxHash: "0x10"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	reg, err := client.RegisterPolicy(context.Background(), PolicyRequest{
		Agent:   "0x0000000000000000000000000000000000000001",
		Actions: []PolicyAction{{Target: "0x00000000000000000000000000000000000000a1", Signature: "transfer(address,uint256)"}},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.PolicyID != "0x51" {
		t.Fatalf("unexpected policy id: %s", reg.PolicyID)
	}
}
