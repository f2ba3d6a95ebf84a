package agentcaller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPCaller_Call(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.DerivedAgentInput) != 2 {
			t.Fatalf("expected 2 inputs, got %v", req.DerivedAgentInput)
		}
		json.NewEncoder(w).Encode(Response{DerivedAgentOutput: []string{"out:1"}})
	}))
	defer server.Close()

	caller := NewHTTPCaller(server.Client())
	resp, err := caller.Call(context.Background(), server.URL, []string{"in:1", "in:2"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(resp.DerivedAgentOutput) != 1 || resp.DerivedAgentOutput[0] != "out:1" {
		t.Errorf("DerivedAgentOutput = %v, want [out:1]", resp.DerivedAgentOutput)
	}
}

func TestHTTPCaller_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("agent exploded"))
	}))
	defer server.Close()

	caller := NewHTTPCaller(server.Client())
	_, err := caller.Call(context.Background(), server.URL, []string{"in:1"})
	if err == nil {
		t.Fatal("expected error on non-success status")
	}
	agentErr, ok := err.(*AgentError)
	if !ok {
		t.Fatalf("expected *AgentError, got %T", err)
	}
	if agentErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", agentErr.StatusCode)
	}
}

func TestFakeCaller(t *testing.T) {
	fake := NewFakeCaller(map[string][]string{
		"http://agent.example/update": {"out:1", "out:2"},
	})

	resp, err := fake.Call(context.Background(), "http://agent.example/update", []string{"in:1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(resp.DerivedAgentOutput) != 2 {
		t.Errorf("DerivedAgentOutput = %v, want 2 entries", resp.DerivedAgentOutput)
	}
	if len(fake.Calls) != 1 || fake.Calls[0].DerivedAgentInput[0] != "in:1" {
		t.Errorf("fake did not record the call correctly: %v", fake.Calls)
	}
}

func TestFakeCaller_UnknownURL(t *testing.T) {
	fake := NewFakeCaller(nil)
	if _, err := fake.Call(context.Background(), "http://unknown.example", nil); err == nil {
		t.Fatal("expected error for unprogrammed URL")
	}
}
