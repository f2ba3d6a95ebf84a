package derivation

import (
	"context"
	"testing"

	"github.com/TheWorldAvatar/BaseLib/agentcaller"
	"github.com/TheWorldAvatar/BaseLib/sparql"
)

func TestEngine_CircularDependency_S5(t *testing.T) {
	gw := sparql.NewFakeGateway()
	m := NewMetadata(gw)
	ctx := context.Background()

	tA := int64(100)
	tB := int64(100)
	if err := m.InitDerived(ctx, InitSpec{NodeID: "http://A", AgentID: "http://agentA", AgentURL: "http://agentA/update", InputIDs: []string{"http://B"}, Timestamp: &tA}); err != nil {
		t.Fatalf("InitDerived(A): %v", err)
	}
	if err := m.InitDerived(ctx, InitSpec{NodeID: "http://B", AgentID: "http://agentB", AgentURL: "http://agentB/update", InputIDs: []string{"http://A"}, Timestamp: &tB}); err != nil {
		t.Fatalf("InitDerived(B): %v", err)
	}

	engine := NewEngine(m, agentcaller.NewFakeCaller(nil))
	err := engine.Update(ctx, "http://A")
	if _, ok := err.(*CircularDependencyError); !ok {
		t.Fatalf("expected *CircularDependencyError, got %T: %v", err, err)
	}
}

// seedDiamond builds A isDerivedFrom {B, C}; B isDerivedFrom D; C isDerivedFrom D — a
// shared (non-cyclic) dependency reached via two branches, not a cycle.
func seedDiamond(t *testing.T, ctx context.Context, m *Metadata) {
	t.Helper()

	tD := int64(100)
	if err := m.InitInputTimeStamp(ctx, "http://D", tD); err != nil {
		t.Fatalf("InitInputTimeStamp(D): %v", err)
	}

	tB := int64(200)
	if err := m.InitDerived(ctx, InitSpec{NodeID: "http://B", AgentID: "http://agentB", AgentURL: "http://agentB/update", InputIDs: []string{"http://D"}, Timestamp: &tB}); err != nil {
		t.Fatalf("InitDerived(B): %v", err)
	}
	tC := int64(200)
	if err := m.InitDerived(ctx, InitSpec{NodeID: "http://C", AgentID: "http://agentC", AgentURL: "http://agentC/update", InputIDs: []string{"http://D"}, Timestamp: &tC}); err != nil {
		t.Fatalf("InitDerived(C): %v", err)
	}
	tA := int64(300)
	if err := m.InitDerived(ctx, InitSpec{NodeID: "http://A", AgentID: "http://agentA", AgentURL: "http://agentA/update", InputIDs: []string{"http://B", "http://C"}, Timestamp: &tA}); err != nil {
		t.Fatalf("InitDerived(A): %v", err)
	}
}

func TestEngine_Update_DiamondIsNotCircular(t *testing.T) {
	gw := sparql.NewFakeGateway()
	m := NewMetadata(gw)
	ctx := context.Background()
	seedDiamond(t, ctx, m)

	// Every node is already newer than its inputs, so no agent call is needed; this
	// isolates the traversal/cycle-detection behaviour from refresh behaviour.
	caller := agentcaller.NewFakeCaller(nil)
	engine := NewEngine(m, caller)
	if err := engine.Update(ctx, "http://A"); err != nil {
		t.Fatalf("Update(A) on a diamond dependency graph: %v", err)
	}
	if len(caller.Calls) != 0 {
		t.Fatalf("expected no agent calls, got %d", len(caller.Calls))
	}
}

func TestEngine_Validate_DiamondIsNotCircular(t *testing.T) {
	gw := sparql.NewFakeGateway()
	m := NewMetadata(gw)
	ctx := context.Background()
	seedDiamond(t, ctx, m)

	engine := NewEngine(m, agentcaller.NewFakeCaller(nil))
	ok, err := engine.Validate(ctx, "http://A")
	if err != nil || !ok {
		t.Fatalf("Validate(A) on a diamond dependency graph = %v, %v; want true, nil", ok, err)
	}
}

func TestEngine_Refresh_S6(t *testing.T) {
	gw := sparql.NewFakeGateway()
	m := NewMetadata(gw)
	ctx := context.Background()

	tY := int64(200)
	if err := m.InitInputTimeStamp(ctx, "http://Y", tY); err != nil {
		t.Fatalf("InitInputTimeStamp: %v", err)
	}

	tX := int64(100)
	if err := m.InitDerived(ctx, InitSpec{
		NodeID:    "http://X",
		AgentID:   "http://agentX",
		AgentURL:  "http://agentX/update",
		InputIDs:  []string{"http://Y"},
		Timestamp: &tX,
	}); err != nil {
		t.Fatalf("InitDerived(X): %v", err)
	}

	caller := agentcaller.NewFakeCaller(map[string][]string{
		"http://agentX/update": {"http://x-new"},
	})
	if err := gw.AssertTriples(ctx, []sparql.Triple{sparql.IRI("http://x-new", sparql.RDFType, "http://SomeClass")}); err != nil {
		t.Fatalf("seed new entity type: %v", err)
	}

	engine := NewEngine(m, caller)
	if err := engine.Update(ctx, "http://X"); err != nil {
		t.Fatalf("Update(X): %v", err)
	}

	outputs, err := m.DerivedEntities(ctx, "http://X")
	if err != nil || len(outputs) != 1 || outputs[0] != "http://x-new" {
		t.Fatalf("DerivedEntities(X) = %v, %v; want [http://x-new]", outputs, err)
	}

	newTimestamp, err := m.Timestamp(ctx, "http://X")
	if err != nil || newTimestamp <= tX {
		t.Fatalf("Timestamp(X) = %d, %v; want > %d", newTimestamp, err, tX)
	}

	if len(caller.Calls) != 1 {
		t.Fatalf("expected exactly 1 agent call, got %d", len(caller.Calls))
	}

	// A second update with Y's timestamp unchanged performs no further agent call.
	if err := engine.Update(ctx, "http://X"); err != nil {
		t.Fatalf("second Update(X): %v", err)
	}
	if len(caller.Calls) != 1 {
		t.Fatalf("expected no additional agent call, total calls = %d", len(caller.Calls))
	}
}

func TestEngine_LeafInput_NoAgentCall(t *testing.T) {
	gw := sparql.NewFakeGateway()
	m := NewMetadata(gw)
	ctx := context.Background()

	caller := agentcaller.NewFakeCaller(nil)
	engine := NewEngine(m, caller)

	// A node with no isDerivedFrom inputs at all is a plain input; nothing to do.
	if err := gw.AssertTriples(ctx, []sparql.Triple{sparql.IRI("http://leaf", sparql.RDFType, "http://SomeClass")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := engine.Update(ctx, "http://leaf"); err != nil {
		t.Fatalf("Update(leaf): %v", err)
	}
	if len(caller.Calls) != 0 {
		t.Fatalf("expected no agent calls for a leaf, got %d", len(caller.Calls))
	}
}

func TestEngine_Validate(t *testing.T) {
	gw := sparql.NewFakeGateway()
	m := NewMetadata(gw)
	ctx := context.Background()

	tY := int64(200)
	if err := m.InitInputTimeStamp(ctx, "http://Y", tY); err != nil {
		t.Fatalf("InitInputTimeStamp: %v", err)
	}
	tX := int64(100)
	if err := m.InitDerived(ctx, InitSpec{NodeID: "http://X", AgentID: "http://agentX", AgentURL: "http://agentX/update", InputIDs: []string{"http://Y"}, Timestamp: &tX}); err != nil {
		t.Fatalf("InitDerived: %v", err)
	}

	engine := NewEngine(m, agentcaller.NewFakeCaller(nil))
	ok, err := engine.Validate(ctx, "http://X")
	if err != nil || !ok {
		t.Fatalf("Validate(X) = %v, %v; want true, nil", ok, err)
	}
}

func TestEngine_Validate_MissingTimestamp(t *testing.T) {
	gw := sparql.NewFakeGateway()
	m := NewMetadata(gw)
	ctx := context.Background()

	tX := int64(100)
	if err := m.InitDerived(ctx, InitSpec{NodeID: "http://X", AgentID: "http://agentX", AgentURL: "http://agentX/update", InputIDs: []string{"http://Y"}, Timestamp: &tX}); err != nil {
		t.Fatalf("InitDerived: %v", err)
	}
	// http://Y never got a timestamp.

	engine := NewEngine(m, agentcaller.NewFakeCaller(nil))
	ok, err := engine.Validate(ctx, "http://X")
	if err != nil {
		t.Fatalf("Validate(X) returned error: %v", err)
	}
	if ok {
		t.Fatal("Validate(X) = true, want false (Y has no timestamp)")
	}
}
