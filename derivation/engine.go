package derivation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/agentcaller"
	"github.com/TheWorldAvatar/BaseLib/internal/logger"
)

// Engine is the Derived-Quantity Engine: the recursive up-to-date protocol over the
// dependency graph the Metadata module reads and writes.
type Engine struct {
	metadata *Metadata
	caller   agentcaller.Caller
	logger   zerolog.Logger
}

// NewEngine composes a metadata module and an agent caller into one engine.
func NewEngine(metadata *Metadata, caller agentcaller.Caller) *Engine {
	return &Engine{metadata: metadata, caller: caller, logger: logger.Get("derivation.engine")}
}

// Update brings nodeID up to date: it recurses into nodeID's dependency graph
// (rejecting cycles), calls nodeID's agent if any input is newer, reconciles outputs,
// and refreshes nodeID's timestamp. A failed agent call aborts this update without
// rolling back recursive successes already committed during traversal — the engine is
// best-effort forward progress, not transactional.
func (e *Engine) Update(ctx context.Context, nodeID string) error {
	return e.update(ctx, nodeID, make(map[string]bool))
}

func (e *Engine) update(ctx context.Context, nodeID string, visited map[string]bool) error {
	owners, err := e.metadata.InputsAndDerivedOwners(ctx, nodeID)
	if err != nil {
		return err
	}
	// visited marks nodeID, the parent, right before recursing into each owner, the
	// child; the cycle check below is against the child, never against nodeID itself.
	// Marking nodeID at entry instead would flag a shared (non-cyclic) dependency
	// reached through two different branches as circular.
	for _, owner := range owners {
		if visited[owner] {
			return &CircularDependencyError{NodeID: owner}
		}
		visited[nodeID] = true
		if err := e.update(ctx, owner, visited); err != nil {
			return err
		}
	}

	inputs, err := e.metadata.Inputs(ctx, nodeID)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return nil
	}

	outOfDate, err := e.isOutOfDate(ctx, nodeID, inputs)
	if err != nil {
		return err
	}
	if !outOfDate {
		return nil
	}

	if err := e.refresh(ctx, nodeID, inputs); err != nil {
		return err
	}

	return e.metadata.UpdateTimestamp(ctx, nodeID, time.Now().Unix())
}

func (e *Engine) isOutOfDate(ctx context.Context, nodeID string, inputs []string) (bool, error) {
	nodeTime, err := e.metadata.Timestamp(ctx, nodeID)
	if err != nil {
		return false, err
	}
	for _, input := range inputs {
		inputTime, err := e.metadata.Timestamp(ctx, input)
		if err != nil {
			return false, err
		}
		if inputTime > nodeTime {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) refresh(ctx context.Context, nodeID string, inputs []string) error {
	agentURL, err := e.metadata.AgentURL(ctx, nodeID)
	if err != nil {
		return err
	}

	resp, err := e.caller.Call(ctx, agentURL, inputs)
	if err != nil {
		return err
	}

	timeSeriesVariant, err := e.metadata.IsDerivedWithTimeSeries(ctx, nodeID)
	if err != nil {
		return err
	}
	if timeSeriesVariant {
		e.logger.Debug().Str("node", nodeID).Msg("time-series derived node: skipping output reconciliation")
		return nil
	}

	return e.reconcileOutputs(ctx, nodeID, resp.DerivedAgentOutput)
}

// reconcileOutputs replaces nodeID's current outputs with newOutputs, reconnecting any
// downstream nodes that referenced the old outputs to the matching new ones by type.
// Each old (downstream, type) pair must match exactly one new output of that type;
// zero or multiple matches raise ReconnectionError.
func (e *Engine) reconcileOutputs(ctx context.Context, nodeID string, newOutputs []string) error {
	oldOutputs, err := e.metadata.DerivedEntities(ctx, nodeID)
	if err != nil {
		return err
	}

	links, err := e.metadata.IsDerivedFromEntities(ctx, oldOutputs)
	if err != nil {
		return err
	}

	if err := e.metadata.DeleteInstances(ctx, oldOutputs); err != nil {
		return err
	}

	if err := e.metadata.RecordOutputs(ctx, nodeID, newOutputs); err != nil {
		return err
	}

	if len(links) == 0 {
		return nil
	}

	newTypes := make(map[string][]string, len(newOutputs))
	for _, entity := range newOutputs {
		class, err := e.metadata.InstanceClass(ctx, entity)
		if err != nil {
			return err
		}
		newTypes[class] = append(newTypes[class], entity)
	}

	for _, link := range links {
		matches := newTypes[link.Type]
		if len(matches) != 1 {
			return &ReconnectionError{Downstream: link.Downstream, Type: link.Type, Matches: len(matches)}
		}
		if err := e.metadata.ReconnectInput(ctx, matches[0], link.Downstream); err != nil {
			return err
		}
	}
	return nil
}

// Validate repeats Update's traversal and cycle detection without mutating anything,
// additionally asserting that every visited derived node and every input has a
// readable timestamp.
func (e *Engine) Validate(ctx context.Context, nodeID string) (bool, error) {
	return e.validate(ctx, nodeID, make(map[string]bool))
}

func (e *Engine) validate(ctx context.Context, nodeID string, visited map[string]bool) (bool, error) {
	if _, err := e.metadata.Timestamp(ctx, nodeID); err != nil {
		return false, nil
	}

	owners, err := e.metadata.InputsAndDerivedOwners(ctx, nodeID)
	if err != nil {
		return false, err
	}
	// Same push-parent/check-child scheme as update: mark nodeID just before recursing
	// into each owner and check the owner, not nodeID itself, against visited.
	for _, owner := range owners {
		if visited[owner] {
			return false, nil
		}
		visited[nodeID] = true
		ok, err := e.validate(ctx, owner, visited)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	inputs, err := e.metadata.Inputs(ctx, nodeID)
	if err != nil {
		return false, err
	}
	for _, input := range inputs {
		if _, err := e.metadata.Timestamp(ctx, input); err != nil {
			return false, nil
		}
	}

	return true, nil
}
