package derivation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/internal/logger"
	"github.com/TheWorldAvatar/BaseLib/sparql"
)

// Vocabulary mirrors the ontoderived / ontoagent / time namespaces: a derived node
// declares the agent that regenerates it, its inputs, its outputs (via belongsTo) and a
// time-position node carrying its freshness timestamp.
const (
	ClassDerived               = "https://www.theworldavatar.com/kg/ontoderivation/DerivedQuantity"
	ClassDerivedWithTimeSeries = "https://www.theworldavatar.com/kg/ontoderivation/DerivedQuantityWithTimeSeries"
	ClassService               = "https://www.theworldavatar.com/kg/ontoagent/Service"
	ClassTimePosition          = "https://www.theworldavatar.com/kg/ontology/time/TimePosition"

	PredIsDerivedFrom   = "https://www.theworldavatar.com/kg/ontoderivation/isDerivedFrom"
	PredIsDerivedUsing  = "https://www.theworldavatar.com/kg/ontoderivation/isDerivedUsing"
	PredBelongsTo       = "https://www.theworldavatar.com/kg/ontoderivation/belongsTo"
	PredHasHttpUrl      = "https://www.theworldavatar.com/kg/ontoagent/hasHttpUrl"
	PredHasTime         = "https://www.theworldavatar.com/kg/ontology/time/hasTime"
	PredNumericPosition = "https://www.theworldavatar.com/kg/ontology/time/numericPosition"
)

// Metadata is the Derived-Quantity Metadata Module: it formulates the SPARQL reads and
// writes describing derived nodes and reads back the shape of the dependency graph.
type Metadata struct {
	gw     sparql.Gateway
	logger zerolog.Logger
}

// NewMetadata wraps a gateway with the derivation vocabulary.
func NewMetadata(gw sparql.Gateway) *Metadata {
	return &Metadata{gw: gw, logger: logger.Get("derivation.metadata")}
}

// InitSpec describes the triples InitDerived writes for one node.
type InitSpec struct {
	NodeID           string
	AgentID          string
	AgentURL         string
	InputIDs         []string
	Timestamp        *int64 // nil defaults to the current wall-clock second
	IsTimeSeriesKind bool
}

// InitDerived inserts the triples describing a fresh derived node: its type, its agent
// (and the agent's HTTP URL), its inputs, and a fresh time-position carrying its
// timestamp. It fails if the node already carries derivation triples.
func (m *Metadata) InitDerived(ctx context.Context, spec InitSpec) error {
	already, err := m.gw.Ask(ctx, spec.NodeID, PredIsDerivedUsing, "")
	if err != nil {
		return &MetadataReadError{Cause: err}
	}
	if already {
		return &AlreadyInitialisedError{NodeID: spec.NodeID}
	}

	class := ClassDerived
	if spec.IsTimeSeriesKind {
		class = ClassDerivedWithTimeSeries
	}

	t := spec.Timestamp
	if t == nil {
		now := time.Now().Unix()
		t = &now
	}
	timeNode := "urn:uuid:" + uuid.New().String()

	triples := []sparql.Triple{
		sparql.IRI(spec.NodeID, sparql.RDFType, class),
		sparql.IRI(spec.NodeID, PredIsDerivedUsing, spec.AgentID),
		sparql.IRI(spec.AgentID, sparql.RDFType, ClassService),
		sparql.Lit(spec.AgentID, PredHasHttpUrl, spec.AgentURL),
		sparql.IRI(spec.NodeID, PredHasTime, timeNode),
		sparql.IRI(timeNode, sparql.RDFType, ClassTimePosition),
		sparql.Lit(timeNode, PredNumericPosition, strconv.FormatInt(*t, 10)),
	}
	for _, input := range spec.InputIDs {
		triples = append(triples, sparql.IRI(spec.NodeID, PredIsDerivedFrom, input))
	}

	if err := m.gw.AssertTriples(ctx, triples); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// InitInputTimeStamp gives a plain (non-derived) input a timestamp, so it can serve as
// a base case in freshness comparisons. It fails if the input already has one.
func (m *Metadata) InitInputTimeStamp(ctx context.Context, inputID string, t int64) error {
	already, err := m.gw.Ask(ctx, inputID, PredHasTime, "")
	if err != nil {
		return &MetadataReadError{Cause: err}
	}
	if already {
		return &AlreadyInitialisedError{NodeID: inputID}
	}

	timeNode := "urn:uuid:" + uuid.New().String()
	triples := []sparql.Triple{
		sparql.IRI(inputID, PredHasTime, timeNode),
		sparql.IRI(timeNode, sparql.RDFType, ClassTimePosition),
		sparql.Lit(timeNode, PredNumericPosition, strconv.FormatInt(t, 10)),
	}
	if err := m.gw.AssertTriples(ctx, triples); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// AgentURL returns the HTTP URL of the agent that regenerates nodeID.
func (m *Metadata) AgentURL(ctx context.Context, nodeID string) (string, error) {
	agents, err := m.gw.Objects(ctx, nodeID, PredIsDerivedUsing)
	if err != nil {
		return "", &MetadataReadError{Cause: err}
	}
	if len(agents) == 0 {
		return "", fmt.Errorf("derivation: node %q has no recorded agent", nodeID)
	}
	urls, err := m.gw.Objects(ctx, agents[0], PredHasHttpUrl)
	if err != nil {
		return "", &MetadataReadError{Cause: err}
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("derivation: agent %q has no recorded HTTP URL", agents[0])
	}
	return urls[0], nil
}

// Inputs returns nodeID's direct isDerivedFrom inputs.
func (m *Metadata) Inputs(ctx context.Context, nodeID string) ([]string, error) {
	inputs, err := m.gw.Objects(ctx, nodeID, PredIsDerivedFrom)
	if err != nil {
		return nil, &MetadataReadError{Cause: err}
	}
	return inputs, nil
}

// Timestamp reads instanceID's numericPosition. It errors if instanceID has no
// recorded time-position.
func (m *Metadata) Timestamp(ctx context.Context, instanceID string) (int64, error) {
	times, err := m.gw.Objects(ctx, instanceID, PredHasTime)
	if err != nil {
		return 0, &MetadataReadError{Cause: err}
	}
	if len(times) == 0 {
		return 0, fmt.Errorf("derivation: %q has no recorded timestamp", instanceID)
	}
	positions, err := m.gw.Objects(ctx, times[0], PredNumericPosition)
	if err != nil {
		return 0, &MetadataReadError{Cause: err}
	}
	if len(positions) == 0 {
		return 0, fmt.Errorf("derivation: time-position for %q has no numericPosition", instanceID)
	}
	t, err := strconv.ParseInt(positions[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("derivation: non-numeric timestamp for %q: %w", instanceID, err)
	}
	return t, nil
}

// UpdateTimestamp atomically replaces instanceID's numericPosition with t.
func (m *Metadata) UpdateTimestamp(ctx context.Context, instanceID string, t int64) error {
	times, err := m.gw.Objects(ctx, instanceID, PredHasTime)
	if err != nil {
		return &MetadataReadError{Cause: err}
	}
	if len(times) == 0 {
		return fmt.Errorf("derivation: %q has no time-position to update", instanceID)
	}
	if err := m.gw.ReplaceObject(ctx, times[0], PredNumericPosition, sparql.Lit("", "", strconv.FormatInt(t, 10))); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// DerivedEntities returns nodeID's current outputs: entities that belongTo it.
func (m *Metadata) DerivedEntities(ctx context.Context, nodeID string) ([]string, error) {
	entities, err := m.gw.Subjects(ctx, PredBelongsTo, nodeID)
	if err != nil {
		return nil, &MetadataReadError{Cause: err}
	}
	return entities, nil
}

// RecordOutputs adds a belongsTo edge from each of nodeID's freshly produced entities
// back to nodeID, so later reads of DerivedEntities see them as its current outputs.
func (m *Metadata) RecordOutputs(ctx context.Context, nodeID string, outputs []string) error {
	if len(outputs) == 0 {
		return nil
	}
	triples := make([]sparql.Triple, len(outputs))
	for i, entity := range outputs {
		triples[i] = sparql.IRI(entity, PredBelongsTo, nodeID)
	}
	if err := m.gw.AssertTriples(ctx, triples); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// DownstreamLink names one existing isDerivedFrom edge a reconciliation must replace:
// the downstream node that consumed the entity, and that entity's rdf:type.
type DownstreamLink struct {
	Downstream string
	Type       string
}

// IsDerivedFromEntities returns, for each entity, every downstream derived node that
// declares isDerivedFrom that entity, paired with the entity's rdf:type.
func (m *Metadata) IsDerivedFromEntities(ctx context.Context, entityIDs []string) ([]DownstreamLink, error) {
	var links []DownstreamLink
	for _, entity := range entityIDs {
		class, err := m.InstanceClass(ctx, entity)
		if err != nil {
			return nil, err
		}
		downstreams, err := m.gw.Subjects(ctx, PredIsDerivedFrom, entity)
		if err != nil {
			return nil, &MetadataReadError{Cause: err}
		}
		for _, d := range downstreams {
			links = append(links, DownstreamLink{Downstream: d, Type: class})
		}
	}
	return links, nil
}

// InstanceClass returns id's rdf:type.
func (m *Metadata) InstanceClass(ctx context.Context, id string) (string, error) {
	types, err := m.gw.Objects(ctx, id, sparql.RDFType)
	if err != nil {
		return "", &MetadataReadError{Cause: err}
	}
	if len(types) == 0 {
		return "", fmt.Errorf("derivation: %q has no recorded rdf:type", id)
	}
	return types[0], nil
}

// IsDerivedWithTimeSeries reports whether nodeID is the time-series variant, whose
// agent appends to an existing series instead of replacing its outputs.
func (m *Metadata) IsDerivedWithTimeSeries(ctx context.Context, nodeID string) (bool, error) {
	ok, err := m.gw.Ask(ctx, nodeID, sparql.RDFType, ClassDerivedWithTimeSeries)
	if err != nil {
		return false, &MetadataReadError{Cause: err}
	}
	return ok, nil
}

// ReconnectInput adds an isDerivedFrom edge from downstream to newEntity.
func (m *Metadata) ReconnectInput(ctx context.Context, newEntity, downstream string) error {
	if err := m.gw.AssertTriples(ctx, []sparql.Triple{sparql.IRI(downstream, PredIsDerivedFrom, newEntity)}); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// DeleteInstances removes every triple mentioning each id, on either side.
func (m *Metadata) DeleteInstances(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := m.gw.RemoveTriplesAbout(ctx, id); err != nil {
			return &MetadataWriteError{Cause: err}
		}
	}
	return nil
}

// Owner resolves one direct input to the identifier the traversal should recurse into:
// the input itself if it is a derived node, the derived node it belongsTo if it is an
// output, or "" if it is a plain leaf input with no further derivation behind it.
func (m *Metadata) Owner(ctx context.Context, inputID string) (string, error) {
	isDerived, err := m.gw.Ask(ctx, inputID, PredIsDerivedUsing, "")
	if err != nil {
		return "", &MetadataReadError{Cause: err}
	}
	if isDerived {
		return inputID, nil
	}

	owners, err := m.gw.Objects(ctx, inputID, PredBelongsTo)
	if err != nil {
		return "", &MetadataReadError{Cause: err}
	}
	if len(owners) > 0 {
		return owners[0], nil
	}
	return "", nil
}

// InputsAndDerivedOwners resolves every direct input of nodeID to the identifier the
// traversal should recurse into, via Owner, skipping plain leaf inputs.
func (m *Metadata) InputsAndDerivedOwners(ctx context.Context, nodeID string) ([]string, error) {
	inputs, err := m.Inputs(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	var owners []string
	for _, input := range inputs {
		owner, err := m.Owner(ctx, input)
		if err != nil {
			return nil, err
		}
		if owner != "" {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

// Rename re-points every triple mentioning oldID to newID, a bulk-rename helper for
// migrating an entity's identifier.
func (m *Metadata) Rename(ctx context.Context, oldID, newID string) error {
	triples, err := m.gw.TriplesAbout(ctx, oldID)
	if err != nil {
		return &MetadataReadError{Cause: err}
	}

	renamed := make([]sparql.Triple, 0, len(triples))
	for _, t := range triples {
		if t.Subject == oldID {
			t.Subject = newID
		}
		if !t.Literal && t.Object == oldID {
			t.Object = newID
		}
		renamed = append(renamed, t)
	}

	if err := m.gw.RemoveTriplesAbout(ctx, oldID); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	if err := m.gw.AssertTriples(ctx, renamed); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}
