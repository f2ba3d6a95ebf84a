package timeseries

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/internal/logger"
	"github.com/TheWorldAvatar/BaseLib/sparql"
)

// Vocabulary mirrors the OntoTimeSeries namespace: a series carries its own rdf:type,
// the database URL it is stored in, an optional time unit, and one hasTimeSeries edge
// per member data-identifier.
const (
	ClassTimeSeries   = "https://www.theworldavatar.com/kg/ontotimeseries/TimeSeries"
	PredHasTimeSeries = "https://www.theworldavatar.com/kg/ontotimeseries/hasTimeSeries"
	PredHasRDB        = "https://www.theworldavatar.com/kg/ontotimeseries/hasRDB"
	PredHasTimeUnit   = "https://www.theworldavatar.com/kg/ontotimeseries/hasTimeUnit"
)

// Metadata is the Time-Series Metadata Module: it formulates the SPARQL reads and
// writes describing time-series entities and their associations to data identifiers.
// Every public method is either one atomic update or a pure read; no operation issues
// two dependent writes.
type Metadata struct {
	gw     sparql.Gateway
	logger zerolog.Logger
}

// NewMetadata wraps a gateway with the time-series vocabulary.
func NewMetadata(gw sparql.Gateway) *Metadata {
	return &Metadata{gw: gw, logger: logger.Get("timeseries.metadata")}
}

// Series describes one series to be written by Init or BulkInit.
type Series struct {
	SeriesID string
	DataIDs  []string
	DBURL    string
	TimeUnit string // empty means unset
}

// Init atomically inserts the triples describing one series: its type, its backing
// database URL, a hasTimeSeries edge per data-identifier, and its time unit if given.
func (m *Metadata) Init(ctx context.Context, s Series) error {
	return m.BulkInit(ctx, []Series{s})
}

// BulkInit writes the triples for every given series in a single atomic update, the
// batched analogue of Init.
func (m *Metadata) BulkInit(ctx context.Context, series []Series) error {
	var triples []sparql.Triple
	for _, s := range series {
		triples = append(triples, sparql.IRI(s.SeriesID, sparql.RDFType, ClassTimeSeries))
		triples = append(triples, sparql.Lit(s.SeriesID, PredHasRDB, s.DBURL))
		for _, dataID := range s.DataIDs {
			triples = append(triples, sparql.IRI(dataID, PredHasTimeSeries, s.SeriesID))
		}
		if s.TimeUnit != "" {
			triples = append(triples, sparql.Lit(s.SeriesID, PredHasTimeUnit, s.TimeUnit))
		}
	}

	if err := m.gw.AssertTriples(ctx, triples); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// Exists reports whether seriesID has been initialised.
func (m *Metadata) Exists(ctx context.Context, seriesID string) (bool, error) {
	ok, err := m.gw.Ask(ctx, seriesID, sparql.RDFType, ClassTimeSeries)
	if err != nil {
		return false, &MetadataReadError{Cause: err}
	}
	return ok, nil
}

// Remove deletes every triple in which seriesID appears as subject or object.
// Idempotent: removing an absent series is a no-op, not an error.
func (m *Metadata) Remove(ctx context.Context, seriesID string) error {
	if err := m.gw.RemoveTriplesAbout(ctx, seriesID); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// RemoveAssociation deletes the single `data-id hasTimeSeries ?x` triple.
func (m *Metadata) RemoveAssociation(ctx context.Context, dataID string) error {
	if err := m.gw.RemoveTriple(ctx, dataID, PredHasTimeSeries); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// InsertAssociation adds a `data-id hasTimeSeries series-id` triple, the inverse of
// RemoveAssociation, used for compensation.
func (m *Metadata) InsertAssociation(ctx context.Context, dataID, seriesID string) error {
	if err := m.gw.AssertTriples(ctx, []sparql.Triple{sparql.IRI(dataID, PredHasTimeSeries, seriesID)}); err != nil {
		return &MetadataWriteError{Cause: err}
	}
	return nil
}

// AssociatedData returns the data-identifiers belonging to seriesID; an empty slice
// when the series has none or does not exist.
func (m *Metadata) AssociatedData(ctx context.Context, seriesID string) ([]string, error) {
	dataIDs, err := m.gw.Subjects(ctx, PredHasTimeSeries, seriesID)
	if err != nil {
		return nil, &MetadataReadError{Cause: err}
	}
	return dataIDs, nil
}

// SeriesOf returns the series dataID belongs to, or "" if it belongs to none.
func (m *Metadata) SeriesOf(ctx context.Context, dataID string) (string, error) {
	values, err := m.gw.Objects(ctx, dataID, PredHasTimeSeries)
	if err != nil {
		return "", &MetadataReadError{Cause: err}
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

// DBURL returns the backing database URL recorded for seriesID.
func (m *Metadata) DBURL(ctx context.Context, seriesID string) (string, error) {
	values, err := m.gw.Objects(ctx, seriesID, PredHasRDB)
	if err != nil {
		return "", &MetadataReadError{Cause: err}
	}
	if len(values) == 0 {
		return "", fmt.Errorf("timeseries: series %q has no recorded database URL", seriesID)
	}
	return values[0], nil
}

// TimeUnit returns the time unit recorded for seriesID, or "" if none was set.
func (m *Metadata) TimeUnit(ctx context.Context, seriesID string) (string, error) {
	values, err := m.gw.Objects(ctx, seriesID, PredHasTimeUnit)
	if err != nil {
		return "", &MetadataReadError{Cause: err}
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

// TimeUnitExists reports whether seriesID has a time unit recorded, as a direct ASK
// check. It returns false both when the series has no time unit and when the series
// does not exist.
func (m *Metadata) TimeUnitExists(ctx context.Context, seriesID string) (bool, error) {
	ok, err := m.gw.Ask(ctx, seriesID, PredHasTimeUnit, "")
	if err != nil {
		return false, &MetadataReadError{Cause: err}
	}
	return ok, nil
}

// Count returns the number of time-series currently recorded.
func (m *Metadata) Count(ctx context.Context) (int, error) {
	n, err := m.gw.CountOfType(ctx, ClassTimeSeries)
	if err != nil {
		return 0, &MetadataReadError{Cause: err}
	}
	return n, nil
}

// ListAll returns every recorded series identifier.
func (m *Metadata) ListAll(ctx context.Context) ([]string, error) {
	ids, err := m.gw.SubjectsOfType(ctx, ClassTimeSeries)
	if err != nil {
		return nil, &MetadataReadError{Cause: err}
	}
	return ids, nil
}
