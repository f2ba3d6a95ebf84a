package timeseries

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/internal/logger"
)

// MetadataStore is the subset of Metadata's methods the coordinator depends on,
// narrowed to an interface so tests can substitute a faulty stub for the scenarios in
// which a composite operation's metadata step must fail on demand.
type MetadataStore interface {
	Init(ctx context.Context, s Series) error
	BulkInit(ctx context.Context, series []Series) error
	Exists(ctx context.Context, seriesID string) (bool, error)
	Remove(ctx context.Context, seriesID string) error
	RemoveAssociation(ctx context.Context, dataID string) error
	InsertAssociation(ctx context.Context, dataID, seriesID string) error
	AssociatedData(ctx context.Context, seriesID string) ([]string, error)
	SeriesOf(ctx context.Context, dataID string) (string, error)
	DBURL(ctx context.Context, seriesID string) (string, error)
	TimeUnit(ctx context.Context, seriesID string) (string, error)
}

// StorageBackend is the subset of Storage[T]'s methods the coordinator depends on,
// narrowed to an interface for the same reason as MetadataStore.
type StorageBackend[T any] interface {
	InitTable(ctx context.Context, conn Conn, dataIDs []string, classes []ColumnClass, seriesID string, srid *int) error
	AddData(ctx context.Context, conn Conn, batches []DataBatch[T]) error
	GetWithinBounds(ctx context.Context, conn Conn, dataIDs []string, lower, upper *T) ([]Row[T], error)
	DeleteSeries(ctx context.Context, conn Conn, dataID string) error
	DeleteTable(ctx context.Context, conn Conn, dataID string) error
	LatestRow(ctx context.Context, conn Conn, dataID string) (*Row[T], error)
	OldestRow(ctx context.Context, conn Conn, dataID string) (*Row[T], error)
}

var (
	_ MetadataStore         = (*Metadata)(nil)
	_ StorageBackend[int64] = (*Storage[int64])(nil)
)

// Coordinator orchestrates the Metadata and Storage modules with compensating rollback
// on partial failure. It holds no SQL connection itself: every mutating method takes
// one supplied by the caller. It is parameterised once, at construction, by the time
// column type — monomorphic thereafter, rather than a class hierarchy keyed on time type.
type Coordinator[T any] struct {
	metadata MetadataStore
	storage  StorageBackend[T]
	logger   zerolog.Logger
}

// NewCoordinator composes a metadata module and a storage module into one coordinator.
func NewCoordinator[T any](metadata MetadataStore, storage StorageBackend[T]) *Coordinator[T] {
	return &Coordinator[T]{metadata: metadata, storage: storage, logger: logger.Get("timeseries.coordinator")}
}

// InitTimeSeries writes metadata, then creates storage; on storage failure it attempts
// to remove the metadata it just wrote. srid is optional and only consulted for columns
// declared ClassGeometry.
func (c *Coordinator[T]) InitTimeSeries(ctx context.Context, conn Conn, seriesID string, dataIDs []string, classes []ColumnClass, dbURL, timeUnit string, srid *int) error {
	if err := c.metadata.Init(ctx, Series{SeriesID: seriesID, DataIDs: dataIDs, DBURL: dbURL, TimeUnit: timeUnit}); err != nil {
		return &CreateError{SeriesID: seriesID, Cause: err}
	}

	if err := c.storage.InitTable(ctx, conn, dataIDs, classes, seriesID, srid); err != nil {
		if compErr := c.metadata.Remove(ctx, seriesID); compErr != nil {
			return &InconsistentStateError{Identifier: seriesID, Store: "triple store", Cause: compErr}
		}
		return &CreateError{SeriesID: seriesID, Cause: err}
	}

	return nil
}

// BulkSpec describes one series for BulkInitTimeSeries. SRID is optional and only
// consulted for columns declared ClassGeometry.
type BulkSpec struct {
	SeriesID string
	DataIDs  []string
	Classes  []ColumnClass
	DBURL    string
	TimeUnit string
	SRID     *int
}

// BulkInitTimeSeries writes metadata for every series in one update, then creates
// storage tables sequentially. If the i-th storage creation fails, compensation removes
// only the i-th series from metadata; earlier series remain well-formed.
func (c *Coordinator[T]) BulkInitTimeSeries(ctx context.Context, conn Conn, specs []BulkSpec) error {
	series := make([]Series, len(specs))
	for i, spec := range specs {
		series[i] = Series{SeriesID: spec.SeriesID, DataIDs: spec.DataIDs, DBURL: spec.DBURL, TimeUnit: spec.TimeUnit}
	}
	if err := c.metadata.BulkInit(ctx, series); err != nil {
		return &CreateError{SeriesID: "(bulk)", Cause: err}
	}

	for _, spec := range specs {
		if err := c.storage.InitTable(ctx, conn, spec.DataIDs, spec.Classes, spec.SeriesID, spec.SRID); err != nil {
			if compErr := c.metadata.Remove(ctx, spec.SeriesID); compErr != nil {
				return &InconsistentStateError{Identifier: spec.SeriesID, Store: "triple store", Cause: compErr}
			}
			return &CreateError{SeriesID: spec.SeriesID, Cause: err}
		}
	}
	return nil
}

// DeleteTimeSeries removes a whole series: it verifies existence, snapshots its
// metadata, removes the metadata, then drops the storage table. If dropping storage
// fails, it re-inserts the snapshot (best-effort); if that also fails, it raises
// InconsistentStateError.
func (c *Coordinator[T]) DeleteTimeSeries(ctx context.Context, conn Conn, seriesID string) error {
	exists, err := c.metadata.Exists(ctx, seriesID)
	if err != nil {
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}
	if !exists {
		return &PreconditionError{Message: fmt.Sprintf("series %q does not exist", seriesID)}
	}

	dataIDs, err := c.metadata.AssociatedData(ctx, seriesID)
	if err != nil {
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}
	timeUnit, err := c.metadata.TimeUnit(ctx, seriesID)
	if err != nil {
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}
	dbURL, err := c.metadata.DBURL(ctx, seriesID)
	if err != nil {
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}

	if len(dataIDs) == 0 {
		return &PreconditionError{Message: fmt.Sprintf("series %q has no associated data-identifiers", seriesID)}
	}

	if err := c.metadata.Remove(ctx, seriesID); err != nil {
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}

	if err := c.storage.DeleteTable(ctx, conn, dataIDs[0]); err != nil {
		snapshot := Series{SeriesID: seriesID, DataIDs: dataIDs, DBURL: dbURL, TimeUnit: timeUnit}
		if compErr := c.metadata.Init(ctx, snapshot); compErr != nil {
			return &InconsistentStateError{Identifier: seriesID, Store: "relational store", Cause: compErr}
		}
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}

	return nil
}

// DeleteIndividual removes one data-identifier's membership in its series. If it is the
// series' only member, this delegates to DeleteTimeSeries; otherwise it removes the
// association triple, then drops the column, re-inserting the association on failure.
func (c *Coordinator[T]) DeleteIndividual(ctx context.Context, conn Conn, dataID string) error {
	seriesID, err := c.metadata.SeriesOf(ctx, dataID)
	if err != nil {
		return &DeleteError{SeriesID: dataID, Cause: err}
	}
	if seriesID == "" {
		return &PreconditionError{Message: fmt.Sprintf("data-identifier %q has no associated series", dataID)}
	}

	siblings, err := c.metadata.AssociatedData(ctx, seriesID)
	if err != nil {
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}
	if len(siblings) <= 1 {
		return c.DeleteTimeSeries(ctx, conn, seriesID)
	}

	if err := c.metadata.RemoveAssociation(ctx, dataID); err != nil {
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}

	if err := c.storage.DeleteSeries(ctx, conn, dataID); err != nil {
		if compErr := c.metadata.InsertAssociation(ctx, dataID, seriesID); compErr != nil {
			return &InconsistentStateError{Identifier: dataID, Store: "relational store", Cause: compErr}
		}
		return &DeleteError{SeriesID: seriesID, Cause: err}
	}

	return nil
}

// AddData appends samples, delegating straight to the storage module: appends carry no
// compensation template of their own.
func (c *Coordinator[T]) AddData(ctx context.Context, conn Conn, batches []DataBatch[T]) error {
	if err := c.storage.AddData(ctx, conn, batches); err != nil {
		return err
	}
	return nil
}

// GetWithinBounds is a pass-through read.
func (c *Coordinator[T]) GetWithinBounds(ctx context.Context, conn Conn, dataIDs []string, lower, upper *T) ([]Row[T], error) {
	return c.storage.GetWithinBounds(ctx, conn, dataIDs, lower, upper)
}

// LatestData is a pass-through read returning a series' most recent sample.
func (c *Coordinator[T]) LatestData(ctx context.Context, conn Conn, dataID string) (*Row[T], error) {
	return c.storage.LatestRow(ctx, conn, dataID)
}

// OldestData is a pass-through read, the symmetric counterpart to LatestData.
func (c *Coordinator[T]) OldestData(ctx context.Context, conn Conn, dataID string) (*Row[T], error) {
	return c.storage.OldestRow(ctx, conn, dataID)
}

// Metadata exposes the underlying metadata module, typed as MetadataStore. Reads outside
// that interface, such as Count and ListAll, are not reachable through it.
func (c *Coordinator[T]) Metadata() MetadataStore { return c.metadata }

// Storage exposes the underlying storage module, typed as StorageBackend. Aggregate
// reads such as Average, MaxValue and MinValue are not part of that interface.
func (c *Coordinator[T]) Storage() StorageBackend[T] { return c.storage }
