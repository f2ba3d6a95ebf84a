package timeseries

import (
	"context"
	"fmt"
	"testing"

	"github.com/TheWorldAvatar/BaseLib/rdb"
)

func newTestStorage(t *testing.T) (*Storage[int64], Conn) {
	t.Helper()
	db, err := rdb.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStorage[int64](DialectSQLite, Int64Codec{}), db
}

func TestStorage_InitTable_DuplicateDataID(t *testing.T) {
	storage, conn := newTestStorage(t)
	ctx := context.Background()

	if err := storage.InitTable(ctx, conn, []string{"http://a"}, []ColumnClass{ClassDouble}, "http://ts1", nil); err != nil {
		t.Fatalf("first InitTable: %v", err)
	}

	err := storage.InitTable(ctx, conn, []string{"http://a"}, []ColumnClass{ClassDouble}, "http://ts2", nil)
	if _, ok := err.(*PreconditionError); !ok {
		t.Fatalf("expected *PreconditionError for duplicate data-id, got %T: %v", err, err)
	}
}

func TestStorage_InitTable_SizeMismatch(t *testing.T) {
	storage, conn := newTestStorage(t)
	ctx := context.Background()

	err := storage.InitTable(ctx, conn, []string{"http://a", "http://b"}, []ColumnClass{ClassDouble}, "http://ts1", nil)
	if _, ok := err.(*PreconditionError); !ok {
		t.Fatalf("expected *PreconditionError for size mismatch, got %T: %v", err, err)
	}
}

func TestStorage_DeleteSeries_DropsColumnNotTable(t *testing.T) {
	storage, conn := newTestStorage(t)
	ctx := context.Background()

	if err := storage.InitTable(ctx, conn, []string{"http://a", "http://b"}, []ColumnClass{ClassDouble, ClassInteger}, "http://ts1", nil); err != nil {
		t.Fatalf("InitTable: %v", err)
	}

	if err := storage.DeleteSeries(ctx, conn, "http://a"); err != nil {
		t.Fatalf("DeleteSeries: %v", err)
	}

	has, err := storage.HasTimeSeries(ctx, conn, "http://a")
	if err != nil || has {
		t.Fatalf("HasTimeSeries(a) after delete = %v, %v; want false", has, err)
	}
	has, err = storage.HasTimeSeries(ctx, conn, "http://b")
	if err != nil || !has {
		t.Fatalf("HasTimeSeries(b) after sibling delete = %v, %v; want true", has, err)
	}
}

func TestStorage_AggregatesAndEdgeRows(t *testing.T) {
	storage, conn := newTestStorage(t)
	ctx := context.Background()

	if err := storage.InitTable(ctx, conn, []string{"http://a"}, []ColumnClass{ClassDouble}, "http://ts1", nil); err != nil {
		t.Fatalf("InitTable: %v", err)
	}
	batch := DataBatch[int64]{
		DataIDs: []string{"http://a"},
		Times:   []int64{100, 200, 300},
		Values:  map[string][]any{"http://a": {1.0, 2.0, 3.0}},
	}
	if err := storage.AddData(ctx, conn, []DataBatch[int64]{batch}); err != nil {
		t.Fatalf("AddData: %v", err)
	}

	avg, err := storage.Average(ctx, conn, "http://a")
	if err != nil || avg != 2.0 {
		t.Fatalf("Average = %v, %v; want 2.0", avg, err)
	}

	latest, err := storage.LatestRow(ctx, conn, "http://a")
	if err != nil || latest == nil || latest.Time != 300 {
		t.Fatalf("LatestRow = %+v, %v; want time=300", latest, err)
	}

	oldest, err := storage.OldestRow(ctx, conn, "http://a")
	if err != nil || oldest == nil || oldest.Time != 100 {
		t.Fatalf("OldestRow = %+v, %v; want time=100", oldest, err)
	}
}

func TestStorage_InitTable_GeometryRequiresPostgres(t *testing.T) {
	storage, conn := newTestStorage(t)
	ctx := context.Background()

	err := storage.InitTable(ctx, conn, []string{"http://a"}, []ColumnClass{ClassGeometry}, "http://ts1", nil)
	if _, ok := err.(*PreconditionError); !ok {
		t.Fatalf("expected *PreconditionError for geometry column on SQLite, got %T: %v", err, err)
	}
}

func TestColumnClass_GeometrySQLType(t *testing.T) {
	srid := 4326
	sqlType, err := ClassGeometry.columnSQLType(DialectPostgres, &srid)
	if err != nil {
		t.Fatalf("columnSQLType: %v", err)
	}
	if sqlType != "GEOMETRY(Geometry,4326)" {
		t.Errorf("columnSQLType = %q, want GEOMETRY(Geometry,4326)", sqlType)
	}

	sqlType, err = ClassGeometry.columnSQLType(DialectPostgres, nil)
	if err != nil {
		t.Fatalf("columnSQLType without srid: %v", err)
	}
	if sqlType != "GEOMETRY" {
		t.Errorf("columnSQLType without srid = %q, want GEOMETRY", sqlType)
	}

	if _, err := ClassGeometry.columnSQLType(DialectDuckDB, &srid); err == nil {
		t.Fatal("expected error for geometry column on DuckDB")
	}
}

func TestStorage_DeleteAll(t *testing.T) {
	storage, conn := newTestStorage(t)
	ctx := context.Background()

	if err := storage.InitTable(ctx, conn, []string{"http://a"}, []ColumnClass{ClassDouble}, "http://ts1", nil); err != nil {
		t.Fatalf("InitTable: %v", err)
	}

	row, err := storage.lookup(ctx, conn, "http://a")
	if err != nil || row == nil {
		t.Fatalf("lookup before DeleteAll = %+v, %v; want a registered row", row, err)
	}
	dataTable := row.TableName

	if err := storage.DeleteAll(ctx, conn); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	// The lookup table itself is gone, so lookup must fail with a real driver error
	// rather than the not-found nil,nil it returns for a missing row.
	if _, err := storage.lookup(ctx, conn, "http://a"); err == nil {
		t.Fatal("lookup succeeded after DeleteAll; want an error because the lookup table no longer exists")
	}

	if _, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, dataTable)); err == nil {
		t.Fatalf("data table %s still queryable after DeleteAll", dataTable)
	}
}
