package timeseries

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/internal/logger"
)

// Conn is the subset of *sql.DB / *sql.Tx the storage module needs. Storage never owns
// a connection: every mutating method takes one as its argument right after ctx and
// returns without closing or retaining it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Conn = (*sql.DB)(nil)
	_ Conn = (*sql.Tx)(nil)
)

// Dialect picks the placeholder style for the backing SQL engine, which database/sql
// does not abstract over, and decides whether ClassGeometry columns are allowed.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectDuckDB
	DialectPostgres
)

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ColumnClass is the declared type of one data column.
type ColumnClass int

const (
	ClassDouble ColumnClass = iota
	ClassInteger
	ClassText
	ClassBoolean
	// ClassGeometry declares a PostGIS geometry column; it is only valid against
	// DialectPostgres.
	ClassGeometry
)

// columnSQLType resolves the DDL type for a column, given the table's dialect and the
// srid InitTable was called with. Geometry columns need both: PostGIS's column type
// syntax is dialect-specific and, when srid is set, bakes the spatial reference into the
// type itself rather than as a separate constraint.
func (c ColumnClass) columnSQLType(dialect Dialect, srid *int) (string, error) {
	if c == ClassGeometry {
		if dialect != DialectPostgres {
			return "", &PreconditionError{Message: "ClassGeometry requires DialectPostgres (PostGIS)"}
		}
		if srid == nil {
			return "GEOMETRY", nil
		}
		return fmt.Sprintf("GEOMETRY(Geometry,%d)", *srid), nil
	}
	switch c {
	case ClassInteger:
		return "BIGINT", nil
	case ClassText:
		return "TEXT", nil
	case ClassBoolean:
		return "BOOLEAN", nil
	default:
		return "DOUBLE PRECISION", nil
	}
}

// TimeCodec adapts the coordinator-chosen time column type T to and from the
// driver-level value database/sql exchanges with the backing table.
type TimeCodec[T any] interface {
	SQLType() string
	ToSQL(T) any
	FromSQL(any) (T, error)
}

const defaultLookupTable = "dbTable"

// Storage is the Time-Series Storage Module: it maintains the central lookup table
// (dataIRI, timeseriesIRI, tableName, columnName) plus one data table per time-series,
// against a caller-supplied connection. It is parameterised once, at construction, by
// the Go type used for the time column — generic, not a class hierarchy.
type Storage[T any] struct {
	lookupTable string
	dialect     Dialect
	codec       TimeCodec[T]
	logger      zerolog.Logger
}

// NewStorage returns a storage module using the default lookup table name.
func NewStorage[T any](dialect Dialect, codec TimeCodec[T]) *Storage[T] {
	return &Storage[T]{
		lookupTable: defaultLookupTable,
		dialect:     dialect,
		codec:       codec,
		logger:      logger.Get("timeseries.storage"),
	}
}

func sanitize(id uuid.UUID, prefix string) string {
	return prefix + strings.ReplaceAll(id.String(), "-", "")
}

func (s *Storage[T]) ensureLookupTable(ctx context.Context, conn Conn) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		dataIRI TEXT PRIMARY KEY,
		timeseriesIRI TEXT NOT NULL,
		tableName TEXT NOT NULL,
		columnName TEXT NOT NULL
	)`, s.lookupTable)
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return &StorageError{Cause: fmt.Errorf("create lookup table: %w", err)}
	}
	return nil
}

// lookupRow is one row of the central lookup table.
type lookupRow struct {
	DataIRI       string
	TimeseriesIRI string
	TableName     string
	ColumnName    string
}

func (s *Storage[T]) lookup(ctx context.Context, conn Conn, dataID string) (*lookupRow, error) {
	query := fmt.Sprintf(`SELECT dataIRI, timeseriesIRI, tableName, columnName FROM %s WHERE dataIRI = %s`,
		s.lookupTable, s.dialect.placeholder(1))
	row := conn.QueryRowContext(ctx, query, dataID)

	var r lookupRow
	if err := row.Scan(&r.DataIRI, &r.TimeseriesIRI, &r.TableName, &r.ColumnName); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &StorageError{Cause: err}
	}
	return &r, nil
}

func (s *Storage[T]) lookupAll(ctx context.Context, conn Conn, dataIDs []string) (map[string]*lookupRow, error) {
	rows := make(map[string]*lookupRow, len(dataIDs))
	for _, id := range dataIDs {
		r, err := s.lookup(ctx, conn, id)
		if err != nil {
			return nil, err
		}
		rows[id] = r
	}
	return rows, nil
}

// resolveTable verifies every data-identifier is registered and resolves to the same
// table, returning that table name and the column each data-identifier maps to.
func (s *Storage[T]) resolveTable(ctx context.Context, conn Conn, dataIDs []string) (string, map[string]string, error) {
	rows, err := s.lookupAll(ctx, conn, dataIDs)
	if err != nil {
		return "", nil, err
	}

	table := ""
	columns := make(map[string]string, len(dataIDs))
	for _, id := range dataIDs {
		r := rows[id]
		if r == nil {
			return "", nil, &PreconditionError{Message: fmt.Sprintf("data-identifier %q is not registered", id)}
		}
		if table == "" {
			table = r.TableName
		} else if table != r.TableName {
			return "", nil, &PreconditionError{Message: "data-identifiers span multiple tables"}
		}
		columns[id] = r.ColumnName
	}
	return table, columns, nil
}

// InitTable creates a fresh data table for seriesID and registers one lookup row per
// data-identifier. Preconditions: len(dataIDs) == len(classes); no data-identifier
// already appears in the lookup table. srid is optional and only consulted for columns
// declared ClassGeometry; pass nil when no column is a geometry.
func (s *Storage[T]) InitTable(ctx context.Context, conn Conn, dataIDs []string, classes []ColumnClass, seriesID string, srid *int) error {
	if len(dataIDs) != len(classes) {
		return &PreconditionError{Message: "len(dataIDs) != len(classes)"}
	}

	if err := s.ensureLookupTable(ctx, conn); err != nil {
		return err
	}

	existing, err := s.lookupAll(ctx, conn, dataIDs)
	if err != nil {
		return err
	}
	for id, r := range existing {
		if r != nil {
			return &PreconditionError{Message: fmt.Sprintf("data-identifier %q is already registered", id)}
		}
	}

	tableName := sanitize(uuid.New(), "ts_")
	columnNames := make([]string, len(dataIDs))
	for i := range dataIDs {
		columnNames[i] = sanitize(uuid.New(), "col_")
	}

	var ddl strings.Builder
	fmt.Fprintf(&ddl, `CREATE TABLE %s (%s %s`, tableName, quoteIdent("time"), s.codec.SQLType())
	for i, class := range classes {
		colType, err := class.columnSQLType(s.dialect, srid)
		if err != nil {
			return err
		}
		fmt.Fprintf(&ddl, `, %s %s`, quoteIdent(columnNames[i]), colType)
	}
	ddl.WriteString(")")

	if _, err := conn.ExecContext(ctx, ddl.String()); err != nil {
		return &StorageError{Cause: fmt.Errorf("create data table: %w", err)}
	}

	insert := fmt.Sprintf(`INSERT INTO %s (dataIRI, timeseriesIRI, tableName, columnName) VALUES (%s, %s, %s, %s)`,
		s.lookupTable, s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4))
	for i, dataID := range dataIDs {
		if _, err := conn.ExecContext(ctx, insert, dataID, seriesID, tableName, columnNames[i]); err != nil {
			return &StorageError{Cause: fmt.Errorf("insert lookup row for %q: %w", dataID, err)}
		}
	}

	s.logger.Debug().Str("series", seriesID).Str("table", tableName).Int("columns", len(dataIDs)).Msg("initialised data table")
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// DataBatch is one batch of co-timestamped samples for a set of data-identifiers,
// passed to AddData.
type DataBatch[T any] struct {
	DataIDs []string
	Times   []T
	Values  map[string][]any // dataID -> one value per entry in Times
}

// AddData appends every batch's rows to their shared data table. Every batch's
// data-identifiers must resolve to the same table.
func (s *Storage[T]) AddData(ctx context.Context, conn Conn, batches []DataBatch[T]) error {
	for _, batch := range batches {
		if err := s.addBatch(ctx, conn, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage[T]) addBatch(ctx context.Context, conn Conn, batch DataBatch[T]) error {
	table, columns, err := s.resolveTable(ctx, conn, batch.DataIDs)
	if err != nil {
		return err
	}

	colNames := make([]string, 0, len(batch.DataIDs)+1)
	colNames = append(colNames, quoteIdent("time"))
	for _, id := range batch.DataIDs {
		colNames = append(colNames, quoteIdent(columns[id]))
	}

	placeholders := make([]string, len(colNames))
	for i := range placeholders {
		placeholders[i] = s.dialect.placeholder(i + 1)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, strings.Join(colNames, ", "), strings.Join(placeholders, ", "))

	for i, t := range batch.Times {
		args := make([]any, 0, len(colNames))
		args = append(args, s.codec.ToSQL(t))
		for _, id := range batch.DataIDs {
			values := batch.Values[id]
			if i >= len(values) {
				return &PreconditionError{Message: fmt.Sprintf("data-identifier %q has fewer values than timestamps", id)}
			}
			args = append(args, values[i])
		}
		if _, err := conn.ExecContext(ctx, insert, args...); err != nil {
			return &StorageError{Cause: fmt.Errorf("insert row into %s: %w", table, err)}
		}
	}
	return nil
}

// Row is one sample row returned by GetWithinBounds: a timestamp plus one value per
// requested data-identifier, in request order.
type Row[T any] struct {
	Time   T
	Values []any
}

// GetWithinBounds returns rows for the given data-identifiers sorted ascending by time.
// lower and upper are inclusive when non-nil; nil means unbounded on that side.
func (s *Storage[T]) GetWithinBounds(ctx context.Context, conn Conn, dataIDs []string, lower, upper *T) ([]Row[T], error) {
	table, columns, err := s.resolveTable(ctx, conn, dataIDs)
	if err != nil {
		return nil, err
	}

	selectCols := make([]string, 0, len(dataIDs)+1)
	selectCols = append(selectCols, quoteIdent("time"))
	for _, id := range dataIDs {
		selectCols = append(selectCols, quoteIdent(columns[id]))
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(selectCols, ", "), table)
	var args []any
	var clauses []string
	n := 1
	if lower != nil {
		clauses = append(clauses, fmt.Sprintf(`%s >= %s`, quoteIdent("time"), s.dialect.placeholder(n)))
		args = append(args, s.codec.ToSQL(*lower))
		n++
	}
	if upper != nil {
		clauses = append(clauses, fmt.Sprintf(`%s <= %s`, quoteIdent("time"), s.dialect.placeholder(n)))
		args = append(args, s.codec.ToSQL(*upper))
		n++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s ASC", quoteIdent("time"))

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Cause: err}
	}
	defer rows.Close()

	var result []Row[T]
	for rows.Next() {
		scanTargets := make([]any, len(selectCols))
		var rawTime any
		scanTargets[0] = &rawTime
		values := make([]any, len(dataIDs))
		for i := range values {
			scanTargets[i+1] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, &StorageError{Cause: err}
		}
		t, err := s.codec.FromSQL(rawTime)
		if err != nil {
			return nil, &StorageError{Cause: err}
		}
		result = append(result, Row[T]{Time: t, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Cause: err}
	}
	return result, nil
}

// DeleteRows deletes rows where lower <= time <= upper from dataID's table.
func (s *Storage[T]) DeleteRows(ctx context.Context, conn Conn, dataID string, lower, upper T) error {
	table, _, err := s.resolveTable(ctx, conn, []string{dataID})
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s >= %s AND %s <= %s`,
		table, quoteIdent("time"), s.dialect.placeholder(1), quoteIdent("time"), s.dialect.placeholder(2))
	if _, err := conn.ExecContext(ctx, query, s.codec.ToSQL(lower), s.codec.ToSQL(upper)); err != nil {
		return &StorageError{Cause: err}
	}
	return nil
}

// DeleteSeries drops dataID's column from its data table and removes its lookup row.
// It does not check whether other data-identifiers remain in that table, and it never
// drops the table itself.
func (s *Storage[T]) DeleteSeries(ctx context.Context, conn Conn, dataID string) error {
	row, err := s.lookup(ctx, conn, dataID)
	if err != nil {
		return err
	}
	if row == nil {
		return &PreconditionError{Message: fmt.Sprintf("data-identifier %q is not registered", dataID)}
	}

	query := fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`, row.TableName, quoteIdent(row.ColumnName))
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return &StorageError{Cause: err}
	}

	del := fmt.Sprintf(`DELETE FROM %s WHERE dataIRI = %s`, s.lookupTable, s.dialect.placeholder(1))
	if _, err := conn.ExecContext(ctx, del, dataID); err != nil {
		return &StorageError{Cause: err}
	}
	return nil
}

// DeleteTable drops the whole data table associated with dataID and removes every
// lookup row pointing to it.
func (s *Storage[T]) DeleteTable(ctx context.Context, conn Conn, dataID string) error {
	row, err := s.lookup(ctx, conn, dataID)
	if err != nil {
		return err
	}
	if row == nil {
		return &PreconditionError{Message: fmt.Sprintf("data-identifier %q is not registered", dataID)}
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, row.TableName)); err != nil {
		return &StorageError{Cause: err}
	}

	del := fmt.Sprintf(`DELETE FROM %s WHERE tableName = %s`, s.lookupTable, s.dialect.placeholder(1))
	if _, err := conn.ExecContext(ctx, del, row.TableName); err != nil {
		return &StorageError{Cause: err}
	}
	return nil
}

// DeleteAll drops every data table and the lookup table itself.
func (s *Storage[T]) DeleteAll(ctx context.Context, conn Conn) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT tableName FROM %s`, s.lookupTable))
	if err != nil {
		return &StorageError{Cause: err}
	}
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return &StorageError{Cause: err}
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &StorageError{Cause: err}
	}

	for _, t := range tables {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, t)); err != nil {
			return &StorageError{Cause: err}
		}
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, s.lookupTable)); err != nil {
		return &StorageError{Cause: err}
	}
	return nil
}

// HasTimeSeries reports whether dataID is registered in the lookup table.
func (s *Storage[T]) HasTimeSeries(ctx context.Context, conn Conn, dataID string) (bool, error) {
	row, err := s.lookup(ctx, conn, dataID)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func (s *Storage[T]) aggregate(ctx context.Context, conn Conn, fn, dataID string) (any, error) {
	table, columns, err := s.resolveTable(ctx, conn, []string{dataID})
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s(%s) FROM %s`, fn, quoteIdent(columns[dataID]), table)
	var value any
	if err := conn.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return nil, &StorageError{Cause: err}
	}
	return value, nil
}

// Average returns AVG(dataID) over its whole data table.
func (s *Storage[T]) Average(ctx context.Context, conn Conn, dataID string) (float64, error) {
	v, err := s.aggregate(ctx, conn, "AVG", dataID)
	if err != nil {
		return 0, err
	}
	return toFloat64(v)
}

// MaxValue returns MAX(dataID) over its whole data table.
func (s *Storage[T]) MaxValue(ctx context.Context, conn Conn, dataID string) (any, error) {
	return s.aggregate(ctx, conn, "MAX", dataID)
}

// MinValue returns MIN(dataID) over its whole data table.
func (s *Storage[T]) MinValue(ctx context.Context, conn Conn, dataID string) (any, error) {
	return s.aggregate(ctx, conn, "MIN", dataID)
}

func (s *Storage[T]) timeAggregate(ctx context.Context, conn Conn, fn, dataID string) (T, error) {
	var zero T
	table, _, err := s.resolveTable(ctx, conn, []string{dataID})
	if err != nil {
		return zero, err
	}
	query := fmt.Sprintf(`SELECT %s(%s) FROM %s`, fn, quoteIdent("time"), table)
	var raw any
	if err := conn.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return zero, &StorageError{Cause: err}
	}
	t, err := s.codec.FromSQL(raw)
	if err != nil {
		return zero, &StorageError{Cause: err}
	}
	return t, nil
}

// MaxTime returns the latest time value recorded for dataID.
func (s *Storage[T]) MaxTime(ctx context.Context, conn Conn, dataID string) (T, error) {
	return s.timeAggregate(ctx, conn, "MAX", dataID)
}

// MinTime returns the earliest time value recorded for dataID.
func (s *Storage[T]) MinTime(ctx context.Context, conn Conn, dataID string) (T, error) {
	return s.timeAggregate(ctx, conn, "MIN", dataID)
}

// LatestRow returns the single most recent sample row for dataID.
func (s *Storage[T]) LatestRow(ctx context.Context, conn Conn, dataID string) (*Row[T], error) {
	return s.edgeRow(ctx, conn, dataID, "DESC")
}

// OldestRow returns the single earliest sample row for dataID.
func (s *Storage[T]) OldestRow(ctx context.Context, conn Conn, dataID string) (*Row[T], error) {
	return s.edgeRow(ctx, conn, dataID, "ASC")
}

func (s *Storage[T]) edgeRow(ctx context.Context, conn Conn, dataID, order string) (*Row[T], error) {
	table, columns, err := s.resolveTable(ctx, conn, []string{dataID})
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s, %s FROM %s ORDER BY %s %s LIMIT 1`,
		quoteIdent("time"), quoteIdent(columns[dataID]), table, quoteIdent("time"), order)

	var rawTime, value any
	if err := conn.QueryRowContext(ctx, query).Scan(&rawTime, &value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &StorageError{Cause: err}
	}
	t, err := s.codec.FromSQL(rawTime)
	if err != nil {
		return nil, &StorageError{Cause: err}
	}
	return &Row[T]{Time: t, Values: []any{value}}, nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("timeseries: cannot convert %T to float64", v)
	}
}
