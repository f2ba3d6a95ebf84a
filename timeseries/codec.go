package timeseries

import (
	"fmt"
	"time"
)

// Int64Codec stores the time column as a plain integer, e.g. Unix seconds.
type Int64Codec struct{}

func (Int64Codec) SQLType() string   { return "BIGINT" }
func (Int64Codec) ToSQL(t int64) any { return t }
func (Int64Codec) FromSQL(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("timeseries: cannot convert %T to int64", v)
	}
}

// TimestampCodec stores the time column as a native SQL timestamp, decoded into Go's
// time.Time.
type TimestampCodec struct{}

func (TimestampCodec) SQLType() string       { return "TIMESTAMP" }
func (TimestampCodec) ToSQL(t time.Time) any { return t }
func (TimestampCodec) FromSQL(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("timeseries: cannot convert %T to time.Time", v)
	}
}

var (
	_ TimeCodec[int64]     = Int64Codec{}
	_ TimeCodec[time.Time] = TimestampCodec{}
)
