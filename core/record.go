package core

import (
	"strconv"
	"time"

	"github.com/volatiletech/null/v8"
)

// Record is a single row of a relation, keyed by column name.
// Drivers scan columns into different Go types, the accessors below normalize them.
type Record map[string]interface{}

// Copy returns a shallow copy of the Record.
func (r Record) Copy() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	case interface{ String() string }:
		return v.String()
	default:
		return ""
	}
}

func (r Record) Int(col string) int {
	switch v := r[col].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case []byte:
		i, _ := strconv.Atoi(string(v))
		return i
	case string:
		i, _ := strconv.Atoi(v)
		return i
	default:
		return 0
	}
}

func (r Record) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case null.Time:
		return v.Time
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NullTime is like Time but reports NULL (or a missing column) as an invalid null.Time.
func (r Record) NullTime(col string) null.Time {
	switch v := r[col].(type) {
	case nil:
		return null.Time{}
	case null.Time:
		return v
	}
	t := r.Time(col)
	return null.NewTime(t, !t.IsZero())
}
