package query

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// Executor runs generated query text against the warehouse.
type Executor interface {
	Execute(ctx context.Context, queryText string) (Result, error)
}

type Result struct {
	Columns  []string
	Rows     [][]Value
	Duration time.Duration
}

func (r Result) RowCount() int {
	return len(r.Rows)
}

// Records returns the rows keyed by column name, in column order.
func (r Result) Records() []Record {
	records := make([]Record, 0, len(r.Rows))
	for _, row := range r.Rows {
		records = append(records, Record{columns: r.Columns, values: row})
	}
	return records
}

type Record struct {
	columns []string
	values  []Value
}

func (r Record) Get(column string) (Value, bool) {
	for i, name := range r.columns {
		if name == column && i < len(r.values) {
			return r.values[i], true
		}
	}
	return Value{}, false
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value := Value{}
		if i < len(r.values) {
			value = r.values[i]
		}
		encoded, err := value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
