package sqlexec

import (
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/querydesk/querydesk/internal/query"
)

// normalizeValues converts one scanned row. typeNames holds the driver's
// database type name per column and may be shorter than values.
func normalizeValues(values []any, typeNames []string) []query.Value {
	normalized := make([]query.Value, len(values))
	for i, value := range values {
		if i < len(typeNames) && isDecimalType(typeNames[i]) {
			if v, ok := decimalText(value); ok {
				normalized[i] = v
				continue
			}
		}
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

func isDecimalType(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	return strings.HasPrefix(name, "NUMERIC") || strings.HasPrefix(name, "DECIMAL")
}

// decimalText maps the text form pgx reports for NUMERIC cells to a number.
// NaN and infinities have no JSON number form and stay text.
func decimalText(value any) (query.Value, bool) {
	var text string
	switch typed := value.(type) {
	case string:
		text = typed
	case []byte:
		text = string(typed)
	default:
		return query.Value{}, false
	}
	text = strings.TrimSpace(text)
	if strings.ContainsAny(text, "nNiI") {
		return query.StringValue(text), true
	}
	if _, err := strconv.ParseFloat(text, 64); err != nil && !errors.Is(err, strconv.ErrRange) {
		return query.StringValue(text), true
	}
	return query.NumberValue(json.Number(text)), true
}

func normalizeValue(value any) query.Value {
	switch typed := value.(type) {
	case duckdb.Decimal:
		return decimalValue(typed)
	case *duckdb.Decimal:
		if typed == nil {
			return query.NullValue()
		}
		return decimalValue(*typed)
	default:
		return query.FromDriver(value)
	}
}

// decimalValue keeps the exact scaled digits of a DuckDB DECIMAL.
func decimalValue(d duckdb.Decimal) query.Value {
	if d.Value == nil {
		return query.NullValue()
	}
	if d.Scale == 0 {
		return query.NumberValue(json.Number(d.Value.String()))
	}
	denominator := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
	rat := new(big.Rat).SetFrac(d.Value, denominator)
	return query.NumberValue(json.Number(rat.FloatString(int(d.Scale))))
}
