package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is a single result cell. Numbers keep their decimal text and dates
// are held as UTC RFC 3339 strings. The zero Value is null.
type Value struct {
	kind Kind
	text string
	flag bool
}

func NullValue() Value {
	return Value{}
}

func StringValue(s string) Value {
	return Value{kind: KindString, text: s}
}

func NumberValue(n json.Number) Value {
	return Value{kind: KindNumber, text: n.String()}
}

func BoolValue(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

func DateValue(t time.Time) Value {
	return Value{kind: KindDate, text: t.UTC().Format(time.RFC3339Nano)}
}

// FromDriver converts a value scanned from database/sql into a Value.
func FromDriver(raw any) Value {
	switch typed := raw.(type) {
	case nil:
		return NullValue()
	case Value:
		return typed
	case string:
		return StringValue(typed)
	case []byte:
		return StringValue(string(typed))
	case bool:
		return BoolValue(typed)
	case int:
		return NumberValue(json.Number(strconv.FormatInt(int64(typed), 10)))
	case int8:
		return NumberValue(json.Number(strconv.FormatInt(int64(typed), 10)))
	case int16:
		return NumberValue(json.Number(strconv.FormatInt(int64(typed), 10)))
	case int32:
		return NumberValue(json.Number(strconv.FormatInt(int64(typed), 10)))
	case int64:
		return NumberValue(json.Number(strconv.FormatInt(typed, 10)))
	case uint:
		return NumberValue(json.Number(strconv.FormatUint(uint64(typed), 10)))
	case uint8:
		return NumberValue(json.Number(strconv.FormatUint(uint64(typed), 10)))
	case uint16:
		return NumberValue(json.Number(strconv.FormatUint(uint64(typed), 10)))
	case uint32:
		return NumberValue(json.Number(strconv.FormatUint(uint64(typed), 10)))
	case uint64:
		return NumberValue(json.Number(strconv.FormatUint(typed, 10)))
	case float32:
		return floatValue(float64(typed), 32)
	case float64:
		return floatValue(typed, 64)
	case json.Number:
		return NumberValue(typed)
	case *big.Int:
		if typed == nil {
			return NullValue()
		}
		return NumberValue(json.Number(typed.String()))
	case *big.Rat:
		if typed == nil {
			return NullValue()
		}
		return NumberValue(json.Number(typed.FloatString(10)))
	case time.Time:
		return DateValue(typed)
	case uuid.UUID:
		return StringValue(typed.String())
	case [16]byte:
		return StringValue(uuid.UUID(typed).String())
	case fmt.Stringer:
		return StringValue(typed.String())
	default:
		return StringValue(fmt.Sprint(typed))
	}
}

// NaN and infinities have no JSON number form and are kept as text.
func floatValue(f float64, bitSize int) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return StringValue(strconv.FormatFloat(f, 'g', -1, bitSize))
	}
	return NumberValue(json.Number(strconv.FormatFloat(f, 'g', -1, bitSize)))
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Text returns the textual form of the value; null is the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.flag)
	default:
		return v.text
	}
}

func (v Value) Bool() (bool, bool) {
	return v.flag, v.kind == KindBool
}

func (v Value) Number() (json.Number, bool) {
	return json.Number(v.text), v.kind == KindNumber
}

func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, v.text)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// Interface returns the natural Go value for the kind.
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindDate:
		return v.text
	case KindNumber:
		return json.Number(v.text)
	case KindBool:
		return v.flag
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "NULL"
	}
	return v.Text()
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return []byte(v.text), nil
	case KindBool:
		return json.Marshal(v.flag)
	default:
		return json.Marshal(v.text)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case nil:
		*v = NullValue()
	case bool:
		*v = BoolValue(typed)
	case json.Number:
		*v = NumberValue(typed)
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, typed); err == nil {
			*v = DateValue(parsed)
			return nil
		}
		*v = StringValue(typed)
	default:
		return fmt.Errorf("unsupported JSON value %s", string(data))
	}
	return nil
}
