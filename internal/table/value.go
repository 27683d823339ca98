package table

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind tags the representation held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindText
	KindInt
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// Value is a single cell. The zero Value is the absence marker.
type Value struct {
	kind Kind
	text string
	num  int64
	dec  decimal.Decimal
}

func Absent() Value { return Value{} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Int(n int64) Value { return Value{kind: KindInt, num: n} }

func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, dec: d} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Text returns the textual form of the value. Absent renders as "".
func (v Value) Text() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindDecimal:
		return v.dec.String()
	default:
		return ""
	}
}

func (v Value) String() string { return v.Text() }

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.num, true
}

func (v Value) Decimal() (decimal.Decimal, bool) {
	if v.kind != KindDecimal {
		return decimal.Zero, false
	}
	return v.dec, true
}

// Equal compares kind and value. Decimals compare numerically, so 12.50 equals 12.5.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindInt:
		return v.num == o.num
	case KindDecimal:
		return v.dec.Equal(o.dec)
	default:
		return true
	}
}

// Key is a kind-tagged string such that a.Key() == b.Key() iff a.Equal(b).
func (v Value) Key() string {
	switch v.kind {
	case KindText:
		return "t:" + v.text
	case KindInt:
		return "i:" + strconv.FormatInt(v.num, 10)
	case KindDecimal:
		return "d:" + v.dec.String()
	default:
		return "a:"
	}
}

// MarshalJSON writes absent as null, text as a string and numbers as JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindInt:
		return []byte(strconv.FormatInt(v.num, 10)), nil
	case KindDecimal:
		return []byte(v.dec.String()), nil
	default:
		return []byte("null"), nil
	}
}
