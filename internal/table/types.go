package table

import (
	"fmt"
	"strings"
)

// ColumnType is the declared type class of a column.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnInteger
	ColumnDecimal
)

func (c ColumnType) String() string {
	switch c {
	case ColumnInteger:
		return "integer"
	case ColumnDecimal:
		return "decimal"
	default:
		return "text"
	}
}

func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "string":
		return ColumnText, nil
	case "integer", "int":
		return ColumnInteger, nil
	case "decimal", "float", "numeric":
		return ColumnDecimal, nil
	default:
		return ColumnText, fmt.Errorf("unknown column type %q", s)
	}
}

// TypeMap maps column names to their type class. Columns not present are text.
type TypeMap map[string]ColumnType

func (m TypeMap) For(column string) ColumnType {
	if m == nil {
		return ColumnText
	}
	return m[column]
}
