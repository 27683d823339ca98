// Package table holds the in-memory tabular model shared by the merge engine,
// the decoders and the snapshot store.
//
// A Table is an ordered list of Records over a fixed column list. Records are
// positional: Record[i] is the cell for Columns[i].
package table

import (
	"fmt"
	"sort"
	"strings"
)

// Record is one row, aligned with the owning Table's Columns.
type Record []Value

// Clone returns a copy that shares no backing array with r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	copy(out, r)
	return out
}

func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

type Table struct {
	Columns []string
	Rows    []Record
}

// New returns an empty table over the given columns.
func New(columns []string) Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return Table{Columns: cols}
}

// FromStrings builds a table of raw text cells. Short rows are padded with
// empty text and long rows truncated to the header width.
func FromStrings(columns []string, rows [][]string) Table {
	t := New(columns)
	t.Rows = make([]Record, 0, len(rows))
	for _, raw := range rows {
		rec := make(Record, len(columns))
		for i := range columns {
			cell := ""
			if i < len(raw) {
				cell = raw[i]
			}
			rec[i] = Text(cell)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

func (t Table) Len() int { return len(t.Rows) }

// Index returns the position of column name, or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Get returns the cell at row i for column name; absent if the column is unknown.
func (t Table) Get(i int, name string) Value {
	idx := t.Index(name)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return Absent()
	}
	return t.Rows[i][idx]
}

// Append adds a record after checking its width.
func (t *Table) Append(rec Record) error {
	if len(rec) != len(t.Columns) {
		return fmt.Errorf("record has %d cells, table has %d columns", len(rec), len(t.Columns))
	}
	t.Rows = append(t.Rows, rec)
	return nil
}

// Clone deep-copies the column list and every record.
func (t Table) Clone() Table {
	out := New(t.Columns)
	out.Rows = make([]Record, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// SameColumnSet reports whether both tables carry the same column names,
// ignoring order.
func (t Table) SameColumnSet(o Table) bool {
	return sameSet(t.Columns, o.Columns)
}

// Align returns t with its columns reordered to match columns. The column
// sets must be identical.
func (t Table) Align(columns []string) (Table, error) {
	if !sameSet(t.Columns, columns) {
		return Table{}, fmt.Errorf("column set mismatch: have [%s], want [%s]",
			strings.Join(t.Columns, ","), strings.Join(columns, ","))
	}
	perm := make([]int, len(columns))
	for i, c := range columns {
		perm[i] = t.Index(c)
	}
	out := New(columns)
	out.Rows = make([]Record, len(t.Rows))
	for i, r := range t.Rows {
		rec := make(Record, len(columns))
		for j, p := range perm {
			rec[j] = r[p]
		}
		out.Rows[i] = rec
	}
	return out, nil
}

// Equal compares columns in order and rows in order.
func Equal(a, b Table) bool {
	if len(a.Columns) != len(b.Columns) || len(a.Rows) != len(b.Rows) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	for i := range a.Rows {
		if !a.Rows[i].Equal(b.Rows[i]) {
			return false
		}
	}
	return true
}

// DuplicateColumns returns column names that appear more than once.
func DuplicateColumns(columns []string) []string {
	seen := map[string]int{}
	for _, c := range columns {
		seen[c]++
	}
	var dups []string
	for c, n := range seen {
		if n > 1 {
			dups = append(dups, c)
		}
	}
	sort.Strings(dups)
	return dups
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, c := range a {
		counts[c]++
	}
	for _, c := range b {
		counts[c]--
		if counts[c] < 0 {
			return false
		}
	}
	return true
}
