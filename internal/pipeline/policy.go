package pipeline

import (
	"fmt"
	"strings"

	"rxsync/internal/table"
)

// KeyPolicy decides which records count as duplicates of each other.
type KeyPolicy interface {
	Name() string
	// Bind resolves the policy against a column list.
	Bind(columns []string) (func(table.Record) string, error)
}

// FullRowKey treats two records as duplicates only when every cell is equal.
type FullRowKey struct{}

func (FullRowKey) Name() string { return "full_row" }

func (FullRowKey) Bind(_ []string) (func(table.Record) string, error) {
	return func(rec table.Record) string {
		return joinKeys(rec, nil)
	}, nil
}

// NaturalKey treats records sharing the listed columns as versions of the same
// record, so the newest one supersedes the rest.
type NaturalKey struct {
	Columns []string
}

func (k NaturalKey) Name() string { return "natural:" + strings.Join(k.Columns, ",") }

func (k NaturalKey) Bind(columns []string) (func(table.Record) string, error) {
	if len(k.Columns) == 0 {
		return nil, fmt.Errorf("natural key has no columns")
	}
	idx := make([]int, len(k.Columns))
	for i, name := range k.Columns {
		idx[i] = -1
		for j, c := range columns {
			if c == name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("natural key column %q not in table", name)
		}
	}
	return func(rec table.Record) string {
		return joinKeys(rec, idx)
	}, nil
}

// KeyPolicyFor returns FullRowKey for an empty column list, NaturalKey otherwise.
func KeyPolicyFor(columns []string) KeyPolicy {
	if len(columns) == 0 {
		return FullRowKey{}
	}
	return NaturalKey{Columns: columns}
}

func joinKeys(rec table.Record, idx []int) string {
	var b strings.Builder
	if idx == nil {
		for i, v := range rec {
			if i > 0 {
				b.WriteByte(0x1f)
			}
			b.WriteString(v.Key())
		}
		return b.String()
	}
	for i, p := range idx {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(rec[p].Key())
	}
	return b.String()
}

// RetentionPolicy bounds what a merged snapshot keeps.
type RetentionPolicy interface {
	Retain(t table.Table) table.Table
}

// RetainAll keeps every record forever.
type RetainAll struct{}

func (RetainAll) Retain(t table.Table) table.Table { return t }

// DedupKeepLast drops every record whose key appears again later in t. The
// survivors keep their relative order. dropped is the number of records removed.
func DedupKeepLast(t table.Table, key func(table.Record) string) (out table.Table, dropped int) {
	keys := make([]string, len(t.Rows))
	last := make(map[string]int, len(t.Rows))
	for i, rec := range t.Rows {
		k := key(rec)
		keys[i] = k
		last[k] = i
	}

	out = table.New(t.Columns)
	out.Rows = make([]table.Record, 0, len(last))
	for i, rec := range t.Rows {
		if last[keys[i]] != i {
			dropped++
			continue
		}
		out.Rows = append(out.Rows, rec.Clone())
	}
	return out, dropped
}
