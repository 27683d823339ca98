package pipeline

import (
	"github.com/rotisserie/eris"

	"rxsync/internal"
	"rxsync/internal/table"
)

// Batch is the deduplicated union of the tables fetched in one run.
type Batch struct {
	Table   table.Table
	Fetched int
	Dropped int
}

// Assemble concatenates tables in the given order and drops every record that
// occurs again later in the concatenation. Cells are compared as fetched, before
// coercion. All tables must share the first table's column set; later tables
// are aligned to its column order. An empty input yields an empty batch.
func Assemble(tables []table.Table, policy KeyPolicy) (Batch, error) {
	if len(tables) == 0 {
		return Batch{Table: table.New(nil)}, nil
	}
	if policy == nil {
		policy = FullRowKey{}
	}

	columns := tables[0].Columns
	combined := table.New(columns)
	for i, t := range tables {
		aligned, err := t.Align(columns)
		if err != nil {
			return Batch{}, eris.Wrapf(internal.ErrSchemaMismatch, "table %d: %v", i, err)
		}
		combined.Rows = append(combined.Rows, aligned.Rows...)
	}

	key, err := policy.Bind(columns)
	if err != nil {
		return Batch{}, eris.Wrapf(internal.ErrConfiguration, "dedup key: %v", err)
	}
	out, dropped := DedupKeepLast(combined, key)
	return Batch{Table: out, Fetched: combined.Len(), Dropped: dropped}, nil
}
