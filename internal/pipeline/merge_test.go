package pipeline

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxsync/internal"
	"rxsync/internal/table"
)

var mergeCols = []string{"PATIENTNO", "RXNO", "QUANT", "PATIENTCOPAY"}

func mergeOpts() MergeOptions {
	return MergeOptions{Types: rxTypes}
}

func TestMergeFirstRun(t *testing.T) {
	batch := table.FromStrings(mergeCols, [][]string{{"100", "1", " 3 ", "1.50"}})
	res, err := Merge(nil, batch, mergeOpts())
	require.NoError(t, err)

	want, _ := Coerce(batch, rxTypes)
	assert.True(t, table.Equal(want, res.Snapshot))
	assert.Equal(t, 0, res.Prior)
	assert.Equal(t, 1, res.Batch)
}

func TestMergeChangedValueKeepsBothRows(t *testing.T) {
	prior := table.FromStrings(mergeCols, [][]string{{"100", "1", "3", ""}})
	batch := table.FromStrings(mergeCols, [][]string{{"100", "1", "5", ""}})

	res, err := Merge(&prior, batch, mergeOpts())
	require.NoError(t, err)
	require.Equal(t, 2, res.Snapshot.Len())

	q0, _ := res.Snapshot.Get(0, "QUANT").Int()
	q1, _ := res.Snapshot.Get(1, "QUANT").Int()
	assert.Equal(t, int64(3), q0)
	assert.Equal(t, int64(5), q1)
}

func TestMergeNaturalKeySupersedes(t *testing.T) {
	prior := table.FromStrings(mergeCols, [][]string{{"100", "1", "3", ""}})
	batch := table.FromStrings(mergeCols, [][]string{{"100", "1", "5", ""}})

	opts := mergeOpts()
	opts.Key = NaturalKey{Columns: []string{"PATIENTNO", "RXNO"}}
	res, err := Merge(&prior, batch, opts)
	require.NoError(t, err)
	require.Equal(t, 1, res.Snapshot.Len())
	q, _ := res.Snapshot.Get(0, "QUANT").Int()
	assert.Equal(t, int64(5), q)
}

func TestMergeExactDuplicateInBatch(t *testing.T) {
	batch := table.FromStrings(mergeCols, [][]string{
		{"100", "1", "3", "2.00"},
		{"100", "1", "3", "2.00"},
	})
	res, err := Merge(nil, batch, mergeOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Snapshot.Len())
	assert.Equal(t, 1, res.Dropped)
}

func TestMergeComparesCanonicalForm(t *testing.T) {
	// As persisted: integers and a trimmed decimal.
	prior := table.FromStrings(mergeCols, [][]string{{"100", "1", "3", "12.5"}})
	// As freshly fetched: padded and with a trailing zero.
	batch := table.FromStrings(mergeCols, [][]string{{" 100", "1", "3 ", "12.50"}})

	res, err := Merge(&prior, batch, mergeOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Snapshot.Len())
}

func TestMergeEmptyBatchIsRenormalization(t *testing.T) {
	prior := table.FromStrings(mergeCols, [][]string{
		{"100", "1", "3", "12.5"},
		{"101", "2", "five", "null"},
		{"102", "3", "", "None"},
	})
	for name, batch := range map[string]table.Table{
		"no columns":   table.New(nil),
		"same columns": table.New(mergeCols),
	} {
		t.Run(name, func(t *testing.T) {
			res, err := Merge(&prior, batch, mergeOpts())
			require.NoError(t, err)
			want, _ := Coerce(prior, rxTypes)
			assert.True(t, table.Equal(want, res.Snapshot))

			again, err := Merge(&res.Snapshot, batch, mergeOpts())
			require.NoError(t, err)
			assert.True(t, table.Equal(res.Snapshot, again.Snapshot))
		})
	}
}

func TestMergeRowCountBounds(t *testing.T) {
	prior := table.FromStrings(mergeCols, [][]string{
		{"1", "1", "1", ""}, {"2", "2", "2", ""}, {"3", "3", "3", ""},
	})
	disjoint := table.FromStrings(mergeCols, [][]string{{"4", "4", "4", ""}, {"5", "5", "5", ""}})
	overlapping := table.FromStrings(mergeCols, [][]string{{"3", "3", "3", ""}, {"6", "6", "6", ""}})

	res, err := Merge(&prior, disjoint, mergeOpts())
	require.NoError(t, err)
	assert.Equal(t, prior.Len()+disjoint.Len(), res.Snapshot.Len())

	res, err = Merge(&prior, overlapping, mergeOpts())
	require.NoError(t, err)
	c := res.Snapshot.Len()
	assert.GreaterOrEqual(t, c, prior.Len())
	assert.LessOrEqual(t, c, prior.Len()+overlapping.Len())
	assert.Equal(t, 4, c)
}

func TestMergeBatchCopyWinsPosition(t *testing.T) {
	prior := table.FromStrings(mergeCols, [][]string{{"1", "1", "1", ""}, {"2", "2", "2", ""}})
	batch := table.FromStrings(mergeCols, [][]string{{"1", "1", "1", ""}})
	res, err := Merge(&prior, batch, mergeOpts())
	require.NoError(t, err)
	// The prior copy of record 1 is dropped; the batch copy is kept at the end.
	assert.Equal(t, []string{"2", "1"}, texts(res.Snapshot, "RXNO"))
}

func TestMergeSchemaMismatch(t *testing.T) {
	prior := table.FromStrings(mergeCols, nil)
	batch := table.FromStrings([]string{"OTHER"}, [][]string{{"x"}})
	_, err := Merge(&prior, batch, mergeOpts())
	require.Error(t, err)
	assert.True(t, eris.Is(err, internal.ErrSchemaMismatch))
}

type keepLastN int

func (n keepLastN) Retain(t table.Table) table.Table {
	if t.Len() <= int(n) {
		return t
	}
	out := table.New(t.Columns)
	out.Rows = t.Rows[t.Len()-int(n):]
	return out
}

func TestMergeRetentionHook(t *testing.T) {
	prior := table.FromStrings(mergeCols, [][]string{{"1", "1", "1", ""}, {"2", "2", "2", ""}})
	batch := table.FromStrings(mergeCols, [][]string{{"3", "3", "3", ""}})
	opts := mergeOpts()
	opts.Retention = keepLastN(2)
	res, err := Merge(&prior, batch, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, texts(res.Snapshot, "RXNO"))
}

func TestMergeNaturalKeyMissingColumn(t *testing.T) {
	batch := table.FromStrings(mergeCols, [][]string{{"1", "1", "1", ""}})
	opts := mergeOpts()
	opts.Key = NaturalKey{Columns: []string{"NOPE"}}
	_, err := Merge(nil, batch, opts)
	require.Error(t, err)
	assert.True(t, eris.Is(err, internal.ErrConfiguration))
}
