package pipeline

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rxsync/internal/table"
)

func typedTable() table.Table {
	t := table.New([]string{"RXNO", "PATIENTCOPAY", "NOTE"})
	t.Rows = []table.Record{
		{table.Int(1), table.Decimal(decimal.RequireFromString("12.50")), table.Text("a,b")},
		{table.Int(2), table.Absent(), table.Text("five")},
	}
	return t
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, typedTable()))
	assert.Equal(t, "RXNO,PATIENTCOPAY,NOTE\n1,12.5,\"a,b\"\n2,,five\n", buf.String())

	back, err := DecodeCSV(buf.Bytes(), nil)
	require.NoError(t, err)
	coerced, _ := Coerce(back, rxTypes)
	assert.True(t, table.Equal(typedTable(), coerced))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, typedTable()))
	want := `[
    {
        "RXNO": 1,
        "PATIENTCOPAY": 12.5,
        "NOTE": "a,b"
    },
    {
        "RXNO": 2,
        "PATIENTCOPAY": null,
        "NOTE": "five"
    }
]`
	assert.Equal(t, want, buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, table.New([]string{"A"})))
	assert.Equal(t, "[]", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.xlsx")
	require.NoError(t, WriteXLSX(typedTable(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"RXNO", "PATIENTCOPAY", "NOTE"}, rows[0])
	assert.Equal(t, []string{"1", "12.5", "a,b"}, rows[1])
	assert.Equal(t, []string{"2", "", "five"}, rows[2])
}
