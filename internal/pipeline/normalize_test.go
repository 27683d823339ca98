package pipeline

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxsync/internal/table"
)

var rxTypes = table.TypeMap{
	"PATIENTNO":    table.ColumnInteger,
	"RXNO":         table.ColumnInteger,
	"QUANT":        table.ColumnInteger,
	"PATIENTCOPAY": table.ColumnDecimal,
}

func TestCoerceScenarioTypedRecord(t *testing.T) {
	in := table.FromStrings(
		[]string{"QUANT", "PATIENTCOPAY", "PATIENTNO"},
		[][]string{{" 5 ", "12.50", "A100"}},
	)
	types := table.TypeMap{"QUANT": table.ColumnInteger, "PATIENTCOPAY": table.ColumnDecimal}

	out, report := Coerce(in, types)
	require.Equal(t, 1, out.Len())

	quant, ok := out.Get(0, "QUANT").Int()
	require.True(t, ok)
	assert.Equal(t, int64(5), quant)

	copay, ok := out.Get(0, "PATIENTCOPAY").Decimal()
	require.True(t, ok)
	assert.True(t, copay.Equal(decimal.RequireFromString("12.50")))

	assert.Equal(t, table.Text("A100"), out.Get(0, "PATIENTNO"))
	assert.Equal(t, 2, report.Converted)
	assert.Equal(t, 0, report.AnomalyCount())
}

func TestCoerceScenarioNonNumeralKeptAsText(t *testing.T) {
	in := table.FromStrings([]string{"QUANT"}, [][]string{{"five"}})
	out, report := Coerce(in, table.TypeMap{"QUANT": table.ColumnInteger})

	assert.Equal(t, table.Text("five"), out.Get(0, "QUANT"))
	assert.Equal(t, 1, report.AnomalyCount())
	assert.Equal(t, map[string]int{"QUANT": 1}, report.Anomalies)
	assert.Equal(t, []string{"five"}, report.Samples["QUANT"])
}

func TestCoerceCellOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		in      table.Value
		class   table.ColumnType
		want    table.Value
		outcome Outcome
	}{
		{"text trimmed", table.Text("  A100 "), table.ColumnText, table.Text("A100"), OutcomeText},
		{"int truncates", table.Text("5.9"), table.ColumnInteger, table.Int(5), OutcomeConverted},
		{"int signed stays text", table.Text("-5"), table.ColumnInteger, table.Text("-5"), OutcomeKeptAsText},
		{"int grouped stays text", table.Text("1,000"), table.ColumnInteger, table.Text("1,000"), OutcomeKeptAsText},
		{"decimal", table.Text(" 3.25 "), table.ColumnDecimal, table.Decimal(decimal.RequireFromString("3.25")), OutcomeConverted},
		{"decimal currency stays text", table.Text("$3"), table.ColumnDecimal, table.Text("$3"), OutcomeKeptAsText},
		{"already int", table.Int(7), table.ColumnInteger, table.Int(7), OutcomeConverted},
		{"absent passes", table.Absent(), table.ColumnDecimal, table.Absent(), OutcomeAbsent},
		{"text column keeps digits as text", table.Text("0042"), table.ColumnText, table.Text("0042"), OutcomeText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := CoerceCell(tc.in, tc.class)
			assert.True(t, tc.want.Equal(res.Value), "got %v (%s)", res.Value, res.Value.Kind())
			assert.Equal(t, tc.outcome, res.Outcome)
		})
	}
}

func TestCoerceAbsenceForEveryClass(t *testing.T) {
	classes := []table.ColumnType{table.ColumnText, table.ColumnInteger, table.ColumnDecimal}
	for _, raw := range []string{"", "null", "None", "  ", " null "} {
		for _, ct := range classes {
			res := CoerceCell(table.Text(raw), ct)
			assert.True(t, res.Value.IsAbsent(), "raw=%q class=%s", raw, ct)
			assert.Equal(t, OutcomeAbsent, res.Outcome)
		}
	}
	// Only the exact tokens are sentinels.
	assert.False(t, CoerceCell(table.Text("NULL"), table.ColumnText).Value.IsAbsent())
	assert.False(t, CoerceCell(table.Text("none"), table.ColumnText).Value.IsAbsent())
}

func TestCoerceDoesNotMutateInput(t *testing.T) {
	in := table.FromStrings([]string{"QUANT"}, [][]string{{" 5 "}})
	_, _ = Coerce(in, rxTypes)
	assert.Equal(t, table.Text(" 5 "), in.Rows[0][0])
}

func TestCoerceIdempotent(t *testing.T) {
	pool := []string{"", " ", "null", "None", "0", "007", " 5 ", "5.9", ".5", "5.", "12.50",
		"-1", "1,000", "five", "A100", " x ", "99999999999999999999", "1.2.3", "NULL"}
	columns := []string{"PATIENTNO", "RXNO", "QUANT", "PATIENTCOPAY", "DRUGNAME"}
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 50; iter++ {
		rows := make([][]string, 20)
		for i := range rows {
			rows[i] = make([]string, len(columns))
			for j := range columns {
				rows[i][j] = pool[rng.Intn(len(pool))]
			}
		}
		in := table.FromStrings(columns, rows)
		once, _ := Coerce(in, rxTypes)
		twice, report := Coerce(once, rxTypes)
		require.True(t, table.Equal(once, twice), "iteration %d", iter)
		assert.Equal(t, 0, report.Text+report.Converted+report.KeptText+report.Absent-len(rows)*len(columns))
	}
}
