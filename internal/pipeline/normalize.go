package pipeline

import (
	"strings"

	"rxsync/internal/table"
	"rxsync/internal/util"
)

// Outcome records which path a cell took through the coercer.
type Outcome int

const (
	// OutcomeText: text column, value trimmed.
	OutcomeText Outcome = iota
	// OutcomeConverted: numeric column, numeral converted to its numeric type.
	OutcomeConverted
	// OutcomeKeptAsText: numeric column whose value is not a numeral. Not an error.
	OutcomeKeptAsText
	// OutcomeAbsent: empty, "null" or "None" mapped to the absence marker.
	OutcomeAbsent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverted:
		return "converted"
	case OutcomeKeptAsText:
		return "kept_as_text"
	case OutcomeAbsent:
		return "absent"
	default:
		return "text"
	}
}

type CellResult struct {
	Value   table.Value
	Outcome Outcome
}

var absentTokens = map[string]struct{}{"": {}, "null": {}, "None": {}}

// maxAnomalySamples bounds the per-column samples kept in a CoercionReport.
const maxAnomalySamples = 5

// CoerceCell converts one cell to the canonical representation of its column class.
func CoerceCell(v table.Value, ct table.ColumnType) CellResult {
	if v.IsAbsent() {
		return CellResult{Value: table.Absent(), Outcome: OutcomeAbsent}
	}

	s := strings.TrimSpace(v.Text())
	res := CellResult{Value: table.Text(s), Outcome: OutcomeText}
	switch ct {
	case table.ColumnInteger:
		if n, ok := util.ParseIntNumeral(s); ok {
			res = CellResult{Value: table.Int(n), Outcome: OutcomeConverted}
		} else {
			res.Outcome = OutcomeKeptAsText
		}
	case table.ColumnDecimal:
		if d, ok := util.ParseDecimalNumeral(s); ok {
			res = CellResult{Value: table.Decimal(d), Outcome: OutcomeConverted}
		} else {
			res.Outcome = OutcomeKeptAsText
		}
	}

	if res.Value.Kind() == table.KindText {
		if _, ok := absentTokens[res.Value.Text()]; ok {
			return CellResult{Value: table.Absent(), Outcome: OutcomeAbsent}
		}
	}
	return res
}

// CoercionReport counts cell outcomes for one Coerce call.
type CoercionReport struct {
	Converted int
	KeptText  int
	Absent    int
	Text      int
	// Anomalies maps a numeric column to the number of values kept as text.
	Anomalies map[string]int
	// Samples holds up to maxAnomalySamples offending values per column.
	Samples map[string][]string
}

func (r CoercionReport) AnomalyCount() int { return r.KeptText }

// Coerce returns a new table with every cell in canonical form. The input is
// not modified, and Coerce(Coerce(t)) equals Coerce(t).
func Coerce(t table.Table, types table.TypeMap) (table.Table, CoercionReport) {
	report := CoercionReport{Anomalies: map[string]int{}, Samples: map[string][]string{}}

	classes := make([]table.ColumnType, len(t.Columns))
	for i, col := range t.Columns {
		classes[i] = types.For(col)
	}

	out := table.New(t.Columns)
	out.Rows = make([]table.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(table.Record, len(row))
		for i, cell := range row {
			ct := table.ColumnText
			if i < len(classes) {
				ct = classes[i]
			}
			res := CoerceCell(cell, ct)
			rec[i] = res.Value

			switch res.Outcome {
			case OutcomeConverted:
				report.Converted++
			case OutcomeKeptAsText:
				report.KeptText++
				col := t.Columns[i]
				report.Anomalies[col]++
				if len(report.Samples[col]) < maxAnomalySamples {
					report.Samples[col] = append(report.Samples[col], res.Value.Text())
				}
			case OutcomeAbsent:
				report.Absent++
			default:
				report.Text++
			}
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, report
}
