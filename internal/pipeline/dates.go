package pipeline

import (
	"strings"
	"time"

	"rxsync/internal/table"
)

// DateRewriter reformats date columns of freshly decoded tables, e.g. a
// "1/2/2006 3:04:05 PM" timestamp into "01022006".
type DateRewriter struct {
	Columns      []string
	InputLayout  string
	OutputLayout string
}

// Rewrite returns a copy of t with every parseable value in the configured
// columns reformatted. Values that do not parse are left as they are, and a
// table lacking a column is untouched for that column.
func (r DateRewriter) Rewrite(t table.Table) (table.Table, int) {
	out := t.Clone()
	if r.InputLayout == "" || r.OutputLayout == "" {
		return out, 0
	}

	rewritten := 0
	for _, col := range r.Columns {
		idx := out.Index(col)
		if idx < 0 {
			continue
		}
		for _, rec := range out.Rows {
			v := rec[idx]
			if v.Kind() != table.KindText {
				continue
			}
			s := strings.TrimSpace(v.Text())
			if s == "" {
				continue
			}
			ts, err := time.Parse(r.InputLayout, s)
			if err != nil {
				continue
			}
			rec[idx] = table.Text(ts.Format(r.OutputLayout))
			rewritten++
		}
	}
	return out, rewritten
}
