package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"rxsync/internal/table"
)

// WriteCSV writes t with a header row. Absent cells are empty.
func WriteCSV(w io.Writer, t table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	row := make([]string, len(t.Columns))
	for _, rec := range t.Rows {
		for i := range row {
			row[i] = ""
			if i < len(rec) {
				row[i] = rec[i].Text()
			}
		}
		// A lone empty field would be an empty line, which readers skip.
		if len(row) == 1 && row[0] == "" {
			cw.Flush()
			if _, err := io.WriteString(w, "\"\"\n"); err != nil {
				return err
			}
			continue
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes t as a list of objects indented by four spaces. Keys keep
// the column order, absent cells are null and numeric cells are JSON numbers.
func WriteJSON(w io.Writer, t table.Table) error {
	records := make([]jsonRecord, len(t.Rows))
	for i, rec := range t.Rows {
		records[i] = jsonRecord{columns: t.Columns, rec: rec}
	}
	blob, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}
	_, err = w.Write(blob)
	return err
}

type jsonRecord struct {
	columns []string
	rec     table.Record
}

func (r jsonRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		v := table.Absent()
		if i < len(r.rec) {
			v = r.rec[i]
		}
		blob, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(blob)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WriteXLSX saves t to a single-sheet workbook at outputPath.
func WriteXLSX(t table.Table, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, rec := range t.Rows {
		r := i + 2
		for c, v := range rec {
			value := xlsxValue(v)
			if value == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func xlsxValue(v table.Value) any {
	switch v.Kind() {
	case table.KindInt:
		n, _ := v.Int()
		return n
	case table.KindDecimal:
		d, _ := v.Decimal()
		return d.InexactFloat64()
	case table.KindText:
		return v.Text()
	default:
		return nil
	}
}
