package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"rxsync/internal"
	"rxsync/internal/table"
	"rxsync/internal/util"
)

// Decode turns a fetched export into a table of raw text cells, choosing the
// format from the file name extension (.xlsx, .html/.htm, anything else CSV).
// expected, when set, helps locate the header row. Every failure is an
// ErrFetch for this one file.
func Decode(name string, raw []byte, expected []string) (table.Table, error) {
	var (
		t   table.Table
		err error
	)
	switch strings.ToLower(path.Ext(stripQuery(name))) {
	case ".xlsx", ".xlsm":
		t, err = DecodeXLSX(raw, expected)
	case ".html", ".htm":
		t, err = DecodeHTML(raw, expected)
	default:
		t, err = DecodeCSV(raw, expected)
	}
	if err != nil {
		return table.Table{}, eris.Wrapf(internal.ErrFetch, "decode %s: %v", name, err)
	}
	return t, nil
}

func DecodeCSV(raw []byte, expected []string) (table.Table, error) {
	data := util.SanitizeUTF8(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return table.Table{}, err
	}
	return fromRecords(records, expected)
}

// DecodeSnapshotCSV reads a CSV written by WriteCSV. The first record is the
// header and every later record is a row, including rows whose cells are all
// empty.
func DecodeSnapshotCSV(raw []byte) (table.Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return table.Table{}, err
	}
	if len(records) == 0 {
		return table.New(nil), nil
	}

	columns := make([]string, len(records[0]))
	for i, h := range records[0] {
		columns[i] = util.CleanHeader(h)
	}
	if dups := table.DuplicateColumns(columns); len(dups) > 0 {
		return table.Table{}, fmt.Errorf("duplicate header names: %s", strings.Join(dups, ", "))
	}
	return table.FromStrings(columns, records[1:]), nil
}

// DecodeXLSX reads the first sheet that has a header row.
func DecodeXLSX(raw []byte, expected []string) (table.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return table.Table{}, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if DetectHeader(rows, expected) < 0 {
			continue
		}
		return fromRecords(rows, expected)
	}
	return table.Table{}, fmt.Errorf("no sheet with a header row")
}

// DecodeHTML reads the first <table> whose first row is not blank.
func DecodeHTML(raw []byte, expected []string) (table.Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(util.SanitizeUTF8(raw)))
	if err != nil {
		return table.Table{}, err
	}

	var (
		out   table.Table
		found bool
		ferr  error
	)
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		var records [][]string
		tbl.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, cell.Text())
			})
			records = append(records, cells)
		})
		if len(records) == 0 || isBlankRow(records[0]) {
			return true
		}
		out, ferr = fromRecords(records, expected)
		found = true
		return false
	})
	if ferr != nil {
		return table.Table{}, ferr
	}
	if !found {
		return table.Table{}, fmt.Errorf("no table with a header row")
	}
	return out, nil
}

func fromRecords(records [][]string, expected []string) (table.Table, error) {
	idx := DetectHeader(records, expected)
	if idx < 0 {
		return table.Table{}, fmt.Errorf("no header row")
	}

	header := trimTrailingBlank(records[idx])
	columns := make([]string, len(header))
	for i, h := range header {
		name := util.CleanHeader(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = name
	}
	if dups := table.DuplicateColumns(columns); len(dups) > 0 {
		return table.Table{}, fmt.Errorf("duplicate header names: %s", strings.Join(dups, ", "))
	}

	body := make([][]string, 0, len(records)-idx-1)
	for _, rec := range records[idx+1:] {
		if isBlankRow(rec) {
			continue
		}
		body = append(body, rec)
	}
	return table.FromStrings(columns, body), nil
}

func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

func stripQuery(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		return name[:i]
	}
	return name
}
