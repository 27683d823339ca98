package pipeline

import (
	"strings"

	"rxsync/internal/util"
)

// maxHeaderSearchRows bounds how far into a sheet the header row is looked for.
const maxHeaderSearchRows = 10

// DetectHeader returns the index of the header row within records, or -1.
//
// With expected columns, the first row (within maxHeaderSearchRows) that names
// every one of them wins. Otherwise, or when no row matches, the first
// non-blank row is the header.
func DetectHeader(records [][]string, expected []string) int {
	limit := maxHeaderSearchRows
	if len(records) < limit {
		limit = len(records)
	}

	if len(expected) > 0 {
		for i := 0; i < limit; i++ {
			if containsHeaders(records[i], expected) {
				return i
			}
		}
	}
	for i := 0; i < limit; i++ {
		if !isBlankRow(records[i]) {
			return i
		}
	}
	return -1
}

func containsHeaders(row, expected []string) bool {
	have := make(map[string]struct{}, len(row))
	for _, cell := range row {
		have[util.CleanHeader(cell)] = struct{}{}
	}
	for _, name := range expected {
		if _, ok := have[util.CleanHeader(name)]; !ok {
			return false
		}
	}
	return true
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
