package connectors

import "strings"

// URLFromFileInfo returns the download URL held in a file-info cell, the second
// '|' separated segment.
func URLFromFileInfo(info string) (string, bool) {
	parts := strings.Split(info, "|")
	if len(parts) < 2 {
		return "", false
	}
	url := strings.TrimSpace(parts[1])
	return url, url != ""
}
