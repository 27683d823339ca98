// Package localfs serves file:// URLs and plain paths, for offline runs and
// for exports dropped on a shared drive.
package localfs

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

type Fetcher struct {
	// Root, when set, resolves relative paths.
	Root string
}

func (f Fetcher) Fetch(ctx context.Context, raw string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.resolve(raw))
}

func (f Fetcher) resolve(raw string) string {
	p := raw
	if strings.HasPrefix(strings.ToLower(raw), "file://") {
		if u, err := url.Parse(raw); err == nil {
			p = u.Path
			if u.Host != "" && u.Host != "localhost" {
				p = "//" + u.Host + u.Path
			}
		}
	}
	if !filepath.IsAbs(p) && f.Root != "" {
		p = filepath.Join(f.Root, p)
	}
	return filepath.FromSlash(p)
}
