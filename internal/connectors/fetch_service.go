package connectors

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"rxsync/internal"
	"rxsync/internal/util"
)

// FetchService downloads source locations through the fetcher registered for
// their URL scheme and keeps a copy of each payload in the raw store.
type FetchService struct {
	fetchers map[string]Fetcher
	store    *RawStore
	keepRaw  bool
}

// NewFetchService registers fetchers by scheme. "file" also serves bare paths;
// "http" also serves https.
func NewFetchService(rawDir string, keepRaw bool, fetchers map[string]Fetcher) *FetchService {
	return &FetchService{
		fetchers: fetchers,
		store:    NewRawStore(rawDir),
		keepRaw:  keepRaw,
	}
}

func (s *FetchService) Fetch(ctx context.Context, loc internal.SourceLocation) (internal.FetchedFile, error) {
	fetcher, err := s.fetcherFor(loc.URL)
	if err != nil {
		return internal.FetchedFile{}, err
	}

	raw, err := fetcher.Fetch(ctx, loc.URL)
	if err != nil {
		return internal.FetchedFile{}, eris.Wrapf(internal.ErrFetch, "fetch %s: %v", loc.URL, err)
	}

	name := FileName(loc)
	hash, rawRef, err := s.store.Store(name, raw)
	if err != nil {
		return internal.FetchedFile{}, eris.Wrapf(internal.ErrFetch, "store %s: %v", loc.URL, err)
	}

	return internal.FetchedFile{Location: loc, Name: name, Raw: raw, Hash: hash, RawRef: rawRef}, nil
}

// Release drops the stored raw copy unless raw files are kept.
func (s *FetchService) Release(f internal.FetchedFile) error {
	if s.keepRaw {
		return nil
	}
	return s.store.Remove(f.RawRef)
}

func (s *FetchService) fetcherFor(raw string) (Fetcher, error) {
	scheme := "file"
	if u, err := url.Parse(raw); err == nil && len(u.Scheme) > 1 {
		scheme = strings.ToLower(u.Scheme)
	}
	if scheme == "https" {
		scheme = "http"
	}
	f, ok := s.fetchers[scheme]
	if !ok {
		return nil, eris.Wrapf(internal.ErrFetch, "no fetcher for scheme %q (%s)", scheme, raw)
	}
	return f, nil
}

// FileName is the name a fetched file is decoded under: the last URL path
// segment, or the logged file name when the URL has none.
func FileName(loc internal.SourceLocation) string {
	p := loc.URL
	if u, err := url.Parse(loc.URL); err == nil {
		p = u.Path
	}
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = ""
	}
	return util.SanitizeFileName(util.FirstNonEmpty(base, loc.FileName, "export.csv"))
}
