package connectors

import (
	"context"

	"rxsync/internal"
)

// SourceLocator lists the export files for an entity, newest first. The order
// it returns is the order the tables are concatenated in.
type SourceLocator interface {
	Locate(ctx context.Context, entity internal.Entity) ([]internal.SourceLocation, error)
}

// Fetcher downloads the bytes behind one location URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// LocatorScope opens a SourceLocator for the duration of fn and releases it
// afterwards.
type LocatorScope func(ctx context.Context, fn func(SourceLocator) error) error

// StaticScope wraps a locator that needs no session.
func StaticScope(loc SourceLocator) LocatorScope {
	return func(_ context.Context, fn func(SourceLocator) error) error {
		return fn(loc)
	}
}
