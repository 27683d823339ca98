package internal

import "github.com/rotisserie/eris"

// Error taxonomy. Per-table and per-entity failures wrap one of these so
// callers can classify them with eris.Is.
var (
	// ErrFetch marks a single source table that could not be retrieved or parsed.
	ErrFetch = eris.New("fetch failed")
	// ErrSchemaMismatch marks a table whose column set differs from the expected set.
	ErrSchemaMismatch = eris.New("schema mismatch")
	// ErrPersist marks a failed snapshot write; the previous snapshot stays in place.
	ErrPersist = eris.New("persist failed")
	// ErrConfiguration is fatal for the whole run.
	ErrConfiguration = eris.New("invalid configuration")
)

func IsFetchError(err error) bool { return eris.Is(err, ErrFetch) }

func IsSchemaMismatch(err error) bool { return eris.Is(err, ErrSchemaMismatch) }

func IsPersistError(err error) bool { return eris.Is(err, ErrPersist) }

func IsConfigurationError(err error) bool { return eris.Is(err, ErrConfiguration) }
