// Package mssql looks up nightly export locations in the FileProcessLog table
// on SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"rxsync/internal"
	"rxsync/internal/connectors"
)

const query = `SELECT TOP(@p1) * FROM FileProcessLog WHERE PharmacyId = @p2 AND FileName LIKE @p3 ORDER BY 1 DESC`

type Options struct {
	// Pattern is the LIKE pattern file names must match.
	Pattern string
	// Top limits how many log rows are read per entity.
	Top int
	// InfoColumn is the position of the file-info column in FileProcessLog.
	InfoColumn int
}

// Locator is an open FileProcessLog session. Get one through WithLocator.
type Locator struct {
	conn *sql.DB
	opts Options
	log  *zap.Logger
}

// WithLocator opens a session for dsn, runs fn with it and closes it again,
// whatever fn returns.
func WithLocator(ctx context.Context, dsn string, opts Options, log *zap.Logger, fn func(*Locator) error) error {
	if strings.TrimSpace(dsn) == "" {
		return eris.Wrap(internal.ErrConfiguration, "missing MSSQL_DSN")
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return eris.Wrapf(internal.ErrFetch, "open file log: %v", err)
	}
	defer conn.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		return eris.Wrapf(internal.ErrFetch, "connect file log: %v", err)
	}

	return fn(&Locator{conn: conn, opts: opts, log: log})
}

func (l *Locator) Locate(ctx context.Context, entity internal.Entity) ([]internal.SourceLocation, error) {
	rows, err := l.conn.QueryContext(ctx, query, l.opts.Top, entity.ID, l.opts.Pattern)
	if err != nil {
		return nil, eris.Wrapf(internal.ErrFetch, "query file log for %s: %v", entity.Name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrapf(internal.ErrFetch, "file log columns: %v", err)
	}

	var records [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(internal.ErrFetch, "scan file log: %v", err)
		}
		records = append(records, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(internal.ErrFetch, "read file log: %v", err)
	}

	return Locations(entity, columns, records, l.opts.InfoColumn, l.log), nil
}

// Locations turns FileProcessLog rows into source locations, keeping their
// order. Rows whose file info has no URL are skipped.
func Locations(entity internal.Entity, columns []string, records [][]any, infoColumn int, log *zap.Logger) []internal.SourceLocation {
	if log == nil {
		log = zap.NewNop()
	}
	nameCol := -1
	for i, c := range columns {
		if strings.EqualFold(c, "FileName") {
			nameCol = i
			break
		}
	}

	out := make([]internal.SourceLocation, 0, len(records))
	for _, rec := range records {
		if infoColumn < 0 || infoColumn >= len(rec) {
			log.Warn("file log row has no file-info column", zap.Int("entity_id", entity.ID), zap.Int("column", infoColumn))
			continue
		}
		info := cellString(rec[infoColumn])
		url, ok := connectors.URLFromFileInfo(info)
		if !ok {
			log.Warn("file log row has no url", zap.Int("entity_id", entity.ID), zap.String("file_info", info))
			continue
		}
		loc := internal.SourceLocation{EntityID: entity.ID, URL: url}
		if len(rec) > 0 {
			loc.LogID = cellString(rec[0])
		}
		if nameCol >= 0 {
			loc.FileName = cellString(rec[nameCol])
		}
		out = append(out, loc)
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// Scope adapts WithLocator to a connectors.LocatorScope.
func Scope(dsn string, opts Options, log *zap.Logger) connectors.LocatorScope {
	return func(ctx context.Context, fn func(connectors.SourceLocator) error) error {
		return WithLocator(ctx, dsn, opts, log, func(l *Locator) error { return fn(l) })
	}
}
