package storage

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"rxsync/internal"
	"rxsync/internal/pipeline"
	"rxsync/internal/table"
	"rxsync/internal/util"
)

// SnapshotStore keeps one snapshot per entity under Dir as <slug>_data.csv,
// <slug>_data.json and, with XLSX set, <slug>_data.xlsx. The CSV form is the
// one read back.
type SnapshotStore struct {
	Dir  string
	XLSX bool

	rename func(oldpath, newpath string) error
}

func NewSnapshotStore(dir string, xlsx bool) *SnapshotStore {
	return &SnapshotStore{Dir: dir, XLSX: xlsx, rename: os.Rename}
}

func (s *SnapshotStore) Path(entity internal.Entity, ext string) string {
	return filepath.Join(s.Dir, util.Slug(entity.Name)+"_data"+ext)
}

// Read returns the persisted snapshot as raw text cells, or nil when the entity
// has none yet.
func (s *SnapshotStore) Read(entity internal.Entity) (*table.Table, error) {
	raw, err := os.ReadFile(s.Path(entity, ".csv"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(internal.ErrPersist, "read snapshot for %s: %v", entity.Name, err)
	}
	t, err := pipeline.DecodeSnapshotCSV(raw)
	if err != nil {
		return nil, eris.Wrapf(internal.ErrPersist, "decode snapshot for %s: %v", entity.Name, err)
	}
	return &t, nil
}

// Write replaces the entity's snapshot. Every form is written to a temp file
// first. The forms are then swapped in with the CSV last, each previous file
// moved to a backup; if any swap fails, all of them are restored.
func (s *SnapshotStore) Write(entity internal.Entity, t table.Table) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return eris.Wrapf(internal.ErrPersist, "create %s: %v", s.Dir, err)
	}

	var csvBuf, jsonBuf bytes.Buffer
	if err := pipeline.WriteCSV(&csvBuf, t); err != nil {
		return eris.Wrapf(internal.ErrPersist, "encode csv for %s: %v", entity.Name, err)
	}
	if err := pipeline.WriteJSON(&jsonBuf, t); err != nil {
		return eris.Wrapf(internal.ErrPersist, "encode json for %s: %v", entity.Name, err)
	}

	var staged []swap
	cleanup := func() {
		for _, sw := range staged {
			_ = os.Remove(sw.tmp)
		}
	}
	stage := func(ext string, write func(tmp string) error) error {
		final := s.Path(entity, ext)
		sw := swap{
			tmp:    filepath.Join(s.Dir, ".tmp-"+filepath.Base(final)),
			backup: filepath.Join(s.Dir, ".bak-"+filepath.Base(final)),
			final:  final,
		}
		staged = append(staged, sw)
		return write(sw.tmp)
	}

	err := stage(".json", func(tmp string) error { return os.WriteFile(tmp, jsonBuf.Bytes(), 0o644) })
	if err == nil && s.XLSX {
		err = stage(".xlsx", func(tmp string) error { return pipeline.WriteXLSX(t, tmp) })
	}
	if err == nil {
		err = stage(".csv", func(tmp string) error { return os.WriteFile(tmp, csvBuf.Bytes(), 0o644) })
	}
	if err != nil {
		cleanup()
		return eris.Wrapf(internal.ErrPersist, "write snapshot for %s: %v", entity.Name, err)
	}

	if err := s.swapAll(staged); err != nil {
		cleanup()
		return eris.Wrapf(internal.ErrPersist, "replace snapshot for %s: %v", entity.Name, err)
	}
	return nil
}

type swap struct {
	tmp, backup, final string
	hadOld             bool
}

// swapAll moves every staged file into place. On failure the files already
// swapped are put back from their backups.
func (s *SnapshotStore) swapAll(staged []swap) error {
	rename := s.rename
	if rename == nil {
		rename = os.Rename
	}

	done := make([]swap, 0, len(staged))
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			sw := done[i]
			if sw.hadOld {
				_ = os.RemoveAll(sw.final)
				_ = rename(sw.backup, sw.final)
			} else {
				_ = os.Remove(sw.final)
			}
		}
	}

	for _, sw := range staged {
		_ = os.RemoveAll(sw.backup)
		if _, err := os.Lstat(sw.final); err == nil {
			if err := rename(sw.final, sw.backup); err != nil {
				rollback()
				return err
			}
			sw.hadOld = true
		}
		if err := rename(sw.tmp, sw.final); err != nil {
			if sw.hadOld {
				_ = rename(sw.backup, sw.final)
			}
			rollback()
			return err
		}
		done = append(done, sw)
	}

	for _, sw := range done {
		if sw.hadOld {
			_ = os.RemoveAll(sw.backup)
		}
	}
	return nil
}
