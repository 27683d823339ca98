package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// RawStore keeps fetched payloads on disk named by their sha256.
type RawStore struct {
	dir string
}

func NewRawStore(dir string) *RawStore {
	return &RawStore{dir: dir}
}

func (s *RawStore) Store(name string, raw []byte) (hash, path string, err error) {
	hashBytes := sha256.Sum256(raw)
	hash = hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", "", err
	}

	path = filepath.Join(s.dir, hash+strings.ToLower(filepath.Ext(name)))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", "", err
		}
	}
	return hash, path, nil
}

func (s *RawStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
