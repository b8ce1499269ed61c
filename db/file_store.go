package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"gym-agent-server-go/models"
)

// FileStore keeps each collection in <Dir>/<collection>.json.
type FileStore struct {
	Dir string

	mu sync.Mutex // serializes the temp-file-and-rename step only
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

// Path returns the file backing a collection.
func (s *FileStore) Path(collection string) string {
	return filepath.Join(s.Dir, collection+".json")
}

// Load reads the collection file.
func (s *FileStore) Load(_ context.Context, collection string) []models.Record {
	return ReadJSONFile(s.Path(collection))
}

// Replace writes the collection to a temp file next to the target and
// renames it over the old file.
func (s *FileStore) Replace(_ context.Context, collection string, records []models.Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.Dir, collection+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", collection, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Both are no-ops once the rename went through.
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write collection %s: %w", collection, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync collection %s: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close collection %s: %w", collection, err)
	}
	if err := os.Rename(tmpName, s.Path(collection)); err != nil {
		return fmt.Errorf("failed to replace collection %s: %w", collection, err)
	}
	log.WithFields(log.Fields{"collection": collection, "records": len(records)}).Debug("Collection written")
	return nil
}
