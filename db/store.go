package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	log "github.com/sirupsen/logrus"

	"gym-agent-server-go/models"
)

// Store persists whole collections of records. Load never fails: missing or
// corrupt storage reads as an empty collection. Replace rewrites the whole
// collection; concurrent writers race and the last one wins.
type Store interface {
	Load(ctx context.Context, collection string) []models.Record
	Replace(ctx context.Context, collection string, records []models.Record) error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// ReadJSONFile reads a JSON array of objects from path. A missing, empty or
// malformed file yields an empty slice.
func ReadJSONFile(path string) []models.Record {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("Warning: could not read %s, treating as empty: %v", path, err)
		}
		return []models.Record{}
	}
	return decodeRecords(data, path)
}

func decodeRecords(data []byte, source string) []models.Record {
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Record{}
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		log.WithField("source", source).Warnf("Malformed collection data, treating as empty: %v", err)
		return []models.Record{}
	}
	out := records[:0]
	for _, rec := range records {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// encodeRecords renders a collection the way it is kept on disk: indented,
// UTF-8 left unescaped.
func encodeRecords(records []models.Record) ([]byte, error) {
	if records == nil {
		records = []models.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
