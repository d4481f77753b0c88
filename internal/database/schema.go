package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// CurrentSchemaVersion is written into every saved blob.
const CurrentSchemaVersion = 1

var (
	ErrSchemaTooNew = errors.New("persisted state has a newer schema version")
	ErrNoMigration  = errors.New("no migration registered for persisted state")
)

// MigrationFunc upgrades the data of one key from version N to N+1.
type MigrationFunc func(data []byte) ([]byte, error)

var (
	migrationsMu sync.RWMutex
	migrations   = map[string]map[int]MigrationFunc{}
)

// RegisterMigration installs the upgrade step for key from fromVersion to fromVersion+1.
func RegisterMigration(key string, fromVersion int, fn MigrationFunc) {
	migrationsMu.Lock()
	defer migrationsMu.Unlock()

	if migrations[key] == nil {
		migrations[key] = map[int]MigrationFunc{}
	}
	migrations[key][fromVersion] = fn
}

func migration(key string, fromVersion int) (MigrationFunc, bool) {
	migrationsMu.RLock()
	defer migrationsMu.RUnlock()

	fn, ok := migrations[key][fromVersion]
	return fn, ok
}

type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

func encodeBlob(src any) ([]byte, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return json.Marshal(envelope{SchemaVersion: CurrentSchemaVersion, Data: data})
}

// decodeBlob unwraps the envelope, runs pending migrations and decodes into dst.
// Payloads without an envelope are treated as version 0.
func decodeBlob(key string, payload []byte, dst any) error {
	version := 0
	data := payload

	if v := gjson.GetBytes(payload, "schema_version"); v.Exists() {
		version = int(v.Int())
		data = []byte(gjson.GetBytes(payload, "data").Raw)
	}

	if version > CurrentSchemaVersion {
		return fmt.Errorf("%s: version %d: %w", key, version, ErrSchemaTooNew)
	}

	for version < CurrentSchemaVersion {
		fn, ok := migration(key, version)
		if !ok {
			if version == 0 {
				// unversioned blobs share the v1 shape
				version++
				continue
			}
			return fmt.Errorf("%s: version %d: %w", key, version, ErrNoMigration)
		}

		upgraded, err := fn(data)
		if err != nil {
			return fmt.Errorf("%s: migrate from version %d: %w", key, version, err)
		}
		data = upgraded
		version++
	}

	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
