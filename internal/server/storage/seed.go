package storage

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSeedFile builds a store from a JSON file of shape
// {collection: {id: record}}. A missing file yields an empty store, so a
// fresh checkout can start without any data; a present but malformed file
// is an error.
func LoadSeedFile(path string) (*Store, error) {
	if path == "" {
		return New(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}

	var seed map[string]map[string]Record
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	return NewFromSeed(seed), nil
}
