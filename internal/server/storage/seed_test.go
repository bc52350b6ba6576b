package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	seed := `{
		"products": {
			"p1": {"name": "Carrot", "price": 23, "_createdOn": 1613551388703}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	s, err := LoadSeedFile(path)
	require.NoError(t, err)

	rec, err := s.Get("products", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Carrot", rec["name"])
	assert.Equal(t, float64(23), rec["price"])
}

func TestLoadSeedFileMissingYieldsEmptyStore(t *testing.T) {
	s, err := LoadSeedFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, s.Collections())

	s, err = LoadSeedFile("")
	require.NoError(t, err)
	assert.Empty(t, s.Collections())
}

func TestLoadSeedFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadSeedFile(path)
	assert.Error(t, err)
}
