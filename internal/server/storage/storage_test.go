package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/internal/common"
)

func TestAddAssignsUniqueIDAndTimestamps(t *testing.T) {
	s := New()

	first := s.Add("products", Record{"name": "Carrot", "price": 23})
	second := s.Add("products", Record{"name": "Apple", "price": 5})

	require.NotEmpty(t, first["_id"])
	require.NotEmpty(t, second["_id"])
	assert.NotEqual(t, first["_id"], second["_id"])
	assert.NotNil(t, first["_createdOn"])

	got, err := s.Get("products", first["_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Carrot", got["name"])
	assert.Equal(t, first["_id"], got["_id"])
}

func TestAddStripsClientSystemFields(t *testing.T) {
	s := New()

	rec := s.Add("products", Record{
		"name":       "Carrot",
		"_id":        "forged",
		"_createdOn": 1,
		"_updatedOn": 2,
		"_ownerId":   "user-1",
	})

	assert.NotEqual(t, "forged", rec["_id"])
	assert.NotEqual(t, 1, rec["_createdOn"])
	assert.NotContains(t, rec, "_updatedOn")
	// _ownerId is the one pre-settable field: the CRUD layer stamps it
	// from the caller identity before storing.
	assert.Equal(t, "user-1", rec["_ownerId"])
}

func TestGetReturnsIndependentCopies(t *testing.T) {
	s := New()
	id := s.Add("products", Record{
		"name": "Carrot",
		"tags": []any{"fresh"},
		"meta": map[string]any{"origin": "BG"},
	})["_id"].(string)

	a, err := s.Get("products", id)
	require.NoError(t, err)
	b, err := s.Get("products", id)
	require.NoError(t, err)

	a["name"] = "Potato"
	a["tags"].([]any)[0] = "stale"
	a["meta"].(map[string]any)["origin"] = "XX"

	assert.Equal(t, "Carrot", b["name"])
	assert.Equal(t, "fresh", b["tags"].([]any)[0])
	assert.Equal(t, "BG", b["meta"].(map[string]any)["origin"])
}

func TestGetMissing(t *testing.T) {
	s := New()

	_, err := s.Get("nope", "id")
	assert.True(t, common.IsNotFound(err))

	s.Add("products", Record{"name": "Carrot"})
	_, err = s.Get("products", "missing-id")
	assert.True(t, common.IsNotFound(err))
}

func TestSetPreservesSystemFields(t *testing.T) {
	s := New()
	created := s.Add("products", Record{"name": "Carrot", "price": 23, "_ownerId": "u1"})
	id := created["_id"].(string)

	updated, err := s.Set("products", id, Record{
		"name":       "Fresh Carrot",
		"_ownerId":   "attacker",
		"_createdOn": 0,
	})
	require.NoError(t, err)

	assert.Equal(t, "Fresh Carrot", updated["name"])
	assert.NotContains(t, updated, "price") // full replacement
	assert.Equal(t, "u1", updated["_ownerId"])
	assert.Equal(t, created["_createdOn"], updated["_createdOn"])
	assert.NotNil(t, updated["_updatedOn"])
}

func TestMergeOverwritesOnlySuppliedFields(t *testing.T) {
	s := New()
	created := s.Add("products", Record{"name": "Carrot", "price": 23, "_ownerId": "u1"})
	id := created["_id"].(string)

	merged, err := s.Merge("products", id, Record{"price": 25, "_ownerId": "attacker"})
	require.NoError(t, err)

	assert.Equal(t, "Carrot", merged["name"])
	assert.Equal(t, 25, merged["price"])
	assert.Equal(t, "u1", merged["_ownerId"])
	assert.NotNil(t, merged["_updatedOn"])
}

func TestDeleteSemantics(t *testing.T) {
	s := New()
	id := s.Add("products", Record{"name": "Carrot"})["_id"].(string)

	marker, err := s.Delete("products", id)
	require.NoError(t, err)
	assert.NotNil(t, marker["_deletedOn"])

	_, err = s.Get("products", id)
	assert.True(t, common.IsNotFound(err))

	_, err = s.Delete("products", id)
	assert.True(t, common.IsNotFound(err))
}

func TestQueryCaseInsensitive(t *testing.T) {
	s := NewFromSeed(map[string]map[string]Record{
		"users": {
			"u1": {"email": "Peter@abv.bg", "username": "Peter"},
			"u2": {"email": "george@abv.bg", "username": "George"},
		},
	})

	found, err := s.Query("users", Record{"email": "peter@ABV.bg"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u1", found[0]["_id"])

	none, err := s.Query("users", Record{"email": "missing@abv.bg"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryIgnoresFieldsAbsentFromRecord(t *testing.T) {
	s := NewFromSeed(map[string]map[string]Record{
		"sessions": {
			"s1": {"userId": "u1"},
		},
	})

	// The session has no accessToken yet; a query on it still matches by
	// the fields the record does carry.
	found, err := s.Query("sessions", Record{"userId": "u1", "accessToken": "t"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestCollections(t *testing.T) {
	s := New()
	assert.Empty(t, s.Collections())

	s.Add("products", Record{"name": "Carrot"})
	s.Add("orders", Record{"total": 10})

	assert.Equal(t, []string{"orders", "products"}, s.Collections())
}

func TestNumericEqualityAcrossTypes(t *testing.T) {
	assert.True(t, Equal(int64(5), float64(5)))
	assert.True(t, Equal(5, 5.0))
	assert.False(t, Equal(5, "5"))
	assert.True(t, Equal("Apple", "apple"))
	assert.True(t, Equal(nil, nil))

	// Only the match-object comparison folds case.
	assert.True(t, LooseEqual(int64(5), float64(5)))
	assert.True(t, LooseEqual("Apple", "Apple"))
	assert.False(t, LooseEqual("Apple", "apple"))
	assert.True(t, LooseEqual(nil, nil))
}

func TestQueryMatchFoldsCase(t *testing.T) {
	s := New()
	s.Add("users", Record{"email": "Peter@abv.bg"})

	found, err := s.Query("users", Record{"email": "peter@abv.bg"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
