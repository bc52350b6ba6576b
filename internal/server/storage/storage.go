// Package storage implements the in-memory multi-collection record store.
// Two instances run side by side: a public one for application collections
// and a protected one holding users and sessions. Every read hands out a
// deep copy, so callers can mutate results freely; all writes go through
// the mutation methods, which are atomic under an internal lock.
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pantry/internal/common"
)

// Record is one stored document. Persisted records carry the
// system-assigned fields _id, _createdOn, optionally _updatedOn, and
// _ownerId; none of them are settable by a write payload directly.
type Record = map[string]any

// systemFields are managed by the store, never by clients.
var systemFields = []string{"_id", "_createdOn", "_updatedOn", "_ownerId"}

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

// New returns an empty store. Collections are created lazily on first
// write.
func New() *Store {
	return &Store{collections: make(map[string]map[string]Record)}
}

// NewFromSeed builds a store from seed data of shape
// {collection: {id: record}}. Seed records are deep-copied in.
func NewFromSeed(seed map[string]map[string]Record) *Store {
	s := New()
	for name, records := range seed {
		col := make(map[string]Record, len(records))
		for id, rec := range records {
			col[id] = copyRecord(rec)
		}
		s.collections[name] = col
	}
	return s
}

// Collections returns the sorted list of collection names.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAll returns deep copies of every record in the collection, each with
// _id injected.
func (s *Store) GetAll(collection string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, common.NewNotFoundError("Collection does not exist: " + collection)
	}

	result := make([]Record, 0, len(col))
	for id, rec := range col {
		out := copyRecord(rec)
		out["_id"] = id
		result = append(result, out)
	}
	// Map iteration order is random; keep listings deterministic.
	sort.Slice(result, func(i, j int) bool {
		return result[i]["_id"].(string) < result[j]["_id"].(string)
	})
	return result, nil
}

// Get returns a deep copy of one record with _id injected.
func (s *Store) Get(collection, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookup(collection, id)
	if err != nil {
		return nil, err
	}
	out := copyRecord(rec)
	out["_id"] = id
	return out, nil
}

// Add stores a new record under a fresh unique id. Client-supplied system
// fields are stripped, except a pre-set _ownerId, which the CRUD layer
// stamps from the caller identity before storing. Returns a deep copy with
// the id injected.
func (s *Store) Add(collection string, data Record) Record {
	rec := assignClean(Record{}, data)
	if owner, ok := data["_ownerId"]; ok {
		rec["_ownerId"] = deepCopy(owner)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]Record)
		s.collections[collection] = col
	}

	id := uuid.NewString()
	for {
		if _, taken := col[id]; !taken {
			break
		}
		id = uuid.NewString()
	}

	rec["_createdOn"] = time.Now().UnixMilli()
	col[id] = rec

	out := copyRecord(rec)
	out["_id"] = id
	return out
}

// Set replaces the record wholesale, preserving the system fields of the
// existing version, and stamps _updatedOn.
func (s *Store) Set(collection, id string, data Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.lookup(collection, id)
	if err != nil {
		return nil, err
	}

	rec := assignSystemProps(copyRecord(data), existing)
	rec["_updatedOn"] = time.Now().UnixMilli()
	s.collections[collection][id] = rec

	out := copyRecord(rec)
	out["_id"] = id
	return out, nil
}

// Merge shallow-merges data onto the existing record. Client-supplied
// system fields are stripped first; _updatedOn is stamped.
func (s *Store) Merge(collection, id string, data Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.lookup(collection, id)
	if err != nil {
		return nil, err
	}

	rec := assignClean(copyRecord(existing), data)
	rec["_updatedOn"] = time.Now().UnixMilli()
	s.collections[collection][id] = rec

	out := copyRecord(rec)
	out["_id"] = id
	return out, nil
}

// Delete removes the record and returns a deletion timestamp marker.
func (s *Store) Delete(collection, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(collection, id); err != nil {
		return nil, err
	}
	delete(s.collections[collection], id)

	return Record{"_deletedOn": time.Now().UnixMilli()}, nil
}

// Query returns all records whose fields equal the corresponding fields of
// match, case-insensitively for strings. Fields of match that a record
// does not carry at all do not disqualify it.
func (s *Store) Query(collection string, match Record) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, common.NewNotFoundError("Collection does not exist: " + collection)
	}

	var result []Record
	for id, rec := range col {
		if matches(rec, match) {
			out := copyRecord(rec)
			out["_id"] = id
			result = append(result, out)
		}
	}
	return result, nil
}

// lookup is the shared existence check; callers hold the lock.
func (s *Store) lookup(collection, id string) (Record, error) {
	col, ok := s.collections[collection]
	if !ok {
		return nil, common.NewNotFoundError("Collection does not exist: " + collection)
	}
	rec, ok := col[id]
	if !ok {
		return nil, common.NewNotFoundError("Entry does not exist: " + id)
	}
	return rec, nil
}

func matches(rec, match Record) bool {
	for prop, want := range match {
		got, ok := rec[prop]
		if !ok {
			continue
		}
		if !Equal(got, want) {
			return false
		}
	}
	return true
}

// Equal is the match-object comparison used by Query: strings compare
// case-insensitively, everything else as LooseEqual. Registration's
// duplicate-identity check relies on the case folding.
func Equal(a, b any) bool {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.EqualFold(sa, sb)
		}
	}
	return LooseEqual(a, b)
}

// LooseEqual is the equality of where clauses and rule expressions:
// case-sensitive for strings, by value for numbers regardless of their
// concrete Go type, deep equality otherwise. Two nil values are equal.
func LooseEqual(a, b any) bool {
	if na, ok := Number(a); ok {
		if nb, ok := Number(b); ok {
			return na == nb
		}
	}
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}

// Number reports whether v is numeric and returns it as float64. JSON
// decoding yields float64, while store timestamps are int64, so both
// families must compare interchangeably.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// assignClean copies every non-system field of entry into target, deep
// copied.
func assignClean(target, entry Record) Record {
	for key, value := range entry {
		if isSystemField(key) {
			continue
		}
		target[key] = deepCopy(value)
	}
	return target
}

// assignSystemProps copies the system fields present on entry into target.
func assignSystemProps(target, entry Record) Record {
	for _, prop := range systemFields {
		if value, ok := entry[prop]; ok {
			target[prop] = deepCopy(value)
		}
	}
	return target
}

func isSystemField(key string) bool {
	for _, f := range systemFields {
		if key == f {
			return true
		}
	}
	return false
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return copyRecord(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
