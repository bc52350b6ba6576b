package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pantry/internal/server/query"
)

// jsonNull makes a removed-nothing DELETE respond with a JSON null body
// instead of an empty 204.
var jsonNull = json.RawMessage("null")

// Tree is the raw document store behind the jsonstore service: a nested
// map addressed by path segments, with none of the CRUD engine's rules,
// ownership or system fields.
type Tree struct {
	mu   sync.Mutex
	root map[string]any
}

func NewTree() *Tree {
	return &Tree{root: map[string]any{}}
}

// NewTreeFromDir loads one top-level collection per *.json file in dir,
// named after the file. A missing directory yields an empty tree.
func NewTreeFromDir(dir string) (*Tree, error) {
	t := NewTree()
	if dir == "" {
		return t, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonstore: reading %s: %w", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("jsonstore: reading %s: %w", name, err)
		}
		var content map[string]any
		if err := json.Unmarshal(raw, &content); err != nil {
			return nil, fmt.Errorf("jsonstore: parsing %s: %w", name, err)
		}
		t.root[strings.TrimSuffix(name, ".json")] = content
	}
	return t, nil
}

// walk descends the tree along tokens, returning nil when any step is
// missing or not traversable.
func walk(node any, tokens []string) any {
	for _, token := range tokens {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[token]
	}
	return node
}

func (t *Tree) get(tokens []string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return walk(t.root, tokens)
}

// post auto-creates intermediate objects along the path, then stores the
// body under a fresh id.
func (t *Tree) post(tokens []string, body any) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.root
	for _, token := range tokens {
		child, ok := node[token].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[token] = child
		}
		node = child
	}

	id := uuid.NewString()
	for {
		if _, taken := node[id]; !taken {
			break
		}
		id = uuid.NewString()
	}
	record := map[string]any{}
	if m, ok := body.(map[string]any); ok {
		for key, value := range m {
			record[key] = value
		}
	}
	record["_id"] = id
	node[id] = record
	return record
}

// put replaces an existing leaf only; unknown paths are a no-op.
func (t *Tree) put(tokens []string, body any) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}
	parent, ok := walk(t.root, tokens[:len(tokens)-1]).(map[string]any)
	if !ok {
		return nil
	}
	leaf := tokens[len(tokens)-1]
	if _, exists := parent[leaf]; !exists {
		return nil
	}
	parent[leaf] = body
	return body
}

// patch shallow-merges the body into an existing object node.
func (t *Tree) patch(tokens []string, body any) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := walk(t.root, tokens)
	target, ok := node.(map[string]any)
	if !ok {
		return node
	}
	if m, ok := body.(map[string]any); ok {
		for key, value := range m {
			target[key] = value
		}
	}
	return target
}

// del removes the addressed value and returns it; a miss anywhere along
// the path returns an explicit JSON null.
func (t *Tree) del(tokens []string) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.root
	for i, token := range tokens {
		value, ok := node[token]
		if !ok {
			return jsonNull
		}
		if i == len(tokens)-1 {
			delete(node, token)
			return value
		}
		node, ok = value.(map[string]any)
		if !ok {
			return jsonNull
		}
	}
	return jsonNull
}

// NewJSONStoreService exposes the tree over the usual five methods. The
// collection capture plus the remaining segments form the full path.
func NewJSONStoreService(t *Tree) *Service {
	s := NewService()
	path := func(rc *RequestContext, tokens []string) []string {
		return append([]string{rc.Params["collection"]}, tokens...)
	}
	s.Get(":collection", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		return t.get(path(rc, tokens)), nil
	})
	s.Post(":collection", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		return t.post(path(rc, tokens), body), nil
	})
	s.Put(":collection", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		return t.put(path(rc, tokens), body), nil
	})
	s.Patch(":collection", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		return t.patch(path(rc, tokens), body), nil
	})
	s.Delete(":collection", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		return t.del(path(rc, tokens)), nil
	})
	return s
}
