package rest

import (
	"sync"

	"pantry/internal/server/query"
	"pantry/internal/server/storage"
)

// RequestContext carries the per-request state assembled by the
// dispatcher's initializers before a handler runs. Handlers only ever
// see this struct; nothing is smuggled through dynamic attributes.
type RequestContext struct {
	// Params holds path captures, e.g. the collection name.
	Params map[string]string

	// User is the record resolved from the X-Authorization token, nil
	// for anonymous requests.
	User storage.Record

	Storage   *storage.Store
	Protected *storage.Store
	Query     *query.Engine

	Util *UtilFlags

	// CanAccess enforces the access rules of the current request
	// against the existing record and the incoming payload. Either may
	// be nil depending on the operation.
	CanAccess func(data, newData storage.Record) error
}

// UtilFlags is the shared runtime toggle set, mutated through the util
// service.
type UtilFlags struct {
	mu    sync.Mutex
	flags map[string]bool
}

// NewUtilFlags starts with throttle off, so the admin panel can read it
// before anything was posted.
func NewUtilFlags() *UtilFlags {
	return &UtilFlags{flags: map[string]bool{"throttle": false}}
}

// Get returns the flag value and whether it was ever set.
func (u *UtilFlags) Get(name string) (bool, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, ok := u.flags[name]
	return v, ok
}

func (u *UtilFlags) Set(name string, value bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.flags[name] = value
}
