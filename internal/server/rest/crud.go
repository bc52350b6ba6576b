package rest

import (
	"context"
	"errors"

	"pantry/internal/common"
	"pantry/internal/server/query"
	"pantry/internal/server/storage"
)

// NewDataService builds the generic CRUD service. Every route captures
// the collection name; the record id, when present, is the single
// remaining segment.
func NewDataService() *Service {
	s := NewService()
	s.Get(":collection", getRecords)
	s.Post(":collection", createRecord)
	s.Put(":collection", replaceRecord)
	s.Patch(":collection", mergeRecord)
	s.Delete(":collection", deleteRecord)
	return s
}

func validateTokens(tokens []string) error {
	if len(tokens) > 1 {
		return common.NewRequestError("")
	}
	return nil
}

// translateStorageErr maps storage lookups to the plain response
// taxonomy: missing things are a bare 404, anything else a 400 carrying
// the reason.
func translateStorageErr(err error) error {
	if common.IsNotFound(err) {
		return common.NewNotFoundError("")
	}
	var se *common.Error
	if errors.As(err, &se) {
		return se
	}
	return common.NewRequestError(err.Error())
}

func getRecords(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
	if err := validateTokens(tokens); err != nil {
		return nil, err
	}
	collection := rc.Params["collection"]

	if where, ok := q["where"]; ok {
		records, err := rc.Storage.GetAll(collection)
		if err != nil {
			return nil, translateStorageErr(err)
		}
		records, err = query.Filter(records, where)
		if err != nil {
			return nil, err
		}
		result, err := rc.Query.Transform(records, q)
		if err != nil {
			return nil, translateStorageErr(err)
		}
		if err := rc.CanAccess(nil, nil); err != nil {
			return nil, err
		}
		return result, nil
	}

	if collection == "" {
		// Collection name listing carries no record data and skips the
		// access check.
		return rc.Storage.Collections(), nil
	}

	if len(tokens) == 1 {
		record, err := rc.Storage.Get(collection, tokens[0])
		if err != nil {
			return nil, translateStorageErr(err)
		}
		record, err = rc.Query.TransformOne(record, q)
		if err != nil {
			return nil, translateStorageErr(err)
		}
		if err := rc.CanAccess(record, nil); err != nil {
			return nil, err
		}
		return record, nil
	}

	records, err := rc.Storage.GetAll(collection)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	result, err := rc.Query.Transform(records, q)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	if err := rc.CanAccess(nil, nil); err != nil {
		return nil, err
	}
	return result, nil
}

func createRecord(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
	if err := validateTokens(tokens); err != nil {
		return nil, err
	}
	if len(tokens) > 0 {
		return nil, common.NewRequestError("Use PUT to update records")
	}
	payload, ok := toRecord(body)
	if !ok {
		return nil, common.NewRequestError("")
	}
	if err := rc.CanAccess(nil, payload); err != nil {
		return nil, err
	}
	if rc.User != nil {
		payload["_ownerId"] = rc.User["_id"]
	}
	return rc.Storage.Add(rc.Params["collection"], payload), nil
}

func replaceRecord(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
	existing, payload, err := writeTarget(rc, tokens, body, true)
	if err != nil {
		return nil, err
	}
	if err := rc.CanAccess(existing, payload); err != nil {
		return nil, err
	}
	result, err := rc.Storage.Set(rc.Params["collection"], tokens[0], payload)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return result, nil
}

func mergeRecord(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
	existing, payload, err := writeTarget(rc, tokens, body, true)
	if err != nil {
		return nil, err
	}
	if err := rc.CanAccess(existing, payload); err != nil {
		return nil, err
	}
	result, err := rc.Storage.Merge(rc.Params["collection"], tokens[0], payload)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return result, nil
}

func deleteRecord(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
	existing, _, err := writeTarget(rc, tokens, body, false)
	if err != nil {
		return nil, err
	}
	if err := rc.CanAccess(existing, nil); err != nil {
		return nil, err
	}
	result, err := rc.Storage.Delete(rc.Params["collection"], tokens[0])
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return result, nil
}

// writeTarget validates the id segment and loads the existing record for
// a mutating request.
func writeTarget(rc *RequestContext, tokens []string, body any, needBody bool) (storage.Record, storage.Record, error) {
	if len(tokens) != 1 {
		return nil, nil, common.NewRequestError("Missing entry ID")
	}
	var payload storage.Record
	if needBody {
		var ok bool
		payload, ok = toRecord(body)
		if !ok {
			return nil, nil, common.NewRequestError("")
		}
	}
	existing, err := rc.Storage.Get(rc.Params["collection"], tokens[0])
	if err != nil {
		return nil, nil, common.NewNotFoundError("")
	}
	return existing, payload, nil
}

func toRecord(body any) (storage.Record, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, false
	}
	return storage.Record(m), true
}
