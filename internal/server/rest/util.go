package rest

import (
	"context"

	"pantry/internal/server/query"
)

// NewUtilService exposes the runtime flags: POST /util sets booleans
// from the body, GET /util/<flag> reads one back. Unknown flags answer
// with an empty 204.
func NewUtilService() *Service {
	s := NewService()
	s.Post("*", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		if m, ok := body.(map[string]any); ok {
			for name, value := range m {
				enabled, _ := value.(bool)
				rc.Util.Set(name, enabled)
			}
		}
		return "", nil
	})
	s.Get(":service", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		value, ok := rc.Util.Get(rc.Params["service"])
		if !ok {
			return nil, nil
		}
		return value, nil
	})
	return s
}
