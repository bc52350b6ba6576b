package rest

import (
	"context"

	"pantry/internal/common"
	"pantry/internal/server/auth"
	"pantry/internal/server/query"
	"pantry/internal/server/storage"
)

// NewUserService builds the account routes backed by the auth service.
func NewUserService(a *auth.Auth) *Service {
	s := NewService()
	s.Get("me", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		if rc.User == nil {
			return nil, common.NewAuthorizationError("")
		}
		result := storage.Record{}
		for key, value := range rc.User {
			if key == "hashedPassword" {
				continue
			}
			result[key] = value
		}
		return result, nil
	})
	s.Post("register", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		payload, ok := toRecord(body)
		if !ok {
			return nil, common.NewRequestError("Missing fields")
		}
		return a.Register(ctx, payload)
	})
	s.Post("login", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		payload, ok := toRecord(body)
		if !ok {
			payload = storage.Record{}
		}
		return a.Login(ctx, payload)
	})
	s.Get("logout", func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		return nil, a.Logout(ctx, rc.User)
	})
	return s
}
