package rest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/internal/server/query"
)

func TestPatternMatch(t *testing.T) {
	params := map[string]string{}

	assert.True(t, ParsePattern("*").Match("anything", params))
	assert.True(t, ParsePattern("*").Match("", params))

	assert.True(t, ParsePattern(":collection").Match("products", params))
	assert.Equal(t, "products", params["collection"])
	assert.True(t, ParsePattern(":collection").Match("", params))
	assert.Equal(t, "", params["collection"])

	assert.True(t, ParsePattern("me").Match("me", params))
	assert.False(t, ParsePattern("me").Match("login", params))
	assert.False(t, ParsePattern("me").Match("", params))
}

func echoHandler(tag string) Handler {
	return func(ctx context.Context, rc *RequestContext, tokens []string, q query.Params, body any) (any, error) {
		return map[string]any{"tag": tag, "tokens": tokens}, nil
	}
}

func TestServiceDispatchFirstMatchWins(t *testing.T) {
	s := NewService()
	s.Get("me", echoHandler("me"))
	s.Get(":collection", echoHandler("collection"))

	rc := &RequestContext{Params: map[string]string{}}

	result, handled, err := s.Dispatch(context.Background(), rc, "GET", []string{"me"}, nil, nil)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "me", result.(map[string]any)["tag"])

	result, handled, err = s.Dispatch(context.Background(), rc, "GET", []string{"products", "p1"}, nil, nil)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "collection", result.(map[string]any)["tag"])
	assert.Equal(t, "products", rc.Params["collection"])
	assert.Equal(t, []string{"p1"}, result.(map[string]any)["tokens"])
}

func TestServiceDispatchMethodAndMiss(t *testing.T) {
	s := NewService()
	s.Post("register", echoHandler("register"))

	rc := &RequestContext{Params: map[string]string{}}

	_, handled, err := s.Dispatch(context.Background(), rc, "GET", []string{"register"}, nil, nil)
	require.NoError(t, err)
	assert.False(t, handled)

	_, handled, err = s.Dispatch(context.Background(), rc, "POST", []string{"elsewhere"}, nil, nil)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestSplitPath(t *testing.T) {
	service, tokens := splitPath("/data/products/p1")
	assert.Equal(t, "data", service)
	assert.Equal(t, []string{"products", "p1"}, tokens)

	service, tokens = splitPath("/")
	assert.Equal(t, "", service)
	assert.Empty(t, tokens)

	service, tokens = splitPath("//users//me/")
	assert.Equal(t, "users", service)
	assert.Equal(t, []string{"me"}, tokens)
}

func TestUtilFlags(t *testing.T) {
	u := NewUtilFlags()

	v, ok := u.Get("throttle")
	assert.True(t, ok)
	assert.False(t, v)

	_, ok = u.Get("verbose")
	assert.False(t, ok)

	u.Set("throttle", true)
	v, ok = u.Get("throttle")
	assert.True(t, ok)
	assert.True(t, v)
}
