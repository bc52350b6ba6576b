package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/internal/common"
	"pantry/internal/logging"
	"pantry/internal/server/storage"
)

const testSecret = "This is not a production server"

func newAuth(t *testing.T, seed map[string]map[string]storage.Record) (*Auth, *storage.Store) {
	t.Helper()
	store := storage.NewFromSeed(seed)
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(store, "email", []byte(testSecret), log), store
}

func TestRegisterAndResolve(t *testing.T) {
	a, store := newAuth(t, nil)
	ctx := context.Background()

	result, err := a.Register(ctx, storage.Record{
		"email":    "peter@abv.bg",
		"username": "Peter",
		"password": "123456",
	})
	require.NoError(t, err)

	assert.Equal(t, "peter@abv.bg", result["email"])
	assert.Equal(t, "Peter", result["username"])
	assert.NotContains(t, result, "hashedPassword")
	assert.NotContains(t, result, "password")
	assert.NotEmpty(t, result["accessToken"])

	// The stored record keeps only the digest, never the plaintext.
	stored, err := store.Get("users", result["_id"].(string))
	require.NoError(t, err)
	assert.NotContains(t, stored, "password")
	assert.Equal(t, a.HashPassword("123456"), stored["hashedPassword"])

	user, err := a.ResolveUser(ctx, result["accessToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, result["_id"], user["_id"])
}

func TestRegisterMissingFields(t *testing.T) {
	a, _ := newAuth(t, nil)
	ctx := context.Background()

	for _, body := range []storage.Record{
		{},
		{"email": "peter@abv.bg"},
		{"password": "123456"},
		{"email": "", "password": "123456"},
		{"email": "peter@abv.bg", "password": ""},
	} {
		_, err := a.Register(ctx, body)
		require.Error(t, err)
		assert.True(t, common.IsKind(err, common.KindRequest))
		assert.EqualError(t, err, "Missing fields")
	}
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	a, _ := newAuth(t, nil)
	ctx := context.Background()

	_, err := a.Register(ctx, storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)

	_, err = a.Register(ctx, storage.Record{"email": "peter@abv.bg", "password": "other"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindConflict))
	assert.EqualError(t, err, "A user with the same email already exists")
}

func TestLogin(t *testing.T) {
	a, _ := newAuth(t, nil)
	ctx := context.Background()

	registered, err := a.Register(ctx, storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)

	result, err := a.Login(ctx, storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)
	assert.Equal(t, registered["_id"], result["_id"])
	assert.NotContains(t, result, "hashedPassword")
	assert.NotEmpty(t, result["accessToken"])

	// A second login opens an independent session.
	again, err := a.Login(ctx, storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)
	assert.NotEqual(t, result["accessToken"], again["accessToken"])

	for _, token := range []string{result["accessToken"].(string), again["accessToken"].(string)} {
		user, err := a.ResolveUser(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, registered["_id"], user["_id"])
	}
}

func TestLoginFailures(t *testing.T) {
	a, _ := newAuth(t, nil)
	ctx := context.Background()

	_, err := a.Register(ctx, storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)

	for _, body := range []storage.Record{
		{"email": "peter@abv.bg", "password": "wrong"},
		{"email": "nobody@abv.bg", "password": "123456"},
		{},
	} {
		_, err := a.Login(ctx, body)
		require.Error(t, err)
		assert.True(t, common.IsKind(err, common.KindCredential))
		assert.EqualError(t, err, "Login or password don't match")
	}
}

func TestSeededUserLogin(t *testing.T) {
	// Digest of "123456" under the default secret, as shipped in the
	// seeded accounts.
	a, _ := newAuth(t, map[string]map[string]storage.Record{
		"users": {
			"35c62d76-8152-4626-8712-eeb96381bea8": {
				"email":          "peter@abv.bg",
				"username":       "Peter",
				"hashedPassword": "83313014ed3e2391aa1332615d2f053cf5c1bfe05ca1cbcb5582443822df6eb1",
			},
		},
		"sessions": {},
	})
	ctx := context.Background()

	result, err := a.Login(ctx, storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)
	assert.Equal(t, "35c62d76-8152-4626-8712-eeb96381bea8", result["_id"])
}

func TestLogout(t *testing.T) {
	a, _ := newAuth(t, nil)
	ctx := context.Background()

	result, err := a.Register(ctx, storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)
	token := result["accessToken"].(string)

	user, err := a.ResolveUser(ctx, token)
	require.NoError(t, err)

	require.NoError(t, a.Logout(ctx, user))

	_, err = a.ResolveUser(ctx, token)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindCredential))
	assert.EqualError(t, err, "Invalid access token")
}

func TestLogoutWithoutSession(t *testing.T) {
	a, _ := newAuth(t, nil)
	err := a.Logout(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindCredential))
	assert.EqualError(t, err, "User session does not exist")
}

func TestResolveUserRejectsForgedTokens(t *testing.T) {
	a, _ := newAuth(t, nil)
	ctx := context.Background()

	result, err := a.Register(ctx, storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)
	sessionID := sessionIDOf(t, result["accessToken"].(string))

	forged, err := SignSessionToken([]byte("other secret"), sessionID)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", forged} {
		_, err := a.ResolveUser(ctx, token)
		require.Error(t, err)
		assert.EqualError(t, err, "Invalid access token")
	}
}

func sessionIDOf(t *testing.T, token string) string {
	t.Helper()
	id, err := SessionIDFromToken([]byte(testSecret), token)
	require.NoError(t, err)
	return id
}

func TestSessionTokenRoundTrip(t *testing.T) {
	secret := []byte(testSecret)

	token, err := SignSessionToken(secret, "s1")
	require.NoError(t, err)

	id, err := SessionIDFromToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	// Deterministic per session id.
	again, err := SignSessionToken(secret, "s1")
	require.NoError(t, err)
	assert.Equal(t, token, again)

	_, err = SessionIDFromToken([]byte("wrong"), token)
	assert.Error(t, err)
}
