// Package auth implements registration, login and token-session
// resolution over the protected store. Passwords are kept as hex
// HMAC-SHA256 digests keyed with the server secret; access tokens are
// signed session references, never derived from the password.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"pantry/internal/common"
	"pantry/internal/logging"
	"pantry/internal/server/storage"
)

const (
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

// Auth owns the users and sessions collections of the protected store.
type Auth struct {
	protected *storage.Store
	identity  string
	secret    []byte
	log       logging.Logger
}

// New builds the service. identity names the unique login property,
// typically "email".
func New(protected *storage.Store, identity string, secret []byte, log logging.Logger) *Auth {
	return &Auth{protected: protected, identity: identity, secret: secret, log: log}
}

// Identity returns the configured login property name.
func (a *Auth) Identity() string { return a.identity }

// HashPassword returns the hex HMAC-SHA256 digest of a password under
// the server secret.
func (a *Auth) HashPassword(password string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// Register creates a user from the request body, which must carry the
// identity property and a password. The stored record keeps every other
// body field plus the password digest; the plaintext password is never
// persisted. Returns the user with a fresh accessToken and without the
// digest.
func (a *Auth) Register(ctx context.Context, body storage.Record) (storage.Record, error) {
	identity, _ := body[a.identity].(string)
	password, _ := body["password"].(string)
	if identity == "" || password == "" {
		return nil, common.NewRequestError("Missing fields")
	}

	existing, err := a.queryAll(usersCollection, storage.Record{a.identity: identity})
	if err != nil {
		return nil, err
	}
	if len(existing) != 0 {
		return nil, common.NewConflictError(fmt.Sprintf("A user with the same %s already exists", a.identity))
	}

	user := storage.Record{}
	for key, value := range body {
		if key == "password" {
			continue
		}
		user[key] = value
	}
	user["hashedPassword"] = a.HashPassword(password)

	result := a.protected.Add(usersCollection, user)
	delete(result, "hashedPassword")

	token, err := a.saveSession(result["_id"].(string))
	if err != nil {
		return nil, err
	}
	result["accessToken"] = token
	a.log.Info(ctx, "user registered", a.identity, identity)
	return result, nil
}

// Login authenticates against the stored password digest and opens a new
// session. Concurrent sessions per user are allowed.
func (a *Auth) Login(ctx context.Context, body storage.Record) (storage.Record, error) {
	identity, _ := body[a.identity].(string)
	password, _ := body["password"].(string)

	matches, err := a.queryAll(usersCollection, storage.Record{a.identity: identity})
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, common.NewCredentialError("Login or password don't match")
	}
	user := matches[0]
	digest, _ := user["hashedPassword"].(string)
	if !hmac.Equal([]byte(a.HashPassword(password)), []byte(digest)) {
		return nil, common.NewCredentialError("Login or password don't match")
	}
	delete(user, "hashedPassword")

	token, err := a.saveSession(user["_id"].(string))
	if err != nil {
		return nil, err
	}
	user["accessToken"] = token
	a.log.Info(ctx, "user logged in", a.identity, identity)
	return user, nil
}

// Logout deletes one session of the current user.
func (a *Auth) Logout(ctx context.Context, user storage.Record) error {
	if user == nil {
		return common.NewCredentialError("User session does not exist")
	}
	sessions, err := a.queryAll(sessionsCollection, storage.Record{"userId": user["_id"]})
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}
	id, _ := sessions[0]["_id"].(string)
	if _, err := a.protected.Delete(sessionsCollection, id); err != nil {
		return err
	}
	return nil
}

// ResolveUser maps an access token to its user. Every failure collapses
// into the same credential error so the response does not reveal which
// step broke.
func (a *Auth) ResolveUser(ctx context.Context, token string) (storage.Record, error) {
	invalid := common.NewCredentialError("Invalid access token")

	sessionID, err := SessionIDFromToken(a.secret, token)
	if err != nil {
		return nil, invalid
	}
	session, err := a.protected.Get(sessionsCollection, sessionID)
	if err != nil {
		return nil, invalid
	}
	if stored, _ := session["accessToken"].(string); stored != token {
		return nil, invalid
	}
	userID, _ := session["userId"].(string)
	user, err := a.protected.Get(usersCollection, userID)
	if err != nil {
		return nil, invalid
	}
	a.log.Debug(ctx, "authorized", a.identity, user[a.identity])
	return user, nil
}

// queryAll treats an absent collection as an empty result, which happens
// on a freshly created protected store before its first write.
func (a *Auth) queryAll(collection string, match storage.Record) ([]storage.Record, error) {
	found, err := a.protected.Query(collection, match)
	if common.IsNotFound(err) {
		return nil, nil
	}
	return found, err
}

// saveSession adds a session record for the user and stamps it with its
// own signed token.
func (a *Auth) saveSession(userID string) (string, error) {
	session := a.protected.Add(sessionsCollection, storage.Record{"userId": userID})
	id := session["_id"].(string)
	token, err := SignSessionToken(a.secret, id)
	if err != nil {
		return "", err
	}
	session["accessToken"] = token
	if _, err := a.protected.Set(sessionsCollection, id, session); err != nil {
		return "", err
	}
	return token, nil
}
