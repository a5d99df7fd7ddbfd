package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"finledger/internal/cache"
	"finledger/internal/core"
	"finledger/internal/storage"
)

// tokenBytes is the entropy of an issued API token.
const tokenBytes = 32

// UserLookup finds the user a token hash belongs to.
type UserLookup interface {
	GetUserIDByTokenHash(ctx context.Context, tokenHash string) (string, error)
}

// TokenResolver resolves bearer tokens to user ids. Tokens are never stored;
// only their SHA-256 hash is. Successful lookups are cached.
type TokenResolver struct {
	users UserLookup
	cache cache.Cache[string]
}

func NewTokenResolver(users UserLookup, c cache.Cache[string]) *TokenResolver {
	return &TokenResolver{users: users, cache: c}
}

// HashToken is the form a token is stored and looked up in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *TokenResolver) Resolve(ctx context.Context, cred core.Credential) (string, error) {
	token := strings.TrimSpace(string(cred))
	if token == "" {
		return "", core.ErrUnauthorized
	}
	hash := HashToken(token)

	if r.cache != nil {
		if userID, ok := r.cache.Get(hash); ok {
			return userID, nil
		}
	}

	userID, err := r.users.GetUserIDByTokenHash(ctx, hash)
	if err != nil {
		if core.KindOf(err) != core.KindNotFound {
			return "", fmt.Errorf("%w: lookup user: %w", core.ErrStoreFailure, err)
		}
		return "", err
	}

	if r.cache != nil {
		r.cache.Set(hash, userID)
	}
	return userID, nil
}

// Forget drops a token from the cache, e.g. after it was revoked.
func (r *TokenResolver) Forget(cred core.Credential) {
	if r.cache != nil {
		r.cache.Delete(HashToken(strings.TrimSpace(string(cred))))
	}
}

// NewToken returns a random token suitable as a bearer credential.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Provision creates a user and returns its id and the plain token. The token
// cannot be recovered later.
func Provision(ctx context.Context, store *storage.SQLiteRepository) (userID, token string, err error) {
	token, err = NewToken()
	if err != nil {
		return "", "", err
	}
	userID, err = store.CreateUser(ctx, HashToken(token))
	if err != nil {
		return "", "", err
	}
	slog.InfoContext(ctx, "Credential issued", "user_id", userID)
	return userID, token, nil
}
