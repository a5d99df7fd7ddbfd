package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finledger/internal/cache"
	"finledger/internal/core"
	"finledger/internal/storage"
)

type countingLookup struct {
	users map[string]string
	err   error
	calls int
}

func (c *countingLookup) GetUserIDByTokenHash(_ context.Context, hash string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	id, ok := c.users[hash]
	if !ok {
		return "", core.ErrNotFound
	}
	return id, nil
}

func TestTokenResolver_Resolve(t *testing.T) {
	lookup := &countingLookup{users: map[string]string{HashToken("secret"): "user-1"}}
	r := NewTokenResolver(lookup, cache.NewLRUCache[string](10, time.Minute))
	ctx := context.Background()

	tests := []struct {
		name string
		cred core.Credential
		want string
		kind core.ErrorKind
	}{
		{"known token", "secret", "user-1", ""},
		{"padded token", "  secret ", "user-1", ""},
		{"empty", "", "", core.KindUnauthorized},
		{"whitespace", "   ", "", core.KindUnauthorized},
		{"unknown", "other", "", core.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.cred)
			if tt.kind != "" {
				if core.KindOf(err) != tt.kind {
					t.Fatalf("err = %v, want kind %s", err, tt.kind)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Resolve = %q, %v", got, err)
			}
		})
	}
}

func TestTokenResolver_CachesHits(t *testing.T) {
	lookup := &countingLookup{users: map[string]string{HashToken("secret"): "user-1"}}
	r := NewTokenResolver(lookup, cache.NewLRUCache[string](10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, "secret"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if lookup.calls != 1 {
		t.Errorf("store lookups = %d, want 1", lookup.calls)
	}

	r.Forget("secret")
	if _, err := r.Resolve(ctx, "secret"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if lookup.calls != 2 {
		t.Errorf("store lookups after Forget = %d, want 2", lookup.calls)
	}
}

func TestTokenResolver_StoreFailure(t *testing.T) {
	r := NewTokenResolver(&countingLookup{err: errors.New("disk I/O error")}, nil)
	_, err := r.Resolve(context.Background(), "secret")
	if core.KindOf(err) != core.KindStoreFailure {
		t.Fatalf("err = %v, want store failure", err)
	}
}

func TestProvision(t *testing.T) {
	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	userID, token, err := Provision(ctx, store)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if len(token) != 2*tokenBytes {
		t.Errorf("token length = %d", len(token))
	}

	r := NewTokenResolver(store.Queries(), nil)
	got, err := r.Resolve(ctx, core.Credential(token))
	if err != nil || got != userID {
		t.Fatalf("Resolve = %q, %v; want %q", got, err, userID)
	}
}
