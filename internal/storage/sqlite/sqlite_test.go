package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/rubani/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "rubani.db")}, discardLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return store
}

func TestUserSaveGetDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	users := store.Users()

	user := &storage.User{
		Username:   "octo-dev",
		OctopusURL: "https://octopus.example.com",
		APIKey:     "API-ONE",
	}
	if err := users.Save(ctx, user); err != nil {
		t.Fatalf("saving: %v", err)
	}

	got, err := users.Get(ctx, "octo-dev")
	if err != nil {
		t.Fatalf("getting: %v", err)
	}
	if got.Partition != storage.ServicePartition {
		t.Errorf("expected partition %q, got %q", storage.ServicePartition, got.Partition)
	}
	if got.OctopusURL != user.OctopusURL || got.APIKey != user.APIKey {
		t.Errorf("unexpected record %+v", got)
	}

	// Save again is an upsert, not a duplicate.
	user.APIKey = "API-TWO"
	if err := users.Save(ctx, user); err != nil {
		t.Fatalf("upserting: %v", err)
	}
	got, err = users.Get(ctx, "octo-dev")
	if err != nil {
		t.Fatalf("getting after upsert: %v", err)
	}
	if got.APIKey != "API-TWO" {
		t.Errorf("expected upserted key, got %q", got.APIKey)
	}

	count, err := users.Count(ctx)
	if err != nil || count != 1 {
		t.Errorf("expected count 1, got %d (%v)", count, err)
	}

	if err := users.Delete(ctx, "octo-dev"); err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if _, err := users.Get(ctx, "octo-dev"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing record is not an error.
	if err := users.Delete(ctx, "octo-dev"); err != nil {
		t.Errorf("deleting missing record: %v", err)
	}
}

func TestLoginTokenRedeemIsOneTime(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	tokens := store.LoginTokens()
	now := time.Now().UTC()

	token := &storage.LoginToken{
		ID:         uuid.New(),
		Username:   "octo-dev",
		Endpoint:   "https://octopus.example.com",
		Credential: "API-ONE",
		ExpiresAt:  now.Add(5 * time.Minute),
	}
	if err := tokens.Create(ctx, token); err != nil {
		t.Fatalf("creating: %v", err)
	}

	got, err := tokens.Redeem(ctx, token.ID, now)
	if err != nil {
		t.Fatalf("redeeming: %v", err)
	}
	if got.Username != "octo-dev" || got.Credential != "API-ONE" {
		t.Errorf("unexpected token %+v", got)
	}

	if _, err := tokens.Redeem(ctx, token.ID, now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second redeem, got %v", err)
	}
}

func TestLoginTokenExpiry(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	tokens := store.LoginTokens()
	now := time.Now().UTC()

	expired := &storage.LoginToken{ID: uuid.New(), Username: "a", ExpiresAt: now.Add(-time.Minute)}
	live := &storage.LoginToken{ID: uuid.New(), Username: "b", ExpiresAt: now.Add(time.Hour)}
	for _, tok := range []*storage.LoginToken{expired, live} {
		if err := tokens.Create(ctx, tok); err != nil {
			t.Fatalf("creating: %v", err)
		}
	}

	if _, err := tokens.Redeem(ctx, expired.ID, now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected expired token to be unredeemable, got %v", err)
	}

	deleted, err := tokens.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("sweeping: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	if _, err := tokens.Redeem(ctx, live.ID, now); err != nil {
		t.Errorf("live token must survive the sweep: %v", err)
	}
}

func TestLoginTokenDuplicateID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	tokens := store.LoginTokens()

	token := &storage.LoginToken{ID: uuid.New(), Username: "a", ExpiresAt: time.Now().Add(time.Hour)}
	if err := tokens.Create(ctx, token); err != nil {
		t.Fatalf("creating: %v", err)
	}
	if err := tokens.Create(ctx, token); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}
