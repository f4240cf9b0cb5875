package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"masthead/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	redisStore, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return redisStore, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	redisStore, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer redisStore.Close()

	if err := redisStore.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{
		ID:          "user-123",
		DisplayName: "Dana",
		Role:        "publisher",
		Color:       "#f59e0b",
	}

	if err := redisStore.SaveRefreshSession(ctx, "test-token-hash", user, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := redisStore.LookupRefreshSession(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}

	if got.ID != user.ID {
		t.Errorf("expected user ID %s, got %s", user.ID, got.ID)
	}
	if got.Role != "publisher" {
		t.Errorf("expected role publisher, got %s", got.Role)
	}
	if got.Color != "#f59e0b" {
		t.Errorf("expected color to round-trip, got %s", got.Color)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "user-456"}

	if err := redisStore.SaveRefreshSession(ctx, "expired-token", user, time.Now().Add(1*time.Millisecond)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := redisStore.LookupRefreshSession(ctx, "expired-token"); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	if _, err := redisStore.LookupRefreshSession(context.Background(), "non-existent-token"); err == nil {
		t.Error("expected error for non-existent token, got nil")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "user-789"}

	if err := redisStore.SaveRefreshSession(ctx, "token-to-revoke", user, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	if _, err := redisStore.LookupRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("token should exist before revocation: %v", err)
	}

	if err := redisStore.RevokeRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}

	if _, err := redisStore.LookupRefreshSession(ctx, "token-to-revoke"); err == nil {
		t.Error("expected error after revocation, got nil")
	}
}

func TestDefaultRoleWhenMissing(t *testing.T) {
	redisStore, s := setupTestRedis(t)
	defer redisStore.Close()
	defer s.Close()

	ctx := context.Background()
	if err := redisStore.SaveRefreshSession(ctx, "role-less", store.User{ID: "user-1"}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := redisStore.LookupRefreshSession(ctx, "role-less")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if got.Role != "viewer" {
		t.Errorf("expected default role viewer, got %s", got.Role)
	}
}
