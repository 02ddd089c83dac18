package session

import (
	"context"
	"testing"
	"time"

	"fieldops/api/internal/store"
	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	st, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return st, s
}

func testUser(id string) store.User {
	return store.User{
		ID:          id,
		TenantID:    "tn-1",
		DisplayName: "Priya",
		Role:        "office",
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := st.SaveRefreshSession(ctx, "hash-1", testUser("user-123"), expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	user, err := st.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "user-123" {
		t.Errorf("expected user ID user-123, got %s", user.ID)
	}
	if user.TenantID != "tn-1" {
		t.Errorf("expected tenant tn-1, got %s", user.TenantID)
	}
	if user.Role != "office" {
		t.Errorf("expected role office, got %s", user.Role)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	ctx := context.Background()
	if err := st.SaveRefreshSession(ctx, "expired", testUser("user-456"), time.Now().Add(time.Millisecond)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := st.LookupRefreshSession(ctx, "expired"); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	if _, err := st.LookupRefreshSession(context.Background(), "missing"); err == nil {
		t.Error("expected error for non-existent token, got nil")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := st.SaveRefreshSession(ctx, "hash-r", testUser("user-789"), expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := st.RevokeRefreshSession(ctx, "hash-r"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := st.LookupRefreshSession(ctx, "hash-r"); err == nil {
		t.Error("expected error for revoked token, got nil")
	}
}

func TestCustomerSessionKeepsClientScope(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	ctx := context.Background()
	clientID := "cl-9"
	customer := store.User{ID: "user-c", TenantID: "tn-1", DisplayName: "Dana", Role: "customer", ClientID: &clientID}

	if err := st.SaveRefreshSession(ctx, "hash-c", customer, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	user, err := st.LookupRefreshSession(ctx, "hash-c")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ClientID == nil || *user.ClientID != "cl-9" {
		t.Errorf("expected client scope cl-9, got %v", user.ClientID)
	}
}
