package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips when none is running.
// tests/integration covers the same paths against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, 0)
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", manager.TTL(), DefaultTTL)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func TestManager_DetailRoundTrip(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()

	body := []byte(`{"id":42,"name":"Ant","born_at":null,"friends":"Bee"}`)
	if err := manager.SetDetail(ctx, 42, body); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}

	got, err := manager.GetDetail(ctx, 42)
	if err != nil {
		t.Fatalf("GetDetail failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Data mismatch: got %s, want %s", got, body)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)

	_, err := manager.GetDetail(context.Background(), 999)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Set_ExpiredEntryIsSkipped(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()
	key := DetailKey(7)

	entry := &CacheEntry{
		Data:    []byte(`{}`),
		Expires: time.Now().Add(-1 * time.Hour),
	}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Get_CorruptedEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	if err := client.Set(ctx, DetailKey(5).String(), "not-json", time.Minute).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	if _, err := manager.GetDetail(ctx, 5); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()

	if err := manager.SetDetail(ctx, 3, []byte(`{}`)); err != nil {
		t.Fatalf("SetDetail failed: %v", err)
	}
	if err := manager.Delete(ctx, DetailKey(3)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.GetDetail(ctx, 3); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)

	if err := manager.Set(context.Background(), DetailKey(1), nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestOpen_InvalidURL(t *testing.T) {
	if _, err := Open(context.Background(), "not a url", time.Minute); err == nil {
		t.Error("Open should reject an invalid redis url")
	}
}

func TestOpen_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Open(ctx, "redis://127.0.0.1:1/0", time.Minute); err == nil {
		t.Error("Open should fail when redis is unreachable")
	}
}

func TestManager_CloseBorrowedClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, time.Minute)
	if err := manager.Close(); err != nil {
		t.Errorf("Close on a borrowed client should be a no-op, got %v", err)
	}
}
