package cache

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()

	cacheInterface, err := NewRistrettoCache(&RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(cacheInterface.Close)

	// Concrete type for Wait()
	return cacheInterface.(*RistrettoCache)
}

func TestKeyKind(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "market-detail:mkt-1", want: "market-detail"},
		{key: "rules:mkt-1", want: "rules"},
		{key: "plain", want: "other"},
		{key: ":leading-colon", want: "other"},
		{key: "", want: "other"},
	}

	for _, tt := range tests {
		if got := keyKind(tt.key); got != tt.want {
			t.Errorf("keyKind(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestRistrettoCache_SetAndGet(t *testing.T) {
	cache := newTestCache(t)

	detail := map[string]string{"description": "Market resolves YES if..."}
	if ok := cache.Set("market-detail:mkt-1", detail, time.Hour); !ok {
		t.Error("expected Set to succeed")
	}
	cache.Wait()

	retrieved, found := cache.Get("market-detail:mkt-1")
	if !found {
		t.Fatal("expected key to be found")
	}
	got, ok := retrieved.(map[string]string)
	if !ok || got["description"] != detail["description"] {
		t.Errorf("retrieved = %v, want %v", retrieved, detail)
	}
}

func TestRistrettoCache_GetMissing(t *testing.T) {
	cache := newTestCache(t)

	if _, found := cache.Get("market-detail:nonexistent"); found {
		t.Error("expected key to not be found")
	}
}

func TestRistrettoCache_Delete(t *testing.T) {
	cache := newTestCache(t)

	cache.Set("market-detail:mkt-2", "doc", time.Hour)
	cache.Wait()

	if _, found := cache.Get("market-detail:mkt-2"); !found {
		t.Fatal("expected key to exist before delete")
	}

	cache.Delete("market-detail:mkt-2")

	if _, found := cache.Get("market-detail:mkt-2"); found {
		t.Error("expected key to be deleted")
	}
}

func TestRistrettoCache_TTLExpiration(t *testing.T) {
	cache := newTestCache(t)

	cache.Set("market-detail:mkt-3", "doc", 200*time.Millisecond)
	cache.Wait()

	if _, found := cache.Get("market-detail:mkt-3"); !found {
		t.Error("expected key to exist before TTL expires")
	}

	time.Sleep(300 * time.Millisecond)

	if _, found := cache.Get("market-detail:mkt-3"); found {
		t.Error("expected key to be expired after TTL")
	}
}

func TestRistrettoCache_Clear(t *testing.T) {
	cache := newTestCache(t)

	cache.Set("market-detail:a", "doc-a", time.Hour)
	cache.Set("market-detail:b", "doc-b", time.Hour)
	cache.Wait()

	_, foundA := cache.Get("market-detail:a")
	_, foundB := cache.Get("market-detail:b")
	if !foundA || !foundB {
		// Ristretto admission is probabilistic
		t.Skipf("keys not admitted: a=%v b=%v", foundA, foundB)
	}

	cache.Clear()

	if _, found := cache.Get("market-detail:a"); found {
		t.Error("expected keys to be cleared")
	}
	if _, found := cache.Get("market-detail:b"); found {
		t.Error("expected keys to be cleared")
	}
}
