package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb)
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a := canonical(map[string]string{"type": "JOIN", "inputs": "1,2"})
	b := canonical(map[string]string{"inputs": "1,2", "type": "JOIN"})
	if a != b {
		t.Errorf("canonical order dependent: %q != %q", a, b)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	params := map[string]string{"a": "1", "b": "2"}
	k1 := DeriveKey("video:info", params)
	k2 := DeriveKey("video:info", params)
	if k1 != k2 {
		t.Errorf("DeriveKey not deterministic: %q != %q", k1, k2)
	}
	if k1[:len("video:info:")] != "video:info:" {
		t.Errorf("DeriveKey missing prefix: %q", k1)
	}
}

func TestSortedIDsOrdersRegardlessOfInput(t *testing.T) {
	a := SortedIDs([]int64{3, 1, 2})
	b := SortedIDs([]int64{1, 2, 3})
	if a != b {
		t.Errorf("SortedIDs not order-independent: %q != %q", a, b)
	}
	if a != "1,2,3" {
		t.Errorf("SortedIDs = %q, want 1,2,3", a)
	}
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	if err := c.Set(ctx, "key1", payload{Name: "asset"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got payload
	if err := c.Get(ctx, "key1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "asset" {
		t.Errorf("got.Name = %q", got.Name)
	}
}

func TestCacheGetMiss(t *testing.T) {
	c := newTestCache(t)
	var got map[string]any
	err := c.Get(context.Background(), "missing", &got)
	if err != ErrMiss {
		t.Errorf("Get on missing key = %v, want ErrMiss", err)
	}
}

func TestCacheDeleteAndExists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "key2", "value", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	exists, err := c.Exists(ctx, "key2")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v, want true, nil", exists, err)
	}

	if err := c.Delete(ctx, "key2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, err = c.Exists(ctx, "key2")
	if err != nil || exists {
		t.Fatalf("Exists after delete = %v, %v, want false, nil", exists, err)
	}
}
