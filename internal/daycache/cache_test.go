package daycache

import (
	"testing"
	"time"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestKeyFormat(t *testing.T) {
	got := Key("log_entries", day(t, "2024-01-15"))
	if got != "log_entries/by_date/2024-01-15" {
		t.Errorf("Expected log_entries/by_date/2024-01-15, got %q", got)
	}
}

func TestGetPutInvalidate(t *testing.T) {
	c := New[[]int]()
	key := Key("log_entries", day(t, "2024-01-15"))

	if _, ok := c.Get(key); ok {
		t.Error("Expected miss on empty cache")
	}

	c.Put(key, []int{1, 2})
	value, ok := c.Get(key)
	if !ok || len(value) != 2 {
		t.Errorf("Expected cached value of 2 elements, got %v (hit=%t)", value, ok)
	}

	c.Invalidate(key)
	if _, ok := c.Get(key); ok {
		t.Error("Expected miss after invalidation")
	}
}

func TestInvalidateIsPartitionScoped(t *testing.T) {
	c := New[[]int]()
	keyA := Key("log_entries", day(t, "2024-01-15"))
	keyB := Key("log_entries", day(t, "2024-01-16"))

	c.Put(keyA, []int{1})
	c.Put(keyB, []int{2})

	c.Invalidate(keyA)

	if _, ok := c.Get(keyA); ok {
		t.Error("Expected invalidated partition to be gone")
	}
	if value, ok := c.Get(keyB); !ok || len(value) != 1 {
		t.Error("Expected neighbouring partition to survive")
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 remaining partition, got %d", c.Len())
	}
}

func TestSubscribe(t *testing.T) {
	c := New[[]int]()
	keyA := Key("log_entries", day(t, "2024-01-15"))
	keyB := Key("log_entries", day(t, "2024-01-16"))

	fired := 0
	c.Subscribe(keyA, func() { fired++ })
	c.Subscribe(keyB, func() { t.Error("subscriber for another key must not fire") })

	c.Put(keyA, []int{1})
	c.Invalidate(keyA)
	if fired != 1 {
		t.Errorf("Expected 1 notification, got %d", fired)
	}

	// Invalidating an absent key still notifies.
	c.Invalidate(keyA)
	if fired != 2 {
		t.Errorf("Expected notification on empty invalidation, got %d", fired)
	}
}
