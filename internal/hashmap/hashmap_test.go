package hashmap

import (
	"fmt"
	"testing"
)

func TestPutGetDelete(t *testing.T) {
	var m Map

	if m.Get("missing") != nil {
		t.Fatal("empty map returned a value")
	}

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("a", 3) // overwrite

	if got := m.Get("a"); got != 3 {
		t.Fatalf("a = %v, want 3", got)
	}
	if got := m.Get("b"); got != 2 {
		t.Fatalf("b = %v, want 2", got)
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}

	m.Delete("a")
	if _, ok := m.Lookup("a"); ok {
		t.Fatal("deleted key still present")
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}

	// Reinsert through the tombstone.
	m.Put("a", 4)
	if got := m.Get("a"); got != 4 {
		t.Fatalf("a = %v, want 4", got)
	}
}

func TestGrowth(t *testing.T) {
	var m Map
	const n = 5000
	for i := 0; i < n; i++ {
		m.Put(fmt.Sprintf("key%d", i), i)
	}
	if m.Len() != n {
		t.Fatalf("Len = %d, want %d", m.Len(), n)
	}
	for i := 0; i < n; i++ {
		if got := m.Get(fmt.Sprintf("key%d", i)); got != i {
			t.Fatalf("key%d = %v", i, got)
		}
	}
}

func TestTombstoneChurn(t *testing.T) {
	var m Map
	// Repeated insert/delete must not fill the table with tombstones.
	for i := 0; i < 10000; i++ {
		key := fmt.Sprintf("key%d", i%64)
		m.Put(key, i)
		m.Delete(key)
	}
	if m.Len() != 0 {
		t.Fatalf("Len = %d, want 0", m.Len())
	}
	m.Put("final", true)
	if m.Get("final") != true {
		t.Fatal("map unusable after churn")
	}
}

func TestForEach(t *testing.T) {
	var m Map
	for i := 0; i < 10; i++ {
		m.Put(fmt.Sprintf("k%d", i), i)
	}
	m.Delete("k3")

	seen := map[string]bool{}
	m.ForEach(func(key string, val any) bool {
		seen[key] = true
		return true
	})
	if len(seen) != 9 {
		t.Fatalf("visited %d entries, want 9", len(seen))
	}
	if seen["k3"] {
		t.Fatal("visited deleted entry")
	}

	count := 0
	m.ForEach(func(key string, val any) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("early stop visited %d entries", count)
	}
}

func TestStoredNil(t *testing.T) {
	var m Map
	m.Put("nil", nil)
	if _, ok := m.Lookup("nil"); !ok {
		t.Fatal("stored nil not distinguishable from absent")
	}
}

func TestIntMap(t *testing.T) {
	var m IntMap
	for i := int64(0); i < 1000; i++ {
		m.Put(i, i*2)
	}
	if m.Len() != 1000 {
		t.Fatalf("Len = %d", m.Len())
	}
	for i := int64(0); i < 1000; i++ {
		if got := m.Get(i); got != i*2 {
			t.Fatalf("%d = %v, want %d", i, got, i*2)
		}
	}
	m.Delete(500)
	if m.Get(500) != nil {
		t.Fatal("deleted int key still present")
	}
}
