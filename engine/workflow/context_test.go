package workflow

import (
	"sync"
	"testing"
)

func TestContextBasics(t *testing.T) {
	c := NewContext()
	if c.Has("k") {
		t.Fatal("empty context has no keys")
	}
	c.Set("k", 1)
	v, ok := c.Get("k")
	if !ok || v != 1 {
		t.Fatalf("got %v %v", v, ok)
	}
	c.Set("k", 2)
	v, _ = c.Get("k")
	if v != 2 {
		t.Fatal("later writes win")
	}
	c.Delete("k")
	if c.Has("k") {
		t.Fatal("deleted key still present")
	}
}

func TestContextKeysSorted(t *testing.T) {
	c := NewContext()
	c.Set("b", 1)
	c.Set("a", 2)
	keys := c.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestContextSnapshotIsolated(t *testing.T) {
	c := NewContext()
	c.Set("k", 1)
	snap := c.Snapshot()
	snap["k"] = 99
	if v, _ := c.Get("k"); v != 1 {
		t.Fatal("snapshot mutation leaked")
	}
}

func TestContextConcurrentAccess(t *testing.T) {
	c := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("shared", n)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get("shared")
				c.Keys()
			}
		}()
	}
	wg.Wait()
}
