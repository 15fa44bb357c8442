package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestCollection(t *testing.T, name string) *Collection[string, int] {
	t.Helper()
	return NewCollection[string, int](CollectionConfig{FilePath: filepath.Join(t.TempDir(), name)})
}

func TestCollection_MutatePersistsAndReloads(t *testing.T) {
	for _, name := range []string{"counts.json", "counts.yaml"} {
		c := newTestCollection(t, name)
		if err := c.Mutate(func(items map[string]int) error {
			items["a"] = 1
			items["b"] = 2
			return nil
		}); err != nil {
			t.Fatal(err)
		}

		reloaded := NewCollection[string, int](CollectionConfig{FilePath: c.Path()})
		if err := reloaded.Load(); err != nil {
			t.Fatalf("%s load: %v", name, err)
		}
		if v, ok := reloaded.Get("b"); !ok || v != 2 {
			t.Fatalf("%s: Get(b) = %v, %v", name, v, ok)
		}
		if reloaded.Len() != 2 {
			t.Fatalf("%s: expected 2 items, got %d", name, reloaded.Len())
		}
	}
}

func TestCollection_MutateErrorRollsBack(t *testing.T) {
	c := newTestCollection(t, "counts.json")
	if err := c.Mutate(func(items map[string]int) error {
		items["keep"] = 1
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := c.Mutate(func(items map[string]int) error {
		items["keep"] = 99
		items["drop"] = 2
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if v, _ := c.Get("keep"); v != 1 {
		t.Fatalf("expected rollback to 1, got %d", v)
	}
	if _, ok := c.Get("drop"); ok {
		t.Fatal("drop should have been rolled back")
	}
}

func TestCollection_WriteFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Parent path is a regular file, so every write fails.
	c := NewCollection[string, int](CollectionConfig{FilePath: filepath.Join(blocker, "counts.json")})

	if err := c.Mutate(func(items map[string]int) error {
		items["a"] = 1
		return nil
	}); err == nil {
		t.Fatal("expected write failure")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty collection after failed write, got %d", c.Len())
	}
}

func TestCollection_InMemoryLoadIsNoop(t *testing.T) {
	c := NewCollection[string, int](CollectionConfig{})
	if err := c.Load(); err != nil {
		t.Fatal(err)
	}
	if err := c.Mutate(func(items map[string]int) error {
		items["a"] = 1
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
}

func TestCollection_CloneIsolatesSnapshots(t *testing.T) {
	c := NewCollection[string, []int](CollectionConfig{})
	c.SetClone(func(v []int) []int { return append([]int(nil), v...) })
	_ = c.Mutate(func(items map[string][]int) error {
		items["a"] = []int{1}
		return nil
	})

	_ = c.Mutate(func(items map[string][]int) error {
		items["a"][0] = 42
		return errors.New("abort")
	})
	if v, _ := c.Get("a"); v[0] != 1 {
		t.Fatalf("expected deep rollback, got %v", v)
	}
}

func TestCollection_ConcurrentMutate(t *testing.T) {
	c := newTestCollection(t, "counts.json")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Mutate(func(items map[string]int) error {
				items["n"]++
				return nil
			})
		}()
	}
	wg.Wait()
	if v, _ := c.Get("n"); v != 20 {
		t.Fatalf("expected 20, got %d", v)
	}
}
