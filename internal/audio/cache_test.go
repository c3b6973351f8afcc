package audio

import (
	"path/filepath"
	"testing"

	"github.com/iabetor/whistle/internal/database"
)

func openCache(t *testing.T, maxSize int64) *RenderCache {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("database.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	c, err := NewRenderCache(db, maxSize)
	if err != nil {
		t.Fatalf("NewRenderCache failed: %v", err)
	}
	return c
}

func TestRenderCacheStoreLookup(t *testing.T) {
	c := openCache(t, 1<<20)
	if _, ok := c.Lookup("missing"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	in := []float32{0.1, -0.25, 0.7, 0}
	if err := c.Store("k1", in); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	out, ok := c.Lookup("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(out) != len(in) {
		t.Fatalf("got %d samples, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}

	// 空结果也是合法的缓存值
	if err := c.Store("empty", nil); err != nil {
		t.Fatal(err)
	}
	if out, ok := c.Lookup("empty"); !ok || len(out) != 0 {
		t.Errorf("Lookup(empty) = %v, %v", out, ok)
	}

	st, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 2 || st.Bytes != 16 || st.Hits != 2 || st.MaxSize != 1<<20 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestRenderCacheLRUEviction(t *testing.T) {
	// 每条 10 个样本 = 40 字节，上限只能容纳两条
	c := openCache(t, 80)
	samples := make([]float32, 10)

	for _, key := range []string{"a", "b"} {
		if err := c.Store(key, samples); err != nil {
			t.Fatal(err)
		}
	}
	// 访问 a，使 b 成为最久未使用
	if _, ok := c.Lookup("a"); !ok {
		t.Fatal("expected hit for a")
	}
	if err := c.Store("c", samples); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Lookup("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, key := range []string{"a", "c"} {
		if _, ok := c.Lookup(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	st, _ := c.Stats()
	if st.Bytes > 80 {
		t.Errorf("cache holds %d bytes, limit 80", st.Bytes)
	}
}

func TestRenderCachePurge(t *testing.T) {
	c := openCache(t, 1<<20)
	c.Store("a", []float32{1})
	c.Store("b", []float32{2})

	n, err := c.Purge()
	if err != nil || n != 2 {
		t.Fatalf("Purge = %d, %v", n, err)
	}
	if _, ok := c.Lookup("a"); ok {
		t.Error("cache should be empty after purge")
	}
}

func TestRenderCacheDisabled(t *testing.T) {
	c := openCache(t, 0)
	if c.Enabled() {
		t.Fatal("cache with zero size should be disabled")
	}
	if err := c.Store("a", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Lookup("a"); ok {
		t.Error("disabled cache should never hit")
	}
}

func TestRenderCacheReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewRenderCache(db, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	c.Store("persist", []float32{0.5})
	db.Close()

	db, err = database.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	c, err = NewRenderCache(db, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if out, ok := c.Lookup("persist"); !ok || out[0] != 0.5 {
		t.Errorf("Lookup after reopen = %v, %v", out, ok)
	}
	if c.clock < 2 {
		t.Errorf("clock should resume from stored entries, got %d", c.clock)
	}
}
