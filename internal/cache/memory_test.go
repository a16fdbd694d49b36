package cache

import (
	"fmt"
	"sync"
	"testing"
)

func entry(url string, size int) *Entry {
	return &Entry{URL: url, Status: 200, Body: make([]byte, size)}
}

func TestMemoryStore_BasicOperations(t *testing.T) {
	storage := NewMemoryStorage(1024)
	store, err := storage.Open("audio-v6")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	key := "http://example.test/audio/d1/001__f__r100.mp3"
	if err := store.Put(key, &Entry{URL: key, Status: 200, Body: []byte("mp3")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := store.Match(key)
	if !ok {
		t.Fatal("Match failed: key not found")
	}
	if string(got.Body) != "mp3" || got.StoredAt.IsZero() {
		t.Errorf("unexpected entry: %+v", got)
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.Match(key); ok {
		t.Error("key still present after delete")
	}

	stats := store.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	storage := NewMemoryStorage(100)
	store, _ := storage.Open("app-v1")

	for i := 0; i < 5; i++ {
		if err := store.Put(fmt.Sprintf("key-%d", i), entry("", 20)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// Touch key-0 so key-1 becomes the oldest
	store.Match("key-0")

	if err := store.Put("key-new", entry("", 30)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := store.Match("key-0"); !ok {
		t.Error("recently used key-0 was evicted")
	}
	if _, ok := store.Match("key-1"); ok {
		t.Error("least recently used key-1 should be evicted")
	}
	if s := store.Stats(); s.Size > 100 || s.Evictions == 0 {
		t.Errorf("unexpected stats after eviction: %+v", s)
	}
}

func TestMemoryStore_ItemTooLarge(t *testing.T) {
	store, _ := NewMemoryStorage(10).Open("app-v1")
	if err := store.Put("big", entry("", 11)); err != ErrItemTooLarge {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestMemoryStore_MatchReturnsCopy(t *testing.T) {
	store, _ := NewMemoryStorage(0).Open("app-v1")
	_ = store.Put("k", &Entry{Status: 200, Header: map[string][]string{"X-A": {"1"}}})

	got, _ := store.Match("k")
	got.Header.Set("X-A", "2")
	got.Redirected = true

	again, _ := store.Match("k")
	if again.Header.Get("X-A") != "1" || again.Redirected {
		t.Errorf("stored entry was modified through a returned copy: %+v", again)
	}
}

func TestMemoryStorage_Lifecycle(t *testing.T) {
	storage := NewMemoryStorage(0)

	if _, err := storage.Open("../etc"); err != ErrInvalidStoreName {
		t.Errorf("expected ErrInvalidStoreName, got %v", err)
	}

	for _, name := range []string{"audio-v6", "app-v28", "app-v29"} {
		if _, err := storage.Open(name); err != nil {
			t.Fatalf("Open(%s) failed: %v", name, err)
		}
	}

	keys, _ := storage.Keys()
	if fmt.Sprint(keys) != "[app-v28 app-v29 audio-v6]" {
		t.Errorf("Keys() = %v", keys)
	}

	if ok, _ := storage.Delete("app-v28"); !ok {
		t.Error("Delete should report an existing store")
	}
	if ok, _ := storage.Delete("app-v28"); ok {
		t.Error("Delete should report a missing store")
	}
}

func TestMemoryStore_Concurrency(t *testing.T) {
	store, _ := NewMemoryStorage(10000).Open("audio-v6")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d", j%20)
				if j%2 == 0 {
					_ = store.Put(key, entry(key, 10))
				} else {
					store.Match(key)
				}
			}
		}(i)
	}
	wg.Wait()

	if s := store.Stats(); s.ItemCount > 20 {
		t.Errorf("expected at most 20 keys, got %d", s.ItemCount)
	}
}
