package cache

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// MemoryStorage keeps named stores in process memory. Each store is an LRU
// bounded by the per-store capacity; a capacity of zero disables eviction.
type MemoryStorage struct {
	capacity int64

	mu     sync.Mutex
	stores map[string]*memoryStore
}

// NewMemoryStorage creates an in-memory storage whose stores each hold at most
// capacity bytes of response bodies.
func NewMemoryStorage(capacity int64) *MemoryStorage {
	return &MemoryStorage{
		capacity: capacity,
		stores:   make(map[string]*memoryStore),
	}
}

// Open returns the named store, creating it if needed.
func (m *MemoryStorage) Open(name string) (Store, error) {
	if !ValidStoreName(name) {
		return nil, ErrInvalidStoreName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[name]; ok {
		return s, nil
	}
	s := newMemoryStore(name, m.capacity)
	m.stores[name] = s
	return s, nil
}

// Keys returns the names of all stores, sorted.
func (m *MemoryStorage) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete drops a store. Handles obtained earlier keep working but are no
// longer reachable through the storage.
func (m *MemoryStorage) Delete(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stores[name]; !ok {
		return false, nil
	}
	delete(m.stores, name)
	return true, nil
}

// memoryStore implements Store with LRU eviction.
type memoryStore struct {
	name     string
	capacity int64 // Maximum size in bytes
	size     int64 // Current size in bytes

	// LRU implementation
	items    map[string]*list.Element
	eviction *list.List

	mu sync.Mutex

	stats Stats
}

// memoryStoreItem represents an entry in the LRU list
type memoryStoreItem struct {
	key   string
	entry *Entry
	size  int64
}

func newMemoryStore(name string, capacity int64) *memoryStore {
	return &memoryStore{
		name:     name,
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		stats:    Stats{Capacity: capacity},
	}
}

func (s *memoryStore) Name() string {
	return s.name
}

func (s *memoryStore) Match(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		s.stats.Misses++
		return nil, false
	}

	// Move to front (most recently used)
	s.eviction.MoveToFront(elem)
	s.stats.Hits++
	s.stats.LastAccess = time.Now()

	return elem.Value.(*memoryStoreItem).entry.clone(), true
}

func (s *memoryStore) Put(key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := entry.Size()
	if s.capacity > 0 && size > s.capacity {
		return ErrItemTooLarge
	}

	stored := entry.clone()
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now()
	}

	if elem, ok := s.items[key]; ok {
		// Last writer wins
		s.eviction.MoveToFront(elem)
		item := elem.Value.(*memoryStoreItem)
		s.size += size - item.size
		item.entry = stored
		item.size = size
	} else {
		elem := s.eviction.PushFront(&memoryStoreItem{key: key, entry: stored, size: size})
		s.items[key] = elem
		s.size += size
	}

	for s.capacity > 0 && s.size > s.capacity && s.eviction.Len() > 1 {
		s.evictOldest()
	}
	return nil
}

func (s *memoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
	return nil
}

func (s *memoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *memoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Size = s.size
	stats.ItemCount = int64(len(s.items))
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// evictOldest removes the least recently used item (must be called with lock held).
func (s *memoryStore) evictOldest() {
	if elem := s.eviction.Back(); elem != nil {
		s.removeElement(elem)
		s.stats.Evictions++
	}
}

// removeElement removes an element from the store (must be called with lock held).
func (s *memoryStore) removeElement(elem *list.Element) {
	s.eviction.Remove(elem)
	item := elem.Value.(*memoryStoreItem)
	delete(s.items, item.key)
	s.size -= item.size
}
