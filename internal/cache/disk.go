package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "cache.index"

// DiskStorage persists named stores under a root directory, one directory per
// store. Entry bodies are written to content-addressed files and compressed
// with zstd when that saves space; headers and metadata live in a gob index.
type DiskStorage struct {
	root     string
	capacity int64

	// Compression
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu     sync.Mutex
	stores map[string]*diskStore
}

// NewDiskStorage creates a disk storage rooted at root. compressionLevel
// follows zstd levels (1-22); zero disables compression. capacity bounds each
// store in bytes on disk, zero means unbounded.
func NewDiskStorage(root string, capacity int64, compressionLevel int) (*DiskStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	ds := &DiskStorage{
		root:     root,
		capacity: capacity,
		stores:   make(map[string]*diskStore),
	}

	if compressionLevel > 0 {
		var err error
		ds.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	// The decoder is always available so entries written with compression
	// stay readable after it is turned off.
	var err error
	ds.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return ds, nil
}

// Root returns the storage directory.
func (ds *DiskStorage) Root() string {
	return ds.root
}

// Open returns the named store, creating its directory if needed.
func (ds *DiskStorage) Open(name string) (Store, error) {
	if !ValidStoreName(name) {
		return nil, ErrInvalidStoreName
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if s, ok := ds.stores[name]; ok {
		return s, nil
	}

	dir := filepath.Join(ds.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store %s: %w", name, err)
	}

	s := &diskStore{
		name:     name,
		dir:      dir,
		capacity: ds.capacity,
		storage:  ds,
		index:    make(map[string]*diskIndexEntry),
		stats:    Stats{Capacity: ds.capacity},
	}
	if err := s.loadIndex(); err != nil {
		// Non-fatal: start with an empty index
		log.Warn("discarding unreadable cache index", "store", name, "error", err)
		s.index = make(map[string]*diskIndexEntry)
	}
	s.calculateSize()

	ds.stores[name] = s
	return s, nil
}

// Keys returns the names of all stores present on disk, sorted.
func (ds *DiskStorage) Keys() ([]string, error) {
	dirEntries, err := os.ReadDir(ds.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() && ValidStoreName(de.Name()) {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a store directory and everything in it.
func (ds *DiskStorage) Delete(name string) (bool, error) {
	if !ValidStoreName(name) {
		return false, ErrInvalidStoreName
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	dir := filepath.Join(ds.root, name)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			delete(ds.stores, name)
			return false, nil
		}
		return false, err
	}

	if s, ok := ds.stores[name]; ok {
		s.mu.Lock()
		s.index = make(map[string]*diskIndexEntry)
		s.size = 0
		s.removed = true
		s.mu.Unlock()
		delete(ds.stores, name)
	}

	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to delete store %s: %w", name, err)
	}
	return true, nil
}

// Close releases the compression resources.
func (ds *DiskStorage) Close() error {
	if ds.encoder != nil {
		if err := ds.encoder.Close(); err != nil {
			return err
		}
	}
	ds.decoder.Close()
	return nil
}

// diskIndexEntry describes one stored response in the store index
type diskIndexEntry struct {
	Key        string
	File       string // Body file name inside the store directory
	Status     int
	Header     http.Header
	URL        string
	Redirected bool
	StoredAt   time.Time
	LastAccess time.Time
	Size       int64 // Size on disk (compressed)
	BodySize   int64 // Original size (uncompressed)
	Compressed bool
}

type diskStore struct {
	name     string
	dir      string
	capacity int64
	size     int64
	storage  *DiskStorage
	removed  bool

	index map[string]*diskIndexEntry

	mu sync.Mutex

	stats Stats
}

func (s *diskStore) Name() string {
	return s.name
}

func (s *diskStore) Match(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ie, ok := s.index[key]
	if !ok {
		s.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(s.dir, ie.File))
	if err != nil {
		// File missing, drop it from the index
		s.forget(ie)
		s.stats.Misses++
		return nil, false
	}

	if ie.Compressed {
		body, err := s.storage.decoder.DecodeAll(data, nil)
		if err != nil {
			log.Warn("dropping corrupted cache entry", "store", s.name, "key", key, "error", err)
			_ = os.Remove(filepath.Join(s.dir, ie.File))
			s.forget(ie)
			s.stats.Misses++
			return nil, false
		}
		data = body
	}

	now := time.Now()
	ie.LastAccess = now
	s.stats.Hits++
	s.stats.LastAccess = now

	return &Entry{
		URL:        ie.URL,
		Status:     ie.Status,
		Header:     ie.Header.Clone(),
		Body:       data,
		Redirected: ie.Redirected,
		StoredAt:   ie.StoredAt,
	}, true
}

func (s *diskStore) Put(key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return fmt.Errorf("store %s was deleted", s.name)
	}

	body := entry.Body
	compressed := false
	if enc := s.storage.encoder; enc != nil && len(body) > 1024 {
		packed := enc.EncodeAll(body, nil)
		if len(packed) < len(body) {
			body = packed
			compressed = true
		}
	}

	diskSize := int64(len(body))
	if s.capacity > 0 && diskSize > s.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := s.index[key]; ok {
		s.size -= existing.Size
		delete(s.index, key)
	}

	for s.capacity > 0 && s.size+diskSize > s.capacity && len(s.index) > 0 {
		s.evictOldest()
	}

	file := fileName(key)
	if err := writeFileAtomic(filepath.Join(s.dir, file), body); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	s.index[key] = &diskIndexEntry{
		Key:        key,
		File:       file,
		Status:     entry.Status,
		Header:     entry.Header.Clone(),
		URL:        entry.URL,
		Redirected: entry.Redirected,
		StoredAt:   storedAt,
		LastAccess: storedAt,
		Size:       diskSize,
		BodySize:   entry.Size(),
		Compressed: compressed,
	}
	s.size += diskSize

	return s.saveIndex()
}

func (s *diskStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ie, ok := s.index[key]
	if !ok {
		return nil
	}
	_ = os.Remove(filepath.Join(s.dir, ie.File))
	s.forget(ie)
	return s.saveIndex()
}

func (s *diskStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.index))
	for key := range s.index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *diskStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Size = s.size
	stats.ItemCount = int64(len(s.index))
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// forget drops an index entry (must be called with lock held).
func (s *diskStore) forget(ie *diskIndexEntry) {
	delete(s.index, ie.Key)
	s.size -= ie.Size
}

// evictOldest removes the entry with the oldest access time (must be called
// with lock held).
func (s *diskStore) evictOldest() {
	var oldest *diskIndexEntry
	for _, ie := range s.index {
		if oldest == nil || ie.LastAccess.Before(oldest.LastAccess) {
			oldest = ie
		}
	}
	if oldest == nil {
		return
	}
	_ = os.Remove(filepath.Join(s.dir, oldest.File))
	s.forget(oldest)
	s.stats.Evictions++
}

func (s *diskStore) loadIndex() error {
	file, err := os.Open(filepath.Join(s.dir, indexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // No index file yet
		}
		return err
	}
	defer file.Close() //nolint:errcheck

	if err := gob.NewDecoder(file).Decode(&s.index); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return nil
}

func (s *diskStore) saveIndex() error {
	path := filepath.Join(s.dir, indexFile)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(s.index)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}

func (s *diskStore) calculateSize() {
	s.size = 0
	for _, ie := range s.index {
		s.size += ie.Size
	}
}

func fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16]) + ".cache"
}

// writeFileAtomic writes to a temp file first, then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
