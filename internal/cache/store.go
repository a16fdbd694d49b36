package cache

// Store holds entries for one named store (for example "audio-v6").
// Implementations must be safe for concurrent use; concurrent writes to the
// same key resolve last-writer-wins.
type Store interface {
	// Name returns the store name.
	Name() string

	// Match returns the entry stored under key.
	Match(key string) (*Entry, bool)

	// Put stores entry under key, replacing any existing entry.
	Put(key string, entry *Entry) error

	// Delete removes the entry stored under key. Deleting a missing key is
	// not an error.
	Delete(key string) error

	// Keys returns all stored keys.
	Keys() []string

	// Stats returns store statistics.
	Stats() Stats
}

// Storage enumerates and manages named stores.
type Storage interface {
	// Open returns the store with the given name, creating it if needed.
	Open(name string) (Store, error)

	// Keys returns the names of all existing stores.
	Keys() ([]string, error)

	// Delete removes a store and all its entries. It reports whether the
	// store existed.
	Delete(name string) (bool, error)
}
