// Package cache implements the offline resource cache. Every outgoing
// request from the application passes through a Worker, which answers it
// from a named, versioned store (app assets or audio clips), from the
// network, or from the network with a stored fallback. The Worker also
// warms the audio store ahead of need through a bulk prefetch command.
//
// Stores live in a Storage backend: MemoryStorage keeps LRU-bounded stores
// in process, DiskStorage persists one directory per store name with
// zstd-compressed entries. The cache policies themselves (CacheFirst,
// NetworkFirst) are plain functions over a Store and a Fetcher.
package cache
