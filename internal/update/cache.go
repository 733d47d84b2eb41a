package update

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCacheCorrupted is returned when the cache file cannot be parsed
var ErrCacheCorrupted = errors.New("descriptor cache is corrupted")

// CacheEntry is the last successful descriptor response for one source
type CacheEntry struct {
	ETag      string         `json:"etag"`
	Artifact  RemoteArtifact `json:"artifact"`
	Timestamp time.Time      `json:"timestamp"`
}

// cacheFile represents the JSON structure stored on disk
type cacheFile struct {
	Entries map[string]CacheEntry `json:"entries"`
}

// DescriptorCache persists descriptor ETags keyed by source URL.
// A missing or corrupted file starts an empty cache.
type DescriptorCache struct {
	entries map[string]CacheEntry
	path    string
	mu      sync.RWMutex
	nowFunc func() time.Time
}

// CacheOption is a functional option for configuring DescriptorCache
type CacheOption func(*DescriptorCache)

// WithNowFunc sets a custom time function for testing
func WithNowFunc(fn func() time.Time) CacheOption {
	return func(c *DescriptorCache) {
		c.nowFunc = fn
	}
}

// NewDescriptorCache creates or loads descriptor-cache.json in stateDir
func NewDescriptorCache(stateDir string, opts ...CacheOption) (*DescriptorCache, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cache := &DescriptorCache{
		entries: make(map[string]CacheEntry),
		path:    filepath.Join(stateDir, "descriptor-cache.json"),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(cache)
	}

	if err := cache.load(); err != nil && !os.IsNotExist(err) {
		// The corrupted file will be overwritten on next Set
		cache.entries = make(map[string]CacheEntry)
	}

	return cache, nil
}

// Path returns the cache file location
func (c *DescriptorCache) Path() string {
	return c.path
}

func (c *DescriptorCache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	if cf.Entries != nil {
		c.entries = cf.Entries
	}
	return nil
}

// Get returns the cached entry for key
func (c *DescriptorCache) Get(key string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.ETag == "" {
		return CacheEntry{}, false
	}
	return entry, true
}

// Set stores the ETag and artifact for key and saves the file
func (c *DescriptorCache) Set(key, etag string, artifact RemoteArtifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = CacheEntry{
		ETag:      etag,
		Artifact:  artifact,
		Timestamp: c.nowFunc(),
	}
	return c.saveUnsafe()
}

// Delete removes key and saves the file
func (c *DescriptorCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return c.saveUnsafe()
}

// Len returns the number of entries in the cache.
func (c *DescriptorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// saveUnsafe persists the cache to disk. Caller must hold the write lock.
func (c *DescriptorCache) saveUnsafe() error {
	data, err := json.MarshalIndent(cacheFile{Entries: c.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}
