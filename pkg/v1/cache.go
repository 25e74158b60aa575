package iso8211

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// FileCache keeps parsed files in memory with LRU eviction.
//
// Memory use is estimated from the record bytes each file holds. The limit
// is approximate: a file being loaded is not counted until it is added.
//
// Example:
//
//	cache := iso8211.NewFileCache(256 * 1024 * 1024) // 256MB limit
//
//	// Get file (parses from disk if not cached)
//	isoFile, err := cache.Get("US5MA22M.000", func() (*iso8211.ISO8211File, error) {
//	    return iso8211.ParseFile("/path/to/US5MA22M.000", iso8211.DefaultReaderOptions())
//	})
type FileCache struct {
	maxMemory  int64 // Maximum memory in bytes, 0 for unlimited
	usedMemory int64 // Current memory usage estimate
	files      map[string]*cacheEntry
	lru        *list.List // LRU list (most recent at front)
	mu         sync.Mutex
	hits       int
	misses     int
}

// cacheEntry tracks a cached file and its metadata
type cacheEntry struct {
	name         string
	file         *ISO8211File
	memorySize   int64
	element      *list.Element // Position in LRU list
	lastAccessed time.Time
	accessCount  int
}

// NewFileCache creates a cache with the given memory limit in bytes.
// Set to 0 for unlimited cache size.
func NewFileCache(maxMemoryBytes int64) *FileCache {
	return &FileCache{
		maxMemory: maxMemoryBytes,
		files:     make(map[string]*cacheEntry),
		lru:       list.New(),
	}
}

// Get returns a cached file or loads it with loader.
//
// The loader is only called on a cache miss. A file too large for the cache
// is returned without being cached.
func (c *FileCache) Get(name string, loader func() (*ISO8211File, error)) (*ISO8211File, error) {
	c.mu.Lock()
	if entry, ok := c.files[name]; ok {
		entry.lastAccessed = time.Now()
		entry.accessCount++
		c.lru.MoveToFront(entry.element)
		c.hits++
		c.mu.Unlock()
		return entry.file, nil
	}
	c.misses++
	c.mu.Unlock()

	// Cache miss - load file
	file, err := loader()
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}

	// Too large to cache: the file is still returned
	_ = c.Add(name, file)
	return file, nil
}

// Add puts a file in the cache, evicting least recently used files to make
// room. It fails if the file alone exceeds the memory limit.
func (c *FileCache) Add(name string, file *ISO8211File) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	memSize := estimateFileMemory(file)

	if entry, ok := c.files[name]; ok {
		c.usedMemory += memSize - entry.memorySize
		entry.file = file
		entry.memorySize = memSize
		entry.lastAccessed = time.Now()
		entry.accessCount++
		c.lru.MoveToFront(entry.element)
		return nil
	}

	if c.maxMemory > 0 && memSize > c.maxMemory {
		return fmt.Errorf("file too large for cache (%d bytes > %d bytes max)",
			memSize, c.maxMemory)
	}

	if c.maxMemory > 0 {
		for c.usedMemory+memSize > c.maxMemory && c.lru.Len() > 0 {
			c.evictLRU()
		}
	}

	entry := &cacheEntry{
		name:         name,
		file:         file,
		memorySize:   memSize,
		lastAccessed: time.Now(),
		accessCount:  1,
	}
	entry.element = c.lru.PushFront(entry)
	c.files[name] = entry
	c.usedMemory += memSize

	return nil
}

// evictLRU removes the least recently used file.
// Must be called with c.mu locked.
func (c *FileCache) evictLRU() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.files, entry.name)
	c.usedMemory -= entry.memorySize
}

// Remove drops a file from the cache.
func (c *FileCache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.files[name]; ok {
		c.lru.Remove(entry.element)
		delete(c.files, name)
		c.usedMemory -= entry.memorySize
	}
}

// Clear empties the cache.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.files = make(map[string]*cacheEntry)
	c.lru.Init()
	c.usedMemory = 0
}

// Stats returns cache statistics.
func (c *FileCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		FileCount:  len(c.files),
		UsedMemory: c.usedMemory,
		MaxMemory:  c.maxMemory,
		Hits:       c.hits,
		Misses:     c.misses,
	}
}

// CacheStats holds cache performance metrics.
type CacheStats struct {
	FileCount  int   // Number of files currently cached
	UsedMemory int64 // Estimated memory usage in bytes
	MaxMemory  int64 // Maximum memory limit in bytes
	Hits       int   // Get calls served from the cache
	Misses     int   // Get calls that ran the loader
}

// estimateFileMemory estimates memory usage for a parsed file:
// 1KB per file, 256 bytes per record and per field definition, plus
// the record bytes.
func estimateFileMemory(file *ISO8211File) int64 {
	if file == nil {
		return 0
	}
	size := int64(1024)
	size += int64(len(file.FieldDefns)) * 256
	for _, rec := range file.Records {
		size += 256
		if rec.record != nil {
			size += int64(rec.record.DataSize())
		}
	}
	return size
}
