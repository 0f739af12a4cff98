package fingerprint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ResultKind tags which of the three cache-entry shapes a sealed result is.
type ResultKind string

const (
	ResultLazyPlan          ResultKind = "LazyPlan"
	ResultMaterialisedTable ResultKind = "MaterialisedTable"
	ResultExternalRef       ResultKind = "ExternalRef"
)

// Entry is a sealed cache entry for one fingerprint. Only one of LazyPlan /
// FilePath / ExternalRef is meaningful, selected by Kind. The cache never
// stores kernel-published artifact objects; those are tracked in pkg/kernel.
type Entry struct {
	Kind        ResultKind
	LazyPlan    interface{}
	FilePath    string
	ExternalRef string
	RowCount    int64
}

// ErrCacheCorruption is returned when a sealed disk entry fails an
// integrity check on read; the caller discards the entry and rebuilds.
var ErrCacheCorruption = errors.New("cache entry corrupted")

// Cache is the two-level structure of §4.2: an in-memory lazy-plan cache
// populated during planning/execution and cleared on process shutdown, and
// an on-disk materialised cache for which the filesystem is authoritative.
type Cache struct {
	mu     sync.RWMutex
	memory map[cacheKey]*Entry
	root   string
}

type cacheKey struct {
	flowID int64
	fp     string
}

// NewCache creates a cache rooted at dir ({cache_dir} from flow settings).
func NewCache(dir string) *Cache {
	return &Cache{memory: make(map[cacheKey]*Entry), root: dir}
}

// GetMemory returns the in-memory entry for fp, if any.
func (c *Cache) GetMemory(flowID int64, fp string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.memory[cacheKey{flowID, fp}]
	return e, ok
}

// PutMemory seals an in-memory entry. Cache seals are atomic: a concurrent
// reader either sees nothing or a fully sealed entry, never a partial one.
func (c *Cache) PutMemory(flowID int64, fp string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory[cacheKey{flowID, fp}] = entry
}

// DiskPath returns {cache_dir}/{flow_id}/{fp}.arrow.
func (c *Cache) DiskPath(flowID int64, fp string) string {
	return filepath.Join(c.root, fmt.Sprintf("%d", flowID), fp+".arrow")
}

// HasDisk reports whether a materialised result already exists on disk.
func (c *Cache) HasDisk(flowID int64, fp string) bool {
	_, err := os.Stat(c.DiskPath(flowID, fp))
	return err == nil
}

// SealDisk writes data to the materialised cache path atomically: it writes
// to a temp file in the same directory and renames into place, so a reader
// never observes a partially-written file.
func (c *Cache) SealDisk(flowID int64, fp string, data []byte) error {
	dir := filepath.Join(c.root, fmt.Sprintf("%d", flowID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	dest := c.DiskPath(flowID, fp)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("seal cache file: %w", err)
	}
	return nil
}

// Invalidate removes both the in-memory and the on-disk entry for fp.
func (c *Cache) Invalidate(flowID int64, fp string) error {
	c.mu.Lock()
	delete(c.memory, cacheKey{flowID, fp})
	c.mu.Unlock()

	path := c.DiskPath(flowID, fp)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// InvalidateAll invalidates a batch of fingerprints — used after
// set_node_settings/connect/disconnect/delete_node to prune N and every
// transitive descendant in one pass.
func (c *Cache) InvalidateAll(flowID int64, fingerprints []string) error {
	for _, fp := range fingerprints {
		if fp == "" {
			continue
		}
		if err := c.Invalidate(flowID, fp); err != nil {
			return err
		}
	}
	return nil
}

// ClearMemory drops all in-memory entries, as happens on process shutdown.
func (c *Cache) ClearMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = make(map[cacheKey]*Entry)
}
