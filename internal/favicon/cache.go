// Package favicon implements the shared two-tier favicon cache: a bounded
// in-memory tier in front of an on-disk directory of host-keyed image files.
// The cache is an injected component with its own lifecycle, not process
// state; tests construct isolated instances against a temp directory.
package favicon

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultCapacity is the memory-tier entry cap.
const DefaultCapacity = 100

// evictFraction of the oldest entries is dropped when the cap is exceeded.
const evictFraction = 0.2

// fallbackIcon is a 1x1 transparent PNG served when no icon is available.
// Fetch failures are never cached, so a later lookup retries.
var fallbackIcon = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// DefaultIcon returns the fallback icon bytes.
func DefaultIcon() []byte {
	out := make([]byte, len(fallbackIcon))
	copy(out, fallbackIcon)
	return out
}

// KeyFor derives the cache key for a page URL: the host, falling back to
// the full URL string when no host is present (local files and the like).
func KeyFor(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

type entry struct {
	data []byte
	seq  uint64
}

type diskOp struct {
	key    string
	data   []byte // nil means delete
	doneCh chan struct{}
}

// Cache is the two-tier favicon store. The memory tier is mutated under a
// single mutex; disk writes go through one background writer so per-key
// operations never interleave.
type Cache struct {
	dir string
	cap int

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64

	ops    chan diskOp
	done   chan struct{}
	closed bool
}

// New creates the cache directory if needed and starts the disk writer.
func New(dir string, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("favicon cache: mkdir %s: %w", dir, err)
	}
	c := &Cache{
		dir:     dir,
		cap:     capacity,
		entries: make(map[string]*entry),
		ops:     make(chan diskOp, 128),
		done:    make(chan struct{}),
	}
	go c.diskLoop()
	return c, nil
}

func (c *Cache) diskLoop() {
	defer close(c.done)
	for op := range c.ops {
		switch {
		case op.doneCh != nil:
			close(op.doneCh)
		case op.data == nil:
			if err := os.Remove(c.fileFor(op.key)); err != nil && !os.IsNotExist(err) {
				slog.Debug("favicon disk delete failed", "key", op.key, "error", err)
			}
		default:
			if err := os.WriteFile(c.fileFor(op.key), op.data, 0o644); err != nil {
				slog.Debug("favicon disk write failed", "key", op.key, "error", err)
			}
		}
	}
}

// Get returns the icon for key, promoting a disk hit into the memory tier.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		data := e.data
		c.mu.Unlock()
		return data, true
	}
	c.mu.Unlock()

	data, err := os.ReadFile(c.fileFor(key))
	if err != nil || len(data) == 0 {
		// Unreadable entries are misses, never fatal.
		if err != nil && !os.IsNotExist(err) {
			slog.Debug("favicon disk read failed", "key", key, "error", err)
		}
		return nil, false
	}

	c.storeInMemory(key, data)
	return data, true
}

// Put writes the memory tier synchronously and schedules disk persistence.
// A Get for the same key immediately after Put observes the write.
func (c *Cache) Put(key string, data []byte) {
	if key == "" || len(data) == 0 {
		return
	}
	c.storeInMemory(key, data)
	c.enqueue(diskOp{key: key, data: data})
}

func (c *Cache) storeInMemory(key string, data []byte) {
	c.mu.Lock()
	c.seq++
	c.entries[key] = &entry{data: data, seq: c.seq}
	evicted := c.evictOverCapacityLocked()
	c.mu.Unlock()

	for _, k := range evicted {
		c.enqueue(diskOp{key: k})
	}
}

// evictOverCapacityLocked drops the oldest ~20% of memory entries when the
// cap is exceeded and returns their keys so the disk tier stays consistent.
func (c *Cache) evictOverCapacityLocked() []string {
	if len(c.entries) <= c.cap {
		return nil
	}
	n := int(float64(c.cap) * evictFraction)
	if n < 1 {
		n = 1
	}
	evicted := make([]string, 0, n)
	for i := 0; i < n && len(c.entries) > 0; i++ {
		oldestKey := ""
		var oldestSeq uint64
		for k, e := range c.entries {
			if oldestKey == "" || e.seq < oldestSeq {
				oldestKey = k
				oldestSeq = e.seq
			}
		}
		delete(c.entries, oldestKey)
		evicted = append(evicted, oldestKey)
	}
	return evicted
}

// enqueue sends while holding the mutex so Close cannot close the channel
// between the closed check and the send.
func (c *Cache) enqueue(op diskOp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.ops <- op
}

// Flush blocks until every scheduled disk operation has completed.
func (c *Cache) Flush() {
	ch := make(chan struct{})
	c.enqueue(diskOp{doneCh: ch})
	<-ch
}

// Clear drops the memory tier and deletes the disk directory.
func (c *Cache) Clear() error {
	c.Flush()
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("favicon cache: clear: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("favicon cache: recreate dir: %w", err)
	}
	return nil
}

// Close drains pending disk writes and stops the writer.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.ops)
	<-c.done
	return nil
}

// Len reports the memory-tier entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// fileFor maps a cache key to a filesystem-safe path inside the cache dir.
func (c *Cache) fileFor(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+".ico")
}

func sanitizeKey(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	if safe == "" {
		safe = "icon"
	}
	if len(safe) > 128 {
		safe = safe[:128]
	}
	return safe
}
