package favicon

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T, capacity int) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), capacity)
	if err != nil {
		t.Fatalf("New() error = %v; want nil", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func diskFiles(t *testing.T, c *Cache) []string {
	t.Helper()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error = %v", c.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPutThenGet(t *testing.T) {
	c := newTestCache(t, 10)
	icon := []byte("png-bytes")

	c.Put("example.com", icon)

	got, ok := c.Get("example.com")
	if !ok || !bytes.Equal(got, icon) {
		t.Fatalf("Get() = %q, %v; want stored bytes, true", got, ok)
	}
}

func TestPutPersistsToDisk(t *testing.T) {
	c := newTestCache(t, 10)
	c.Put("example.com", []byte("icon"))
	c.Flush()

	data, err := os.ReadFile(filepath.Join(c.dir, "example.com.ico"))
	if err != nil {
		t.Fatalf("disk read error = %v; want persisted file", err)
	}
	if !bytes.Equal(data, []byte("icon")) {
		t.Fatalf("disk contents = %q; want %q", data, "icon")
	}
}

func TestGetPromotesDiskHit(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 10)
	if err != nil {
		t.Fatalf("New() error = %v; want nil", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	// Pre-seed the disk tier only, as if written by a prior process.
	if err := os.WriteFile(filepath.Join(dir, "example.com.ico"), []byte("from-disk"), 0o644); err != nil {
		t.Fatalf("seed write error = %v", err)
	}

	got, ok := c.Get("example.com")
	if !ok || !bytes.Equal(got, []byte("from-disk")) {
		t.Fatalf("Get() = %q, %v; want disk bytes, true", got, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d after disk promotion; want 1", c.Len())
	}
}

func TestMissReturnsFalse(t *testing.T) {
	c := newTestCache(t, 10)
	if _, ok := c.Get("nowhere.example"); ok {
		t.Fatal("Get() ok = true for missing key; want false")
	}
}

func TestEvictionDropsOldestFromBothTiers(t *testing.T) {
	c := newTestCache(t, 10)

	for i := 0; i < 11; i++ {
		c.Put(fmt.Sprintf("host%02d.example", i), []byte{byte(i + 1)})
	}
	c.Flush()

	// Cap 10, fraction 0.2: the two oldest entries go.
	if c.Len() != 9 {
		t.Fatalf("Len() = %d after eviction; want 9", c.Len())
	}
	for _, victim := range []string{"host00.example", "host01.example"} {
		if _, ok := c.Get(victim); ok {
			t.Fatalf("Get(%q) ok = true; want evicted from both tiers", victim)
		}
	}
	if _, ok := c.Get("host10.example"); !ok {
		t.Fatal("Get() ok = false for newest entry; want survivor")
	}

	files := diskFiles(t, c)
	if len(files) != 9 {
		t.Fatalf("disk files = %v; want 9 after eviction deletes", files)
	}
}

func TestReputRefreshesAge(t *testing.T) {
	c := newTestCache(t, 10)
	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("host%02d.example", i), []byte{1})
	}
	// Touch the oldest so the next eviction passes over it.
	c.Put("host00.example", []byte{2})
	c.Put("fresh.example", []byte{3})
	c.Flush()

	if _, ok := c.Get("host00.example"); !ok {
		t.Fatal("Get(host00) ok = false; want re-put entry to survive eviction")
	}
	if _, ok := c.Get("host01.example"); ok {
		t.Fatal("Get(host01) ok = true; want oldest untouched entry evicted")
	}
}

func TestClearDropsBothTiers(t *testing.T) {
	c := newTestCache(t, 10)
	c.Put("example.com", []byte("icon"))
	c.Flush()

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error = %v; want nil", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after Clear; want 0", c.Len())
	}
	if files := diskFiles(t, c); len(files) != 0 {
		t.Fatalf("disk files = %v after Clear; want empty", files)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := New(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("New() error = %v; want nil", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v; want nil", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v; want nil", err)
	}
	// Writes after close are dropped, not panics.
	c.Put("late.example", []byte("icon"))
}

func TestPutRacingCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 20; i++ {
		c, err := New(t.TempDir(), 10)
		if err != nil {
			t.Fatalf("New() error = %v; want nil", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				c.Put(fmt.Sprintf("host%02d.example", j), []byte{byte(j)})
			}
		}()
		if err := c.Close(); err != nil {
			t.Fatalf("Close() error = %v; want nil", err)
		}
		<-done
	}
}

func TestKeyFor(t *testing.T) {
	cases := map[string]string{
		"https://example.com/deep/path?q=1": "example.com",
		"https://sub.example.com:8443/":     "sub.example.com:8443",
		"not a url":                         "not a url",
		"file:///tmp/page.html":             "file:///tmp/page.html",
	}
	for in, want := range cases {
		if got := KeyFor(in); got != want {
			t.Fatalf("KeyFor(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestSanitizeKey(t *testing.T) {
	if got := sanitizeKey("ex/ample:com"); got != "ex_ample_com" {
		t.Fatalf("sanitizeKey() = %q; want %q", got, "ex_ample_com")
	}
	if got := sanitizeKey(""); got != "icon" {
		t.Fatalf("sanitizeKey(\"\") = %q; want %q", got, "icon")
	}
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	if got := sanitizeKey(string(long)); len(got) != 128 {
		t.Fatalf("sanitizeKey(long) len = %d; want clamp to 128", len(got))
	}
}
