package buildfan

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// Cache stores dependency-fetch results keyed by lockfile fingerprint.
// Purely a latency optimization: a miss or a corrupt entry changes how long
// a build takes, never what it produces.
type Cache struct {
	Dir string
}

// FallbackKeys returns the lookup order for a lockfile on osName: exact
// fingerprint match, then an OS-scoped partial match, then the bare prefix.
func FallbackKeys(lockfile []byte, osName string) []string {
	sum := blake2b.Sum256(lockfile)
	fingerprint := hex.EncodeToString(sum[:16])
	return []string{
		fmt.Sprintf("deps-%s-%s", osName, fingerprint),
		fmt.Sprintf("deps-%s", osName),
		"deps",
	}
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.Dir, key+".zst")
}

// lookup resolves key to an entry file on disk. An exact entry wins;
// otherwise the partial layers match any stored entry whose name extends
// the key (restore-keys semantics), newest first.
func (c *Cache) lookup(key string) (string, bool) {
	exact := c.entryPath(key)
	if _, err := os.Stat(exact); err == nil {
		return exact, true
	}
	matches, err := filepath.Glob(filepath.Join(c.Dir, key+"-*.zst"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	var newest string
	var newestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = m
			newestMod = info.ModTime()
		}
	}
	return newest, newest != ""
}

// Store writes data under key, zstd-compressed, atomically.
func (c *Cache) Store(key string, data []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cache store: empty key")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("cache store %q: mkdir: %w", key, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("cache store %q: %w", key, err)
	}
	compressed := enc.EncodeAll(data, nil)
	enc.Close()

	tmp, err := os.CreateTemp(c.Dir, ".cache-tmp-*")
	if err != nil {
		return fmt.Errorf("cache store %q: tmpfile: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cache store %q: write: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache store %q: close: %w", key, err)
	}
	if err := os.Rename(tmpName, c.entryPath(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache store %q: rename: %w", key, err)
	}
	return nil
}

// Fetch returns the entry for key. Missing entries and entries that fail
// to decompress are both reported as a miss; corruption must never surface
// as an error that changes build output.
func (c *Cache) Fetch(key string) ([]byte, bool) {
	path, ok := c.lookup(key)
	if !ok {
		return nil, false
	}
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false
	}
	return data, true
}

// HasAny reports whether any key resolves to an entry on disk, without
// reading it.
func (c *Cache) HasAny(keys []string) bool {
	for _, key := range keys {
		if _, ok := c.lookup(key); ok {
			return true
		}
	}
	return false
}

// Restore tries keys in order and returns the first hit along with the key
// that matched.
func (c *Cache) Restore(keys []string) ([]byte, string, bool) {
	for _, key := range keys {
		if data, ok := c.Fetch(key); ok {
			return data, key, true
		}
	}
	return nil, "", false
}
