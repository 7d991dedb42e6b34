// Package cache stores crawl results by fingerprint in two tiers: a
// Redis hash with native TTL and a content-addressed file tree swept
// periodically.
package cache

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound reports a cache miss in every tier.
var ErrNotFound = errors.New("cache: not found")

// FileCache is the file tier. Results live under <dir>/_res/<key[:2]>/<key>
// with screenshots as a png sibling. TTL is enforced by CleanupExpired,
// not on read.
type FileCache struct {
	dir string
	ttl time.Duration
}

func NewFileCache(dir string, ttl time.Duration) *FileCache {
	return &FileCache{dir: dir, ttl: ttl}
}

// Stored keys are 40-char fingerprints. Shorter keys shard onto
// themselves so caller-supplied IDs miss instead of panicking.
func (c *FileCache) resultPath(key string) string {
	shard := key
	if len(key) >= 2 {
		shard = key[:2]
	}
	return filepath.Join(c.dir, "_res", shard, key)
}

func (c *FileCache) screenshotPath(key string) string {
	return c.resultPath(key) + ".png"
}

func (c *FileCache) Store(key string, data []byte) error {
	path := c.resultPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *FileCache) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(c.resultPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (c *FileCache) Exists(key string) bool {
	_, err := os.Stat(c.resultPath(key))
	return err == nil
}

// Delete removes the result and its screenshot. It reports whether
// anything was actually removed.
func (c *FileCache) Delete(key string) bool {
	deleted := os.Remove(c.resultPath(key)) == nil
	if os.Remove(c.screenshotPath(key)) == nil {
		deleted = true
	}
	return deleted
}

func (c *FileCache) StoreScreenshot(key string, png []byte) error {
	path := c.screenshotPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

func (c *FileCache) LoadScreenshot(key string) ([]byte, error) {
	data, err := os.ReadFile(c.screenshotPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// CleanupExpired removes entries whose mtime is older than the TTL and
// returns how many files were removed.
func (c *FileCache) CleanupExpired() int {
	cutoff := time.Now().Add(-c.ttl)
	removed := 0
	root := filepath.Join(c.dir, "_res")
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	return removed
}

// Count walks the file tier and returns the number of stored results,
// screenshots excluded.
func (c *FileCache) Count() int {
	n := 0
	root := filepath.Join(c.dir, "_res")
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == "" {
			n++
		}
		return nil
	})
	return n
}
