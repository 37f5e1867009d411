package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const fileExt = ".json"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// fileRecord is the on-disk form of an Entry. The original key is kept so that a
// hash collision between sanitized names can never serve the wrong payload.
type fileRecord struct {
	Key string `json:"key"`
	Entry
}

// FileCache keeps one JSON file per key in a directory.
type FileCache struct {
	dir        string
	defaultTTL time.Duration
	now        func() time.Time
}

func NewFileCache(dir string, defaultTTL time.Duration) *FileCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &FileCache{
		dir:        dir,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (c *FileCache) Name() string { return "file" }

// Ping makes sure the cache directory exists and is writable.
func (c *FileCache) Ping(ctx context.Context) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	f, err := os.CreateTemp(c.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("cache dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (c *FileCache) Get(ctx context.Context, key string) (*Entry, error) {
	path := c.path(key)
	record, err := readRecord(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	now := c.now()
	if err != nil {
		log.Printf("Removing unreadable cache file %s: %v", filepath.Base(path), err)
		c.evict(path, now)
		return nil, nil
	}
	if record.Key != key {
		return nil, nil
	}
	if record.Expired(now) {
		c.evict(path, now)
		return nil, nil
	}
	entry := record.Entry
	return &entry, nil
}

func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	record := fileRecord{Key: key, Entry: *newEntry(data, ttl, c.now())}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Write to a temp file in the same directory and rename over the target so a
	// concurrent reader sees either the old or the new entry, never a partial one.
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (c *FileCache) Clear(ctx context.Context) error {
	files, err := c.files()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	return nil
}

// Cleanup reads entries one at a time; writers are never blocked by a sweep.
func (c *FileCache) Cleanup(ctx context.Context) (int, error) {
	files, err := c.files()
	if err != nil {
		return 0, err
	}

	now := c.now()
	removed := 0
	for _, f := range files {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		record, err := readRecord(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil || record.Expired(now) {
			if c.evict(f, now) {
				removed++
			}
		}
	}
	return removed, nil
}

func (c *FileCache) files() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		files = append(files, filepath.Join(c.dir, e.Name()))
	}
	return files, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, fileName(key))
}

// fileName turns a cache key into a safe file name: readable prefix plus a hash of
// the full key.
func fileName(key string) string {
	safe := strings.Trim(unsafeChars.ReplaceAllString(key, "_"), "_")
	if len(safe) > 80 {
		safe = safe[:80]
	}
	sum := sha256.Sum256([]byte(key))
	return safe + "-" + hex.EncodeToString(sum[:8]) + fileExt
}

func readRecord(path string) (*fileRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record fileRecord
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if record.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrCorruptEntry)
	}
	return &record, nil
}

// evict deletes path only if the entry it holds is still unreadable or expired at now.
// The file is moved aside first, so a fresh entry that Set renamed into place after the
// caller's read is put back instead of being lost. Link never replaces an even newer
// entry written while the file was aside.
func (c *FileCache) evict(path string, now time.Time) bool {
	trash, err := os.CreateTemp(c.dir, ".trash-*")
	if err != nil {
		log.Printf("Failed to evict cache file %s: %v", filepath.Base(path), err)
		return false
	}
	trashName := trash.Name()
	trash.Close()
	defer os.Remove(trashName)

	if err := os.Rename(path, trashName); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("Failed to evict cache file %s: %v", filepath.Base(path), err)
		}
		return false
	}

	record, err := readRecord(trashName)
	if err == nil && !record.Expired(now) {
		if err := os.Link(trashName, path); err != nil && !errors.Is(err, fs.ErrExist) {
			log.Printf("Failed to restore cache file %s: %v", filepath.Base(path), err)
		}
		return false
	}
	return true
}
