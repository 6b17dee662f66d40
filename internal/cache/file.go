package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const fileExt = ".cache"

// fileEntry is the on-disk representation of a cache entry.
type fileEntry struct {
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// FileCache stores every entry as its own file named after the sha1 of the key.
type FileCache struct {
	dir           string
	gcProbability int
	degraded      bool
	now           func() time.Time
	roll          func(n int) int
}

// FileOption configures a FileCache.
type FileOption func(*FileCache)

// WithGCProbability runs a garbage collection sweep on construction with the
// given percent chance (0-100). Default 0: sweeps are left to Maintenance.
func WithGCProbability(percent int) FileOption {
	return func(c *FileCache) { c.gcProbability = percent }
}

// WithFileClock overrides the time source, for tests.
func WithFileClock(now func() time.Time) FileOption {
	return func(c *FileCache) { c.now = now }
}

// DefaultDir returns the cache directory used when none is configured.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "logpipe-cache")
}

// NewFileCache creates a file-backed cache rooted at dir. It never fails:
// if the directory cannot be created the cache runs degraded and every
// lookup misses.
func NewFileCache(dir string, opts ...FileOption) *FileCache {
	if dir == "" {
		dir = DefaultDir()
	}
	c := &FileCache{
		dir:  dir,
		now:  time.Now,
		roll: rand.Intn,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := os.MkdirAll(dir, 0o775); err != nil {
		slog.Warn("Cache directory unavailable, running without cache",
			"dir", dir,
			"error", err,
		)
		c.degraded = true
		return c
	}

	if c.gcProbability > 0 && c.roll(100) < c.gcProbability {
		if removed, err := c.CollectGarbage(context.Background()); err != nil {
			slog.Debug("Cache garbage collection finished with errors", "removed", removed, "error", err)
		}
	}
	return c
}

// Dir returns the backing directory.
func (c *FileCache) Dir() string {
	return c.dir
}

// Degraded reports whether the cache could not prepare its directory.
func (c *FileCache) Degraded() bool {
	return c.degraded
}

// Has reports whether a live entry exists for key.
func (c *FileCache) Has(_ context.Context, key string) bool {
	_, ok := c.load(key)
	return ok
}

// Get returns the value for key or def.
func (c *FileCache) Get(_ context.Context, key string, def []byte) []byte {
	e, ok := c.load(key)
	if !ok {
		return def
	}
	return e.Value
}

// Set writes the entry atomically through a temp file and rename.
func (c *FileCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	if c.degraded {
		return false
	}
	data, err := json.Marshal(fileEntry{Value: value, ExpiresAt: expiresAt(c.now(), ttl)})
	if err != nil {
		return false
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		slog.Debug("Failed to create cache temp file", "dir", c.dir, "error", err)
		return false
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		slog.Debug("Failed to store cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// CollectGarbage deletes every expired entry. Entries that disappear or
// cannot be removed mid-sweep are skipped.
func (c *FileCache) CollectGarbage(ctx context.Context) (int, error) {
	if c.degraded {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache directory: %w", err)
	}

	now := c.now()
	removed := 0
	var errs []error
	for _, de := range entries {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileExt) {
			continue
		}
		path := filepath.Join(c.dir, de.Name())
		e, err := readEntry(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !expired(e.ExpiresAt, now) {
			continue
		}
		ok, err := c.removeExpired(path)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

func (c *FileCache) load(key string) (*fileEntry, bool) {
	if c.degraded {
		return nil, false
	}
	path := c.path(key)
	e, err := readEntry(path)
	if err != nil {
		return nil, false
	}
	if expired(e.ExpiresAt, c.now()) {
		return nil, false
	}
	return e, true
}

// removeExpired deletes the entry at path if it is still expired once moved
// aside. A Set that landed after the sweep read the file is linked back into
// place, unless an even newer entry already took it.
func (c *FileCache) removeExpired(path string) (bool, error) {
	aside := path + ".gc-" + strconv.FormatInt(rand.Int63(), 36)
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to remove cache entry: %w", err)
	}
	defer os.Remove(aside)

	e, err := readEntry(aside)
	if err != nil || expired(e.ExpiresAt, c.now()) {
		return true, nil
	}
	if err := os.Link(aside, path); err != nil && !errors.Is(err, os.ErrExist) {
		if err := os.Rename(aside, path); err != nil {
			return false, fmt.Errorf("failed to restore cache entry: %w", err)
		}
	}
	return false, nil
}

func (c *FileCache) path(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+fileExt)
}

func readEntry(path string) (*fileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", filepath.Base(path), err)
	}
	return &e, nil
}
