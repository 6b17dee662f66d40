// Package filesink writes records to day-rotated log files.
package filesink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// RotatingOption configures a Rotating writer.
type RotatingOption func(*Rotating)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) RotatingOption {
	return func(r *Rotating) { r.now = now }
}

// Rotating appends to path-YYYY-MM-DD.ext, switching files when the day
// changes and keeping at most maxFiles of them (0 keeps everything).
type Rotating struct {
	mu       sync.Mutex
	base     string
	ext      string
	maxFiles int
	now      func() time.Time

	f   *os.File
	day string
}

// NewRotating creates the writer. The file is opened lazily on first write.
func NewRotating(path string, maxFiles int, opts ...RotatingOption) *Rotating {
	ext := filepath.Ext(path)
	r := &Rotating{
		base:     strings.TrimSuffix(path, ext),
		ext:      ext,
		maxFiles: maxFiles,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentPath returns the file the next write goes to.
func (r *Rotating) CurrentPath() string {
	return r.pathFor(r.now().Format(dateLayout))
}

func (r *Rotating) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := r.now().Format(dateLayout)
	if r.f == nil || day != r.day {
		if err := r.open(day); err != nil {
			return 0, err
		}
	}
	return r.f.Write(p)
}

func (r *Rotating) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

func (r *Rotating) pathFor(day string) string {
	return r.base + "-" + day + r.ext
}

func (r *Rotating) open(day string) error {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
	path := r.pathFor(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("filesink: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("filesink: open %s: %w", path, err)
	}
	r.f = f
	r.day = day
	r.prune()
	return nil
}

// prune removes the oldest rotated files beyond maxFiles.
func (r *Rotating) prune() {
	if r.maxFiles <= 0 {
		return
	}
	matches, err := filepath.Glob(r.base + "-*" + r.ext)
	if err != nil {
		return
	}
	var dated []string
	prefix := filepath.Base(r.base) + "-"
	for _, m := range matches {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), r.ext)
		if _, err := time.Parse(dateLayout, day); err == nil {
			dated = append(dated, m)
		}
	}
	if len(dated) <= r.maxFiles {
		return
	}
	sort.Strings(dated)
	for _, old := range dated[:len(dated)-r.maxFiles] {
		os.Remove(old)
	}
}

// Prepare makes sure dir exists and accepts new files.
func Prepare(dir string) error {
	if dir == "" {
		return errors.New("filesink: directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filesink: create %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("filesink: %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
