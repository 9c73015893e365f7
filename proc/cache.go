package proc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leeineian/howie/sys"
	"github.com/samber/lo"
)

const partSuffix = ".part"

// CacheEntry is one staged audio file. Until Commit succeeds only the .part
// file exists, so readers never see a half-written entry.
type CacheEntry struct {
	Name string
	Path string
}

func (e CacheEntry) partPath() string { return e.Path + partSuffix }

// CacheStore manages the staging directory for downloaded audio.
type CacheStore struct {
	Dir string
	now func() time.Time
}

func NewCacheStore(dir string) *CacheStore {
	return &CacheStore{Dir: dir, now: time.Now}
}

// Stage reserves a unique entry name. Nothing is written yet.
func (c *CacheStore) Stage(ext string) CacheEntry {
	if ext == "" {
		ext = ".webm"
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("song_%d_%s%s", c.now().UnixNano(), token, ext)
	return CacheEntry{Name: name, Path: filepath.Join(c.Dir, name)}
}

// Create opens the entry's .part file for writing.
func (c *CacheStore) Create(e CacheEntry) (*os.File, error) {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(e.partPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

// Commit publishes a fully written entry under its final name.
func (c *CacheStore) Commit(e CacheEntry) error {
	return os.Rename(e.partPath(), e.Path)
}

// Abort removes whatever was written for a failed entry.
func (c *CacheStore) Abort(e CacheEntry) {
	for _, p := range []string{e.partPath(), e.Path} {
		if err := os.Remove(p); err == nil {
			sys.LogCache(sys.MsgCachePartialClean, p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			sys.LogError(sys.MsgCacheDeleteFail, p, err)
		}
	}
}

// Remove deletes a committed entry. Failures are logged, never returned.
func (c *CacheStore) Remove(e CacheEntry) {
	if e.Path == "" {
		return
	}
	if err := os.Remove(e.Path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			sys.LogError(sys.MsgCacheDeleteFail, e.Path, err)
		}
		return
	}
	sys.LogCache(sys.MsgCacheDeleted, e.Path)
}

// RemoveAsync is Remove on its own goroutine.
func (c *CacheStore) RemoveAsync(e CacheEntry) {
	go c.Remove(e)
}

// Exists reports whether a committed file is present for e.
func (c *CacheStore) Exists(e CacheEntry) bool {
	_, err := os.Stat(e.Path)
	return err == nil
}

// PurgeAll deletes every file in the directory and recreates it if missing.
// Calling it on an empty or absent directory succeeds.
func (c *CacheStore) PurgeAll() error {
	entries, err := os.ReadDir(c.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(c.Dir, 0755); err != nil {
			sys.LogError(sys.MsgCacheCreateDir, err)
			return err
		}
		return nil
	}
	if err != nil {
		return err
	}

	files := lo.Filter(entries, func(e os.DirEntry, _ int) bool { return !e.IsDir() })
	var errs []error
	removed := 0
	for _, f := range files {
		p := filepath.Join(c.Dir, f.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			sys.LogError(sys.MsgCacheDeleteFail, f.Name(), err)
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		sys.LogCache(sys.MsgCachePurged, removed)
	}
	return errors.Join(errs...)
}
