package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ITNoesis/pas/config"
)

// Entry describes one window file in an archive directory.
type Entry struct {
	Path    string
	Start   time.Time
	Size    int64
	ModTime time.Time
	Codec   Codec
}

// Name returns the file name of the entry.
func (e Entry) Name() string {
	return filepath.Base(e.Path)
}

// Catalog lists the window files of an archive directory and caches
// decoded windows. Window files are immutable once written, so cached
// windows are keyed by path, size and modification time.
type Catalog struct {
	dir    string
	prefix string
	cache  *lru.Cache
}

// NewCatalog creates a catalog for dir. A non-positive cacheSize uses the
// default.
func NewCatalog(dir, prefix string, cacheSize int) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = config.DefaultCatalogCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}
	return &Catalog{dir: dir, prefix: prefix, cache: cache}, nil
}

// List returns every window file in the directory, oldest start first.
// Files that do not follow the naming scheme are ignored.
func (c *Catalog) List() ([]Entry, error) {
	return scan(c.dir, c.prefix)
}

// Between returns the windows that may hold samples with timestamps in
// (from, to]: those starting in [from, to) and the last one starting
// before from.
func (c *Catalog) Between(from, to time.Time) ([]Entry, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for i, e := range all {
		if !e.Start.Before(to) {
			break
		}
		if e.Start.Before(from) && i+1 < len(all) && all[i+1].Start.Before(from) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Latest returns the newest n windows, oldest first.
func (c *Catalog) Latest(n int) ([]Entry, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if n < len(all) {
		all = all[len(all)-n:]
	}
	return all, nil
}

type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// Open decodes the window of e, using the cache when possible.
func (c *Catalog) Open(e Entry) (*Window, error) {
	key := cacheKey{path: e.Path, size: e.Size, modTime: e.ModTime.UnixNano()}
	if v, ok := c.cache.Get(key); ok {
		return v.(*Window), nil
	}

	win, err := ReadWindow(e.Path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, win)
	return win, nil
}

// Cached returns the number of decoded windows held in the cache.
func (c *Catalog) Cached() int {
	return c.cache.Len()
}

// Paths returns the paths of entries in order.
func Paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func scan(dir, prefix string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var out []Entry
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		start, codec, err := ParseFileName(prefix, de.Name())
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Path:    filepath.Join(dir, de.Name()),
			Start:   start,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Codec:   codec,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
