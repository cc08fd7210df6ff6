package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ITNoesis/pas/internal/errors"
)

const tempMarker = ".tmp-"

// writeFileAtomic makes data visible under dir/name only once it is fully
// on disk. An existing file is never replaced; ErrWindowExists is returned
// instead.
func writeFileAtomic(dir, name string, data []byte) error {
	final := filepath.Join(dir, name)

	f, err := os.CreateTemp(dir, "."+name+tempMarker+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := os.Link(tmp, final); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s: %w", final, errors.ErrWindowExists)
		}
		// Filesystems without hard links.
		if _, statErr := os.Lstat(final); statErr == nil {
			return fmt.Errorf("%s: %w", final, errors.ErrWindowExists)
		}
		if err := os.Rename(tmp, final); err != nil {
			return fmt.Errorf("rename to %s: %w", final, err)
		}
	}

	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

// removeStaleTemp deletes temp files left behind by an interrupted write
// that are older than minAge.
func removeStaleTemp(dir string, minAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), ".") || !strings.Contains(e.Name(), tempMarker) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < minAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
