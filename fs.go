package movie

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrAssetNotFound is returned when a logical movie name does not
	// resolve to any known asset.
	ErrAssetNotFound = errors.New("movie asset not found")

	// ErrArchivedAsset is returned when the asset exists only inside an
	// archive. The decode library reads straight from disk, so archived
	// movies must be extracted before they can play.
	ErrArchivedAsset = errors.New("movie asset is inside an archive")
)

// PathResolver maps a logical movie name to a real on-disk path.
// Implementations backed by a virtual filesystem must return
// ErrArchivedAsset for assets that exist only inside an archive.
type PathResolver interface {
	Resolve(name string) (string, error)
}

// DiskResolver resolves movie names against a plain directory tree:
// Root/Dir/<name>, appending Ext when the name has no extension.
type DiskResolver struct {
	Root string // Base directory; empty means the working directory
	Dir  string // Subdirectory holding movies; empty means "media"
	Ext  string // Default extension; empty means ".avi"
}

// Resolve returns the on-disk path for name, or ErrAssetNotFound.
func (d DiskResolver) Resolve(name string) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "media"
	}
	ext := d.Ext
	if ext == "" {
		ext = ".avi"
	}
	if filepath.Ext(name) == "" {
		name += ext
	}

	path := filepath.Join(d.Root, dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrAssetNotFound, path)
	}
	return path, nil
}
