// Package classpath builds the disposable, classpath-scoped execution context
// a compilation run loads project classes through.
package classpath

import (
	"archive/zip"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Loader resolves classes and resources from an ordered set of locations,
// falling back to a parent for anything it cannot find itself.
type Loader interface {
	// URLs returns the loader's own locations, in search order.
	URLs() []Location
	// ClassPath returns own paths followed by the parent's class path.
	ClassPath() []string
	// Find looks up a slash-separated resource name such as
	// "com/example/Main.class".
	Find(resource string) (Location, bool)
	Parent() Loader
	Close() error
}

// URLLoader is a Loader over file locations. Archives are opened on first
// lookup and stay open until Close.
type URLLoader struct {
	locations []Location
	parent    Loader

	archives map[string]*zip.ReadCloser
	broken   map[string]error
	closed   bool
}

var _ Loader = (*URLLoader)(nil)

// NewURLLoader builds a loader over dependencies followed by artifacts.
// Construction is all-or-nothing: a malformed entry returns an error and no
// loader.
func NewURLLoader(dependencies, artifacts []string, parent Loader) (*URLLoader, error) {
	locs, err := NewLocations(dependencies, artifacts)
	if err != nil {
		return nil, err
	}
	return &URLLoader{
		locations: locs,
		parent:    parent,
		archives:  make(map[string]*zip.ReadCloser),
		broken:    make(map[string]error),
	}, nil
}

// NewHostLoader builds the root loader that stands for the orchestrator's own
// loading context (the compiler distribution).
func NewHostLoader(paths []string) (*URLLoader, error) {
	return NewURLLoader(paths, nil, nil)
}

func (l *URLLoader) URLs() []Location {
	out := make([]Location, len(l.locations))
	copy(out, l.locations)
	return out
}

func (l *URLLoader) ClassPath() []string {
	out := make([]string, 0, len(l.locations))
	for _, loc := range l.locations {
		out = append(out, loc.Path)
	}
	if l.parent != nil {
		out = append(out, l.parent.ClassPath()...)
	}
	return out
}

func (l *URLLoader) Parent() Loader { return l.parent }

func (l *URLLoader) Find(resource string) (Location, bool) {
	if !l.closed && fs.ValidPath(resource) {
		for _, loc := range l.locations {
			if l.contains(loc, resource) {
				return loc, true
			}
		}
	}
	if l.parent != nil {
		return l.parent.Find(resource)
	}
	return Location{}, false
}

func (l *URLLoader) contains(loc Location, resource string) bool {
	fi, err := os.Stat(loc.Path)
	if err != nil {
		return false
	}
	if fi.IsDir() {
		rfi, err := os.Stat(filepath.Join(loc.Path, filepath.FromSlash(resource)))
		return err == nil && rfi.Mode().IsRegular()
	}
	if !loc.IsArchive() {
		return false
	}

	zr, err := l.archive(loc.Path)
	if err != nil {
		return false
	}
	f, err := zr.Open(resource)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func (l *URLLoader) archive(path string) (*zip.ReadCloser, error) {
	if zr, ok := l.archives[path]; ok {
		return zr, nil
	}
	if err := l.broken[path]; err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		l.broken[path] = err
		return nil, err
	}
	l.archives[path] = zr
	return zr, nil
}

// Close releases every archive the loader opened. Calling Close again is a
// no-op. The parent is not closed.
func (l *URLLoader) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	for path, zr := range l.archives {
		if err := zr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	l.archives = nil
	if len(errs) > 0 {
		return fmt.Errorf("errors closing class loader: %w", errors.Join(errs...))
	}
	return nil
}
