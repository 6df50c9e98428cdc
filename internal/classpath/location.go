package classpath

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrMalformedLocation is returned when a file reference cannot be turned
// into a loadable location.
var ErrMalformedLocation = errors.New("malformed classpath location")

// Location is one absolute, loadable classpath entry.
type Location struct {
	Path string
	URL  string
}

// IsArchive reports whether the location points at a .jar file by name.
func (l Location) IsArchive() bool {
	return strings.HasSuffix(l.Path, ".jar")
}

// NewLocations converts each file set, in order, into locations.
//
// Entries are neither de-duplicated nor reordered. The first malformed entry
// fails the whole call and no locations are returned.
func NewLocations(fileSets ...[]string) ([]Location, error) {
	var out []Location
	for _, files := range fileSets {
		for _, f := range files {
			loc, err := toLocation(f)
			if err != nil {
				return nil, err
			}
			out = append(out, loc)
		}
	}
	return out, nil
}

func toLocation(path string) (Location, error) {
	if strings.TrimSpace(path) == "" {
		return Location{}, fmt.Errorf("%w: empty path", ErrMalformedLocation)
	}
	if strings.ContainsRune(path, 0) {
		return Location{}, fmt.Errorf("%w: %q contains NUL", ErrMalformedLocation, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %q: %v", ErrMalformedLocation, path, err)
	}

	slashed := filepath.ToSlash(abs)
	if !strings.HasPrefix(slashed, "/") {
		// Windows volume paths: file:///C:/...
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return Location{Path: abs, URL: u.String()}, nil
}
