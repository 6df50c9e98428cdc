// Package sources classifies source roots into the providers the compiler
// reads source material from.
package sources

import (
	"os"
	"strings"
)

// ArchiveExt is the file-name suffix that marks an archive source.
const ArchiveExt = ".jar"

type Kind int

const (
	KindDirectory Kind = iota
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "archive"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Provider is one origin of compilable source material.
type Provider struct {
	Kind Kind
	Path string
}

func Archive(path string) Provider   { return Provider{Kind: KindArchive, Path: path} }
func Directory(path string) Provider { return Provider{Kind: KindDirectory, Path: path} }

// Resolve returns one provider per path, in input order.
//
// A regular file whose name ends in ArchiveExt becomes an archive provider;
// everything else, including paths that do not exist, becomes a directory
// provider. Missing paths are not reported here: the compiler finds out when
// it reads from the provider.
func Resolve(paths []string) []Provider {
	out := make([]Provider, 0, len(paths))
	for _, p := range paths {
		out = append(out, classify(p))
	}
	return out
}

func classify(path string) Provider {
	fi, err := os.Stat(path)
	if err == nil && fi.Mode().IsRegular() && strings.HasSuffix(path, ArchiveExt) {
		return Archive(path)
	}
	return Directory(path)
}
