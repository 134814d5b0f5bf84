// Package storage resolves dataset URIs to filesystem handles. The local
// filesystem is built in; object-store backends register a protocol factory.
package storage

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// File is a readable file opened from a FileSystem. Parquet readers need
// random access, so sequential reads alone are not enough.
type File interface {
	io.ReaderAt
	io.Seeker
	io.Closer
}

// WritableFile is a file being written through a FileSystem.
type WritableFile interface {
	io.Writer
	io.Closer
}

// FileSystem abstracts the storage backend under a dataset's base URI.
type FileSystem interface {
	// Protocol returns the backend's protocol name, e.g. "file".
	Protocol() string

	// Sep returns the path separator used by the backend.
	Sep() string

	// RootMarker returns the prefix of absolute backend paths ("" when the
	// backend has no such notion).
	RootMarker() string

	// MakeDirs creates the directory and its missing parents.
	MakeDirs(path string) error

	// Size returns the byte size of the file at path.
	Size(path string) (int64, error)

	// OpenInputFile opens the file at path for random-access reads.
	OpenInputFile(path string) (File, error)

	// Create creates (or truncates) the file at path for writing, creating
	// parent directories as needed.
	Create(path string) (WritableFile, error)

	// UnstripProtocol turns a backend path into an absolute URI.
	UnstripProtocol(path string) string
}

// Handle pairs a filesystem with the path a URI resolved to under it.
type Handle struct {
	FS       FileSystem
	RootPath string
	Protocol string
}

// Factory builds a filesystem for one protocol. It returns the filesystem
// and the backend path the URI refers to.
type Factory func(parsed *url.URL, options map[string]string) (FileSystem, string, error)

var (
	protocolsMu sync.RWMutex
	protocols   = map[string]Factory{}
)

// RegisterProtocol registers a filesystem factory for a URI scheme.
// Registering an existing scheme replaces the previous factory.
func RegisterProtocol(name string, factory Factory) {
	protocolsMu.Lock()
	defer protocolsMu.Unlock()
	protocols[name] = factory
}

// RegisteredProtocols returns the registered scheme names, sorted.
func RegisteredProtocols() []string {
	protocolsMu.RLock()
	defer protocolsMu.RUnlock()
	names := make([]string, 0, len(protocols))
	for name := range protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a URI (or bare path) to a filesystem handle. Backend-specific
// options are passed through to the protocol factory.
func Resolve(uri string, options map[string]string) (Handle, error) {
	scheme := ""
	if parsed, err := url.Parse(uri); err == nil {
		scheme = parsed.Scheme
	}

	if scheme == "" || scheme == "file" {
		return resolveLocal(uri)
	}

	protocolsMu.RLock()
	factory, ok := protocols[scheme]
	protocolsMu.RUnlock()
	if !ok {
		return Handle{}, fmt.Errorf("no filesystem registered for protocol %q", scheme)
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid storage URI %q: %w", uri, err)
	}
	fs, rootPath, err := factory(parsed, options)
	if err != nil {
		return Handle{}, err
	}
	return Handle{FS: fs, RootPath: rootPath, Protocol: fs.Protocol()}, nil
}

func resolveLocal(uri string) (Handle, error) {
	path := uri
	if strings.HasPrefix(uri, "file://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return Handle{}, fmt.Errorf("invalid file URI %q: %w", uri, err)
		}
		path = parsed.Path
	}
	fs := NewLocalFileSystem()
	return Handle{FS: fs, RootPath: path, Protocol: fs.Protocol()}, nil
}
