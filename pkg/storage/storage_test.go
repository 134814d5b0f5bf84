package storage

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResolveLocalPath tests bare-path and file:// resolution
func TestResolveLocalPath(testingT *testing.T) {
	handle, err := Resolve("/tmp/dataset", nil)
	require.NoError(testingT, err)
	assert.Equal(testingT, "file", handle.Protocol)
	assert.Equal(testingT, "/tmp/dataset", handle.RootPath)

	handle, err = Resolve("file:///tmp/dataset", nil)
	require.NoError(testingT, err)
	assert.Equal(testingT, "file", handle.Protocol)
	assert.Equal(testingT, "/tmp/dataset", handle.RootPath)
}

// TestResolveUnknownProtocol tests that unregistered protocols fail
func TestResolveUnknownProtocol(testingT *testing.T) {
	_, err := Resolve("s3://bucket/prefix", nil)
	require.Error(testingT, err)
	assert.Contains(testingT, err.Error(), "no filesystem registered")
}

// TestRegisterProtocol tests the protocol registry
func TestRegisterProtocol(testingT *testing.T) {
	RegisterProtocol("memtest", func(parsed *url.URL, options map[string]string) (FileSystem, string, error) {
		return NewLocalFileSystem(), parsed.Path, nil
	})

	handle, err := Resolve("memtest://ignored/some/path", nil)
	require.NoError(testingT, err)
	assert.Equal(testingT, "file", handle.Protocol)
	assert.Equal(testingT, "/some/path", handle.RootPath)
	assert.Contains(testingT, RegisteredProtocols(), "memtest")
}

// TestLocalFileSystemRoundTrip tests create, size and read-back
func TestLocalFileSystemRoundTrip(testingT *testing.T) {
	tempDir, err := os.MkdirTemp("", "lagoon-storage-test-")
	require.NoError(testingT, err)
	defer func() { _ = os.RemoveAll(tempDir) }()

	fs := NewLocalFileSystem()
	nested := filepath.Join(tempDir, "a", "b")
	require.NoError(testingT, fs.MakeDirs(nested))

	path := filepath.Join(nested, "data.bin")
	out, err := fs.Create(path)
	require.NoError(testingT, err)
	_, err = out.Write([]byte("hello"))
	require.NoError(testingT, err)
	require.NoError(testingT, out.Close())

	size, err := fs.Size(path)
	require.NoError(testingT, err)
	assert.Equal(testingT, int64(5), size)

	in, err := fs.OpenInputFile(path)
	require.NoError(testingT, err)
	defer func() { _ = in.Close() }()
	buffer := make([]byte, 5)
	_, err = in.ReadAt(buffer, 0)
	require.NoError(testingT, err)
	assert.Equal(testingT, "hello", string(buffer))

	uri := fs.UnstripProtocol(path)
	assert.True(testingT, strings.HasPrefix(uri, "file:///"), "got %q", uri)
}
