package catalog

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/glebarez/sqlite"
)

// DefaultCatalogURI is used when callers do not configure a catalog.
const DefaultCatalogURI = "sqlite:///:memory:"

// Open creates a catalog store for the given connection URI.
//
// Supported URI schemes:
//   - sqlite:///<path> or sqlite:///:memory: (default)
//
// Other engines with "?" placeholders (e.g. DuckDB) plug in through NewStore
// with a database/sql handle of their own driver.
func Open(uri string) (*Store, error) {
	if uri == "" {
		uri = DefaultCatalogURI
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog URI %q: %w", uri, ErrCatalog)
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "sqlite"
	}

	switch scheme {
	case "sqlite":
		path := sqlitePath(parsed)
		database, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite catalog: %w", err)
		}
		if path == ":memory:" {
			// The pool would hand each connection its own empty memory
			// database; pin the catalog to a single connection.
			database.SetMaxOpenConns(1)
		}
		store, err := NewStore(database, "sqlite")
		if err != nil {
			_ = database.Close()
			return nil, err
		}
		return store, nil
	case "duckdb":
		return nil, fmt.Errorf("duckdb catalogs require an external driver; open the database yourself and use NewStore: %w", ErrCatalog)
	default:
		return nil, fmt.Errorf("unsupported catalog scheme %q: %w", scheme, ErrCatalog)
	}
}

func sqlitePath(parsed *url.URL) string {
	path := parsed.Path
	if parsed.Opaque != "" {
		path = parsed.Opaque
	}
	switch path {
	case "", "/", "/:memory:", ":memory:":
		return ":memory:"
	}
	if strings.HasPrefix(path, "/:memory:") {
		return ":memory:"
	}
	return path
}
