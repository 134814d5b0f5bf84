package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// Ref is a structured dataset reference carried across public APIs.
// Every field is optional; resolution priority is DatasetID, then BaseURI,
// then Name.
type Ref struct {
	CatalogURI string
	DatasetID  int64
	Name       string
	BaseURI    string
	Version    int64
	Metadata   map[string]string
}

// RefFromString interprets a bare string as either a base URI or a dataset
// name, depending on whether it looks like a URI.
func RefFromString(value string) Ref {
	if LooksLikeURI(value) {
		return Ref{BaseURI: value}
	}
	return Ref{Name: value}
}

// WithVersion returns a copy of the reference pinned to the given version.
func (ref Ref) WithVersion(version int64) Ref {
	ref.Version = version
	return ref
}

// CanonicalURI produces a canonical dataset URI.
//
// Forms, in order of preference:
//   - lagoon://<catalog-authority>/?dataset_id=<id> when the dataset id is known
//   - lagoon://<catalog-authority>/datasets/<name> when only the name is known
//   - dataset:<id> when only the id is available
func (ref Ref) CanonicalURI() (string, error) {
	if ref.CatalogURI != "" && ref.DatasetID > 0 {
		return fmt.Sprintf("lagoon://%s/?dataset_id=%d", catalogAuthority(ref.CatalogURI), ref.DatasetID), nil
	}
	if ref.CatalogURI != "" && ref.Name != "" {
		return fmt.Sprintf("lagoon://%s/datasets/%s", catalogAuthority(ref.CatalogURI), ref.Name), nil
	}
	if ref.DatasetID > 0 {
		return fmt.Sprintf("dataset:%d", ref.DatasetID), nil
	}
	return "", fmt.Errorf("cannot generate canonical URI without catalog information: %w", ErrCatalog)
}

func catalogAuthority(catalogURI string) string {
	parsed, err := url.Parse(catalogURI)
	if err != nil {
		return catalogURI
	}
	if parsed.Host != "" {
		return parsed.Host
	}
	return parsed.Path
}

// LooksLikeURI reports whether the given string looks like a URI or base
// path rather than a dataset name. A string with a URI scheme or a leading
// "/" or "." is treated as a URI.
func LooksLikeURI(value string) bool {
	if parsed, err := url.Parse(value); err == nil && parsed.Scheme != "" {
		return true
	}
	return strings.HasPrefix(value, "/") || strings.HasPrefix(value, ".")
}
