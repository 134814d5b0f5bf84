package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLooksLikeURI tests the URI-versus-name heuristic
func TestLooksLikeURI(testingT *testing.T) {
	cases := []struct {
		value    string
		expected bool
	}{
		{"s3://bucket/prefix", true},
		{"file:///tmp/data", true},
		{"/tmp/data", true},
		{"./relative/data", true},
		{"sales", false},
		{"my_dataset", false},
		{"", false},
	}

	for _, testCase := range cases {
		assert.Equal(testingT, testCase.expected, LooksLikeURI(testCase.value), "value %q", testCase.value)
	}
}

// TestRefFromStringRoundTrip tests that URIs become base URIs and names stay
// names
func TestRefFromStringRoundTrip(testingT *testing.T) {
	uriRef := RefFromString("file:///tmp/data")
	assert.Equal(testingT, "file:///tmp/data", uriRef.BaseURI)
	assert.Empty(testingT, uriRef.Name)

	nameRef := RefFromString("sales")
	assert.Equal(testingT, "sales", nameRef.Name)
	assert.Empty(testingT, nameRef.BaseURI)
}

// TestCanonicalURI tests the canonical URI forms in preference order
func TestCanonicalURI(testingT *testing.T) {
	withID := Ref{CatalogURI: "sqlite:///tmp/catalog.db", DatasetID: 42}
	canonical, err := withID.CanonicalURI()
	require.NoError(testingT, err)
	assert.Equal(testingT, "lagoon:///tmp/catalog.db/?dataset_id=42", canonical)

	withName := Ref{CatalogURI: "sqlite://catalog-host", Name: "sales"}
	canonical, err = withName.CanonicalURI()
	require.NoError(testingT, err)
	assert.Equal(testingT, "lagoon://catalog-host/datasets/sales", canonical)

	idOnly := Ref{DatasetID: 7}
	canonical, err = idOnly.CanonicalURI()
	require.NoError(testingT, err)
	assert.Equal(testingT, "dataset:7", canonical)

	empty := Ref{}
	_, err = empty.CanonicalURI()
	assert.ErrorIs(testingT, err, ErrCatalog)
}

// TestRefWithVersion tests the version-pinning helper
func TestRefWithVersion(testingT *testing.T) {
	ref := RefFromString("sales").WithVersion(3)
	assert.Equal(testingT, int64(3), ref.Version)
	assert.Equal(testingT, "sales", ref.Name)
}
