package catalog

import "errors"

// Sentinel errors for catalog failures. Callers match with errors.Is.
var (
	// ErrCatalog covers malformed references, unsupported catalog URIs,
	// version regressions and other invariant violations.
	ErrCatalog = errors.New("catalog error")

	// ErrDatasetNotFound is returned when a dataset reference cannot be resolved.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDatasetConflict is returned when registering a dataset whose name or
	// base URI collides with an existing dataset.
	ErrDatasetConflict = errors.New("dataset conflict")
)
