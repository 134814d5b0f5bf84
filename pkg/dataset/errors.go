package dataset

import "errors"

// ErrDataset is returned when a dataset read or write fails: unsupported
// input types, empty versions, unsupported predicate operators, mixed
// storage protocols, or predicates that match no data.
var ErrDataset = errors.New("dataset error")
