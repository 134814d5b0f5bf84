package dataset

import (
	"fmt"
	"strings"
)

// Predicate is a single-column comparison pushed down into the read path.
// Supported operators: =, ==, <, <=, >, >= ("=" is normalized to "==").
type Predicate struct {
	Column string
	Op     string
	Value  any
}

// NewPredicate builds a predicate; the operator is validated during Read.
func NewPredicate(column, op string, value any) Predicate {
	return Predicate{Column: column, Op: op, Value: value}
}

var supportedOps = map[string]bool{
	"==": true,
	"<":  true,
	"<=": true,
	">":  true,
	">=": true,
}

// parsePredicates validates operators and normalizes "=" to "==".
func parsePredicates(predicates []Predicate) ([]Predicate, error) {
	if len(predicates) == 0 {
		return nil, nil
	}
	parsed := make([]Predicate, 0, len(predicates))
	for _, predicate := range predicates {
		op := strings.ToLower(strings.TrimSpace(predicate.Op))
		if op == "=" {
			op = "=="
		}
		if !supportedOps[op] {
			return nil, fmt.Errorf("unsupported predicate operator %q: %w", predicate.Op, ErrDataset)
		}
		parsed = append(parsed, Predicate{Column: predicate.Column, Op: op, Value: predicate.Value})
	}
	return parsed, nil
}
