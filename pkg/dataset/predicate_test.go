package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParsePredicatesNormalizesEquality tests that "=" becomes "=="
func TestParsePredicatesNormalizesEquality(testingT *testing.T) {
	parsed, err := parsePredicates([]Predicate{
		NewPredicate("value", "=", 1),
		NewPredicate("value", " >= ", 2),
	})
	require.NoError(testingT, err)
	require.Len(testingT, parsed, 2)
	assert.Equal(testingT, "==", parsed[0].Op)
	assert.Equal(testingT, ">=", parsed[1].Op)
}

// TestParsePredicatesRejectsUnknownOperators tests operator validation
func TestParsePredicatesRejectsUnknownOperators(testingT *testing.T) {
	for _, op := range []string{"!=", "in", "like", "between", ""} {
		_, err := parsePredicates([]Predicate{NewPredicate("value", op, 1)})
		assert.ErrorIs(testingT, err, ErrDataset, "operator %q should be rejected", op)
	}
}

// TestParsePredicatesEmpty tests that no predicates parse to none
func TestParsePredicatesEmpty(testingT *testing.T) {
	parsed, err := parsePredicates(nil)
	require.NoError(testingT, err)
	assert.Empty(testingT, parsed)
}

// TestCompareValuesCoercion tests numeric and string comparisons
func TestCompareValuesCoercion(testingT *testing.T) {
	ordering, err := compareValues(int64(2), float64(2))
	require.NoError(testingT, err)
	assert.Equal(testingT, 0, ordering)

	ordering, err = compareValues(float64(1.5), int(2))
	require.NoError(testingT, err)
	assert.Equal(testingT, -1, ordering)

	ordering, err = compareValues("2024-01-02", "2024-01-01")
	require.NoError(testingT, err)
	assert.Equal(testingT, 1, ordering)

	_, err = compareValues("text", int64(1))
	assert.ErrorIs(testingT, err, ErrDataset)
}
