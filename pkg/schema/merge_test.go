package schema

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldsOf(names []string, types []arrow.DataType) []arrow.Field {
	fields := make([]arrow.Field, len(names))
	for i := range names {
		fields[i] = arrow.Field{Name: names[i], Type: types[i], Nullable: true}
	}
	return fields
}

// TestMergeWithoutCurrentSchema tests that the first write adopts the
// incoming schema unchanged
func TestMergeWithoutCurrentSchema(testingT *testing.T) {
	incoming := arrow.NewSchema(fieldsOf([]string{"value"}, []arrow.DataType{arrow.PrimitiveTypes.Int64}), nil)

	result, err := Merge(nil, incoming, Options{})
	require.NoError(testingT, err)
	assert.True(testingT, result.Changed)
	assert.Empty(testingT, result.Casts)
	assert.True(testingT, result.Schema.Equal(incoming))
}

// TestMergeIdenticalSchemas tests that matching schemas produce no casts
func TestMergeIdenticalSchemas(testingT *testing.T) {
	current := arrow.NewSchema(fieldsOf([]string{"a", "b"}, []arrow.DataType{arrow.PrimitiveTypes.Int64, arrow.BinaryTypes.String}), nil)
	incoming := arrow.NewSchema(fieldsOf([]string{"a", "b"}, []arrow.DataType{arrow.PrimitiveTypes.Int64, arrow.BinaryTypes.String}), nil)

	result, err := Merge(current, incoming, Options{})
	require.NoError(testingT, err)
	assert.False(testingT, result.Changed)
	assert.Empty(testingT, result.Casts)
}

// TestMergeTypePromotions tests the widening promotion table
func TestMergeTypePromotions(testingT *testing.T) {
	cases := []struct {
		name     string
		current  arrow.DataType
		incoming arrow.DataType
		target   arrow.DataType
	}{
		{"int32 to int64", arrow.PrimitiveTypes.Int32, arrow.PrimitiveTypes.Int64, arrow.PrimitiveTypes.Int64},
		{"int64 to float64", arrow.PrimitiveTypes.Int64, arrow.PrimitiveTypes.Float64, arrow.PrimitiveTypes.Float64},
		{"float32 to float64", arrow.PrimitiveTypes.Float32, arrow.PrimitiveTypes.Float64, arrow.PrimitiveTypes.Float64},
	}

	for _, testCase := range cases {
		testingT.Run(testCase.name, func(subT *testing.T) {
			current := arrow.NewSchema(fieldsOf([]string{"value"}, []arrow.DataType{testCase.current}), nil)
			incoming := arrow.NewSchema(fieldsOf([]string{"value"}, []arrow.DataType{testCase.incoming}), nil)

			result, err := Merge(current, incoming, Options{SchemaMerge: true})
			require.NoError(subT, err)
			assert.True(subT, result.Changed)
			require.Contains(subT, result.Casts, "value")
			assert.True(subT, arrow.TypeEqual(testCase.target, result.Casts["value"]))
		})
	}
}

// TestMergePromoteToString tests that any conflict widens to string when
// requested
func TestMergePromoteToString(testingT *testing.T) {
	current := arrow.NewSchema(fieldsOf([]string{"value"}, []arrow.DataType{arrow.PrimitiveTypes.Int64}), nil)
	incoming := arrow.NewSchema(fieldsOf([]string{"value"}, []arrow.DataType{arrow.PrimitiveTypes.Float32}), nil)

	result, err := Merge(current, incoming, Options{SchemaMerge: true, PromoteToString: true})
	require.NoError(testingT, err)
	require.Contains(testingT, result.Casts, "value")
	assert.True(testingT, arrow.TypeEqual(arrow.BinaryTypes.String, result.Casts["value"]))
}

// TestMergeFailures tests the mismatch cases
func TestMergeFailures(testingT *testing.T) {
	int64Schema := arrow.NewSchema(fieldsOf([]string{"value"}, []arrow.DataType{arrow.PrimitiveTypes.Int64}), nil)
	stringSchema := arrow.NewSchema(fieldsOf([]string{"value"}, []arrow.DataType{arrow.BinaryTypes.String}), nil)
	twoColumns := arrow.NewSchema(fieldsOf([]string{"value", "extra"}, []arrow.DataType{arrow.PrimitiveTypes.Int64, arrow.PrimitiveTypes.Int64}), nil)

	// Type change with merging disabled
	_, err := Merge(int64Schema, stringSchema, Options{})
	assert.ErrorIs(testingT, err, ErrSchemaMismatch)

	// Unknown promotion even with merging enabled
	_, err = Merge(int64Schema, stringSchema, Options{SchemaMerge: true})
	assert.ErrorIs(testingT, err, ErrSchemaMismatch)

	// Dropped required column
	_, err = Merge(twoColumns, int64Schema, Options{SchemaMerge: true})
	assert.ErrorIs(testingT, err, ErrSchemaMismatch)

	// New column with merging disabled
	_, err = Merge(int64Schema, twoColumns, Options{})
	assert.ErrorIs(testingT, err, ErrSchemaMismatch)
}

// TestMergeAddsNewColumnsNullable tests that new incoming columns are added
// as nullable when merging is enabled
func TestMergeAddsNewColumnsNullable(testingT *testing.T) {
	current := arrow.NewSchema(fieldsOf([]string{"value"}, []arrow.DataType{arrow.PrimitiveTypes.Int64}), nil)
	incoming := arrow.NewSchema([]arrow.Field{
		{Name: "value", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "extra", Type: arrow.BinaryTypes.String, Nullable: false},
	}, nil)

	result, err := Merge(current, incoming, Options{SchemaMerge: true})
	require.NoError(testingT, err)
	assert.True(testingT, result.Changed)
	require.Equal(testingT, 2, result.Schema.NumFields())
	extra := result.Schema.Field(1)
	assert.Equal(testingT, "extra", extra.Name)
	assert.True(testingT, extra.Nullable)
}
