package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
)

// ErrSchemaMismatch is returned when schema evolution cannot be performed.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Options controls merge behavior. With SchemaMerge disabled any type change
// or new column is a mismatch. PromoteToString resolves every type conflict
// by widening to string.
type Options struct {
	SchemaMerge     bool
	PromoteToString bool
}

// MergeResult is the outcome of merging an incoming schema into the current
// one. Casts lists the columns whose values must be converted to a new type.
type MergeResult struct {
	Schema  *arrow.Schema
	Casts   map[string]arrow.DataType
	Changed bool
}

// promotions maps a current column type to the one incoming type it may be
// widened to. Any other combination is a mismatch.
var promotions = []struct {
	from arrow.DataType
	to   arrow.DataType
}{
	{arrow.PrimitiveTypes.Int32, arrow.PrimitiveTypes.Int64},
	{arrow.PrimitiveTypes.Int64, arrow.PrimitiveTypes.Float64},
	{arrow.PrimitiveTypes.Float32, arrow.PrimitiveTypes.Float64},
}

// Merge merges the incoming schema into the current one. A nil current
// schema accepts the incoming schema as-is. Columns missing from the
// incoming data are a mismatch; new incoming columns are added as nullable
// when SchemaMerge is enabled.
func Merge(current, incoming *arrow.Schema, opts Options) (MergeResult, error) {
	if current == nil {
		return MergeResult{Schema: incoming, Casts: map[string]arrow.DataType{}, Changed: true}, nil
	}

	incomingFields := make(map[string]arrow.Field, incoming.NumFields())
	for _, field := range incoming.Fields() {
		incomingFields[field.Name] = field
	}

	mergedFields := make([]arrow.Field, 0, current.NumFields())
	casts := map[string]arrow.DataType{}
	changed := false

	for _, field := range current.Fields() {
		incomingField, ok := incomingFields[field.Name]
		if !ok {
			return MergeResult{}, fmt.Errorf("incoming data is missing required column %q: %w", field.Name, ErrSchemaMismatch)
		}
		delete(incomingFields, field.Name)

		mergedField, castType, fieldChanged, err := mergeField(field, incomingField, opts)
		if err != nil {
			return MergeResult{}, err
		}
		mergedFields = append(mergedFields, mergedField)
		if castType != nil {
			casts[field.Name] = castType
		}
		changed = changed || fieldChanged
	}

	if len(incomingFields) > 0 && !opts.SchemaMerge {
		return MergeResult{}, fmt.Errorf("new columns are not allowed when schema merging is disabled: %w", ErrSchemaMismatch)
	}

	// Remaining incoming fields are new columns; preserve their incoming order.
	for _, field := range incoming.Fields() {
		if _, ok := incomingFields[field.Name]; !ok {
			continue
		}
		changed = true
		field.Nullable = true
		mergedFields = append(mergedFields, field)
	}

	return MergeResult{Schema: arrow.NewSchema(mergedFields, nil), Casts: casts, Changed: changed}, nil
}

func mergeField(currentField, incomingField arrow.Field, opts Options) (arrow.Field, arrow.DataType, bool, error) {
	nullable := currentField.Nullable || incomingField.Nullable

	if arrow.TypeEqual(currentField.Type, incomingField.Type) {
		merged := currentField
		merged.Nullable = nullable
		return merged, nil, false, nil
	}

	if !opts.SchemaMerge {
		return arrow.Field{}, nil, false, fmt.Errorf(
			"column %q has incompatible type and schema merging is disabled: %w", currentField.Name, ErrSchemaMismatch)
	}

	targetType, err := resolveType(currentField, incomingField, opts.PromoteToString)
	if err != nil {
		return arrow.Field{}, nil, false, err
	}
	merged := arrow.Field{Name: currentField.Name, Type: targetType, Nullable: nullable}
	return merged, targetType, !arrow.TypeEqual(targetType, currentField.Type), nil
}

func resolveType(currentField, incomingField arrow.Field, promoteToString bool) (arrow.DataType, error) {
	if promoteToString {
		return arrow.BinaryTypes.String, nil
	}
	for _, promotion := range promotions {
		if arrow.TypeEqual(currentField.Type, promotion.from) && arrow.TypeEqual(incomingField.Type, promotion.to) {
			return promotion.to, nil
		}
	}
	return nil, fmt.Errorf("cannot merge column %q types %s and %s: %w",
		currentField.Name, currentField.Type, incomingField.Type, ErrSchemaMismatch)
}

// Align rebuilds a table against a merge result: columns are selected in the
// merged schema's order and cast where the merge requires it.
func Align(ctx context.Context, table arrow.Table, result MergeResult) (arrow.Table, error) {
	columns := make([]arrow.Column, 0, result.Schema.NumFields())
	for _, field := range result.Schema.Fields() {
		indices := table.Schema().FieldIndices(field.Name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("table is missing column %q: %w", field.Name, ErrSchemaMismatch)
		}
		column := table.Column(indices[0])

		castType, needsCast := result.Casts[field.Name]
		if !needsCast {
			columns = append(columns, *arrow.NewColumn(field, column.Data()))
			continue
		}

		chunks := make([]arrow.Array, 0, len(column.Data().Chunks()))
		for _, chunk := range column.Data().Chunks() {
			cast, err := compute.CastArray(ctx, chunk, compute.SafeCastOptions(castType))
			if err != nil {
				return nil, fmt.Errorf("failed to cast column %q: %w", field.Name, err)
			}
			chunks = append(chunks, cast)
		}
		chunked := arrow.NewChunked(castType, chunks)
		columns = append(columns, *arrow.NewColumn(field, chunked))
	}
	return array.NewTable(result.Schema, columns, table.NumRows()), nil
}
