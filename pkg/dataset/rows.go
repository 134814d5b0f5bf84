package dataset

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// projectSchema returns the record's schema without the dropped columns.
func projectSchema(schema *arrow.Schema, drop map[string]bool) *arrow.Schema {
	if len(drop) == 0 {
		return schema
	}
	fields := make([]arrow.Field, 0, schema.NumFields())
	for _, field := range schema.Fields() {
		if drop[field.Name] {
			continue
		}
		fields = append(fields, field)
	}
	return arrow.NewSchema(fields, nil)
}

// takeRecord builds a new record containing the given rows (in order),
// dropping the named columns.
func takeRecord(mem memory.Allocator, record arrow.Record, rows []int, drop map[string]bool) (arrow.Record, error) {
	schema := projectSchema(record.Schema(), drop)
	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	fieldIndex := 0
	for columnIndex := 0; columnIndex < int(record.NumCols()); columnIndex++ {
		name := record.Schema().Field(columnIndex).Name
		if drop[name] {
			continue
		}
		column := record.Column(columnIndex)
		for _, row := range rows {
			if err := appendCell(builder.Field(fieldIndex), column, row); err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
		}
		fieldIndex++
	}
	return builder.NewRecord(), nil
}

// appendCell copies one cell from an array into a builder of the same type.
func appendCell(builder array.Builder, column arrow.Array, row int) error {
	if column.IsNull(row) {
		builder.AppendNull()
		return nil
	}
	switch typed := builder.(type) {
	case *array.BooleanBuilder:
		typed.Append(column.(*array.Boolean).Value(row))
	case *array.Int32Builder:
		typed.Append(column.(*array.Int32).Value(row))
	case *array.Int64Builder:
		typed.Append(column.(*array.Int64).Value(row))
	case *array.Float32Builder:
		typed.Append(column.(*array.Float32).Value(row))
	case *array.Float64Builder:
		typed.Append(column.(*array.Float64).Value(row))
	case *array.StringBuilder:
		typed.Append(column.(*array.String).Value(row))
	case *array.Date32Builder:
		typed.Append(column.(*array.Date32).Value(row))
	case *array.TimestampBuilder:
		typed.Append(column.(*array.Timestamp).Value(row))
	default:
		return fmt.Errorf("unsupported column type %s: %w", column.DataType(), ErrDataset)
	}
	return nil
}

// cellValue extracts one cell as a Go value for predicate evaluation.
// Integers widen to int64 and float32 to float64.
func cellValue(column arrow.Array, row int) (any, bool, error) {
	if column.IsNull(row) {
		return nil, true, nil
	}
	switch typed := column.(type) {
	case *array.Boolean:
		return typed.Value(row), false, nil
	case *array.Int32:
		return int64(typed.Value(row)), false, nil
	case *array.Int64:
		return typed.Value(row), false, nil
	case *array.Float32:
		return float64(typed.Value(row)), false, nil
	case *array.Float64:
		return typed.Value(row), false, nil
	case *array.String:
		return typed.Value(row), false, nil
	default:
		return nil, false, fmt.Errorf("unsupported column type %s for predicates: %w", column.DataType(), ErrDataset)
	}
}

// compareValues orders two scalar values, coercing numerics to a common
// representation. Incomparable kinds are an error.
func compareValues(left, right any) (int, error) {
	leftNumber, leftIsNumber := asFloat64(left)
	rightNumber, rightIsNumber := asFloat64(right)
	if leftIsNumber && rightIsNumber {
		switch {
		case leftNumber < rightNumber:
			return -1, nil
		case leftNumber > rightNumber:
			return 1, nil
		default:
			return 0, nil
		}
	}

	leftString, leftIsString := left.(string)
	rightString, rightIsString := right.(string)
	if leftIsString && rightIsString {
		return strings.Compare(leftString, rightString), nil
	}

	leftBool, leftIsBool := left.(bool)
	rightBool, rightIsBool := right.(bool)
	if leftIsBool && rightIsBool {
		switch {
		case leftBool == rightBool:
			return 0, nil
		case rightBool:
			return -1, nil
		default:
			return 1, nil
		}
	}

	return 0, fmt.Errorf("cannot compare %T with %T: %w", left, right, ErrDataset)
}

func asFloat64(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

// predicateMatches evaluates one predicate against a cell value. Null cells
// never match.
func predicateMatches(predicate Predicate, value any, isNull bool) (bool, error) {
	if isNull {
		return false, nil
	}
	ordering, err := compareValues(value, predicate.Value)
	if err != nil {
		return false, err
	}
	switch predicate.Op {
	case "==":
		return ordering == 0, nil
	case "<":
		return ordering < 0, nil
	case "<=":
		return ordering <= 0, nil
	case ">":
		return ordering > 0, nil
	case ">=":
		return ordering >= 0, nil
	}
	return false, fmt.Errorf("unsupported predicate operator %q: %w", predicate.Op, ErrDataset)
}
