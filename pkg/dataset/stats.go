package dataset

import (
	"fmt"

	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/metadata"

	"github.com/datalagoon/lagoon/pkg/catalog"
)

// harvestRowGroups walks a written file's Parquet metadata and collects the
// per-row-group statistics the pruner needs. Columns without statistics are
// simply absent from the maps; a missing bound can never prune.
func harvestRowGroups(reader *file.Reader) ([]catalog.RowGroupStats, error) {
	fileMetadata := reader.MetaData()
	rowGroups := make([]catalog.RowGroupStats, 0, reader.NumRowGroups())

	for groupIndex := 0; groupIndex < reader.NumRowGroups(); groupIndex++ {
		groupMetadata := fileMetadata.RowGroup(groupIndex)
		rowCount := groupMetadata.NumRows()

		stats := catalog.RowGroupStats{
			Index:      groupIndex,
			RowCount:   &rowCount,
			Min:        map[string]any{},
			Max:        map[string]any{},
			NullCounts: map[string]int64{},
		}

		for columnIndex := 0; columnIndex < groupMetadata.NumColumns(); columnIndex++ {
			columnChunk, err := groupMetadata.ColumnChunk(columnIndex)
			if err != nil {
				return nil, fmt.Errorf("failed to read column chunk metadata: %w", err)
			}
			name := columnChunk.PathInSchema().String()

			columnStats, err := columnChunk.Statistics()
			if err != nil || columnStats == nil {
				// Statistics are best-effort; a column without them is
				// recorded with no bounds.
				continue
			}
			if columnStats.HasMinMax() {
				if minValue, ok := statValue(columnStats, true); ok {
					stats.Min[name] = minValue
				}
				if maxValue, ok := statValue(columnStats, false); ok {
					stats.Max[name] = maxValue
				}
			}
			if columnStats.HasNullCount() {
				stats.NullCounts[name] = columnStats.NullCount()
			}
		}
		rowGroups = append(rowGroups, stats)
	}
	return rowGroups, nil
}

// statValue extracts a typed min or max as a plain Go value. Physical types
// without a useful ordering (Int96, fixed-length byte arrays) are skipped.
func statValue(columnStats metadata.TypedStatistics, wantMin bool) (any, bool) {
	switch typed := columnStats.(type) {
	case *metadata.BooleanStatistics:
		if wantMin {
			return typed.Min(), true
		}
		return typed.Max(), true
	case *metadata.Int32Statistics:
		if wantMin {
			return typed.Min(), true
		}
		return typed.Max(), true
	case *metadata.Int64Statistics:
		if wantMin {
			return typed.Min(), true
		}
		return typed.Max(), true
	case *metadata.Float32Statistics:
		if wantMin {
			return typed.Min(), true
		}
		return typed.Max(), true
	case *metadata.Float64Statistics:
		if wantMin {
			return typed.Min(), true
		}
		return typed.Max(), true
	case *metadata.ByteArrayStatistics:
		if wantMin {
			return string(typed.Min()), true
		}
		return string(typed.Max()), true
	default:
		return nil, false
	}
}

// fileMetadataMap summarizes a written file's Parquet metadata for the
// catalog's metadata_json column.
func fileMetadataMap(reader *file.Reader) map[string]any {
	fileMetadata := reader.MetaData()
	return map[string]any{
		"num_rows":       reader.NumRows(),
		"num_row_groups": reader.NumRowGroups(),
		"num_columns":    fileMetadata.Schema.NumColumns(),
		"created_by":     fileMetadata.GetCreatedBy(),
	}
}
