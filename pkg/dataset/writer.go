// Package dataset implements the write and read paths over the catalog:
// normalizing columnar input, laying out Parquet files under versioned
// directories, harvesting statistics, and pruning reads with them.
package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/datalagoon/lagoon/pkg/catalog"
	"github.com/datalagoon/lagoon/pkg/schema"
	"github.com/datalagoon/lagoon/pkg/storage"
)

// WriteOptions configures a dataset write.
type WriteOptions struct {
	// CatalogURI locates the catalog; defaults to catalog.DefaultCatalogURI.
	CatalogURI string

	// BaseURI supplies the storage location when the write registers a new
	// dataset.
	BaseURI string

	// PartitionBy lays files out hive-style (key=value directories) on the
	// named columns. Partition columns are not written into the files.
	PartitionBy []string

	// Compression selects the Parquet codec: "snappy" (default), "zstd",
	// "gzip" or "none".
	Compression string

	// MaxRowsPerGroup caps the rows written into one Parquet row group.
	// Input batches stay separate row groups; oversized batches are split.
	// Zero means DefaultMaxRowsPerGroup.
	MaxRowsPerGroup int64

	// StorageOptions are passed through to the storage backend.
	StorageOptions map[string]string
}

// WriteResult reports a committed write.
type WriteResult struct {
	Ref          catalog.Ref
	Version      int64
	RowCount     int64
	Files        []string
	FileMetadata []map[string]any
}

// DefaultMaxRowsPerGroup bounds row-group size when the caller does not.
const DefaultMaxRowsPerGroup = 64 * 1024

// writeGroup is the unit of file layout: one output file per group, holding
// the group's row slices with partition columns stripped.
type writeGroup struct {
	schema     *arrow.Schema
	segments   []string
	partitions map[string]string
	records    []arrow.Record
}

// Write normalizes data to Arrow, writes it as Parquet under the dataset's
// next version directory, and atomically commits the version to the catalog.
func Write(ctx context.Context, ref catalog.Ref, data any, opts WriteOptions) (*WriteResult, error) {
	catalogURI := opts.CatalogURI
	if catalogURI == "" {
		catalogURI = catalog.DefaultCatalogURI
	}
	store, err := catalog.Open(catalogURI)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	ds, err := store.Resolve(ref, catalog.ResolveOptions{CreateIfMissing: true, BaseURI: opts.BaseURI})
	if err != nil {
		return nil, err
	}
	if ds.BaseURI == "" {
		return nil, fmt.Errorf("dataset has no base_uri configured: %w", ErrDataset)
	}

	input, err := normalizeInput(data)
	if err != nil {
		return nil, err
	}
	defer input.release()

	schemaBytes, err := schema.Serialize(input.schema)
	if err != nil {
		return nil, err
	}

	version := ds.CurrentVersion + 1
	handle, err := storage.Resolve(ds.BaseURI, opts.StorageOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage for %q: %w", ds.BaseURI, err)
	}

	sep := handle.FS.Sep()
	versionDir := strings.TrimRight(handle.RootPath, sep)
	if versionDir == "" {
		versionDir = fmt.Sprintf("v%d", version)
	} else {
		versionDir = fmt.Sprintf("%s%sv%d", versionDir, sep, version)
	}
	if err := handle.FS.MakeDirs(versionDir); err != nil {
		return nil, err
	}

	mem := memory.DefaultAllocator
	groups, err := partitionGroups(mem, input, opts.PartitionBy)
	if err != nil {
		return nil, err
	}
	defer releaseGroups(groups)

	var fileInputs []catalog.FileInput
	fileIndex := 0
	for _, group := range groups {
		parts := append([]string{versionDir}, group.segments...)
		parts = append(parts, fmt.Sprintf("part-v%d-%d.parquet", version, fileIndex))
		relPath := strings.Join(parts, sep)
		fileIndex++

		if err := writeParquetFile(group, handle.FS, relPath, opts.Compression, opts.MaxRowsPerGroup); err != nil {
			return nil, err
		}
		fileInput, err := harvestFile(handle.FS, relPath, versionDir, sep, schemaBytes)
		if err != nil {
			return nil, err
		}
		fileInputs = append(fileInputs, *fileInput)
	}

	if len(fileInputs) == 0 {
		return nil, fmt.Errorf("write produced no output files: %w", ErrDataset)
	}

	commitMetadata := map[string]any{
		"commit_id":  uuid.NewString(),
		"file_count": len(fileInputs),
	}
	updated, err := store.CommitWrite(ds, version, fileInputs, commitMetadata)
	if err != nil {
		return nil, err
	}

	result := &WriteResult{
		Ref: catalog.Ref{
			CatalogURI: catalogURI,
			DatasetID:  updated.ID,
			Name:       updated.Name,
			BaseURI:    updated.BaseURI,
		},
		Version: version,
	}
	for _, fileInput := range fileInputs {
		result.Files = append(result.Files, fileInput.FilePath)
		result.FileMetadata = append(result.FileMetadata, fileInput.Metadata)
		if fileInput.RowCount != nil {
			result.RowCount += *fileInput.RowCount
		}
	}
	return result, nil
}

// partitionGroups splits the input rows into one group per distinct
// combination of partition values, in first-seen order. Without partitioning
// the input becomes a single group with its batch boundaries intact.
func partitionGroups(mem memory.Allocator, input *columnarInput, partitionBy []string) ([]*writeGroup, error) {
	if len(partitionBy) == 0 {
		records := make([]arrow.Record, len(input.records))
		for i, record := range input.records {
			record.Retain()
			records[i] = record
		}
		return []*writeGroup{{schema: input.schema, records: records}}, nil
	}

	drop := make(map[string]bool, len(partitionBy))
	for _, column := range partitionBy {
		if len(input.schema.FieldIndices(column)) == 0 {
			return nil, fmt.Errorf("partition column %q not found in input: %w", column, ErrDataset)
		}
		drop[column] = true
	}
	if len(drop) >= input.schema.NumFields() {
		return nil, fmt.Errorf("partitioning on every column leaves nothing to write: %w", ErrDataset)
	}

	var (
		order  []string
		groups = map[string]*writeGroup{}
	)
	for _, record := range input.records {
		partitionColumns := make([]arrow.Array, len(partitionBy))
		for i, column := range partitionBy {
			partitionColumns[i] = record.Column(record.Schema().FieldIndices(column)[0])
		}

		rowsByKey := map[string][]int{}
		for row := 0; row < int(record.NumRows()); row++ {
			values := make([]string, len(partitionBy))
			for i, column := range partitionColumns {
				values[i] = column.ValueStr(row)
			}
			key := strings.Join(values, "\x00")
			if _, seen := groups[key]; !seen {
				if _, pending := rowsByKey[key]; !pending {
					order = append(order, key)
				}
				partitions := make(map[string]string, len(partitionBy))
				segments := make([]string, len(partitionBy))
				for i, column := range partitionBy {
					partitions[column] = values[i]
					segments[i] = fmt.Sprintf("%s=%s", column, values[i])
				}
				groups[key] = &writeGroup{
					schema:     projectSchema(input.schema, drop),
					segments:   segments,
					partitions: partitions,
				}
			}
			rowsByKey[key] = append(rowsByKey[key], row)
		}

		for key, rows := range rowsByKey {
			slice, err := takeRecord(mem, record, rows, drop)
			if err != nil {
				return nil, err
			}
			groups[key].records = append(groups[key].records, slice)
		}
	}

	ordered := make([]*writeGroup, 0, len(order))
	for _, key := range order {
		ordered = append(ordered, groups[key])
	}
	return ordered, nil
}

func releaseGroups(groups []*writeGroup) {
	for _, group := range groups {
		for _, record := range group.records {
			record.Release()
		}
	}
}

// writeParquetFile writes one group's records as a Parquet file, one row
// group per record batch. Batches above maxRows split into multiple row
// groups.
func writeParquetFile(group *writeGroup, fs storage.FileSystem, path, compression string, maxRows int64) error {
	codec, err := compressionCodec(compression)
	if err != nil {
		return err
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRowsPerGroup
	}
	writerProps := parquet.NewWriterProperties(parquet.WithCompression(codec))

	out, err := fs.Create(path)
	if err != nil {
		return err
	}

	writer, err := pqarrow.NewFileWriter(group.schema, out, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to create parquet writer for %q: %w", path, err)
	}

	first := true
	for _, record := range group.records {
		for offset := int64(0); offset < record.NumRows(); offset += maxRows {
			length := min(maxRows, record.NumRows()-offset)
			slice := record.NewSlice(offset, offset+length)
			if !first {
				writer.NewRowGroup()
			}
			first = false
			err := writer.Write(slice)
			slice.Release()
			if err != nil {
				_ = writer.Close()
				_ = out.Close()
				return fmt.Errorf("failed to write parquet data to %q: %w", path, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to finalize parquet file %q: %w", path, err)
	}
	// Closing the Parquet writer also closes out.
	return nil
}

func compressionCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported compression %q: %w", name, ErrDataset)
	}
}

// harvestFile reopens a written file and collects the metadata the catalog
// records: row counts, byte size (best-effort), partition pairs parsed from
// the path, and per-row-group statistics.
func harvestFile(fs storage.FileSystem, path, versionDir, sep string, schemaBytes []byte) (*catalog.FileInput, error) {
	input, err := fs.OpenInputFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()

	reader, err := file.NewParquetReader(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read back parquet file %q: %w", path, err)
	}
	defer func() { _ = reader.Close() }()

	rowGroups, err := harvestRowGroups(reader)
	if err != nil {
		return nil, err
	}
	rowCount := reader.NumRows()

	fileInput := &catalog.FileInput{
		FilePath:    fs.UnstripProtocol(path),
		RowCount:    &rowCount,
		SchemaBytes: schemaBytes,
		Metadata:    fileMetadataMap(reader),
		RowGroups:   rowGroups,
		Partitions:  partitionsFromPath(strings.TrimPrefix(path, versionDir), sep),
	}
	if size, err := fs.Size(path); err == nil {
		fileInput.FileSizeBytes = &size
	}
	return fileInput, nil
}

// partitionsFromPath parses hive key=value pairs out of a file path.
func partitionsFromPath(path, sep string) map[string]string {
	partitions := map[string]string{}
	for _, segment := range strings.Split(path, sep) {
		if key, value, found := strings.Cut(segment, "="); found && key != "" {
			partitions[key] = value
		}
	}
	if len(partitions) == 0 {
		return nil
	}
	return partitions
}
