package dataset

import (
	"context"
	"fmt"
	"sort"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"github.com/datalagoon/lagoon/pkg/catalog"
	"github.com/datalagoon/lagoon/pkg/storage"
)

// ReadOptions configures a dataset read.
type ReadOptions struct {
	// CatalogURI locates the catalog; defaults to catalog.DefaultCatalogURI.
	CatalogURI string

	// Version pins the read to one committed version; 0 falls back to the
	// reference's Version, and then to the dataset's current version.
	Version int64

	// Predicates prune files and row groups by statistics and are applied
	// exactly to the materialized rows.
	Predicates []Predicate

	// StorageOptions are passed through to the storage backend.
	StorageOptions map[string]string
}

// Lazy is an unmaterialized read: the surviving files and row-group
// selections after pruning. No predicate filter has been applied physically:
// the selected files and row groups may hold non-matching rows. ToTable
// applies the predicates exactly when it materializes the selection.
type Lazy struct {
	version    int64
	files      []selectedFile
	handles    []storage.Handle
	predicates []Predicate
}

// Version returns the resolved version of the read.
func (lazy *Lazy) Version() int64 {
	return lazy.version
}

// Files returns the absolute URIs of the surviving files.
func (lazy *Lazy) Files() []string {
	paths := make([]string, len(lazy.files))
	for i, entry := range lazy.files {
		paths[i] = entry.path
	}
	return paths
}

// Read resolves a dataset at a version, prunes with the catalog's
// statistics, and materializes the surviving row groups as an Arrow table
// with the predicates applied exactly.
func Read(ctx context.Context, ref catalog.Ref, opts ReadOptions) (arrow.Table, error) {
	lazy, err := ReadLazy(ref, opts)
	if err != nil {
		return nil, err
	}
	return lazy.ToTable(ctx)
}

// ReadLazy performs catalog resolution and pruning but defers file IO,
// returning a handle over the selected files.
func ReadLazy(ref catalog.Ref, opts ReadOptions) (*Lazy, error) {
	predicates, err := parsePredicates(opts.Predicates)
	if err != nil {
		return nil, err
	}

	selected, version, err := resolveSelection(ref, opts, predicates)
	if err != nil {
		return nil, err
	}

	// All files of one version must live on one storage backend.
	handles := make([]storage.Handle, len(selected))
	for i, entry := range selected {
		handle, err := storage.Resolve(entry.path, opts.StorageOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve storage for %q: %w", entry.path, err)
		}
		if i > 0 && handle.Protocol != handles[0].Protocol {
			return nil, fmt.Errorf("mixed storage backends within a single version are not supported: %w", ErrDataset)
		}
		handles[i] = handle
	}

	return &Lazy{version: version, files: selected, handles: handles, predicates: predicates}, nil
}

// resolveSelection queries the catalog and prunes the file list. The catalog
// connection is closed before any file IO happens.
func resolveSelection(ref catalog.Ref, opts ReadOptions, predicates []Predicate) ([]selectedFile, int64, error) {
	catalogURI := opts.CatalogURI
	if catalogURI == "" {
		catalogURI = catalog.DefaultCatalogURI
	}
	store, err := catalog.Open(catalogURI)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = store.Close() }()

	ds, err := store.Resolve(ref, catalog.ResolveOptions{})
	if err != nil {
		return nil, 0, err
	}

	version := opts.Version
	if version == 0 {
		version = ref.Version
	}
	if version == 0 {
		version = ds.CurrentVersion
	}
	if version <= 0 {
		return nil, 0, fmt.Errorf("dataset has no committed versions to read: %w", ErrDataset)
	}

	files, err := store.ListFilesForVersion(ds.ID, version)
	if err != nil {
		return nil, 0, err
	}
	if len(files) == 0 {
		return nil, 0, fmt.Errorf("no files found for dataset version %d: %w", version, ErrDataset)
	}

	fileIDs := make([]int64, len(files))
	for i, entry := range files {
		fileIDs[i] = entry.ID
	}

	partitionsByFile, err := store.PartitionsForFiles(fileIDs)
	if err != nil {
		return nil, 0, err
	}
	var rowGroupsByFile map[int64][]catalog.RowGroupStats
	if len(predicates) > 0 {
		rowGroupsByFile, err = store.RowGroupsForFiles(fileIDs)
		if err != nil {
			return nil, 0, err
		}
	}

	selected, err := pruneFiles(files, partitionsByFile, rowGroupsByFile, predicates)
	if err != nil {
		return nil, 0, err
	}
	if len(selected) == 0 {
		return nil, 0, fmt.Errorf("no data matches the provided predicates: %w", ErrDataset)
	}
	return selected, version, nil
}

// ToTable materializes the selection: each file contributes only its
// selected row groups, hive partition columns are re-appended as strings,
// the per-file tables are concatenated in file-id order, and the predicates
// are applied row-exactly (statistics pruning over-approximates).
func (lazy *Lazy) ToTable(ctx context.Context) (arrow.Table, error) {
	mem := memory.DefaultAllocator

	var tables []arrow.Table
	defer func() {
		for _, table := range tables {
			table.Release()
		}
	}()

	for i, entry := range lazy.files {
		table, err := readParquetTable(ctx, lazy.handles[i], entry, mem)
		if err != nil {
			return nil, err
		}
		if len(entry.partitions) > 0 {
			withPartitions, err := appendPartitionColumns(mem, table, entry.partitions)
			table.Release()
			if err != nil {
				return nil, err
			}
			table = withPartitions
		}
		tables = append(tables, table)
	}

	combined, err := concatTables(mem, tables)
	if err != nil {
		return nil, err
	}
	if len(lazy.predicates) == 0 {
		return combined, nil
	}
	defer combined.Release()
	return filterTable(mem, combined, lazy.predicates)
}

func readParquetTable(ctx context.Context, handle storage.Handle, entry selectedFile, mem memory.Allocator) (arrow.Table, error) {
	input, err := handle.FS.OpenInputFile(handle.RootPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()

	reader, err := file.NewParquetReader(input)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file %q: %w", entry.path, err)
	}
	defer func() { _ = reader.Close() }()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{BatchSize: 64 * 1024}, mem)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader for %q: %w", entry.path, err)
	}

	if entry.rowGroups != nil {
		table, err := arrowReader.ReadRowGroups(ctx, nil, entry.rowGroups)
		if err != nil {
			return nil, fmt.Errorf("failed to read row groups of %q: %w", entry.path, err)
		}
		return table, nil
	}
	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", entry.path, err)
	}
	return table, nil
}

// appendPartitionColumns adds each hive partition key as a string column
// with the partition value repeated for every row, in sorted key order.
func appendPartitionColumns(mem memory.Allocator, table arrow.Table, partitions map[string]string) (arrow.Table, error) {
	keys := make([]string, 0, len(partitions))
	for key := range partitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]arrow.Field, 0, table.Schema().NumFields()+len(keys))
	fields = append(fields, table.Schema().Fields()...)
	columns := make([]arrow.Column, 0, cap(fields))
	for i := 0; i < int(table.NumCols()); i++ {
		columns = append(columns, *table.Column(i))
	}

	rowCount := int(table.NumRows())
	for _, key := range keys {
		if len(table.Schema().FieldIndices(key)) > 0 {
			continue // column already materialized in the file
		}
		builder := array.NewStringBuilder(mem)
		for row := 0; row < rowCount; row++ {
			builder.Append(partitions[key])
		}
		values := builder.NewStringArray()
		builder.Release()

		field := arrow.Field{Name: key, Type: arrow.BinaryTypes.String, Nullable: true}
		chunked := arrow.NewChunked(arrow.BinaryTypes.String, []arrow.Array{values})
		fields = append(fields, field)
		columns = append(columns, *arrow.NewColumn(field, chunked))
	}

	return array.NewTable(arrow.NewSchema(fields, nil), columns, table.NumRows()), nil
}

// concatTables stitches the per-file tables into one. All tables must share
// a schema, which holds because one version shares one schema and partition
// columns are appended deterministically.
func concatTables(mem memory.Allocator, tables []arrow.Table) (arrow.Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables to combine: %w", ErrDataset)
	}
	if len(tables) == 1 {
		tables[0].Retain()
		return tables[0], nil
	}

	schema := tables[0].Schema()
	var records []arrow.Record
	defer func() {
		for _, record := range records {
			record.Release()
		}
	}()

	for _, table := range tables {
		if !table.Schema().Equal(schema) {
			return nil, fmt.Errorf("files of one version disagree on schema: %w", ErrDataset)
		}
		reader := array.NewTableReader(table, -1)
		for reader.Next() {
			record := reader.Record()
			record.Retain()
			records = append(records, record)
		}
		reader.Release()
	}
	return array.NewTableFromRecords(schema, records), nil
}

// filterTable applies the predicates row-exactly, returning a table holding
// only matching rows.
func filterTable(mem memory.Allocator, table arrow.Table, predicates []Predicate) (arrow.Table, error) {
	for _, predicate := range predicates {
		if len(table.Schema().FieldIndices(predicate.Column)) == 0 {
			return nil, fmt.Errorf("predicate column %q not found in data: %w", predicate.Column, ErrDataset)
		}
	}

	reader := array.NewTableReader(table, -1)
	defer reader.Release()

	var outRecords []arrow.Record
	defer func() {
		for _, record := range outRecords {
			record.Release()
		}
	}()

	for reader.Next() {
		record := reader.Record()
		rows, err := matchingRows(record, predicates)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		if len(rows) == int(record.NumRows()) {
			record.Retain()
			outRecords = append(outRecords, record)
			continue
		}
		filtered, err := takeRecord(mem, record, rows, nil)
		if err != nil {
			return nil, err
		}
		outRecords = append(outRecords, filtered)
	}

	if len(outRecords) == 0 {
		builder := array.NewRecordBuilder(mem, table.Schema())
		empty := builder.NewRecord()
		builder.Release()
		outRecords = append(outRecords, empty)
	}
	return array.NewTableFromRecords(table.Schema(), outRecords), nil
}

func matchingRows(record arrow.Record, predicates []Predicate) ([]int, error) {
	columns := make([]arrow.Array, len(predicates))
	for i, predicate := range predicates {
		index := record.Schema().FieldIndices(predicate.Column)[0]
		columns[i] = record.Column(index)
	}

	var rows []int
	for row := 0; row < int(record.NumRows()); row++ {
		matches := true
		for i, predicate := range predicates {
			value, isNull, err := cellValue(columns[i], row)
			if err != nil {
				return nil, err
			}
			ok, err := predicateMatches(predicate, value, isNull)
			if err != nil {
				return nil, err
			}
			if !ok {
				matches = false
				break
			}
		}
		if matches {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
