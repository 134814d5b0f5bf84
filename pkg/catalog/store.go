package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Dataset is a dataset registered in the catalog. CurrentVersion is 0 until
// the first write commits.
type Dataset struct {
	ID             int64
	Name           string
	BaseURI        string
	CurrentVersion int64
	CreatedAt      time.Time
}

// RowGroupStats carries per-row-group statistics for one Parquet row group.
// Nil maps mean the statistic was not recorded and must not be used to prune.
type RowGroupStats struct {
	Index      int
	RowCount   *int64
	Min        map[string]any
	Max        map[string]any
	NullCounts map[string]int64
}

// FileInput describes one written file for CommitWrite. The file's bytes must
// already exist at FilePath.
type FileInput struct {
	FilePath      string
	FileSizeBytes *int64
	RowCount      *int64
	SchemaBytes   []byte
	Metadata      map[string]any
	RowGroups     []RowGroupStats
	Partitions    map[string]string
}

// FileEntry identifies one committed file of a version.
type FileEntry struct {
	ID       int64
	FilePath string
}

// Transaction records one committed version of a dataset.
type Transaction struct {
	ID        int64
	DatasetID int64
	Version   int64
	Timestamp time.Time
	Operation string
	Metadata  map[string]any
}

// ResolveOptions controls dataset resolution. Name and BaseURI supply the
// complementary information needed to create a dataset when CreateIfMissing
// is set.
type ResolveOptions struct {
	CreateIfMissing bool
	Name            string
	BaseURI         string
}

// Store is a lightweight relational catalog for datasets. It expects a
// database/sql handle whose placeholder format matches SQLite/DuckDB ("?").
type Store struct {
	database *sql.DB
	backend  string
}

// NewStore wraps an existing database connection. The catalog schema is
// created if absent.
func NewStore(database *sql.DB, backend string) (*Store, error) {
	if err := ensureSchema(database); err != nil {
		return nil, err
	}
	return &Store{database: database, backend: backend}, nil
}

// Backend returns the backend name the store was opened with.
func (store *Store) Backend() string {
	return store.backend
}

// Close closes the underlying database connection.
func (store *Store) Close() error {
	if store.database != nil {
		return store.database.Close()
	}
	return nil
}

// RegisterDataset inserts a dataset if it does not exist, otherwise returns
// the existing dataset. Registration is idempotent for identical (name,
// base URI) pairs and conflicts when either field is reused with the other
// differing.
func (store *Store) RegisterDataset(name, baseURI string) (*Dataset, error) {
	existing, err := store.DatasetByName(name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.BaseURI != baseURI {
			return nil, fmt.Errorf("dataset %q already exists with base URI %q: %w", name, existing.BaseURI, ErrDatasetConflict)
		}
		return existing, nil
	}

	existingByURI, err := store.DatasetByBaseURI(baseURI)
	if err != nil {
		return nil, err
	}
	if existingByURI != nil {
		if existingByURI.Name != name {
			return nil, fmt.Errorf("base URI %q already belongs to dataset %q: %w", baseURI, existingByURI.Name, ErrDatasetConflict)
		}
		return existingByURI, nil
	}

	result, err := store.database.Exec("INSERT INTO datasets (name, base_uri) VALUES (?, ?)", name, baseURI)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dataset: %w", err)
	}
	datasetID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset ID: %w", err)
	}
	return store.DatasetByID(datasetID)
}

// DatasetByID retrieves a dataset by id; a missing id is ErrDatasetNotFound.
func (store *Store) DatasetByID(datasetID int64) (*Dataset, error) {
	dataset, err := store.queryDataset("SELECT id, name, base_uri, current_version, created_at FROM datasets WHERE id = ?", datasetID)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, fmt.Errorf("dataset id %d: %w", datasetID, ErrDatasetNotFound)
	}
	return dataset, nil
}

// DatasetByName retrieves a dataset by name, or nil when absent.
func (store *Store) DatasetByName(name string) (*Dataset, error) {
	return store.queryDataset("SELECT id, name, base_uri, current_version, created_at FROM datasets WHERE name = ?", name)
}

// DatasetByBaseURI retrieves a dataset by base URI, or nil when absent.
func (store *Store) DatasetByBaseURI(baseURI string) (*Dataset, error) {
	return store.queryDataset("SELECT id, name, base_uri, current_version, created_at FROM datasets WHERE base_uri = ?", baseURI)
}

// Resolve resolves a dataset reference. Resolution priority is dataset id,
// then base URI, then name. With CreateIfMissing, missing datasets are
// registered when the complementary field is available.
func (store *Store) Resolve(ref Ref, opts ResolveOptions) (*Dataset, error) {
	name := ref.Name
	if name == "" {
		name = opts.Name
	}
	baseURI := ref.BaseURI
	if baseURI == "" {
		baseURI = opts.BaseURI
	}

	if ref.DatasetID > 0 {
		return store.DatasetByID(ref.DatasetID)
	}

	if ref.BaseURI != "" {
		dataset, err := store.DatasetByBaseURI(ref.BaseURI)
		if err != nil {
			return nil, err
		}
		if dataset != nil {
			return dataset, nil
		}
		if opts.CreateIfMissing {
			if name == "" {
				return nil, fmt.Errorf("name is required to create a dataset when resolving by URI: %w", ErrCatalog)
			}
			return store.RegisterDataset(name, ref.BaseURI)
		}
		return nil, fmt.Errorf("no dataset registered for URI %q: %w", ref.BaseURI, ErrDatasetNotFound)
	}

	if name != "" {
		dataset, err := store.DatasetByName(name)
		if err != nil {
			return nil, err
		}
		if dataset != nil {
			return dataset, nil
		}
		if opts.CreateIfMissing {
			if baseURI == "" {
				return nil, fmt.Errorf("base_uri is required to create a dataset when resolving by name: %w", ErrCatalog)
			}
			return store.RegisterDataset(name, baseURI)
		}
	}

	return nil, fmt.Errorf("dataset reference could not be resolved: %w", ErrDatasetNotFound)
}

// ListDatasets returns all registered datasets ordered by id.
func (store *Store) ListDatasets() ([]Dataset, error) {
	rows, err := store.database.Query("SELECT id, name, base_uri, current_version, created_at FROM datasets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []Dataset
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *dataset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}
	return datasets, nil
}

// CommitWrite atomically records a new version: one transaction row, each
// file with its schema version, row groups and partitions, and the bumped
// current_version. On any failure nothing of the commit is observable.
func (store *Store) CommitWrite(dataset *Dataset, version int64, files []FileInput, metadata map[string]any) (*Dataset, error) {
	if version <= dataset.CurrentVersion {
		return nil, fmt.Errorf("version %d must be greater than current %d: %w", version, dataset.CurrentVersion, ErrCatalog)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one file record is required for a write: %w", ErrCatalog)
	}

	tx, err := store.database.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Second writers lose here: re-check monotonicity against the live row.
	var liveVersion int64
	if err := tx.QueryRow("SELECT current_version FROM datasets WHERE id = ?", dataset.ID).Scan(&liveVersion); err != nil {
		return nil, fmt.Errorf("failed to read current version: %w", err)
	}
	if version <= liveVersion {
		return nil, fmt.Errorf("version %d must be greater than current %d: %w", version, liveVersion, ErrCatalog)
	}

	metadataJSON, err := encodeJSON(metadata)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(
		"INSERT INTO transactions (dataset_id, version, operation, metadata_json) VALUES (?, ?, ?, ?)",
		dataset.ID, version, "append", metadataJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	for _, entry := range files {
		var schemaVersionID any
		if entry.SchemaBytes != nil {
			id, err := getOrCreateSchemaVersion(tx, dataset.ID, entry.SchemaBytes)
			if err != nil {
				return nil, err
			}
			schemaVersionID = id
		}

		fileMetadataJSON, err := encodeJSON(entry.Metadata)
		if err != nil {
			return nil, err
		}

		result, err := tx.Exec(`
			INSERT INTO files (
				dataset_id, version, file_path, file_size_bytes, row_count,
				schema_version_id, metadata_json
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			dataset.ID, version, entry.FilePath,
			nullableInt(entry.FileSizeBytes), nullableInt(entry.RowCount),
			schemaVersionID, fileMetadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert file %q: %w", entry.FilePath, err)
		}
		fileID, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get file ID: %w", err)
		}

		if err := insertRowGroups(tx, fileID, entry.RowGroups); err != nil {
			return nil, err
		}
		if err := insertPartitions(tx, fileID, entry.Partitions); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec("UPDATE datasets SET current_version = ? WHERE id = ?", version, dataset.ID); err != nil {
		return nil, fmt.Errorf("failed to update current version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit write: %w", err)
	}

	return store.DatasetByID(dataset.ID)
}

// ListFilesForVersion returns the committed files of one version ordered by id.
func (store *Store) ListFilesForVersion(datasetID, version int64) ([]FileEntry, error) {
	rows, err := store.database.Query(
		"SELECT id, file_path FROM files WHERE dataset_id = ? AND version = ? ORDER BY id",
		datasetID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var entries []FileEntry
	for rows.Next() {
		var entry FileEntry
		if err := rows.Scan(&entry.ID, &entry.FilePath); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return entries, nil
}

// PartitionsForFiles returns the hive partition pairs of each file.
func (store *Store) PartitionsForFiles(fileIDs []int64) (map[int64]map[string]string, error) {
	partitions := make(map[int64]map[string]string)
	if len(fileIDs) == 0 {
		return partitions, nil
	}

	query := "SELECT file_id, key, value FROM partitions WHERE file_id IN (" + placeholders(len(fileIDs)) + ")"
	rows, err := store.database.Query(query, int64Args(fileIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query partitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fileID     int64
			key, value string
		)
		if err := rows.Scan(&fileID, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan partition: %w", err)
		}
		if partitions[fileID] == nil {
			partitions[fileID] = make(map[string]string)
		}
		partitions[fileID][key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partitions: %w", err)
	}
	return partitions, nil
}

// RowGroupsForFiles returns the recorded row-group statistics of each file,
// ordered by row-group index.
func (store *Store) RowGroupsForFiles(fileIDs []int64) (map[int64][]RowGroupStats, error) {
	rowGroups := make(map[int64][]RowGroupStats)
	if len(fileIDs) == 0 {
		return rowGroups, nil
	}

	query := `
		SELECT file_id, row_group_index, row_count, stats_min_json, stats_max_json, null_counts_json
		FROM row_groups
		WHERE file_id IN (` + placeholders(len(fileIDs)) + `)
		ORDER BY file_id, row_group_index`
	rows, err := store.database.Query(query, int64Args(fileIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query row groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fileID         int64
			index          int
			rowCount       sql.NullInt64
			minJSON        sql.NullString
			maxJSON        sql.NullString
			nullCountsJSON sql.NullString
		)
		if err := rows.Scan(&fileID, &index, &rowCount, &minJSON, &maxJSON, &nullCountsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row group: %w", err)
		}

		stats := RowGroupStats{Index: index}
		if rowCount.Valid {
			value := rowCount.Int64
			stats.RowCount = &value
		}
		if err := decodeJSON(minJSON, &stats.Min); err != nil {
			return nil, err
		}
		if err := decodeJSON(maxJSON, &stats.Max); err != nil {
			return nil, err
		}
		if err := decodeJSON(nullCountsJSON, &stats.NullCounts); err != nil {
			return nil, err
		}
		rowGroups[fileID] = append(rowGroups[fileID], stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating row groups: %w", err)
	}
	return rowGroups, nil
}

// TransactionsForDataset lists committed versions of a dataset, oldest first.
func (store *Store) TransactionsForDataset(datasetID int64) ([]Transaction, error) {
	rows, err := store.database.Query(
		"SELECT id, dataset_id, version, timestamp, operation, metadata_json FROM transactions WHERE dataset_id = ? ORDER BY version",
		datasetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []Transaction
	for rows.Next() {
		var (
			txn          Transaction
			timestamp    any
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&txn.ID, &txn.DatasetID, &txn.Version, &timestamp, &txn.Operation, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		parsed, err := parseTimestamp(timestamp)
		if err != nil {
			return nil, err
		}
		txn.Timestamp = parsed
		if err := decodeJSON(metadataJSON, &txn.Metadata); err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// getOrCreateSchemaVersion deduplicates schema versions on the serialized
// schema bytes; identical schemas share one row per dataset.
func getOrCreateSchemaVersion(tx *sql.Tx, datasetID int64, schemaBytes []byte) (int64, error) {
	var existingID int64
	err := tx.QueryRow(
		"SELECT id FROM schema_versions WHERE dataset_id = ? AND arrow_schema = ?",
		datasetID, schemaBytes,
	).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}

	var nextVersion int64
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(version), -1) + 1 FROM schema_versions WHERE dataset_id = ?",
		datasetID,
	).Scan(&nextVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next schema version: %w", err)
	}

	result, err := tx.Exec(
		"INSERT INTO schema_versions (dataset_id, version, arrow_schema) VALUES (?, ?, ?)",
		datasetID, nextVersion, schemaBytes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert schema version: %w", err)
	}
	schemaVersionID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version ID: %w", err)
	}
	return schemaVersionID, nil
}

func insertRowGroups(tx *sql.Tx, fileID int64, rowGroups []RowGroupStats) error {
	for _, rg := range rowGroups {
		minJSON, err := encodeJSON(rg.Min)
		if err != nil {
			return err
		}
		maxJSON, err := encodeJSON(rg.Max)
		if err != nil {
			return err
		}
		nullCountsJSON, err := encodeJSON(rg.NullCounts)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO row_groups (
				file_id, row_group_index, row_count,
				stats_min_json, stats_max_json, null_counts_json
			) VALUES (?, ?, ?, ?, ?, ?)`,
			fileID, rg.Index, nullableInt(rg.RowCount), minJSON, maxJSON, nullCountsJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert row group %d: %w", rg.Index, err)
		}
	}
	return nil
}

func insertPartitions(tx *sql.Tx, fileID int64, partitions map[string]string) error {
	for key, value := range partitions {
		_, err := tx.Exec("INSERT INTO partitions (file_id, key, value) VALUES (?, ?, ?)", fileID, key, value)
		if err != nil {
			return fmt.Errorf("failed to insert partition %s=%s: %w", key, value, err)
		}
	}
	return nil
}

func (store *Store) queryDataset(query string, args ...any) (*Dataset, error) {
	row := store.database.QueryRow(query, args...)
	dataset, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dataset, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*Dataset, error) {
	var (
		dataset   Dataset
		createdAt any
	)
	err := row.Scan(&dataset.ID, &dataset.Name, &dataset.BaseURI, &dataset.CurrentVersion, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}
	parsed, err := parseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}
	dataset.CreatedAt = parsed
	return &dataset, nil
}

// parseTimestamp tolerates the timestamp representations SQLite-compatible
// drivers hand back for DEFAULT CURRENT_TIMESTAMP columns.
func parseTimestamp(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		return parseTimestampString(v)
	case []byte:
		return parseTimestampString(string(v))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("cannot parse timestamp %v: %w", value, ErrCatalog)
	}
}

func parseTimestampString(value string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q: %w", value, ErrCatalog)
}

func encodeJSON(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(encoded), nil
}

func decodeJSON(column sql.NullString, target any) error {
	if !column.Valid || column.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(column.String), target); err != nil {
		return fmt.Errorf("failed to decode stored JSON: %w", err)
	}
	return nil
}

func nullableInt(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func placeholders(count int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

func int64Args(values []int64) []any {
	args := make([]any, len(values))
	for i, value := range values {
		args[i] = value
	}
	return args
}
