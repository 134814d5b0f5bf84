package catalog

import (
	"database/sql"
	"fmt"
)

// schemaStatements creates the catalog tables. Statements are idempotent so
// opening an existing catalog is a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		base_uri TEXT NOT NULL UNIQUE,
		current_version INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS schema_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id INTEGER NOT NULL REFERENCES datasets(id),
		version INTEGER NOT NULL,
		arrow_schema BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(dataset_id, version)
	);`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id INTEGER NOT NULL REFERENCES datasets(id),
		version INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		operation TEXT NOT NULL,
		metadata_json TEXT,
		UNIQUE(dataset_id, version)
	);`,
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id INTEGER NOT NULL REFERENCES datasets(id),
		version INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		file_size_bytes INTEGER,
		row_count INTEGER,
		schema_version_id INTEGER REFERENCES schema_versions(id),
		metadata_json TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		is_tombstoned INTEGER NOT NULL DEFAULT 0,
		UNIQUE(dataset_id, file_path, version)
	);`,
	`CREATE TABLE IF NOT EXISTS row_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		row_group_index INTEGER NOT NULL,
		stats_min_json TEXT,
		stats_max_json TEXT,
		null_counts_json TEXT,
		row_count INTEGER,
		UNIQUE(file_id, row_group_index)
	);`,
	`CREATE TABLE IF NOT EXISTS partitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		key TEXT NOT NULL,
		value TEXT NOT NULL
	);`,
}

// ensureSchema creates catalog tables if they do not already exist and
// applies idempotent column additions for catalogs created by older builds.
func ensureSchema(database *sql.DB) error {
	for _, statement := range schemaStatements {
		if _, err := database.Exec(statement); err != nil {
			return fmt.Errorf("failed to create catalog schema: %w", err)
		}
	}
	return ensureFilesTableColumns(database)
}

// ensureFilesTableColumns migrates the files table in place. Catalogs written
// before schema tracking lack schema_version_id and metadata_json.
func ensureFilesTableColumns(database *sql.DB) error {
	rows, err := database.Query("PRAGMA table_info(files)")
	if err != nil {
		return fmt.Errorf("failed to inspect files table: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			columnType string
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &defaultVal, &primaryKey); err != nil {
			return fmt.Errorf("failed to scan files table info: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read files table info: %w", err)
	}

	if !columns["schema_version_id"] {
		_, err := database.Exec("ALTER TABLE files ADD COLUMN schema_version_id INTEGER REFERENCES schema_versions(id)")
		if err != nil {
			return fmt.Errorf("failed to add schema_version_id column: %w", err)
		}
	}
	if !columns["metadata_json"] {
		_, err := database.Exec("ALTER TABLE files ADD COLUMN metadata_json TEXT")
		if err != nil {
			return fmt.Errorf("failed to add metadata_json column: %w", err)
		}
	}
	return nil
}
