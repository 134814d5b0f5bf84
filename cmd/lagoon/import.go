package main

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/datalagoon/lagoon/internal/config"
	"github.com/datalagoon/lagoon/pkg/catalog"
	"github.com/datalagoon/lagoon/pkg/dataset"
	"github.com/datalagoon/lagoon/pkg/storage"
)

var (
	// Import flags
	importBaseURI     string
	importPartitionBy []string
)

var importCmd = &cobra.Command{
	Use:   "import <ref> <parquet-file>",
	Short: "Import a Parquet file as a new dataset version",
	Long: `Import reads an existing Parquet file and commits its rows as the next
version of a dataset. The reference may be a dataset name or a base URI;
a new dataset needs --base-uri on first import.`,
	Args: cobra.ExactArgs(2),
	Run:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importBaseURI, "base-uri", "", "Base URI for the dataset (required on first import)")
	importCmd.Flags().StringSliceVar(&importPartitionBy, "partition-by", nil, "Columns to hive-partition the files by")

	rootCmd.AddCommand(importCmd)
}

// writeOptionsFromConfig builds write options from the configuration file,
// with the --catalog flag taking precedence.
func writeOptionsFromConfig(cfg *config.Config) dataset.WriteOptions {
	uri := catalogURI
	if uri == "" {
		uri = cfg.Catalog.URI
	}
	return dataset.WriteOptions{
		CatalogURI:      uri,
		Compression:     cfg.Write.Compression,
		MaxRowsPerGroup: cfg.Write.MaxRowsPerGroup,
	}
}

func runImport(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatal(err)
	}

	handle, err := storage.Resolve(args[1], nil)
	if err != nil {
		fatal(err)
	}
	input, err := handle.FS.OpenInputFile(handle.RootPath)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = input.Close() }()

	reader, err := file.NewParquetReader(input)
	if err != nil {
		fatal(fmt.Errorf("failed to open parquet file %q: %w", args[1], err))
	}
	defer func() { _ = reader.Close() }()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{BatchSize: 64 * 1024}, memory.DefaultAllocator)
	if err != nil {
		fatal(err)
	}
	table, err := arrowReader.ReadTable(cmd.Context())
	if err != nil {
		fatal(fmt.Errorf("failed to read parquet file %q: %w", args[1], err))
	}
	defer table.Release()

	opts := writeOptionsFromConfig(cfg)
	opts.BaseURI = importBaseURI
	opts.PartitionBy = importPartitionBy

	result, err := dataset.Write(cmd.Context(), catalog.RefFromString(args[0]), table, opts)
	if err != nil {
		fatal(err)
	}
	color.Green("Committed version %d of %q (%d rows, %d files)",
		result.Version, result.Ref.Name, result.RowCount, len(result.Files))
}
