package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/datalagoon/lagoon/internal/config"
	"github.com/datalagoon/lagoon/pkg/catalog"
)

var (
	// Global flags
	catalogURI string
	configPath string

	// Files flags
	filesVersion int64
)

var rootCmd = &cobra.Command{
	Use:   "lagoon",
	Short: "Versioned dataset catalog for Parquet data",
	Long: `Lagoon tracks versioned Parquet datasets in a relational catalog:
  - Register datasets by name and base URI
  - Inspect committed versions, files and transactions
  - Each write commits a new immutable version with statistics for pruning`,
}

var registerCmd = &cobra.Command{
	Use:   "register <name> <base-uri>",
	Short: "Register a dataset in the catalog",
	Args:  cobra.ExactArgs(2),
	Run:   runRegister,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered datasets",
	Run:   runList,
}

var infoCmd = &cobra.Command{
	Use:   "info <ref>",
	Short: "Display dataset details",
	Long:  `Display one dataset's identity, current version and canonical URI. The reference may be a dataset name or a base URI.`,
	Args:  cobra.ExactArgs(1),
	Run:   runInfo,
}

var filesCmd = &cobra.Command{
	Use:   "files <ref>",
	Short: "List the files of a dataset version",
	Args:  cobra.ExactArgs(1),
	Run:   runFiles,
}

var versionsCmd = &cobra.Command{
	Use:   "versions <ref>",
	Short: "List the committed versions of a dataset",
	Args:  cobra.ExactArgs(1),
	Run:   runVersions,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogURI, "catalog", "", "Catalog URI (e.g. sqlite:///lagoon.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "lagoon.yaml", "Path to configuration file")

	filesCmd.Flags().Int64Var(&filesVersion, "version", 0, "Version to list (default: current)")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(versionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the catalog from the --catalog flag or the config file.
func openStore() (*catalog.Store, error) {
	uri := catalogURI
	if uri == "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		uri = cfg.Catalog.URI
	}
	return catalog.Open(uri)
}

func fatal(err error) {
	color.Red("Error: %v", err)
	os.Exit(1)
}

func runRegister(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = store.Close() }()

	dataset, err := store.RegisterDataset(args[0], args[1])
	if err != nil {
		fatal(err)
	}
	color.Green("Registered dataset %q (id=%d) at %s", dataset.Name, dataset.ID, dataset.BaseURI)
}

func runList(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = store.Close() }()

	datasets, err := store.ListDatasets()
	if err != nil {
		fatal(err)
	}
	if len(datasets) == 0 {
		fmt.Println("No datasets registered")
		return
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("%-5s %-30s %-10s %s\n", "ID", "NAME", "VERSION", "BASE URI")
	for _, dataset := range datasets {
		fmt.Printf("%-5d %-30s %-10d %s\n", dataset.ID, dataset.Name, dataset.CurrentVersion, dataset.BaseURI)
	}
}

func runInfo(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = store.Close() }()

	dataset, err := store.Resolve(catalog.RefFromString(args[0]), catalog.ResolveOptions{})
	if err != nil {
		fatal(err)
	}

	ref := catalog.Ref{CatalogURI: catalogURI, DatasetID: dataset.ID, Name: dataset.Name, BaseURI: dataset.BaseURI}
	canonical, err := ref.CanonicalURI()
	if err != nil {
		canonical = "(unavailable)"
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println(dataset.Name)
	fmt.Printf("  ID:              %d\n", dataset.ID)
	fmt.Printf("  Base URI:        %s\n", dataset.BaseURI)
	fmt.Printf("  Current version: %d\n", dataset.CurrentVersion)
	fmt.Printf("  Created at:      %s\n", dataset.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Canonical URI:   %s\n", canonical)
}

func runFiles(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = store.Close() }()

	dataset, err := store.Resolve(catalog.RefFromString(args[0]), catalog.ResolveOptions{})
	if err != nil {
		fatal(err)
	}

	version := filesVersion
	if version == 0 {
		version = dataset.CurrentVersion
	}
	if version <= 0 {
		fatal(fmt.Errorf("dataset %q has no committed versions", dataset.Name))
	}

	files, err := store.ListFilesForVersion(dataset.ID, version)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Version %d of %q (%d files):\n", version, dataset.Name, len(files))
	for _, file := range files {
		fmt.Printf("  %s\n", file.FilePath)
	}
}

func runVersions(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = store.Close() }()

	dataset, err := store.Resolve(catalog.RefFromString(args[0]), catalog.ResolveOptions{})
	if err != nil {
		fatal(err)
	}

	transactions, err := store.TransactionsForDataset(dataset.ID)
	if err != nil {
		fatal(err)
	}
	if len(transactions) == 0 {
		fmt.Printf("Dataset %q has no committed versions\n", dataset.Name)
		return
	}

	printer := message.NewPrinter(language.English)
	bold := color.New(color.Bold)
	_, _ = bold.Printf("%-10s %-20s %-10s %s\n", "VERSION", "TIMESTAMP", "OPERATION", "FILES")
	for _, txn := range transactions {
		fileCount := ""
		if count, ok := txn.Metadata["file_count"]; ok {
			if number, isNumber := count.(float64); isNumber {
				fileCount = printer.Sprintf("%d", int64(number))
			}
		}
		fmt.Printf("%-10d %-20s %-10s %s\n",
			txn.Version, txn.Timestamp.Format("2006-01-02 15:04:05"), txn.Operation, fileCount)
	}
}
